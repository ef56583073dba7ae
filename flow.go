// Package flow holds the graph model of a media workflow, the ordering and
// input-resolution rules the engine applies to it, and the persistence
// contracts for workflows and their execution history.
package flow

import "fmt"

// Workflow is a stored editor graph.
type Workflow struct {
	ID    string `json:"id"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Edge is a directed, handle-qualified connection. TargetHandle decides
// which input field the source value is bound to.
type Edge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Graph is an immutable, indexed snapshot of nodes and edges taken at run start.
type Graph struct {
	nodes []Node
	edges []Edge
	byID  map[string]int
	in    map[string][]int
}

// NewGraph copies nodes and edges into an indexed snapshot. Node IDs must be
// unique and each (target, targetHandle) pair may be occupied by one edge.
func NewGraph(nodes []Node, edges []Edge) (*Graph, error) {
	g := &Graph{
		nodes: append([]Node(nil), nodes...),
		edges: append([]Edge(nil), edges...),
		byID:  make(map[string]int, len(nodes)),
		in:    make(map[string][]int),
	}
	for i, n := range g.nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("flow: node at index %d has no id", i)
		}
		if _, dup := g.byID[n.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		g.byID[n.ID] = i
	}
	type slot struct{ target, handle string }
	taken := make(map[slot]string)
	for i, e := range g.edges {
		if e.TargetHandle != "" {
			s := slot{e.Target, e.TargetHandle}
			if prev, ok := taken[s]; ok {
				return nil, fmt.Errorf("%w: %s.%s (from %s and %s)", ErrHandleOccupied, e.Target, e.TargetHandle, prev, e.Source)
			}
			taken[s] = e.Source
		}
		g.in[e.Target] = append(g.in[e.Target], i)
	}
	return g, nil
}

// Nodes returns a copy of the snapshot's nodes in their original order.
func (g *Graph) Nodes() []Node { return append([]Node(nil), g.nodes...) }

// Edges returns a copy of the snapshot's edges.
func (g *Graph) Edges() []Edge { return append([]Edge(nil), g.edges...) }

// Node looks a node up by ID.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.byID[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Incoming returns the edges targeting id, in edge order.
func (g *Graph) Incoming(id string) []Edge {
	idx := g.in[id]
	out := make([]Edge, len(idx))
	for i, j := range idx {
		out[i] = g.edges[j]
	}
	return out
}
