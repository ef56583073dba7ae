package flow

import "fmt"

// Sort orders nodes so that for every edge u->v with both ends in nodes, u
// comes before v. It walks depth-first in input order, visiting the sources
// of each node's incoming edges before the node itself. Edges leaving the
// subset are ignored. A back edge returns an error wrapping ErrCycleDetected.
func Sort(nodes []Node, edges []Edge) ([]Node, error) {
	return topoSort(nodes, edges, true)
}

// SortLenient is Sort without cycle errors: an edge back to a node still
// being visited is skipped, yielding a best-effort order.
func SortLenient(nodes []Node, edges []Edge) []Node {
	out, _ := topoSort(nodes, edges, false)
	return out
}

func topoSort(nodes []Node, edges []Edge, strict bool) ([]Node, error) {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}
	deps := make(map[string][]string)
	for _, e := range edges {
		if _, ok := index[e.Target]; !ok {
			continue
		}
		if _, ok := index[e.Source]; !ok {
			continue
		}
		deps[e.Target] = append(deps[e.Target], e.Source)
	}

	state := make(map[string]int, len(nodes))
	sorted := make([]Node, 0, len(nodes))

	var visit func(id string) error
	visit = func(id string) error {
		state[id] = visiting
		for _, dep := range deps[id] {
			switch state[dep] {
			case visiting:
				if strict {
					return fmt.Errorf("%w: %s -> %s", ErrCycleDetected, dep, id)
				}
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[id] = visited
		sorted = append(sorted, nodes[index[id]])
		return nil
	}

	for _, n := range nodes {
		if state[n.ID] != unvisited {
			continue
		}
		if err := visit(n.ID); err != nil {
			return sorted, err
		}
	}
	return sorted, nil
}
