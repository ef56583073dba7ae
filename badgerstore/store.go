// Package badgerstore implements flow.Recorder and flow.GraphStore on an
// embedded badger database, for single-binary deployments without
// PostgreSQL.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/internal/xjson"
)

// Key layout. Parts are joined with a NUL byte so IDs may contain any
// printable character without one prefix swallowing another.
const (
	prefixRun      = "run"
	prefixRunIndex = "wfrun"
	prefixExec     = "exec"
	prefixWorkflow = "wf"
	sep            = "\x00"
)

func key(parts ...string) []byte { return []byte(strings.Join(parts, sep)) }

func prefix(parts ...string) []byte { return []byte(strings.Join(parts, sep) + sep) }

// Store is safe for concurrent use.
type Store struct {
	db  *badger.DB
	own bool
	now func() time.Time
}

// New wraps an open database. Close leaves db open.
func New(db *badger.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Open opens (or creates) a database in dir. badger's own log lines are
// routed to logger.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger.With("component", "badger")})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w", dir, err)
	}
	s := New(db)
	s.own = true
	return s, nil
}

// Close closes the database if Open created it.
func (s *Store) Close() error {
	if !s.own {
		return nil
	}
	return s.db.Close()
}

// StartRun writes the run record and its workflow index entry.
func (s *Store) StartRun(_ context.Context, run *flow.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}
	if run.Status == "" {
		run.Status = flow.StatusPending
	}
	cp := *run
	cp.Nodes = nil
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(prefixRun, run.ID)); err == nil {
			return fmt.Errorf("badgerstore: run %s already exists", run.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, key(prefixRun, run.ID), cp); err != nil {
			return err
		}
		return txn.Set(key(prefixRunIndex, run.WorkflowID, run.ID), nil)
	})
}

// SetRunStatus returns flow.ErrRunNotFound for an unknown run.
func (s *Store) SetRunStatus(_ context.Context, runID string, status flow.Status) error {
	return s.updateRun(runID, func(r *flow.Run) { r.Status = status })
}

// CompleteRun sets a terminal status and the completion time. Returns
// flow.ErrRunNotFound for an unknown run.
func (s *Store) CompleteRun(_ context.Context, runID string, status flow.Status) error {
	if !status.Terminal() {
		return fmt.Errorf("badgerstore: complete run with non-terminal status %s", status)
	}
	now := s.now().UTC()
	return s.updateRun(runID, func(r *flow.Run) {
		r.Status = status
		r.CompletedAt = &now
	})
}

func (s *Store) updateRun(runID string, mutate func(*flow.Run)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var r flow.Run
		if err := getJSON(txn, key(prefixRun, runID), &r); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return flow.ErrRunNotFound
			}
			return err
		}
		mutate(&r)
		return setJSON(txn, key(prefixRun, runID), r)
	})
}

// LogNodeStart records a started node.
func (s *Store) LogNodeStart(_ context.Context, exec *flow.NodeExecution) error {
	return s.upsert(exec)
}

// LogNodeFinish overwrites the record of (exec.RunID, exec.NodeID).
func (s *Store) LogNodeFinish(_ context.Context, exec *flow.NodeExecution) error {
	return s.upsert(exec)
}

// upsert keeps one record per (RunID, NodeID); a later write keeps the first
// record's ID, and its inputs and start time when the new ones are absent.
func (s *Store) upsert(exec *flow.NodeExecution) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(prefixRun, exec.RunID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return flow.ErrRunNotFound
			}
			return err
		}

		k := key(prefixExec, exec.RunID, exec.NodeID)
		var prev flow.NodeExecution
		err := getJSON(txn, k, &prev)
		exists := err == nil
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		switch {
		case exists:
			exec.ID = prev.ID
		case exec.ID == "":
			exec.ID = uuid.NewString()
		}
		cp := *exec
		if exists {
			if cp.Inputs == nil {
				cp.Inputs = prev.Inputs
			}
			if cp.StartTime.IsZero() {
				cp.StartTime = prev.StartTime
			}
		}
		return setJSON(txn, k, cp)
	})
}

// GetRuns returns the runs of a workflow newest first, each with its node
// executions in start order.
func (s *Store) GetRuns(_ context.Context, workflowID string) ([]flow.Run, error) {
	runs := []flow.Run{}
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := keysUnder(txn, prefix(prefixRunIndex, workflowID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			var r flow.Run
			if err := getJSON(txn, key(prefixRun, id), &r); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			r.Nodes, err = executions(txn, id)
			if err != nil {
				return err
			}
			runs = append(runs, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: get runs: %w", err)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

func executions(txn *badger.Txn, runID string) ([]flow.NodeExecution, error) {
	out := []flow.NodeExecution{}
	p := prefix(prefixExec, runID)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: p, PrefetchValues: true, PrefetchSize: 100})
	defer it.Close()
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		var e flow.NodeExecution
		if err := it.Item().Value(func(v []byte) error { return xjson.Unmarshal(v, &e) }); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

// ClearRuns deletes node executions, then runs, then the index entries.
func (s *Store) ClearRuns(_ context.Context, workflowID string) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := keysUnder(txn, prefix(prefixRunIndex, workflowID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			p := prefix(prefixExec, id)
			it := txn.NewIterator(badger.IteratorOptions{Prefix: p})
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
		}
		for _, id := range ids {
			keys = append(keys, key(prefixRun, id))
		}
		for _, id := range ids {
			keys = append(keys, key(prefixRunIndex, workflowID, id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badgerstore: scan runs: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("badgerstore: delete %q: %w", k, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("badgerstore: clear runs: %w", err)
	}
	return nil
}

// SaveWorkflow validates w and replaces the stored graph.
func (s *Store) SaveWorkflow(_ context.Context, w *flow.Workflow) error {
	if _, err := flow.NewGraph(w.Nodes, w.Edges); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, key(prefixWorkflow, w.ID), w)
	})
}

// GetWorkflow returns nil, nil if not found.
func (s *Store) GetWorkflow(_ context.Context, id string) (*flow.Workflow, error) {
	var w flow.Workflow
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, key(prefixWorkflow, id), &w)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badgerstore: get workflow: %w", err)
	}
	return &w, nil
}

func (s *Store) DeleteWorkflow(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(prefixWorkflow, id))
	})
}

// keysUnder returns the last key segment of every key below p.
func keysUnder(txn *badger.Txn, p []byte) ([]string, error) {
	var out []string
	it := txn.NewIterator(badger.IteratorOptions{Prefix: p})
	defer it.Close()
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		out = append(out, string(it.Item().Key()[len(p):]))
	}
	return out, nil
}

func getJSON(txn *badger.Txn, k []byte, v any) error {
	item, err := txn.Get(k)
	if err != nil {
		return err
	}
	return item.Value(func(b []byte) error { return xjson.Unmarshal(b, v) })
}

func setJSON(txn *badger.Txn, k []byte, v any) error {
	b, err := xjson.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(k, b)
}
