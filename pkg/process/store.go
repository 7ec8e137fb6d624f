package process

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/hearth/pkg/herr"
	"github.com/cuemby/hearth/pkg/metrics"
)

// Store tracks every live process on this peer, backing the peer API's
// process-store capability and enforcing the per-peer spawn limit. The
// factory inserts on Spawn; Process.Kill removes.
type Store struct {
	mu    sync.Mutex
	limit int
	procs map[LocalProcessId]*Process
}

// NewStore creates a process store. limit caps the number of simultaneously
// live processes; zero means unlimited.
func NewStore(limit int) *Store {
	return &Store{
		limit: limit,
		procs: make(map[LocalProcessId]*Process),
	}
}

func (s *Store) insert(p *Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && len(s.procs) >= s.limit {
		return fmt.Errorf("process: store: %d live processes: %w", len(s.procs), herr.SpawnLimit)
	}
	s.procs[p.ID] = p

	metrics.ProcessesLive.Set(float64(len(s.procs)))
	metrics.ProcessesSpawnedTotal.Inc()
	return nil
}

func (s *Store) remove(id LocalProcessId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.procs[id]; !ok {
		return
	}
	delete(s.procs, id)

	metrics.ProcessesLive.Set(float64(len(s.procs)))
	metrics.ProcessesKilledTotal.Inc()
}

// Get looks up a live process by id.
func (s *Store) Get(id LocalProcessId) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[id]
	if !ok {
		return nil, fmt.Errorf("process: store: pid %d: %w", id, herr.NotFound)
	}
	return p, nil
}

// Find looks up a live process by its metadata name. If several share the
// name, the lowest id wins.
func (s *Store) Find(name string) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *Process
	for _, p := range s.procs {
		if p.Meta.Name != name {
			continue
		}
		if found == nil || p.ID < found.ID {
			found = p
		}
	}
	if found == nil {
		return nil, fmt.Errorf("process: store: name %q: %w", name, herr.NotFound)
	}
	return found, nil
}

// List returns every live process, ordered by id.
func (s *Store) List() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Process, 0, len(s.procs))
	for _, p := range s.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports the number of live processes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}
