package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/pumpkin/pkg/bytecode"
)

// debugRun is a program paused under the debugger, owned by its own worker.
type debugRun struct {
	id       string
	debugger *bytecode.Debugger
	worker   *VMWorker
	last     bytecode.StopReason
	stopped  bool // last holds a stop reason
	created  time.Time
	lastUsed time.Time
}

// DebugStore maps opaque IDs to debug runs. Runs that go unused for longer
// than the sweeper's TTL are released.
type DebugStore struct {
	mu   sync.Mutex
	runs map[string]*debugRun
}

// NewDebugStore creates a new debug store.
func NewDebugStore() *DebugStore {
	return &DebugStore{runs: make(map[string]*debugRun)}
}

// Create registers a debugger under a fresh ID.
func (s *DebugStore) Create(d *bytecode.Debugger) *debugRun {
	now := time.Now()
	run := &debugRun{
		id:       uuid.NewString(),
		debugger: d,
		worker:   NewVMWorker(),
		created:  now,
		lastUsed: now,
	}

	s.mu.Lock()
	s.runs[run.id] = run
	s.mu.Unlock()
	return run
}

// Lookup retrieves a run and marks it used.
func (s *DebugStore) Lookup(id string) (*debugRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, false
	}
	run.lastUsed = time.Now()
	return run, true
}

// Release removes a run and stops its worker. Returns false if it did not
// exist.
func (s *DebugStore) Release(id string) bool {
	s.mu.Lock()
	run, ok := s.runs[id]
	delete(s.runs, id)
	s.mu.Unlock()

	if ok {
		run.worker.Stop()
	}
	return ok
}

// Len returns the number of live runs.
func (s *DebugStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Sweep removes runs that haven't been accessed within the TTL.
func (s *DebugStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, run := range s.runs {
		if run.lastUsed.Before(cutoff) {
			run.worker.Stop()
			delete(s.runs, id)
			removed++
		}
	}
	if removed > 0 {
		log.Infof("swept %d idle debug runs", removed)
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *DebugStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}

// Close releases every run.
func (s *DebugStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, run := range s.runs {
		run.worker.Stop()
		delete(s.runs, id)
	}
}
