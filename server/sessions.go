package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/pumpkin/pkg/bytecode"
	"github.com/chazu/pumpkin/pkg/runtime"
)

// Session is a named, long-lived global environment. Programs run in a
// session see the bindings earlier programs left behind.
type Session struct {
	ID      string
	Name    string
	Created time.Time

	rt     *runtime.Session
	worker *VMWorker
}

// Info describes the session for listings.
func (s *Session) Info() SessionInfo {
	return SessionInfo{ID: s.ID, Name: s.Name, Runs: s.rt.Runs(), Created: s.Created}
}

func (s *Session) record() SessionRecord {
	return SessionRecord{ID: s.ID, Name: s.Name, Created: s.Created, Globals: s.rt.Globals()}
}

// SessionStore manages sessions, mirroring them to a Store when one is set.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    *Store
	opts     []runtime.Option
}

// NewSessionStore creates a new session store. store may be nil, in which
// case sessions live in memory only. opts apply to every session's runs.
func NewSessionStore(store *Store, opts ...runtime.Option) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		store:    store,
		opts:     opts,
	}
}

// Restore loads every persisted session. Returns how many were loaded.
func (s *SessionStore) Restore() (int, error) {
	if s.store == nil {
		return 0, nil
	}
	records, err := s.store.LoadAll()
	if err != nil {
		return 0, err
	}
	for _, rec := range records {
		session := s.newSession(rec.ID, rec.Name, rec.Created)
		session.rt.Restore(rec.Globals)
		s.mu.Lock()
		s.sessions[rec.ID] = session
		s.mu.Unlock()
	}
	return len(records), nil
}

func (s *SessionStore) newSession(id, name string, created time.Time) *Session {
	return &Session{
		ID:      id,
		Name:    name,
		Created: created,
		rt:      runtime.NewSession(s.opts...),
		worker:  NewVMWorker(),
	}
}

// Create creates a new session with an optional name.
func (s *SessionStore) Create(name string) (*Session, error) {
	session := s.newSession(uuid.NewString(), name, time.Now())
	if s.store != nil {
		if err := s.store.Save(session.record()); err != nil {
			session.worker.Stop()
			return nil, err
		}
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	log.Infof("created session %s", session.ID)
	return session, nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	return session, ok
}

// List returns every session, oldest first.
func (s *SessionStore) List() []*Session {
	s.mu.RLock()
	list := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		list = append(list, session)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].Created.Equal(list[j].Created) {
			return list[i].Created.Before(list[j].Created)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Run runs a JSON program in the session on its worker, then persists the
// session's globals.
func (s *SessionStore) Run(ctx context.Context, session *Session, program []byte) (*runtime.ExecutionResult, error) {
	result, err := session.worker.Do(ctx, func() interface{} {
		res := session.rt.RunJSON(ctx, program)
		s.persist(session)
		return res
	})
	if err != nil {
		return nil, err
	}
	return result.(*runtime.ExecutionResult), nil
}

// Globals returns a copy of the session's bindings.
func (s *SessionStore) Globals(ctx context.Context, session *Session) (map[string]bytecode.Value, error) {
	result, err := session.worker.Do(ctx, func() interface{} {
		return session.rt.Globals()
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]bytecode.Value), nil
}

// Reset discards the session's bindings.
func (s *SessionStore) Reset(ctx context.Context, session *Session) error {
	_, err := session.worker.Do(ctx, func() interface{} {
		session.rt.Reset()
		s.persist(session)
		return nil
	})
	return err
}

// persist saves the session if a store is configured. Storage failures are
// logged; the in-memory session stays authoritative.
func (s *SessionStore) persist(session *Session) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(session.record()); err != nil {
		log.Errorf("persisting session %s: %v", session.ID, err)
	}
}

// Destroy removes a session. Returns false if it did not exist.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return false
	}
	session.worker.Stop()
	if s.store != nil {
		if err := s.store.Delete(id); err != nil {
			log.Errorf("deleting session %s: %v", id, err)
		}
	}
	log.Infof("destroyed session %s", id)
	return true
}

// Close stops every session's worker. Persisted sessions are kept.
func (s *SessionStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		session.worker.Stop()
	}
}
