package server

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chazu/pumpkin/pkg/bytecode"
)

// ErrSessionNotFound indicates the requested session doesn't exist.
var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is the persisted form of a session.
type SessionRecord struct {
	ID      string
	Name    string
	Created time.Time
	Globals map[string]bytecode.Value
}

// Store persists sessions and their globals in SQLite. Each global is kept
// as a CBOR-encoded value, so functions survive a restart.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

const storeSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS globals (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	value      BLOB NOT NULL,
	PRIMARY KEY (session_id, name)
);`

// OpenStore opens (creating if needed) the session database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps every statement on the same database, including
	// ":memory:" ones.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA foreign_keys = ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring database: %w", err)
		}
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes a session and replaces its stored globals.
func (s *Store) Save(rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := make(map[string][]byte, len(rec.Globals))
	for name, v := range rec.Globals {
		data, err := bytecode.MarshalValue(v)
		if err != nil {
			return fmt.Errorf("encoding global %s: %w", name, err)
		}
		encoded[name] = data
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO sessions (id, name, created_at) VALUES (?, ?, ?)",
		rec.ID, rec.Name, rec.Created.UnixNano(),
	); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM globals WHERE session_id = ?", rec.ID); err != nil {
		return fmt.Errorf("clearing globals: %w", err)
	}
	for name, data := range encoded {
		if _, err := tx.Exec(
			"INSERT INTO globals (session_id, name, value) VALUES (?, ?, ?)",
			rec.ID, name, data,
		); err != nil {
			return fmt.Errorf("saving global %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// Load retrieves one session.
func (s *Store) Load(id string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &SessionRecord{ID: id}
	var created int64
	err := s.db.QueryRow("SELECT name, created_at FROM sessions WHERE id = ?", id).Scan(&rec.Name, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("querying session: %w", err)
	}
	rec.Created = time.Unix(0, created)

	rec.Globals, err = s.loadGlobals(id)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// LoadAll retrieves every stored session, oldest first. Sessions that can
// no longer be read are logged and left out.
func (s *Store) LoadAll() ([]*SessionRecord, error) {
	s.mu.Lock()
	rows, err := s.db.Query("SELECT id FROM sessions ORDER BY created_at, id")
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			s.mu.Unlock()
			return nil, fmt.Errorf("listing sessions: %w", err)
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	rows.Close()
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	records := make([]*SessionRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Load(id)
		if err != nil {
			log.Warningf("skipping stored session %s: %v", id, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) loadGlobals(id string) (map[string]bytecode.Value, error) {
	rows, err := s.db.Query("SELECT name, value FROM globals WHERE session_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("querying globals: %w", err)
	}
	defer rows.Close()

	globals := make(map[string]bytecode.Value)
	for rows.Next() {
		var name string
		var data []byte
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("scanning global: %w", err)
		}
		v, err := bytecode.UnmarshalValue(data)
		if err != nil {
			log.Warningf("session %s: dropping undecodable global %s: %v", id, name, err)
			continue
		}
		globals[name] = v
	}
	return globals, rows.Err()
}

// Delete removes a session and its globals.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM globals WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("deleting globals: %w", err)
	}
	res, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
