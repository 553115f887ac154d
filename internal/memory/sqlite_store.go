package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	"github.com/petrijr/agentflow/pkg/api"
)

// SQLiteStore is a Store backed by a single SQLite database instead of one
// JSONL file per key. The table is append-only: Set inserts a new row and
// Get reads the newest decodable one, so the latest-wins semantics match
// JSONLStore exactly.
//
// It expects an *sql.DB using a SQLite driver (for example
// "modernc.org/sqlite"). The caller imports the driver:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the schema and returns a store.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scope TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_memory_records_scope_key
			ON memory_records (scope, key, id);`,
	)
	return err
}

func (s *SQLiteStore) keyLock(ck string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[ck]
	if !ok {
		l = &sync.Mutex{}
		s.locks[ck] = l
	}
	return l
}

func (s *SQLiteStore) Get(ctx context.Context, scope Scope, key string) (any, error) {
	if err := validateScopeKey(scope, key); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT value FROM memory_records
		WHERE scope = ? AND key = ?
		ORDER BY id DESC`,
		string(scope), key,
	)
	if err != nil {
		return nil, &api.StorageError{Path: "memory_records", Op: "query", Err: err}
	}
	defer rows.Close()

	// Newest first; skip rows that no longer decode, mirroring the
	// corrupted-line tolerance of the JSONL replay.
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, &api.StorageError{Path: "memory_records", Op: "scan", Err: err}
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			continue
		}
		return value, nil
	}
	if err := rows.Err(); err != nil {
		return nil, &api.StorageError{Path: "memory_records", Op: "query", Err: err}
	}
	return nil, ErrKeyNotFound
}

func (s *SQLiteStore) Set(ctx context.Context, scope Scope, key string, value any) error {
	if err := validateScopeKey(scope, key); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return &api.ValidationError{Field: "value", Value: key, Reason: "value is not JSON-encodable"}
	}

	lock := s.keyLock(cacheKey(scope, key))
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_records (scope, key, value) VALUES (?, ?, ?)`,
		string(scope), key, string(data),
	); err != nil {
		return &api.StorageError{Path: "memory_records", Op: "insert", Err: err}
	}
	return nil
}

// Flush is a no-op: every Set is durable once the INSERT commits.
func (s *SQLiteStore) Flush(ctx context.Context) error { return nil }

// ClearCache is a no-op: reads always go to the database.
func (s *SQLiteStore) ClearCache() {}

func (s *SQLiteStore) Stats() CacheStats {
	s.lockMu.Lock()
	lockCount := len(s.locks)
	s.lockMu.Unlock()
	return CacheStats{CacheKeys: []string{}, LockCount: lockCount}
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) Health {
	if err := s.db.PingContext(ctx); err != nil {
		return Health{State: HealthUnhealthy, Detail: "database unreachable: " + err.Error()}
	}
	return Health{State: HealthHealthy}
}
