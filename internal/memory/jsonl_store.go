package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/petrijr/agentflow/pkg/api"
)

// Cache-size thresholds for the health verdict. Crossing degradedEntries
// means replay files are accumulating faster than expected; unhealthyEntries
// means the cache footprint is no longer acceptable for one process.
const (
	degradedEntries  = 10_000
	unhealthyEntries = 100_000
)

// JSONLStore is a Store backed by one append-only JSON-Lines file per
// (scope, key). Files are UTF-8 and human-inspectable.
//
// Layout under the base directory:
//
//	isolated/<agent>_<story>.jsonl
//	shared_<key>.jsonl
type JSONLStore struct {
	baseDir string

	mu    sync.RWMutex
	cache map[string]any
	dirty map[string]bool

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

var _ Store = (*JSONLStore)(nil)

// NewJSONLStore creates the base directory layout and returns a store.
func NewJSONLStore(baseDir string) (*JSONLStore, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, string(ScopeIsolated)), 0o755); err != nil {
		return nil, &api.StorageError{Path: baseDir, Op: "mkdir", Err: err}
	}
	return &JSONLStore{
		baseDir: baseDir,
		cache:   make(map[string]any),
		dirty:   make(map[string]bool),
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

func cacheKey(scope Scope, key string) string {
	return string(scope) + ":" + key
}

// filePath maps (scope, key) to its backing file. Keys are validated before
// this is called, so the sanitized form cannot escape the base directory.
func (s *JSONLStore) filePath(scope Scope, key string) string {
	sanitized := strings.ReplaceAll(key, ":", "_")
	if scope == ScopeIsolated {
		return filepath.Join(s.baseDir, string(ScopeIsolated), sanitized+".jsonl")
	}
	return filepath.Join(s.baseDir, "shared_"+sanitized+".jsonl")
}

// keyLock returns the mutex serializing writes for one cache key.
func (s *JSONLStore) keyLock(ck string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[ck]
	if !ok {
		l = &sync.Mutex{}
		s.locks[ck] = l
	}
	return l
}

func (s *JSONLStore) Get(ctx context.Context, scope Scope, key string) (any, error) {
	if err := validateScopeKey(scope, key); err != nil {
		return nil, err
	}
	ck := cacheKey(scope, key)

	s.mu.RLock()
	if v, ok := s.cache[ck]; ok {
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	value, found, err := s.replay(scope, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrKeyNotFound
	}

	s.mu.Lock()
	s.cache[ck] = value
	s.mu.Unlock()

	return value, nil
}

// replay reads the backing file and keeps the last well-formed record. One
// corrupted line does not block the valid lines around it.
func (s *JSONLStore) replay(scope Scope, key string) (any, bool, error) {
	path := s.filePath(scope, key)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, &api.StorageError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	var (
		value any
		found bool
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Key != key {
			continue
		}
		value = rec.Value
		found = true
	}
	if err := scanner.Err(); err != nil {
		return nil, false, &api.StorageError{Path: path, Op: "read", Err: err}
	}
	return value, found, nil
}

func (s *JSONLStore) Set(ctx context.Context, scope Scope, key string, value any) error {
	if err := validateScopeKey(scope, key); err != nil {
		return err
	}
	ck := cacheKey(scope, key)

	lock := s.keyLock(ck)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	s.cache[ck] = value
	s.dirty[ck] = true
	s.mu.Unlock()

	if err := s.append(scope, key, value); err != nil {
		// The value stays cached and dirty; Flush retries the write.
		return err
	}

	s.mu.Lock()
	delete(s.dirty, ck)
	s.mu.Unlock()
	return nil
}

func (s *JSONLStore) append(scope Scope, key string, value any) error {
	rec := Record{Key: key, Value: value, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return &api.ValidationError{Field: "value", Value: key, Reason: "value is not JSON-encodable"}
	}

	path := s.filePath(scope, key)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &api.StorageError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return &api.StorageError{Path: path, Op: "append", Err: err}
	}
	return nil
}

// Flush writes out every cached entry whose durable write has not succeeded
// yet.
func (s *JSONLStore) Flush(ctx context.Context) error {
	s.mu.RLock()
	pending := make(map[string]any, len(s.dirty))
	for ck := range s.dirty {
		pending[ck] = s.cache[ck]
	}
	s.mu.RUnlock()

	for ck, value := range pending {
		scope, key, ok := strings.Cut(ck, ":")
		if !ok {
			continue
		}
		lock := s.keyLock(ck)
		lock.Lock()
		err := s.append(Scope(scope), key, value)
		if err == nil {
			s.mu.Lock()
			delete(s.dirty, ck)
			s.mu.Unlock()
		}
		lock.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *JSONLStore) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]any)
	s.dirty = make(map[string]bool)
}

func (s *JSONLStore) Stats() CacheStats {
	s.mu.RLock()
	keys := make([]string, 0, len(s.cache))
	var approx int64
	for ck, v := range s.cache {
		keys = append(keys, ck)
		approx += int64(len(ck))
		if data, err := json.Marshal(v); err == nil {
			approx += int64(len(data))
		}
	}
	size := len(s.cache)
	s.mu.RUnlock()

	s.lockMu.Lock()
	lockCount := len(s.locks)
	s.lockMu.Unlock()

	sort.Strings(keys)
	return CacheStats{
		CacheSize:   size,
		LockCount:   lockCount,
		CacheKeys:   keys,
		ApproxBytes: approx,
	}
}

func (s *JSONLStore) HealthCheck(ctx context.Context) Health {
	s.mu.RLock()
	size := len(s.cache)
	s.mu.RUnlock()

	if _, err := os.Stat(s.baseDir); err != nil {
		return Health{State: HealthUnhealthy, CacheSize: size, Detail: "base directory unavailable: " + err.Error()}
	}
	switch {
	case size >= unhealthyEntries:
		return Health{State: HealthUnhealthy, CacheSize: size, Detail: "cache size over limit"}
	case size >= degradedEntries:
		return Health{State: HealthDegraded, CacheSize: size, Detail: "cache size elevated"}
	default:
		return Health{State: HealthHealthy, CacheSize: size}
	}
}
