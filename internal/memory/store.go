// Package memory provides the scoped durable key/value store used for
// inter-agent memory and as the storage primitive for workflow records.
// Backing files are append-only; current state is reconstructed by
// latest-wins replay.
package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/agentflow/pkg/api"
)

// Scope selects one of the two key spaces of the store.
type Scope string

const (
	// ScopeIsolated is private to one (agent, story) pair. Keys must be of
	// the form "<agent_id>:<story_id>".
	ScopeIsolated Scope = "isolated"

	// ScopeShared is visible to any agent referencing the same key. The key
	// may carry a ":namespace" suffix; the store treats it as opaque.
	ScopeShared Scope = "shared"
)

// ErrKeyNotFound is returned by Get when no usable record exists for the
// key. A backing file whose only records are unparsable reads as absent,
// not as an error.
var ErrKeyNotFound = errors.New("memory: key not found")

// Record is one line of a backing file.
type Record struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// CacheStats is a read-only view of a store's cache.
type CacheStats struct {
	CacheSize   int      `json:"cache_size"`
	LockCount   int      `json:"lock_count"`
	CacheKeys   []string `json:"cache_keys"`
	ApproxBytes int64    `json:"approx_bytes"`
}

// HealthState is the tri-state verdict of a health check.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// Health is the result of a health check.
type Health struct {
	State     HealthState `json:"state"`
	CacheSize int         `json:"cache_size"`
	Detail    string      `json:"detail,omitempty"`
}

// Store is the durable scoped key/value store. Writes to the same key are
// serialized; writes to different keys never block each other. Callers must
// respect single-writer-per-key across processes; no cross-process lock is
// provided.
type Store interface {
	// Get returns the current value for (scope, key), replaying the backing
	// storage on a cache miss and keeping only the last well-formed record.
	Get(ctx context.Context, scope Scope, key string) (any, error)

	// Set appends one record and updates the cache.
	Set(ctx context.Context, scope Scope, key string, value any) error

	// Flush writes out any cache state that is not yet durable.
	Flush(ctx context.Context) error

	// ClearCache drops cached entries only. Subsequent Gets must
	// reconstruct identical values by replay.
	ClearCache()

	// Stats reports cache size, per-key lock count, and a rough footprint.
	Stats() CacheStats

	// HealthCheck returns a tri-state verdict from simple thresholds.
	HealthCheck(ctx context.Context) Health
}

// validateScopeKey enforces the scope allow-list and key shape shared by all
// Store implementations.
func validateScopeKey(scope Scope, key string) error {
	switch scope {
	case ScopeIsolated:
		if !strings.Contains(key, ":") {
			return &api.ValidationError{
				Field:  "key",
				Value:  key,
				Reason: "isolated keys must contain ':' separator",
			}
		}
	case ScopeShared:
	default:
		return &api.ValidationError{
			Field:  "scope",
			Value:  string(scope),
			Reason: "invalid scope",
		}
	}
	return api.ValidateScopedKey("key", key)
}
