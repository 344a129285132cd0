package ratelimit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gridshield/gatekeeper/pkg/metrics"
)

// ErrStoreUnavailable marks any counter store failure. Callers on the request
// path must treat it as a signal to fail open, never as a hard error.
var ErrStoreUnavailable = errors.New("ratelimit: counter store unavailable")

// CounterStore abstracts the shared backing store for all engines. Incr and
// CompareAndSwap must be atomic per key; a plain get-then-set store is only
// acceptable as a single-process fallback (see MemoryStore).
type CounterStore interface {
	// Get returns the raw value for key, with found=false when absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set writes value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Incr atomically increments the integer counter at key, applying ttl
	// when the key is created, and returns the new count.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// CompareAndSwap atomically replaces old with new under key. A nil old
	// means "create only if absent". Returns false when the current value
	// did not match.
	CompareAndSwap(ctx context.Context, key string, old, new []byte, ttl time.Duration) (bool, error)
	// Ping reports store reachability.
	Ping(ctx context.Context) error
}

// failOpenResetWindow is the conservative reset horizon reported while the
// store is unavailable.
const failOpenResetWindow = 10 * time.Second

// failOpen returns the degraded allow decision used whenever the counter
// store is unreachable. Availability over strictness: the limiter must not
// become an outage of its own.
func failOpen(algorithm string, now time.Time, logger *zap.Logger, err error) Decision {
	logger.Warn("counter store unavailable, failing open",
		zap.String("algorithm", algorithm),
		zap.Error(err))
	metrics.StoreErrors.WithLabelValues(algorithm).Inc()
	return Decision{
		Allowed:   true,
		Remaining: 1,
		ResetTime: now.Add(failOpenResetWindow),
		Algorithm: algorithm,
		Degraded:  true,
	}
}
