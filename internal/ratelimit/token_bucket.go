package ratelimit

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"go.uber.org/zap"
)

// bucketTTL is a safety TTL for bucket state; buckets are self-regulating so
// the key only needs to outlive idle periods.
const bucketTTL = time.Hour

// casAttempts bounds the retry loop under contention for the same identifier.
const casAttempts = 4

// bucketState is the persisted bucket payload. Fill holds tokens for the
// token bucket and the level for the leaky bucket; Last is in float seconds.
type bucketState struct {
	Fill float64 `json:"fill"`
	Last float64 `json:"last"`
}

func floatSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// TokenBucket refills at a steady rate and allows bursts up to capacity, the
// natural shape for API-key traffic. State is mutated through compare-and-
// swap on the serialized bucket so concurrent checks never lose updates.
type TokenBucket struct {
	store  CounterStore
	logger *zap.Logger
}

// NewTokenBucket creates a token bucket engine.
func NewTokenBucket(store CounterStore, logger *zap.Logger) *TokenBucket {
	return &TokenBucket{store: store, logger: logger}
}

func (tb *TokenBucket) Evaluate(ctx context.Context, identifier string, cfg *LimitConfig, now time.Time) Decision {
	key := "gk:token:" + identifier
	nowSecs := floatSeconds(now)

	for attempt := 0; attempt < casAttempts; attempt++ {
		raw, found, err := tb.store.Get(ctx, key)
		if err != nil {
			return failOpen(AlgorithmTokenBucket, now, tb.logger, err)
		}

		state := bucketState{Fill: cfg.Capacity, Last: nowSecs}
		var old []byte
		if found {
			if err := json.Unmarshal(raw, &state); err != nil {
				// Corrupt state is replaced rather than trusted.
				tb.logger.Warn("discarding corrupt token bucket state",
					zap.String("identifier", identifier), zap.Error(err))
				state = bucketState{Fill: cfg.Capacity, Last: nowSecs}
			}
			old = raw
		}

		elapsed := math.Max(0, nowSecs-state.Last)
		tokens := math.Min(cfg.Capacity, state.Fill+elapsed*cfg.RefillRate)

		if tokens < 1 {
			retry := time.Duration(math.Ceil((1-tokens)/cfg.RefillRate)) * time.Second
			return Decision{
				Allowed:    false,
				Remaining:  0,
				ResetTime:  now.Add(retry),
				RetryAfter: retry,
				Algorithm:  AlgorithmTokenBucket,
			}
		}

		next, _ := json.Marshal(bucketState{Fill: tokens - 1, Last: nowSecs})
		swapped, err := tb.store.CompareAndSwap(ctx, key, old, next, bucketTTL)
		if err != nil {
			return failOpen(AlgorithmTokenBucket, now, tb.logger, err)
		}
		if swapped {
			return Decision{
				Allowed:   true,
				Remaining: int(math.Floor(tokens - 1)),
				ResetTime: now.Add(time.Duration(math.Ceil(1/cfg.RefillRate)) * time.Second),
				Algorithm: AlgorithmTokenBucket,
			}
		}
		// Lost the race to another request for this identifier; retry.
	}

	// Heavy contention means the identifier is actively spending tokens, so
	// admitting one more request is the safer failure.
	tb.logger.Debug("token bucket cas contention, admitting",
		zap.String("identifier", identifier))
	return Decision{
		Allowed:   true,
		Remaining: 0,
		ResetTime: now.Add(time.Duration(math.Ceil(1/cfg.RefillRate)) * time.Second),
		Algorithm: AlgorithmTokenBucket,
		Degraded:  true,
	}
}
