package ratelimit

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"go.uber.org/zap"
)

// LeakyBucket drains at a constant rate and denies once the level reaches
// capacity, pacing admission instead of tolerating bursts. Used where strict
// pacing matters more than burst tolerance.
type LeakyBucket struct {
	store  CounterStore
	logger *zap.Logger
}

// NewLeakyBucket creates a leaky bucket engine.
func NewLeakyBucket(store CounterStore, logger *zap.Logger) *LeakyBucket {
	return &LeakyBucket{store: store, logger: logger}
}

func (lb *LeakyBucket) Evaluate(ctx context.Context, identifier string, cfg *LimitConfig, now time.Time) Decision {
	key := "gk:leaky:" + identifier
	nowSecs := floatSeconds(now)

	for attempt := 0; attempt < casAttempts; attempt++ {
		raw, found, err := lb.store.Get(ctx, key)
		if err != nil {
			return failOpen(AlgorithmLeakyBucket, now, lb.logger, err)
		}

		state := bucketState{Fill: 0, Last: nowSecs}
		var old []byte
		if found {
			if err := json.Unmarshal(raw, &state); err != nil {
				lb.logger.Warn("discarding corrupt leaky bucket state",
					zap.String("identifier", identifier), zap.Error(err))
				state = bucketState{Fill: 0, Last: nowSecs}
			}
			old = raw
		}

		elapsed := math.Max(0, nowSecs-state.Last)
		level := math.Max(0, state.Fill-elapsed*cfg.LeakRate)

		if level >= cfg.Capacity {
			retrySecs := math.Ceil((level - cfg.Capacity) / cfg.LeakRate)
			if retrySecs <= 0 {
				retrySecs = math.Ceil(1 / cfg.LeakRate)
			}
			retry := time.Duration(retrySecs) * time.Second
			return Decision{
				Allowed:    false,
				Remaining:  0,
				ResetTime:  now.Add(retry),
				RetryAfter: retry,
				Algorithm:  AlgorithmLeakyBucket,
			}
		}

		next, _ := json.Marshal(bucketState{Fill: level + 1, Last: nowSecs})
		swapped, err := lb.store.CompareAndSwap(ctx, key, old, next, bucketTTL)
		if err != nil {
			return failOpen(AlgorithmLeakyBucket, now, lb.logger, err)
		}
		if swapped {
			return Decision{
				Allowed:   true,
				Remaining: int(cfg.Capacity - (level + 1)),
				ResetTime: now.Add(time.Duration(math.Ceil(1/cfg.LeakRate)) * time.Second),
				Algorithm: AlgorithmLeakyBucket,
			}
		}
	}

	lb.logger.Debug("leaky bucket cas contention, admitting",
		zap.String("identifier", identifier))
	return Decision{
		Allowed:   true,
		Remaining: 0,
		ResetTime: now.Add(time.Duration(math.Ceil(1/cfg.LeakRate)) * time.Second),
		Algorithm: AlgorithmLeakyBucket,
		Degraded:  true,
	}
}
