package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// SlidingWindow keeps one counter per sub-bucket of Precision seconds and
// sums the buckets covering the window on every check. Worst-case burst is
// bounded by limit * (1 + precision/window), trading one counter per bucket
// for smoother enforcement than a fixed window.
type SlidingWindow struct {
	store  CounterStore
	logger *zap.Logger
}

// NewSlidingWindow creates a sliding window engine.
func NewSlidingWindow(store CounterStore, logger *zap.Logger) *SlidingWindow {
	return &SlidingWindow{store: store, logger: logger}
}

func (sw *SlidingWindow) Evaluate(ctx context.Context, identifier string, cfg *LimitConfig, now time.Time) Decision {
	precision := cfg.Precision
	if precision <= 0 || precision > cfg.Window {
		precision = cfg.Window
	}
	precSecs := int64(precision.Seconds())
	if precSecs < 1 {
		precSecs = 1
	}

	buckets := int((cfg.Window + precision - 1) / precision)
	current := now.Unix() / precSecs

	total := 0
	for i := 0; i < buckets; i++ {
		key := sw.bucketKey(identifier, cfg.Window, current-int64(i))
		raw, found, err := sw.store.Get(ctx, key)
		if err != nil {
			return failOpen(AlgorithmSlidingWindow, now, sw.logger, err)
		}
		if found {
			n, _ := strconv.Atoi(string(raw))
			total += n
		}
	}

	if total >= cfg.Limit {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetTime:  now.Add(precision),
			RetryAfter: precision,
			Algorithm:  AlgorithmSlidingWindow,
		}
	}

	// Each sub-bucket carries the full window TTL so it stays visible for
	// every window that overlaps it.
	if _, err := sw.store.Incr(ctx, sw.bucketKey(identifier, cfg.Window, current), cfg.Window); err != nil {
		return failOpen(AlgorithmSlidingWindow, now, sw.logger, err)
	}

	return Decision{
		Allowed:   true,
		Remaining: cfg.Limit - total - 1,
		ResetTime: now.Add(precision),
		Algorithm: AlgorithmSlidingWindow,
	}
}

func (sw *SlidingWindow) bucketKey(identifier string, window time.Duration, bucket int64) string {
	return fmt.Sprintf("gk:sliding:%s:%d:%d", identifier, int64(window.Seconds()), bucket)
}
