package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// FixedWindow counts requests in hard-aligned windows. A client can burst up
// to 2x the limit across a window boundary; that is inherent to the design
// and accepted in exchange for a single atomic increment per check.
type FixedWindow struct {
	store  CounterStore
	logger *zap.Logger
}

// NewFixedWindow creates a fixed window engine.
func NewFixedWindow(store CounterStore, logger *zap.Logger) *FixedWindow {
	return &FixedWindow{store: store, logger: logger}
}

func (fw *FixedWindow) Evaluate(ctx context.Context, identifier string, cfg *LimitConfig, now time.Time) Decision {
	windowSecs := int64(cfg.Window.Seconds())
	if windowSecs < 1 {
		windowSecs = 1
	}
	// Key by window index so the counter resets at hard boundaries; the TTL
	// only reclaims storage.
	windowIndex := now.Unix() / windowSecs
	key := fmt.Sprintf("gk:fixed:%s:%d:%d", identifier, windowSecs, windowIndex)

	n, err := fw.store.Incr(ctx, key, cfg.Window)
	if err != nil {
		return failOpen(AlgorithmFixedWindow, now, fw.logger, err)
	}

	reset := time.Unix((windowIndex+1)*windowSecs, 0)
	if n > int64(cfg.Limit) {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetTime:  reset,
			RetryAfter: reset.Sub(now),
			Algorithm:  AlgorithmFixedWindow,
		}
	}
	return Decision{
		Allowed:   true,
		Remaining: cfg.Limit - int(n),
		ResetTime: reset,
		Algorithm: AlgorithmFixedWindow,
	}
}
