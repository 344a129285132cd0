// Package ratelimit provides the counter store adapter and the algorithm
// engines used by the admission-control core: fixed window, sliding window,
// token bucket and leaky bucket, all backed by a shared atomic counter store.
package ratelimit

import (
	"context"
	"time"
)

// Supported algorithm kinds
const (
	AlgorithmFixedWindow   = "fixed_window"
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmTokenBucket   = "token_bucket"
	AlgorithmLeakyBucket   = "leaky_bucket"
)

// LimitConfig holds the static configuration for a named limit type
// (general, api, auth, admin, ...).
type LimitConfig struct {
	Name        string        `json:"name"`
	Algorithm   string        `json:"algorithm"`
	Limit       int           `json:"limit"`
	Window      time.Duration `json:"window"`
	Precision   time.Duration `json:"precision"`   // sliding window sub-bucket size
	Capacity    float64       `json:"capacity"`    // bucket algorithms
	RefillRate  float64       `json:"refill_rate"` // tokens per second
	LeakRate    float64       `json:"leak_rate"`   // units per second
	Enabled     bool          `json:"enabled"`
	Description string        `json:"description"`
}

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed      bool          `json:"allowed"`
	Remaining    int           `json:"remaining"`
	ResetTime    time.Time     `json:"reset_time"`
	RetryAfter   time.Duration `json:"retry_after,omitempty"`
	Algorithm    string        `json:"algorithm,omitempty"`
	Degraded     bool          `json:"degraded,omitempty"` // store failure, failed open
	Whitelisted  bool          `json:"whitelisted,omitempty"`
	Blacklisted  bool          `json:"blacklisted,omitempty"`
	BanExpiresAt time.Time     `json:"ban_expires_at,omitempty"`
}

// Engine is the common interface implemented by each algorithm variant.
// Evaluate never fails: a store outage degrades to a fail-open allow, it is
// not surfaced to the request path.
type Engine interface {
	Evaluate(ctx context.Context, identifier string, cfg *LimitConfig, now time.Time) Decision
}
