package guard

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/gridshield/gatekeeper/internal/ratelimit"
	"github.com/gridshield/gatekeeper/pkg/metrics"
)

var tracer = otel.Tracer("guard")

// RequestContext is the ambient request information passed explicitly with
// every check. It is used for audit logging only, never for the limiting
// decision itself.
type RequestContext struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	URI       string `json:"uri,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// Limiter is the stateless admission-control facade. All mutable state lives
// in the counter store and the persisted list/audit tables, so a single
// Limiter is safe for any number of concurrent callers.
type Limiter struct {
	registry *ratelimit.ConfigRegistry
	engines  map[string]ratelimit.Engine
	lists    *ListStore
	audit    *AuditStore
	detector *Detector
	logger   *zap.Logger
}

// NewLimiter wires the facade over its collaborators.
func NewLimiter(registry *ratelimit.ConfigRegistry, store ratelimit.CounterStore, lists *ListStore, audit *AuditStore, detector *Detector, logger *zap.Logger) *Limiter {
	return &Limiter{
		registry: registry,
		engines: map[string]ratelimit.Engine{
			ratelimit.AlgorithmFixedWindow:   ratelimit.NewFixedWindow(store, logger),
			ratelimit.AlgorithmSlidingWindow: ratelimit.NewSlidingWindow(store, logger),
			ratelimit.AlgorithmTokenBucket:   ratelimit.NewTokenBucket(store, logger),
			ratelimit.AlgorithmLeakyBucket:   ratelimit.NewLeakyBucket(store, logger),
		},
		lists:    lists,
		audit:    audit,
		detector: detector,
		logger:   logger,
	}
}

// CheckLimit decides whether a request from identifier under limitType is
// admitted. The check order is deliberate: list membership gates before any
// counter mutation, so a blacklisted identifier never pollutes algorithm
// state and a whitelisted one never triggers false escalation.
func (l *Limiter) CheckLimit(ctx context.Context, identifier, limitType string, rc *RequestContext) ratelimit.Decision {
	ctx, span := tracer.Start(ctx, "guard.CheckLimit")
	defer span.End()
	span.SetAttributes(
		attribute.String("limit_type", limitType),
	)

	start := time.Now()
	defer func() {
		metrics.CheckDuration.Observe(time.Since(start).Seconds())
	}()

	if l.lists.IsWhitelisted(ctx, identifier) {
		metrics.ChecksTotal.WithLabelValues(limitType, "whitelisted").Inc()
		return ratelimit.Decision{
			Allowed:     true,
			Remaining:   -1, // unlimited
			Whitelisted: true,
		}
	}

	if banned, expiresAt := l.lists.IsBlacklisted(ctx, identifier); banned {
		metrics.ChecksTotal.WithLabelValues(limitType, "blacklisted").Inc()
		return ratelimit.Decision{
			Allowed:      false,
			Remaining:    0,
			Blacklisted:  true,
			BanExpiresAt: expiresAt,
			ResetTime:    expiresAt,
			RetryAfter:   time.Until(expiresAt),
		}
	}

	// Burst detection sees every request that passes the list gates, even
	// when per-type limiting is bypassed below. A flood aimed at a disabled
	// or misconfigured limit type must still trip the detector.
	defer l.detector.ObserveRequest(ctx, identifier, rc)

	cfg := l.registry.Get(limitType)
	if !cfg.Enabled {
		metrics.ChecksTotal.WithLabelValues(limitType, "allowed").Inc()
		return ratelimit.Decision{Allowed: true, Remaining: -1}
	}

	engine, ok := l.engines[cfg.Algorithm]
	if !ok {
		// A misconfigured algorithm must not turn into an outage.
		l.logger.Error("no engine for algorithm, allowing",
			zap.String("limit_type", cfg.Name),
			zap.String("algorithm", cfg.Algorithm))
		metrics.ChecksTotal.WithLabelValues(limitType, "degraded").Inc()
		return ratelimit.Decision{Allowed: true, Remaining: 1, Degraded: true}
	}

	decision := engine.Evaluate(ctx, identifier, cfg, time.Now())

	if !decision.Allowed {
		l.detector.HandleViolation(ctx, identifier, cfg.Name, rc)
	}

	outcome := "allowed"
	switch {
	case decision.Degraded:
		outcome = "degraded"
	case !decision.Allowed:
		outcome = "denied"
	}
	metrics.ChecksTotal.WithLabelValues(limitType, outcome).Inc()
	span.SetAttributes(
		attribute.Bool("allowed", decision.Allowed),
		attribute.String("algorithm", decision.Algorithm),
	)

	return decision
}
