package guard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gridshield/gatekeeper/internal/ratelimit"
	"github.com/gridshield/gatekeeper/pkg/metrics"
)

// DetectorConfig carries the global escalation and burst-detection tunables.
type DetectorConfig struct {
	// ViolationThreshold is the number of consecutive denials that triggers
	// an automatic ban.
	ViolationThreshold int64 `json:"violation_threshold"`
	// ViolationWindow bounds how long a violation streak is remembered.
	ViolationWindow time.Duration `json:"violation_window"`
	// BanDuration is the escalation ban length; burst bans last twice this.
	BanDuration time.Duration `json:"ban_duration"`
	// DDoSWindow is the burst-detection counting window.
	DDoSWindow time.Duration `json:"ddos_window"`
	// DDoSThreshold is the request count per window that marks a flood.
	DDoSThreshold int64 `json:"ddos_threshold"`
}

// DefaultDetectorConfig returns the production defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ViolationThreshold: 3,
		ViolationWindow:    time.Hour,
		BanDuration:        time.Hour,
		DDoSWindow:         time.Minute,
		DDoSThreshold:      1000,
	}
}

// Detector runs the two per-identifier tracks behind the facade: violation
// escalation on denied requests and burst detection on all requests. Both
// tracks degrade silently when the counter store is down; detection is an
// enhancement, never a gate.
type Detector struct {
	cfg      DetectorConfig
	counters ratelimit.CounterStore
	lists    *ListStore
	audit    *AuditStore
	alerts   *Dispatcher
	logger   *zap.Logger
}

// NewDetector creates a violation and DDoS detector.
func NewDetector(cfg DetectorConfig, counters ratelimit.CounterStore, lists *ListStore, audit *AuditStore, alerts *Dispatcher, logger *zap.Logger) *Detector {
	return &Detector{
		cfg:      cfg,
		counters: counters,
		lists:    lists,
		audit:    audit,
		alerts:   alerts,
		logger:   logger,
	}
}

// HandleViolation records a denied request and escalates to a ban once the
// streak reaches the threshold. The audit row is written on every denial,
// whether or not a ban results.
func (d *Detector) HandleViolation(ctx context.Context, identifier, limitType string, rc *RequestContext) {
	rec := &ViolationRecord{Identifier: identifier, LimitType: limitType}
	if rc != nil {
		rec.IP = rc.IP
		rec.UserAgent = rc.UserAgent
		rec.URI = rc.URI
		rec.UserID = rc.UserID
	}
	d.audit.RecordViolation(ctx, rec)

	n, err := d.counters.Incr(ctx, "gk:viol:"+identifier, d.cfg.ViolationWindow)
	if err != nil {
		d.logger.Warn("violation counter unavailable",
			zap.String("identifier", identifier), zap.Error(err))
		return
	}
	if n < d.cfg.ViolationThreshold {
		return
	}

	// Ban is an upsert that only extends expiry, so repeated escalation of
	// an already banned identifier never issues a duplicate row.
	if err := d.lists.Ban(ctx, identifier,
		fmt.Sprintf("%d consecutive rate limit violations", n),
		"detector", d.cfg.BanDuration); err != nil {
		d.logger.Error("escalation ban failed",
			zap.String("identifier", identifier), zap.Error(err))
		return
	}
	metrics.BansIssued.WithLabelValues("escalation").Inc()

	if n == d.cfg.ViolationThreshold {
		d.alerts.Publish(Alert{
			Kind:       AlertKindEscalation,
			Severity:   AlertSeverityWarning,
			Identifier: identifier,
			Message: fmt.Sprintf("identifier banned for %s after %d violations on %s",
				d.cfg.BanDuration, n, limitType),
		})
	}
}

// ObserveRequest feeds the burst detector. It counts every request,
// independent of per-type limits, so floods spread across many limit types
// are still caught.
func (d *Detector) ObserveRequest(ctx context.Context, identifier string, rc *RequestContext) {
	n, err := d.counters.Incr(ctx, "gk:ddos:"+identifier, d.cfg.DDoSWindow)
	if err != nil {
		d.logger.Warn("ddos counter unavailable",
			zap.String("identifier", identifier), zap.Error(err))
		return
	}
	if n != d.cfg.DDoSThreshold {
		// Fire exactly once per window; past the threshold the blacklist
		// takes over.
		return
	}

	banFor := 2 * d.cfg.BanDuration
	if err := d.lists.Ban(ctx, identifier,
		fmt.Sprintf("burst attack: %d requests in %s", n, d.cfg.DDoSWindow),
		"detector", banFor); err != nil {
		d.logger.Error("ddos ban failed",
			zap.String("identifier", identifier), zap.Error(err))
	} else {
		metrics.BansIssued.WithLabelValues("ddos").Inc()
	}
	metrics.DDoSDetections.Inc()

	ev := &DDoSEvent{
		Identifier:       identifier,
		Severity:         string(AlertSeverityCritical),
		RequestCount:     n,
		MitigationAction: "ban",
	}
	if rc != nil {
		ev.AffectedEndpoint = rc.URI
	}
	d.audit.RecordDDoS(ctx, ev)

	d.alerts.Publish(Alert{
		Kind:       AlertKindDDoS,
		Severity:   AlertSeverityCritical,
		Identifier: identifier,
		Message: fmt.Sprintf("identifier banned for %s after %d requests in %s",
			banFor, n, d.cfg.DDoSWindow),
	})
	d.logger.Warn("burst attack detected",
		zap.String("identifier", identifier),
		zap.Int64("requests", n),
		zap.Duration("window", d.cfg.DDoSWindow))
}
