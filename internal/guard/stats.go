package guard

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Statistics is the administrative summary over the last 24 hours plus the
// current list sizes.
type Statistics struct {
	Violations24h   int64     `json:"violations_24h"`
	Bans24h         int64     `json:"bans_24h"`
	DDoSEvents24h   int64     `json:"ddos_events_24h"`
	ActiveBans      int64     `json:"active_bans"`
	ActiveWhitelist int64     `json:"active_whitelist"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// GetStatistics returns the 24h event counts and list sizes.
func (l *Limiter) GetStatistics(ctx context.Context) (*Statistics, error) {
	cutoff := time.Now().Add(-24 * time.Hour)

	violations, bans, ddos, err := l.audit.CountsSince(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	activeBans, err := l.lists.ActiveBanCount(ctx)
	if err != nil {
		return nil, err
	}
	activeWhitelist, err := l.lists.ActiveWhitelistCount(ctx)
	if err != nil {
		return nil, err
	}

	return &Statistics{
		Violations24h:   violations,
		Bans24h:         bans,
		DDoSEvents24h:   ddos,
		ActiveBans:      activeBans,
		ActiveWhitelist: activeWhitelist,
		GeneratedAt:     time.Now(),
	}, nil
}

// Cleanup deactivates expired ban and whitelist rows and purges violation
// rows past retention.
func (l *Limiter) Cleanup(ctx context.Context) error {
	if err := l.lists.CleanupExpired(ctx); err != nil {
		return err
	}
	return l.audit.PurgeViolations(ctx, violationRetention)
}

// StartMaintenance runs Cleanup on the given interval until the returned
// stop function is called. The loop is fully decoupled from the request
// path.
func (l *Limiter) StartMaintenance(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if err := l.Cleanup(ctx); err != nil {
					l.logger.Error("maintenance cleanup failed", zap.Error(err))
				}
				cancel()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
