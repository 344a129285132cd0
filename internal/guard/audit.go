package guard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// violationRetention is how long violation rows are kept before Cleanup
// purges them.
const violationRetention = 30 * 24 * time.Hour

// AuditStore appends violation and DDoS rows for forensic queries. Writes
// are best-effort: a failed audit write is logged and swallowed, it must
// never block an admission decision.
type AuditStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAuditStore creates an audit store.
func NewAuditStore(db *gorm.DB, logger *zap.Logger) *AuditStore {
	return &AuditStore{db: db, logger: logger}
}

// RecordViolation appends a violation row.
func (as *AuditStore) RecordViolation(ctx context.Context, rec *ViolationRecord) {
	if err := as.db.WithContext(ctx).Create(rec).Error; err != nil {
		as.logger.Warn("violation audit write failed",
			zap.String("identifier", rec.Identifier), zap.Error(err))
	}
}

// RecordDDoS appends a DDoS event row.
func (as *AuditStore) RecordDDoS(ctx context.Context, ev *DDoSEvent) {
	if err := as.db.WithContext(ctx).Create(ev).Error; err != nil {
		as.logger.Warn("ddos audit write failed",
			zap.String("identifier", ev.Identifier), zap.Error(err))
	}
}

// CountsSince returns violation, ban and DDoS event counts created after the
// cutoff.
func (as *AuditStore) CountsSince(ctx context.Context, cutoff time.Time) (violations, bans, ddos int64, err error) {
	if err = as.db.WithContext(ctx).
		Model(&ViolationRecord{}).
		Where("created_at > ?", cutoff).
		Count(&violations).Error; err != nil {
		return 0, 0, 0, fmt.Errorf("count violations: %w", err)
	}
	if err = as.db.WithContext(ctx).
		Model(&BanRecord{}).
		Where("created_at > ?", cutoff).
		Count(&bans).Error; err != nil {
		return 0, 0, 0, fmt.Errorf("count bans: %w", err)
	}
	if err = as.db.WithContext(ctx).
		Model(&DDoSEvent{}).
		Where("created_at > ?", cutoff).
		Count(&ddos).Error; err != nil {
		return 0, 0, 0, fmt.Errorf("count ddos events: %w", err)
	}
	return violations, bans, ddos, nil
}

// PurgeViolations deletes violation rows older than the retention window.
func (as *AuditStore) PurgeViolations(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention)
	if err := as.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&ViolationRecord{}).Error; err != nil {
		return fmt.Errorf("purge violations: %w", err)
	}
	return nil
}
