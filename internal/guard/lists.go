package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListStore answers whitelist and blacklist membership and owns ban
// issuance. Lookups degrade toward "allow" on database failure: a whitelist
// lookup error means not whitelisted, a blacklist lookup error means not
// blacklisted.
type ListStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewListStore creates a membership list store.
func NewListStore(db *gorm.DB, logger *zap.Logger) *ListStore {
	return &ListStore{db: db, logger: logger}
}

// IsWhitelisted reports whether identifier has an active, unexpired
// whitelist entry.
func (ls *ListStore) IsWhitelisted(ctx context.Context, identifier string) bool {
	var count int64
	err := ls.db.WithContext(ctx).
		Model(&WhitelistEntry{}).
		Where("identifier = ? AND is_active = ?", identifier, true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Count(&count).Error
	if err != nil {
		ls.logger.Warn("whitelist lookup failed, treating as not whitelisted",
			zap.String("identifier", identifier), zap.Error(err))
		return false
	}
	return count > 0
}

// IsBlacklisted reports whether identifier is actively banned and, if so,
// when the ban expires.
func (ls *ListStore) IsBlacklisted(ctx context.Context, identifier string) (bool, time.Time) {
	var ban BanRecord
	err := ls.db.WithContext(ctx).
		Where("identifier = ? AND is_active = ? AND expires_at > ?", identifier, true, time.Now()).
		First(&ban).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, time.Time{}
	}
	if err != nil {
		ls.logger.Warn("blacklist lookup failed, treating as not blacklisted",
			zap.String("identifier", identifier), zap.Error(err))
		return false, time.Time{}
	}
	return true, ban.ExpiresAt
}

// Ban upserts a ban for identifier. Expiry only ever moves forward, so
// concurrent bans never shorten each other.
func (ls *ListStore) Ban(ctx context.Context, identifier, reason, bannedBy string, duration time.Duration) error {
	expiresAt := time.Now().Add(duration)

	err := ls.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing BanRecord
		err := tx.Where("identifier = ?", identifier).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&BanRecord{
				Identifier: identifier,
				Reason:     reason,
				BannedBy:   bannedBy,
				ExpiresAt:  expiresAt,
				IsActive:   true,
			}).Error
		}
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"is_active": true,
			"reason":    reason,
			"banned_by": bannedBy,
		}
		if expiresAt.After(existing.ExpiresAt) {
			updates["expires_at"] = expiresAt
		}
		return tx.Model(&existing).Updates(updates).Error
	})
	if err != nil {
		return fmt.Errorf("ban %s: %w", identifier, err)
	}
	return nil
}

// Unban logically deactivates the ban row; it is kept for the audit trail.
func (ls *ListStore) Unban(ctx context.Context, identifier string) error {
	res := ls.db.WithContext(ctx).
		Model(&BanRecord{}).
		Where("identifier = ? AND is_active = ?", identifier, true).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("unban %s: %w", identifier, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Allow adds or reactivates a whitelist entry. A nil expiresAt means the
// entry never expires.
func (ls *ListStore) Allow(ctx context.Context, identifier, note, addedBy string, expiresAt *time.Time) error {
	err := ls.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing WhitelistEntry
		err := tx.Where("identifier = ?", identifier).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&WhitelistEntry{
				Identifier: identifier,
				Note:       note,
				AddedBy:    addedBy,
				ExpiresAt:  expiresAt,
				IsActive:   true,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&existing).Updates(map[string]interface{}{
			"is_active":  true,
			"note":       note,
			"added_by":   addedBy,
			"expires_at": expiresAt,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("whitelist %s: %w", identifier, err)
	}
	return nil
}

// Disallow deactivates a whitelist entry.
func (ls *ListStore) Disallow(ctx context.Context, identifier string) error {
	res := ls.db.WithContext(ctx).
		Model(&WhitelistEntry{}).
		Where("identifier = ? AND is_active = ?", identifier, true).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("remove whitelist %s: %w", identifier, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ActiveBans returns the current active, unexpired bans.
func (ls *ListStore) ActiveBans(ctx context.Context) ([]BanRecord, error) {
	var bans []BanRecord
	err := ls.db.WithContext(ctx).
		Where("is_active = ? AND expires_at > ?", true, time.Now()).
		Order("expires_at DESC").
		Find(&bans).Error
	return bans, err
}

// ActiveBanCount returns the active blacklist size.
func (ls *ListStore) ActiveBanCount(ctx context.Context) (int64, error) {
	var count int64
	err := ls.db.WithContext(ctx).
		Model(&BanRecord{}).
		Where("is_active = ? AND expires_at > ?", true, time.Now()).
		Count(&count).Error
	return count, err
}

// ActiveWhitelistCount returns the active whitelist size.
func (ls *ListStore) ActiveWhitelistCount(ctx context.Context) (int64, error) {
	var count int64
	err := ls.db.WithContext(ctx).
		Model(&WhitelistEntry{}).
		Where("is_active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Count(&count).Error
	return count, err
}

// CleanupExpired deactivates expired ban and whitelist rows. Rows are never
// deleted; deactivation keeps the audit trail intact.
func (ls *ListStore) CleanupExpired(ctx context.Context) error {
	now := time.Now()
	if err := ls.db.WithContext(ctx).
		Model(&BanRecord{}).
		Where("is_active = ? AND expires_at <= ?", true, now).
		Update("is_active", false).Error; err != nil {
		return fmt.Errorf("cleanup bans: %w", err)
	}
	if err := ls.db.WithContext(ctx).
		Model(&WhitelistEntry{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Update("is_active", false).Error; err != nil {
		return fmt.Errorf("cleanup whitelist: %w", err)
	}
	return nil
}
