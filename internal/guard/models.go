// Package guard orchestrates admission control: whitelist/blacklist
// membership, algorithm dispatch, violation escalation, DDoS burst detection
// and the audit trail behind all of it.
package guard

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BanRecord is the persisted blacklist row. At most one row per identifier;
// re-banning extends expiry through an upsert, it never shortens it.
type BanRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Identifier string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"identifier"`
	Reason     string    `gorm:"type:text" json:"reason"`
	BannedBy   string    `gorm:"type:varchar(100)" json:"banned_by,omitempty"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expires_at"`
	IsActive   bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM
func (BanRecord) TableName() string { return "admission_bans" }

func (b *BanRecord) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// WhitelistEntry is the persisted whitelist row. A nil ExpiresAt means the
// entry never expires; expired entries are deactivated by Cleanup only.
type WhitelistEntry struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Identifier string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"identifier"`
	Note       string     `gorm:"type:text" json:"note,omitempty"`
	AddedBy    string     `gorm:"type:varchar(100)" json:"added_by,omitempty"`
	ExpiresAt  *time.Time `gorm:"index" json:"expires_at,omitempty"`
	IsActive   bool       `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM
func (WhitelistEntry) TableName() string { return "admission_whitelist" }

func (w *WhitelistEntry) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// ViolationRecord is an append-only audit row written for every denied
// request, whether or not a ban resulted.
type ViolationRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Identifier string    `gorm:"type:varchar(255);not null;index" json:"identifier"`
	LimitType  string    `gorm:"type:varchar(50);not null;index" json:"limit_type"`
	IP         string    `gorm:"type:varchar(45)" json:"ip,omitempty"`
	UserAgent  string    `gorm:"type:text" json:"user_agent,omitempty"`
	URI        string    `gorm:"type:text" json:"uri,omitempty"`
	UserID     string    `gorm:"type:varchar(100);index" json:"user_id,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName returns the table name for GORM
func (ViolationRecord) TableName() string { return "admission_violations" }

func (v *ViolationRecord) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// DDoSEvent is an append-only audit row for burst-attack detections.
type DDoSEvent struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Identifier       string    `gorm:"type:varchar(255);not null;index" json:"identifier"`
	Severity         string    `gorm:"type:varchar(20);not null" json:"severity"`
	RequestCount     int64     `gorm:"not null" json:"request_count"`
	AffectedEndpoint string    `gorm:"type:text" json:"affected_endpoint,omitempty"`
	MitigationAction string    `gorm:"type:varchar(50)" json:"mitigation_action"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName returns the table name for GORM
func (DDoSEvent) TableName() string { return "admission_ddos_events" }

func (d *DDoSEvent) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Migrate creates or updates the admission-control tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&BanRecord{},
		&WhitelistEntry{},
		&ViolationRecord{},
		&DDoSEvent{},
	)
}
