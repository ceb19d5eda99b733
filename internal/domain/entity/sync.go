package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncCursor stores the start time of the last fully successful run of a
// replication job. One row per job.
type SyncCursor struct {
	JobName      string    `gorm:"primaryKey;size:100" json:"job_name"`
	LastSyncedAt time.Time `gorm:"not null" json:"last_synced_at"`
	LastRunID    string    `gorm:"size:64" json:"last_run_id"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the table name for the SyncCursor model
func (SyncCursor) TableName() string {
	return "sync_cursors"
}

// SyncFailure is the failure log of a replication job: one row per record the
// mirror or local validation rejected.
type SyncFailure struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	JobName    string    `gorm:"size:100;not null;index" json:"job_name"`
	RunID      string    `gorm:"size:64;not null;index" json:"run_id"`
	EntityType string    `gorm:"size:50;not null" json:"entity_type"`
	NaturalKey string    `gorm:"size:255;not null" json:"natural_key"`
	Reason     string    `gorm:"type:text" json:"reason"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate generates a UUID before creating a new failure row
func (f *SyncFailure) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the SyncFailure model
func (SyncFailure) TableName() string {
	return "sync_failures"
}
