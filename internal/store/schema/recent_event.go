package schema

import (
	"time"

	"gorm.io/datatypes"
)

// RecentEvent represents the recent_events table - a bounded rolling feed of
// the most recently detected new records, kept for inspection queries only.
// Retention is enforced on append: the oldest rows beyond the configured keep
// count are pruned.
type RecentEvent struct {
	// ID is an auto-incrementing sequence number
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// EventID is a unique identifier for this event (ULID for time-sortable uniqueness)
	EventID string `gorm:"column:event_id;not null;uniqueIndex;type:varchar(26)"`
	// Stage is the pipeline stage the record was detected in
	Stage string `gorm:"column:stage;not null;index;type:text"`
	// Payload is the full new-record event as JSON
	Payload datatypes.JSON `gorm:"column:payload;not null;type:jsonb"`
	// DetectedAt is the timestamp the record was detected
	DetectedAt time.Time `gorm:"column:detected_at;not null;index;type:timestamptz"`
}

// TableName specifies the table name for the RecentEvent model
func (RecentEvent) TableName() string {
	return "recent_events"
}
