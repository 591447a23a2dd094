package models

import (
	"time"
)

// TelemetryRecord is the atomic persisted unit: one attribute of one entity
// at one point in time. Records are append-only; entity updates always
// produce new rows, never in-place mutation, which is what makes the table
// a history rather than a cache. Duplicate deliveries from the broker may
// legally produce duplicate rows.
type TelemetryRecord struct {
	ID   int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	Time time.Time `gorm:"not null" json:"time"`

	EntityID   string `gorm:"not null" json:"entity_id"`
	EntityType string `gorm:"not null" json:"entity_type"`

	AttributeName  string    `gorm:"not null" json:"attribute_name"`
	AttributeValue JSONValue `gorm:"type:jsonb;not null" json:"attribute_value"`

	// Metadata is auxiliary context from the notification (e.g. TimeInstant,
	// dateModified); the store never interprets it.
	Metadata JSONValue `gorm:"type:jsonb" json:"metadata,omitempty"`
}

// TableName maps the model onto the hypertable created by migration 0001.
func (TelemetryRecord) TableName() string {
	return "telemetry_data"
}
