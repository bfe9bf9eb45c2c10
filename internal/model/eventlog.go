package model

import (
	"time"

	"gorm.io/datatypes"
)

// EventLog is one durably recorded domain fact. Rows are immutable.
type EventLog struct {
	ID             string  `gorm:"primaryKey;size:64"`
	OrganizationID int64   `gorm:"not null;index"`
	EventType      string  `gorm:"size:64;not null;index"`
	SourceType     *string `gorm:"size:32"`
	SourceID       *string `gorm:"size:64"`
	IdempotencyKey *string `gorm:"size:128;uniqueIndex"`
	// Sequence is strictly increasing per organization; 0 for entries
	// written before sequencing existed.
	Sequence  uint64            `gorm:"not null;default:0;index"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;index"`
}

func (EventLog) TableName() string { return "event_logs" }
