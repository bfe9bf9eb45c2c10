package model

import (
	"time"

	"gorm.io/datatypes"
)

// Operation statuses.
const (
	OperationPending    = "PENDING"
	OperationRunning    = "RUNNING"
	OperationSucceeded  = "SUCCEEDED"
	OperationFailed     = "FAILED"
	OperationDeadLetter = "DEAD_LETTER"
)

// Operation is an outbox row awaiting at-least-once delivery.
type Operation struct {
	ID            uint64            `gorm:"primaryKey"`
	OperationType string            `gorm:"size:64;not null"`
	DedupeKey     string            `gorm:"size:128;not null;uniqueIndex"`
	Status        string            `gorm:"size:16;not null;index"`
	Attempts      int               `gorm:"not null;default:0"`
	Payload       datatypes.JSONMap `gorm:"type:jsonb"`
	LastError     *string
	NextRetryAt   *time.Time
	LockedAt      *time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (Operation) TableName() string { return "operations" }
