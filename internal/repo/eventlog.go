package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/richardliu001/agenda-service/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetEventLog loads one event-log entry.
func (r *Repository) GetEventLog(ctx context.Context, id string) (*model.EventLog, error) {
	var e model.EventLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// ListRecentEventLogs returns the newest entries whose type is in eventTypes.
func (r *Repository) ListRecentEventLogs(ctx context.Context, eventTypes []string, limit int) ([]model.EventLog, error) {
	var out []model.EventLog
	err := r.db.WithContext(ctx).
		Where("event_type IN ?", eventTypes).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// AppendEventLog writes entry, stamping the organization's next sequence
// number. The organization row is locked for the duration so concurrent
// appends serialize. An entry whose idempotency key already exists is not
// written again; the stored entry is returned instead.
func (r *Repository) AppendEventLog(ctx context.Context, entry *model.EventLog) (*model.EventLog, error) {
	var stored model.EventLog
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if entry.IdempotencyKey != nil {
			err := tx.Where("idempotency_key = ?", *entry.IdempotencyKey).First(&stored).Error
			if err == nil {
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		org := model.Organization{ID: entry.OrganizationID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&org).Error; err != nil {
			return fmt.Errorf("ensure organization: %w", err)
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", entry.OrganizationID).First(&org).Error; err != nil {
			return err
		}
		next := org.EventSequence + 1
		if err := tx.Model(&model.Organization{}).Where("id = ?", org.ID).
			Update("event_sequence", next).Error; err != nil {
			return err
		}

		entry.Sequence = next
		entry.CreatedAt = entry.CreatedAt.UTC()
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		stored = *entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// MaxEventSequence returns the highest sequence logged for orgID, 0 if none.
// An event log without a sequence column also yields 0, so ordering falls
// back to timestamps.
func (r *Repository) MaxEventSequence(ctx context.Context, orgID int64) (uint64, error) {
	db := r.db.WithContext(ctx)
	if !db.Migrator().HasColumn(&model.EventLog{}, "sequence") {
		return 0, nil
	}
	var max uint64
	err := db.Model(&model.EventLog{}).
		Where("organization_id = ?", orgID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&max).Error
	return max, err
}
