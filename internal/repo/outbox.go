package repo

import (
	"context"
	"time"

	"github.com/richardliu001/agenda-service/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnqueueOperation writes op as PENDING unless its dedupe key exists.
func (r *Repository) EnqueueOperation(ctx context.Context, op *model.Operation) (bool, error) {
	if op.Status == "" {
		op.Status = model.OperationPending
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(op)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// PollOperations pulls pending operations and failed ones due for retry.
func (r *Repository) PollOperations(ctx context.Context, now time.Time, limit int) ([]model.Operation, error) {
	var ops []model.Operation
	err := r.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND next_retry_at <= ?)", model.OperationPending, model.OperationFailed, now).
		Order("id").Limit(limit).
		Find(&ops).Error
	return ops, err
}

// ClaimOperation moves one polled operation to RUNNING. It reports false
// when another worker claimed it first.
func (r *Repository) ClaimOperation(ctx context.Context, id uint64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Operation{}).
		Where("id = ? AND locked_at IS NULL", id).
		Where("status = ? OR (status = ? AND next_retry_at <= ?)", model.OperationPending, model.OperationFailed, now).
		Updates(map[string]interface{}{
			"status":    model.OperationRunning,
			"attempts":  gorm.Expr("attempts + 1"),
			"locked_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CompleteOperation marks a claimed operation SUCCEEDED.
func (r *Repository) CompleteOperation(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&model.Operation{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.OperationSucceeded,
			"last_error":    nil,
			"locked_at":     nil,
			"next_retry_at": nil,
		}).Error
}

// FailOperation releases a claimed operation as FAILED or DEAD_LETTER.
func (r *Repository) FailOperation(ctx context.Context, id uint64, status, lastErr string, nextRetryAt *time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Operation{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"last_error":    lastErr,
			"locked_at":     nil,
			"next_retry_at": nextRetryAt,
		}).Error
}
