package repo

import (
	"context"
	"time"

	"github.com/richardliu001/agenda-service/internal/model"
	"gorm.io/gorm/clause"
)

var agendaKeyColumns = []clause.Column{{Name: "organization_id"}, {Name: "source_type"}, {Name: "source_id"}}

var agendaWriteColumns = []string{"title", "starts_at", "ends_at", "status", "last_event_id", "last_sequence", "updated_at"}

// storedIsOlder holds when the incoming row supersedes the stored one:
// by sequence when both sides carry one, by updated_at otherwise.
const storedIsOlder = `(excluded.last_sequence > 0 AND agenda_items.last_sequence > 0 AND agenda_items.last_sequence < excluded.last_sequence)
 OR ((excluded.last_sequence = 0 OR agenda_items.last_sequence = 0) AND agenda_items.updated_at < excluded.updated_at)`

// FindAgendaItem loads the row for the (org, type, source) key.
func (r *Repository) FindAgendaItem(ctx context.Context, orgID int64, st model.SourceType, sourceID string) (*model.AgendaItem, error) {
	var it model.AgendaItem
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND source_type = ? AND source_id = ?", orgID, st, sourceID).
		First(&it).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &it, nil
}

// UpsertAgendaItemIfNewer inserts item or overwrites the stored row only if
// the stored row is older, in one statement. It reports whether a row was
// written; false means a newer write won.
func (r *Repository) UpsertAgendaItemIfNewer(ctx context.Context, item *model.AgendaItem) (bool, error) {
	normalize(item)
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   agendaKeyColumns,
		DoUpdates: clause.AssignmentColumns(agendaWriteColumns),
		Where:     clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: storedIsOlder}}},
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// InsertAgendaItem creates item unless its key already exists.
func (r *Repository) InsertAgendaItem(ctx context.Context, item *model.AgendaItem) (bool, error) {
	normalize(item)
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   agendaKeyColumns,
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReplaceAgendaItem overwrites the row with item.ID provided nobody wrote it
// since it was read, i.e. its last_event_id still equals expectedLastEventID.
func (r *Repository) ReplaceAgendaItem(ctx context.Context, item *model.AgendaItem, expectedLastEventID string) (bool, error) {
	normalize(item)
	res := r.db.WithContext(ctx).
		Model(&model.AgendaItem{}).
		Where("id = ? AND last_event_id = ?", item.ID, expectedLastEventID).
		Updates(map[string]interface{}{
			"title":         item.Title,
			"starts_at":     item.StartsAt,
			"ends_at":       item.EndsAt,
			"status":        item.Status,
			"last_event_id": item.LastEventID,
			"last_sequence": item.LastSequence,
			"updated_at":    item.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// PageAgendaItems pages an organization's rows of the given types by id.
func (r *Repository) PageAgendaItems(ctx context.Context, orgID int64, types []model.SourceType, afterID uint64, limit int) ([]model.AgendaItem, error) {
	var out []model.AgendaItem
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND source_type IN ? AND id > ?", orgID, types, afterID).
		Order("id").Limit(limit).
		Find(&out).Error
	return out, err
}

// ListAgendaWindow returns rows overlapping [from, to) ordered by start.
func (r *Repository) ListAgendaWindow(ctx context.Context, orgID int64, from, to time.Time, includeDeleted bool) ([]model.AgendaItem, error) {
	q := r.db.WithContext(ctx).
		Where("organization_id = ? AND starts_at < ? AND ends_at > ?", orgID, to.UTC(), from.UTC())
	if !includeDeleted {
		q = q.Where("status <> ?", model.StatusDeleted)
	}
	var out []model.AgendaItem
	err := q.Order("starts_at").Order("id").Find(&out).Error
	return out, err
}

// normalize stores every timestamp in UTC so that comparisons done by the
// database agree with comparisons done here.
func normalize(item *model.AgendaItem) {
	item.StartsAt = item.StartsAt.UTC()
	item.EndsAt = item.EndsAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
}
