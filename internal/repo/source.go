package repo

import (
	"context"

	"github.com/richardliu001/agenda-service/internal/model"
)

// FindEvent loads an event by id.
func (r *Repository) FindEvent(ctx context.Context, id int64) (*model.Event, error) {
	var e model.Event
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// FindTournament loads a tournament with its event.
func (r *Repository) FindTournament(ctx context.Context, id int64) (*model.Tournament, error) {
	var t model.Tournament
	if err := r.db.WithContext(ctx).Preload("Event").Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// FindBooking loads a booking with its service.
func (r *Repository) FindBooking(ctx context.Context, id int64) (*model.Booking, error) {
	var b model.Booking
	if err := r.db.WithContext(ctx).Preload("Service").Where("id = ?", id).First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *Repository) FindSoftBlock(ctx context.Context, id int64) (*model.SoftBlock, error) {
	var b model.SoftBlock
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *Repository) FindCourtBlock(ctx context.Context, id int64) (*model.PadelCourtBlock, error) {
	var b model.PadelCourtBlock
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *Repository) FindMatch(ctx context.Context, id int64) (*model.PadelMatch, error) {
	var m model.PadelMatch
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// ListOrganizationIDs returns every organization id in ascending order.
func (r *Repository) ListOrganizationIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.Organization{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

// The Page* methods implement keyset pagination: rows with id > afterID in
// ascending id order, at most limit of them.

func (r *Repository) PageSoftBlocks(ctx context.Context, orgID, afterID int64, limit int) ([]model.SoftBlock, error) {
	var out []model.SoftBlock
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id > ?", orgID, afterID).
		Order("id").Limit(limit).Find(&out).Error
	return out, err
}

func (r *Repository) PageBookings(ctx context.Context, orgID, afterID int64, limit int) ([]model.Booking, error) {
	var out []model.Booking
	err := r.db.WithContext(ctx).Preload("Service").
		Where("organization_id = ? AND id > ?", orgID, afterID).
		Order("id").Limit(limit).Find(&out).Error
	return out, err
}

// PageMatches only returns matches with some start time; the organization
// is resolved through the match's event.
func (r *Repository) PageMatches(ctx context.Context, orgID, afterID int64, limit int) ([]model.PadelMatch, error) {
	var out []model.PadelMatch
	err := r.db.WithContext(ctx).
		Joins("JOIN events ON events.id = padel_matches.event_id").
		Where("events.organization_id = ? AND padel_matches.id > ?", orgID, afterID).
		Where("padel_matches.planned_start_at IS NOT NULL OR padel_matches.start_time IS NOT NULL").
		Order("padel_matches.id").Limit(limit).Find(&out).Error
	return out, err
}

func (r *Repository) PageCourtBlocks(ctx context.Context, orgID, afterID int64, limit int) ([]model.PadelCourtBlock, error) {
	var out []model.PadelCourtBlock
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id > ?", orgID, afterID).
		Order("id").Limit(limit).Find(&out).Error
	return out, err
}
