package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richardliu001/agenda-service/internal/model"
)

// ErrInvalidWindow is returned for a window that does not end after it starts.
var ErrInvalidWindow = errors.New("window end must be after start")

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// MonthWindow covers one calendar month in UTC.
func MonthWindow(year int, month time.Month) Window {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Window{From: from, To: from.AddDate(0, 1, 0)}
}

// ListAgenda returns an organization's agenda rows overlapping w, ordered by
// start. Deleted rows are left out unless includeDeleted is set.
func (s *AgendaService) ListAgenda(ctx context.Context, orgID int64, w Window, includeDeleted bool) ([]model.AgendaItem, error) {
	if !w.To.After(w.From) {
		return nil, ErrInvalidWindow
	}
	items, err := s.repo.ListAgendaWindow(ctx, orgID, w.From, w.To, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("list agenda: %w", err)
	}
	return items, nil
}
