package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richardliu001/agenda-service/internal/model"
	"github.com/richardliu001/agenda-service/internal/repo"
	"go.uber.org/zap"
)

// DefaultDrainLimit is how many recent entries Drain replays by default.
const DefaultDrainLimit = 50

// AgendaService materializes agenda rows from the event log and from
// source aggregates.
type AgendaService struct {
	repo    repo.RepositoryInterface
	log     *zap.SugaredLogger
	now     func() time.Time
	lockTTL time.Duration
}

// NewAgendaService constructs the service.
func NewAgendaService(r repo.RepositoryInterface, logger *zap.SugaredLogger) *AgendaService {
	return &AgendaService{
		repo:    r,
		log:     logger,
		now:     func() time.Time { return time.Now().UTC() },
		lockTTL: DefaultRebuildLockTTL,
	}
}

// WithClock replaces the clock used to stamp rebuild writes.
func (s *AgendaService) WithClock(now func() time.Time) *AgendaService {
	s.now = now
	return s
}

// WithRebuildLockTTL sets how long a per-organization rebuild lock lives.
func (s *AgendaService) WithRebuildLockTTL(ttl time.Duration) *AgendaService {
	if ttl > 0 {
		s.lockTTL = ttl
	}
	return s
}

// ApplyEvent projects one event-log entry onto the agenda. Domain failures
// come back as a Result code; err is only set for infrastructure failures.
// Replays of an applied entry and entries older than the stored row are
// successful no-ops.
func (s *AgendaService) ApplyEvent(ctx context.Context, eventID string) (Result, error) {
	entry, err := s.repo.GetEventLog(ctx, eventID)
	if errors.Is(err, repo.ErrNotFound) {
		return failed(CodeEventLogNotFound), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load event log %s: %w", eventID, err)
	}

	st, relevant, code, how := resolveSourceType(entry)
	if !relevant {
		return deduped(), nil
	}
	if code != "" {
		return failed(code), nil
	}
	if how == resolvedFromPrefix {
		s.log.Warnw("source type inferred from event type",
			"eventId", entry.ID, "eventType", entry.EventType, "sourceType", st)
	}

	item, res, err := s.project(ctx, entry, st)
	if err != nil || !res.OK {
		return res, err
	}

	existing, err := s.repo.FindAgendaItem(ctx, item.OrganizationID, item.SourceType, item.SourceID)
	if errors.Is(err, repo.ErrNotFound) {
		existing = nil
	} else if err != nil {
		return Result{}, fmt.Errorf("load agenda item: %w", err)
	}
	if existing != nil {
		if existing.LastEventID == entry.ID {
			return deduped(), nil
		}
		if !supersedes(entry, existing) {
			return stale(), nil
		}
	}

	if !validInterval(item.StartsAt, item.EndsAt) {
		if existing == nil {
			return failed(CodeAgendaIntervalInvalid), nil
		}
		// keep the stored window, only retire the row
		item.StartsAt, item.EndsAt = existing.StartsAt, existing.EndsAt
		item.Status = model.StatusDeleted
	}

	written, err := s.repo.UpsertAgendaItemIfNewer(ctx, &item)
	if err != nil {
		return Result{}, fmt.Errorf("upsert agenda item: %w", err)
	}
	if !written {
		return stale(), nil
	}
	s.publish(ctx, item)
	return applied(), nil
}

// project builds the agenda row an entry asks for, reading the source
// aggregate for whatever the payload leaves out.
func (s *AgendaService) project(ctx context.Context, entry *model.EventLog, st model.SourceType) (model.AgendaItem, Result, error) {
	h := sourceHandlers[st]
	p := payload(entry.Payload)

	raw, _ := h.resolveID(p, entry)
	id, ok := parseNumericID(raw)
	if !ok {
		return model.AgendaItem{}, failed(h.invalid), nil
	}

	item := model.AgendaItem{
		OrganizationID: entry.OrganizationID,
		SourceType:     st,
		SourceID:       formatID(id),
		LastEventID:    entry.ID,
		LastSequence:   entry.Sequence,
		UpdatedAt:      entry.CreatedAt,
	}
	item.Title, _ = p.str("title")
	item.StartsAt, _ = p.time("startsAt")
	item.EndsAt, _ = p.time("endsAt")
	item.Status, _ = p.str("status")

	if item.Title == "" || item.StartsAt.IsZero() || item.EndsAt.IsZero() || item.Status == "" {
		snap, err := h.load(ctx, s.repo, id)
		if errors.Is(err, repo.ErrNotFound) {
			return model.AgendaItem{}, failed(h.notFound), nil
		}
		if err != nil {
			return model.AgendaItem{}, Result{}, fmt.Errorf("load %s %d: %w", st, id, err)
		}
		if item.Title == "" {
			item.Title = snap.title
		}
		if item.StartsAt.IsZero() {
			item.StartsAt = snap.startsAt
		}
		if item.EndsAt.IsZero() {
			item.EndsAt = snap.endsAt
		}
		if item.Status == "" {
			item.Status = snap.status
		}
	}

	if item.Title == "" || item.StartsAt.IsZero() || item.EndsAt.IsZero() || item.Status == "" {
		return model.AgendaItem{}, failed(CodeAgendaFieldsMissing), nil
	}
	return item, applied(), nil
}

// supersedes reports whether entry is newer than what produced existing.
func supersedes(entry *model.EventLog, existing *model.AgendaItem) bool {
	if entry.Sequence > 0 && existing.LastSequence > 0 {
		return entry.Sequence > existing.LastSequence
	}
	return entry.CreatedAt.After(existing.UpdatedAt)
}

func (s *AgendaService) publish(ctx context.Context, item model.AgendaItem) {
	if err := s.repo.PublishAgendaChange(ctx, item); err != nil {
		s.log.Warnw("publish agenda change failed",
			"organizationId", item.OrganizationID, "sourceType", item.SourceType,
			"sourceId", item.SourceID, "err", err)
	}
}

// DrainOutcome records what happened to one entry during Drain.
type DrainOutcome struct {
	EventID string `json:"eventId"`
	Result  Result `json:"result"`
	Err     error  `json:"-"`
}

// Failed reports whether the entry was not materialized.
func (o DrainOutcome) Failed() bool { return o.Err != nil || !o.Result.OK }

// Drain replays the limit most recent agenda-relevant entries, newest
// first. A failing entry does not stop the rest; every outcome is returned.
func (s *AgendaService) Drain(ctx context.Context, limit int) ([]DrainOutcome, error) {
	if limit <= 0 {
		limit = DefaultDrainLimit
	}
	entries, err := s.repo.ListRecentEventLogs(ctx, AgendaEventTypes, limit)
	if err != nil {
		return nil, fmt.Errorf("list event logs: %w", err)
	}
	out := make([]DrainOutcome, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.ApplyEvent(ctx, e.ID)
		if err != nil {
			s.log.Errorw("drain apply failed", "eventId", e.ID, "err", err)
		} else if !res.OK {
			s.log.Warnw("drain apply rejected", "eventId", e.ID, "code", res.Code)
		}
		out = append(out, DrainOutcome{EventID: e.ID, Result: res, Err: err})
	}
	return out, nil
}
