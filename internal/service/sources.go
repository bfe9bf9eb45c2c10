package service

import (
	"context"
	"strconv"
	"time"

	"github.com/richardliu001/agenda-service/internal/model"
	"github.com/richardliu001/agenda-service/internal/repo"
)

const (
	defaultBlockTitle   = "Bloqueio"
	defaultMatchTitle   = "Jogo"
	defaultBookingTitle = "Reserva"
)

// snapshot is the agenda-relevant state read from a source aggregate.
type snapshot struct {
	title    string
	startsAt time.Time
	endsAt   time.Time
	status   string
}

// sourceHandler knows how one SourceType is identified in event payloads
// and how to read its aggregate.
type sourceHandler struct {
	// idFields are checked in order after the generic "sourceId".
	idFields []string
	// logSourceID allows the event-log row's own sourceId as a last resort.
	logSourceID bool
	invalid     Code
	notFound    Code
	load        func(ctx context.Context, r repo.RepositoryInterface, id int64) (snapshot, error)
}

// resolveID returns the aggregate id named by the event.
func (h sourceHandler) resolveID(p payload, entry *model.EventLog) (string, bool) {
	if id, ok := p.id("sourceId"); ok {
		return id, true
	}
	for _, f := range h.idFields {
		if id, ok := p.id(f); ok {
			return id, true
		}
	}
	if h.logSourceID && entry.SourceID != nil && *entry.SourceID != "" {
		return *entry.SourceID, true
	}
	return "", false
}

var sourceHandlers = map[model.SourceType]sourceHandler{
	model.SourceEvent: {
		idFields:    []string{"eventId"},
		logSourceID: true,
		invalid:     CodeEventIDInvalid,
		notFound:    CodeEventNotFound,
		load:        loadEvent,
	},
	model.SourceTournament: {
		idFields: []string{"tournamentId"},
		invalid:  CodeTournamentIDInvalid,
		notFound: CodeTournamentNotFound,
		load:     loadTournament,
	},
	model.SourceBooking: {
		idFields: []string{"reservationId", "bookingId"},
		invalid:  CodeReservationIDInvalid,
		notFound: CodeReservationNotFound,
		load:     loadBooking,
	},
	model.SourceSoftBlock: {
		idFields: []string{"softBlockId"},
		invalid:  CodeSoftBlockIDInvalid,
		notFound: CodeSoftBlockNotFound,
		load:     loadSoftBlock,
	},
	model.SourceHardBlock: {
		idFields: []string{"hardBlockId"},
		invalid:  CodeHardBlockIDInvalid,
		notFound: CodeHardBlockNotFound,
		load:     loadHardBlock,
	},
	model.SourceMatch: {
		idFields: []string{"matchId"},
		invalid:  CodeMatchIDInvalid,
		notFound: CodeMatchNotFound,
		load:     loadMatch,
	},
}

func eventSnapshot(e *model.Event) snapshot {
	end := e.StartsAt
	if e.EndsAt != nil {
		end = *e.EndsAt
	}
	return snapshot{title: e.Title, startsAt: e.StartsAt, endsAt: end, status: e.Status}
}

func loadEvent(ctx context.Context, r repo.RepositoryInterface, id int64) (snapshot, error) {
	e, err := r.FindEvent(ctx, id)
	if err != nil {
		return snapshot{}, err
	}
	return eventSnapshot(e), nil
}

func loadTournament(ctx context.Context, r repo.RepositoryInterface, id int64) (snapshot, error) {
	t, err := r.FindTournament(ctx, id)
	if err != nil {
		return snapshot{}, err
	}
	if t.Event == nil {
		return snapshot{}, repo.ErrNotFound
	}
	return eventSnapshot(t.Event), nil
}

func loadBooking(ctx context.Context, r repo.RepositoryInterface, id int64) (snapshot, error) {
	b, err := r.FindBooking(ctx, id)
	if err != nil {
		return snapshot{}, err
	}
	return bookingSnapshot(b), nil
}

func bookingSnapshot(b *model.Booking) snapshot {
	title := defaultBookingTitle
	if b.Service != nil && b.Service.Title != "" {
		title = b.Service.Title
	}
	return snapshot{title: title, startsAt: b.StartsAt, endsAt: b.EndsAt(), status: b.Status}
}

func loadSoftBlock(ctx context.Context, r repo.RepositoryInterface, id int64) (snapshot, error) {
	b, err := r.FindSoftBlock(ctx, id)
	if err != nil {
		return snapshot{}, err
	}
	return softBlockSnapshot(b), nil
}

func softBlockSnapshot(b *model.SoftBlock) snapshot {
	return snapshot{
		title:    titleOr(b.Reason, defaultBlockTitle),
		startsAt: b.StartsAt,
		endsAt:   b.EndsAt,
		status:   model.StatusActive,
	}
}

func loadHardBlock(ctx context.Context, r repo.RepositoryInterface, id int64) (snapshot, error) {
	b, err := r.FindCourtBlock(ctx, id)
	if err != nil {
		return snapshot{}, err
	}
	return hardBlockSnapshot(b), nil
}

func hardBlockSnapshot(b *model.PadelCourtBlock) snapshot {
	return snapshot{
		title:    titleOr(b.Label, defaultBlockTitle),
		startsAt: b.StartAt,
		endsAt:   b.EndAt,
		status:   model.StatusActive,
	}
}

// loadMatch marks a match without a usable window as DELETED; its end
// falls back to its start so the interval check rejects it downstream.
func loadMatch(ctx context.Context, r repo.RepositoryInterface, id int64) (snapshot, error) {
	m, err := r.FindMatch(ctx, id)
	if err != nil {
		return snapshot{}, err
	}
	snap := snapshot{title: defaultMatchTitle, status: model.StatusDeleted}
	start, end := m.Window()
	if start != nil {
		snap.startsAt = *start
		snap.endsAt = *start
	}
	if end != nil {
		snap.endsAt = *end
	}
	if start != nil && end != nil && end.After(*start) {
		snap.status = model.StatusActive
	}
	return snap, nil
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }
