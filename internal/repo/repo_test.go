package repo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/richardliu001/agenda-service/internal/model"
	th "github.com/richardliu001/agenda-service/internal/repo/testhelper"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRepo(t *testing.T) (*Repository, context.Context) {
	db := th.NewDB(t)
	return NewRepository(db, nil, nil, zaptest.NewLogger(t).Sugar()), context.Background()
}

func agendaItem(eventID string, seq uint64, updated time.Time) *model.AgendaItem {
	return &model.AgendaItem{
		OrganizationID: 7,
		SourceType:     model.SourceSoftBlock,
		SourceID:       "42",
		Title:          "Bloqueio " + eventID,
		StartsAt:       updated,
		EndsAt:         updated.Add(time.Hour),
		Status:         model.StatusActive,
		LastEventID:    eventID,
		LastSequence:   seq,
		UpdatedAt:      updated,
	}
}

func TestUpsertAgendaItemIfNewer_ByTimestamp(t *testing.T) {
	r, ctx := newTestRepo(t)
	t1 := th.Ts(t, "2025-01-10T10:00:00Z")
	t2 := th.Ts(t, "2025-01-10T11:00:00Z")

	ok, err := r.UpsertAgendaItemIfNewer(ctx, agendaItem("e2", 0, t2))
	require.NoError(t, err)
	assert.True(t, ok)

	// older write loses
	ok, err = r.UpsertAgendaItemIfNewer(ctx, agendaItem("e1", 0, t1))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.FindAgendaItem(ctx, 7, model.SourceSoftBlock, "42")
	require.NoError(t, err)
	assert.Equal(t, "e2", got.LastEventID)
	assert.True(t, got.UpdatedAt.Equal(t2))

	// newer write wins
	t3 := t2.Add(time.Minute)
	ok, err = r.UpsertAgendaItemIfNewer(ctx, agendaItem("e3", 0, t3))
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = r.FindAgendaItem(ctx, 7, model.SourceSoftBlock, "42")
	require.NoError(t, err)
	assert.Equal(t, "e3", got.LastEventID)
	assert.Len(t, th.AgendaRows(t, r.db, 7), 1)
}

func TestUpsertAgendaItemIfNewer_BySequence(t *testing.T) {
	r, ctx := newTestRepo(t)
	t1 := th.Ts(t, "2025-01-10T10:00:00Z")

	ok, err := r.UpsertAgendaItemIfNewer(ctx, agendaItem("e5", 5, t1))
	require.NoError(t, err)
	require.True(t, ok)

	// a later timestamp does not help a lower sequence
	ok, err = r.UpsertAgendaItemIfNewer(ctx, agendaItem("e4", 4, t1.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, ok)

	// a higher sequence wins even with an equal timestamp
	ok, err = r.UpsertAgendaItemIfNewer(ctx, agendaItem("e6", 6, t1))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReplaceAgendaItem_OptimisticCheck(t *testing.T) {
	r, ctx := newTestRepo(t)
	t1 := th.Ts(t, "2025-01-10T10:00:00Z")
	ok, err := r.InsertAgendaItem(ctx, agendaItem("e1", 0, t1))
	require.NoError(t, err)
	require.True(t, ok)

	// duplicate insert is refused
	ok, err = r.InsertAgendaItem(ctx, agendaItem("e1-dup", 0, t1))
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := r.FindAgendaItem(ctx, 7, model.SourceSoftBlock, "42")
	require.NoError(t, err)

	next := *stored
	next.Title = "Manutenção"
	next.LastEventID = "rebuild-1"
	ok, err = r.ReplaceAgendaItem(ctx, &next, "stale-token")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.ReplaceAgendaItem(ctx, &next, stored.LastEventID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := r.FindAgendaItem(ctx, 7, model.SourceSoftBlock, "42")
	require.NoError(t, err)
	assert.Equal(t, "Manutenção", got.Title)
	assert.Equal(t, "rebuild-1", got.LastEventID)
}

func TestFindAgendaItem_NotFound(t *testing.T) {
	r, ctx := newTestRepo(t)
	_, err := r.FindAgendaItem(ctx, 1, model.SourceEvent, "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendEventLog_SequencesPerOrganization(t *testing.T) {
	r, ctx := newTestRepo(t)
	key := "soft_block.created:1"

	a, err := r.AppendEventLog(ctx, &model.EventLog{ID: "a", OrganizationID: 1, EventType: "soft_block.created", IdempotencyKey: &key})
	require.NoError(t, err)
	b, err := r.AppendEventLog(ctx, &model.EventLog{ID: "b", OrganizationID: 1, EventType: "soft_block.updated"})
	require.NoError(t, err)
	c, err := r.AppendEventLog(ctx, &model.EventLog{ID: "c", OrganizationID: 2, EventType: "soft_block.created"})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), a.Sequence)
	assert.Equal(t, uint64(2), b.Sequence)
	assert.Equal(t, uint64(1), c.Sequence)

	// same idempotency key returns the stored entry
	dup, err := r.AppendEventLog(ctx, &model.EventLog{ID: "a2", OrganizationID: 1, EventType: "soft_block.created", IdempotencyKey: &key})
	require.NoError(t, err)
	assert.Equal(t, "a", dup.ID)

	max, err := r.MaxEventSequence(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), max)
	max, err = r.MaxEventSequence(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), max)

	ids, err := r.ListOrganizationIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestPageSoftBlocks_Keyset(t *testing.T) {
	r, ctx := newTestRepo(t)
	base := th.Ts(t, "2025-01-10T10:00:00Z")
	for i := int64(1); i <= 5; i++ {
		th.Seed(t, r.db, &model.SoftBlock{ID: i, OrganizationID: 7, StartsAt: base, EndsAt: base.Add(time.Hour)})
	}
	th.Seed(t, r.db, &model.SoftBlock{ID: 6, OrganizationID: 8, StartsAt: base, EndsAt: base.Add(time.Hour)})

	var seen []int64
	var after int64
	for {
		page, err := r.PageSoftBlocks(ctx, 7, after, 2)
		require.NoError(t, err)
		for _, b := range page {
			seen = append(seen, b.ID)
		}
		if len(page) < 2 {
			break
		}
		after = page[len(page)-1].ID
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, seen)
}

func TestPageMatches_ResolvesOrganizationThroughEvent(t *testing.T) {
	r, ctx := newTestRepo(t)
	start := th.Ts(t, "2025-01-10T10:00:00Z")
	th.Seed(t, r.db,
		&model.Event{ID: 1, OrganizationID: 7, Title: "Open", StartsAt: start, Status: "PUBLISHED"},
		&model.Event{ID: 2, OrganizationID: 8, Title: "Other", StartsAt: start, Status: "PUBLISHED"},
		&model.PadelMatch{ID: 10, EventID: 1, PlannedStartAt: &start},
		&model.PadelMatch{ID: 11, EventID: 1}, // never scheduled
		&model.PadelMatch{ID: 12, EventID: 2, StartTime: &start},
		&model.PadelMatch{ID: 13, EventID: 1, StartTime: &start},
	)

	page, err := r.PageMatches(ctx, 7, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(10), page[0].ID)
	assert.Equal(t, int64(13), page[1].ID)
}

func TestOperations_ClaimOnce(t *testing.T) {
	r, ctx := newTestRepo(t)
	now := th.Ts(t, "2025-01-10T10:00:00Z")

	created, err := r.EnqueueOperation(ctx, &model.Operation{OperationType: "AGENDA_ITEM_UPSERT_REQUESTED", DedupeKey: "k1"})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = r.EnqueueOperation(ctx, &model.Operation{OperationType: "AGENDA_ITEM_UPSERT_REQUESTED", DedupeKey: "k1"})
	require.NoError(t, err)
	assert.False(t, created)

	ops, err := r.PollOperations(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	ok, err := r.ClaimOperation(ctx, ops[0].ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.ClaimOperation(ctx, ops[0].ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	retry := now.Add(5 * time.Minute)
	require.NoError(t, r.FailOperation(ctx, ops[0].ID, model.OperationFailed, "boom", &retry))

	ops, err = r.PollOperations(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, ops, "not due yet")
	ops, err = r.PollOperations(ctx, retry, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].Attempts)
}

func TestAcquireLock_Redis(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	r := NewRepository(nil, rdb, nil, zaptest.NewLogger(t).Sugar())
	r.newToken = func() string { return "tok" }
	ctx := context.Background()

	mock.ExpectSetNX("agenda:rebuild:org:7", "tok", time.Minute).SetVal(true)
	mock.ExpectEval(releaseScript, []string{"agenda:rebuild:org:7"}, "tok").SetVal(int64(1))
	unlock, err := r.AcquireLock(ctx, "agenda:rebuild:org:7", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))

	mock.ExpectSetNX("agenda:rebuild:org:7", "tok", time.Minute).SetVal(false)
	_, err = r.AcquireLock(ctx, "agenda:rebuild:org:7", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock_NoRedis(t *testing.T) {
	r, ctx := newTestRepo(t)
	unlock, err := r.AcquireLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.NoError(t, unlock(ctx))
}

type captureWriter struct{ msgs []kafka.Message }

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestPublishAgendaChange(t *testing.T) {
	r, ctx := newTestRepo(t)
	w := &captureWriter{}
	r.writer = w

	item := agendaItem("e1", 3, th.Ts(t, "2025-01-10T10:00:00Z"))
	require.NoError(t, r.PublishAgendaChange(ctx, *item))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "7:SOFT_BLOCK:42", string(w.msgs[0].Key))
	var got AgendaChange
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "e1", got.LastEventID)
	assert.Equal(t, model.SourceSoftBlock, got.SourceType)
}

func TestListAgendaWindow(t *testing.T) {
	r, ctx := newTestRepo(t)
	jan := th.Ts(t, "2025-01-10T10:00:00Z")
	feb := th.Ts(t, "2025-02-10T10:00:00Z")
	th.Seed(t, r.db,
		&model.AgendaItem{OrganizationID: 7, SourceType: model.SourceEvent, SourceID: "1", Title: "Jan", StartsAt: jan, EndsAt: jan.Add(time.Hour), Status: "PUBLISHED", LastEventID: "x1", UpdatedAt: jan},
		&model.AgendaItem{OrganizationID: 7, SourceType: model.SourceEvent, SourceID: "2", Title: "Gone", StartsAt: jan, EndsAt: jan.Add(time.Hour), Status: model.StatusDeleted, LastEventID: "x2", UpdatedAt: jan},
		&model.AgendaItem{OrganizationID: 7, SourceType: model.SourceEvent, SourceID: "3", Title: "Feb", StartsAt: feb, EndsAt: feb.Add(time.Hour), Status: "PUBLISHED", LastEventID: "x3", UpdatedAt: feb},
	)
	from := th.Ts(t, "2025-01-01T00:00:00Z")
	to := th.Ts(t, "2025-02-01T00:00:00Z")

	items, err := r.ListAgendaWindow(ctx, 7, from, to, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Jan", items[0].Title)

	items, err = r.ListAgendaWindow(ctx, 7, from, to, true)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestMaxEventSequence_LogWithoutSequenceColumn(t *testing.T) {
	r, ctx := newTestRepo(t)
	// an event log owned elsewhere, shaped without the sequence column
	require.NoError(t, r.db.Migrator().DropTable(&model.EventLog{}))
	require.NoError(t, r.db.Exec(`CREATE TABLE event_logs (
		id TEXT PRIMARY KEY,
		organization_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		source_type TEXT,
		source_id TEXT,
		payload TEXT,
		created_at DATETIME NOT NULL
	)`).Error)
	require.NoError(t, r.db.Exec(
		`INSERT INTO event_logs (id, organization_id, event_type, created_at) VALUES ('e1', 7, 'soft_block.created', '2025-01-10 10:00:00+00:00')`,
	).Error)

	max, err := r.MaxEventSequence(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), max)

	entry, err := r.GetEventLog(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), entry.Sequence)
	assert.Equal(t, "soft_block.created", entry.EventType)
}
