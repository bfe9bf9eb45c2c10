package service

import (
	"context"
	"testing"
	"time"

	"github.com/richardliu001/agenda-service/internal/model"
	"github.com/richardliu001/agenda-service/internal/repo"
	th "github.com/richardliu001/agenda-service/internal/repo/testhelper"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// recordingRepo wraps the real repository to capture publications and to
// inject interleavings.
type recordingRepo struct {
	*repo.Repository
	published     []model.AgendaItem
	lockErr       error
	beforeReplace func(item *model.AgendaItem)
}

func (r *recordingRepo) PublishAgendaChange(ctx context.Context, item model.AgendaItem) error {
	r.published = append(r.published, item)
	return r.Repository.PublishAgendaChange(ctx, item)
}

func (r *recordingRepo) AcquireLock(ctx context.Context, key string, ttl time.Duration) (repo.Unlock, error) {
	if r.lockErr != nil {
		return nil, r.lockErr
	}
	return r.Repository.AcquireLock(ctx, key, ttl)
}

func (r *recordingRepo) ReplaceAgendaItem(ctx context.Context, item *model.AgendaItem, expected string) (bool, error) {
	if r.beforeReplace != nil {
		r.beforeReplace(item)
	}
	return r.Repository.ReplaceAgendaItem(ctx, item, expected)
}

type fixture struct {
	ctx  context.Context
	db   *gorm.DB
	repo *recordingRepo
	svc  *AgendaService
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := th.NewDB(t)
	log := zaptest.NewLogger(t).Sugar()
	r := &recordingRepo{Repository: repo.NewRepository(db, nil, nil, log)}
	now := th.Ts(t, "2025-02-01T12:00:00Z")
	svc := NewAgendaService(r, log).WithClock(func() time.Time { return now })
	return &fixture{ctx: context.Background(), db: db, repo: r, svc: svc, now: now}
}

// logEntry builds an event-log row.
func logEntry(id, eventType string, orgID int64, created time.Time, p map[string]interface{}) *model.EventLog {
	return &model.EventLog{
		ID:             id,
		OrganizationID: orgID,
		EventType:      eventType,
		Payload:        p,
		CreatedAt:      created.UTC(),
	}
}

func (f *fixture) item(t *testing.T, orgID int64, st model.SourceType, sourceID string) *model.AgendaItem {
	t.Helper()
	it, err := f.repo.FindAgendaItem(f.ctx, orgID, st, sourceID)
	if err != nil {
		t.Fatalf("find agenda item %s/%s: %v", st, sourceID, err)
	}
	return it
}
