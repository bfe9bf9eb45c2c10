package repo

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/richardliu001/agenda-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// RepositoryInterface restricts Repo methods (makes service tests easy to fake).
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	GetEventLog(ctx context.Context, id string) (*model.EventLog, error)
	ListRecentEventLogs(ctx context.Context, eventTypes []string, limit int) ([]model.EventLog, error)
	AppendEventLog(ctx context.Context, entry *model.EventLog) (*model.EventLog, error)
	MaxEventSequence(ctx context.Context, orgID int64) (uint64, error)

	FindEvent(ctx context.Context, id int64) (*model.Event, error)
	FindTournament(ctx context.Context, id int64) (*model.Tournament, error)
	FindBooking(ctx context.Context, id int64) (*model.Booking, error)
	FindSoftBlock(ctx context.Context, id int64) (*model.SoftBlock, error)
	FindCourtBlock(ctx context.Context, id int64) (*model.PadelCourtBlock, error)
	FindMatch(ctx context.Context, id int64) (*model.PadelMatch, error)

	ListOrganizationIDs(ctx context.Context) ([]int64, error)
	PageSoftBlocks(ctx context.Context, orgID, afterID int64, limit int) ([]model.SoftBlock, error)
	PageBookings(ctx context.Context, orgID, afterID int64, limit int) ([]model.Booking, error)
	PageMatches(ctx context.Context, orgID, afterID int64, limit int) ([]model.PadelMatch, error)
	PageCourtBlocks(ctx context.Context, orgID, afterID int64, limit int) ([]model.PadelCourtBlock, error)

	FindAgendaItem(ctx context.Context, orgID int64, st model.SourceType, sourceID string) (*model.AgendaItem, error)
	UpsertAgendaItemIfNewer(ctx context.Context, item *model.AgendaItem) (bool, error)
	InsertAgendaItem(ctx context.Context, item *model.AgendaItem) (bool, error)
	ReplaceAgendaItem(ctx context.Context, item *model.AgendaItem, expectedLastEventID string) (bool, error)
	PageAgendaItems(ctx context.Context, orgID int64, types []model.SourceType, afterID uint64, limit int) ([]model.AgendaItem, error)
	ListAgendaWindow(ctx context.Context, orgID int64, from, to time.Time, includeDeleted bool) ([]model.AgendaItem, error)

	EnqueueOperation(ctx context.Context, op *model.Operation) (bool, error)
	PollOperations(ctx context.Context, now time.Time, limit int) ([]model.Operation, error)
	ClaimOperation(ctx context.Context, id uint64, now time.Time) (bool, error)
	CompleteOperation(ctx context.Context, id uint64) error
	FailOperation(ctx context.Context, id uint64, status, lastErr string, nextRetryAt *time.Time) error

	AcquireLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
	PublishAgendaChange(ctx context.Context, item model.AgendaItem) error
}

// messageWriter is the part of *kafka.Writer the repository uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Repository implements RepositoryInterface.
type Repository struct {
	db       *gorm.DB
	rdb      *redis.Client
	writer   messageWriter
	log      *zap.SugaredLogger
	newToken func() string
}

// NewRepository constructs repo. rdb and w may be nil: locking then
// degrades to a no-op and change notifications are not published.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	r := &Repository{db: db, rdb: rdb, log: logger, newToken: uuid.NewString}
	if w != nil {
		r.writer = w
	}
	return r
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
