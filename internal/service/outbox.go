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

// OpAgendaUpsertRequested asks the worker to apply payload.eventId.
const OpAgendaUpsertRequested = "AGENDA_ITEM_UPSERT_REQUESTED"

const (
	defaultOutboxBatch       = 5
	defaultOutboxMaxAttempts = 5
	defaultOutboxRetryDelay  = 5 * time.Minute
)

// EventApplier is the part of AgendaService the outbox worker drives.
type EventApplier interface {
	ApplyEvent(ctx context.Context, eventID string) (Result, error)
}

// OutboxConfig tunes OutboxWorker. Zero values take the defaults.
type OutboxConfig struct {
	Batch       int
	MaxAttempts int
	RetryDelay  time.Duration
}

// OutboxWorker delivers queued operations to the agenda consumer with
// bounded retries.
type OutboxWorker struct {
	repo    repo.RepositoryInterface
	applier EventApplier
	log     *zap.SugaredLogger
	cfg     OutboxConfig
	now     func() time.Time
}

// NewOutboxWorker constructs the worker.
func NewOutboxWorker(r repo.RepositoryInterface, applier EventApplier, cfg OutboxConfig, logger *zap.SugaredLogger) *OutboxWorker {
	if cfg.Batch <= 0 {
		cfg.Batch = defaultOutboxBatch
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultOutboxMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultOutboxRetryDelay
	}
	return &OutboxWorker{
		repo:    r,
		applier: applier,
		log:     logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CodeError carries a Result code as an error.
type CodeError struct{ Code Code }

func (e *CodeError) Error() string { return string(e.Code) }

// OperationOutcome is what RunOnce did with one operation.
type OperationOutcome struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Enqueue queues eventID for delivery. It reports false when the event was
// already queued.
func (w *OutboxWorker) Enqueue(ctx context.Context, eventID string) (bool, error) {
	return w.repo.EnqueueOperation(ctx, &model.Operation{
		OperationType: OpAgendaUpsertRequested,
		DedupeKey:     "agenda:" + eventID,
		Payload:       map[string]interface{}{"eventId": eventID},
	})
}

// RunOnce claims and dispatches one batch of due operations. Operations
// claimed by someone else are skipped.
func (w *OutboxWorker) RunOnce(ctx context.Context) ([]OperationOutcome, error) {
	now := w.now()
	ops, err := w.repo.PollOperations(ctx, now, w.cfg.Batch)
	if err != nil {
		return nil, fmt.Errorf("poll operations: %w", err)
	}

	var out []OperationOutcome
	for _, op := range ops {
		claimed, err := w.repo.ClaimOperation(ctx, op.ID, now)
		if err != nil {
			return out, fmt.Errorf("claim operation %d: %w", op.ID, err)
		}
		if !claimed {
			continue
		}
		op.Attempts++

		derr := w.dispatch(ctx, op)
		if derr == nil {
			if err := w.repo.CompleteOperation(ctx, op.ID); err != nil {
				return out, fmt.Errorf("complete operation %d: %w", op.ID, err)
			}
			out = append(out, OperationOutcome{ID: op.ID, Status: model.OperationSucceeded})
			continue
		}

		status := model.OperationFailed
		next := now.Add(w.cfg.RetryDelay)
		nextRetry := &next
		if op.Attempts >= w.cfg.MaxAttempts {
			status = model.OperationDeadLetter
			nextRetry = nil
		}
		w.log.Warnw("operation failed",
			"operationId", op.ID, "type", op.OperationType,
			"attempts", op.Attempts, "status", status, "err", derr)
		if err := w.repo.FailOperation(ctx, op.ID, status, derr.Error(), nextRetry); err != nil {
			return out, fmt.Errorf("fail operation %d: %w", op.ID, err)
		}
		out = append(out, OperationOutcome{ID: op.ID, Status: status, Error: derr.Error()})
	}
	return out, nil
}

func (w *OutboxWorker) dispatch(ctx context.Context, op model.Operation) error {
	if op.OperationType != OpAgendaUpsertRequested {
		if _, ok := inferSourceType(op.OperationType); !ok {
			return nil
		}
	}
	eventID, ok := payload(op.Payload).id("eventId")
	if !ok {
		return &CodeError{Code: CodeOutboxEventMissingID}
	}
	res, err := w.applier.ApplyEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !res.OK {
		return &CodeError{Code: res.Code}
	}
	return nil
}

// Run calls RunOnce every interval until ctx is done.
func (w *OutboxWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			outcomes, err := w.RunOnce(ctx)
			if err != nil {
				w.log.Errorf("outbox run: %v", err)
				continue
			}
			for _, o := range outcomes {
				if o.Status == model.OperationSucceeded {
					w.log.Infof("operation %d delivered", o.ID)
				}
			}
		}
	}
}
