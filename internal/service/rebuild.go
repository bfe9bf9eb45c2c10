package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/agenda-service/internal/model"
	"github.com/richardliu001/agenda-service/internal/repo"
	"go.uber.org/zap"
)

const (
	DefaultRebuildBatchSize = 500
	DefaultRebuildLockTTL   = 30 * time.Minute
)

// ErrRebuildLocked is returned when another rebuild holds an organization.
var ErrRebuildLocked = errors.New("rebuild already running for organization")

// RebuildParams selects what Rebuild scans. A nil OrganizationID means
// every organization.
type RebuildParams struct {
	OrganizationID *int64
	BatchSize      int
	Logger         func(msg string, fields map[string]interface{})
}

// RebuildResult counts what a rebuild did.
type RebuildResult struct {
	Organizations int `json:"organizations"`
	Created       int `json:"created"`
	Updated       int `json:"updated"`
	Deleted       int `json:"deleted"`
	Skipped       int `json:"skipped"`
	Invalid       int `json:"invalid"`
	Conflicts     int `json:"conflicts"`
}

func (r *RebuildResult) add(o RebuildResult) {
	r.Created += o.Created
	r.Updated += o.Updated
	r.Deleted += o.Deleted
	r.Skipped += o.Skipped
	r.Invalid += o.Invalid
	r.Conflicts += o.Conflicts
}

func (r RebuildResult) fields() map[string]interface{} {
	return map[string]interface{}{
		"organizations": r.Organizations,
		"created":       r.Created,
		"updated":       r.Updated,
		"deleted":       r.Deleted,
		"skipped":       r.Skipped,
		"invalid":       r.Invalid,
		"conflicts":     r.Conflicts,
	}
}

// ZapRebuildLogger adapts log for RebuildParams.Logger. Every field becomes
// its own key, in key order.
func ZapRebuildLogger(log *zap.SugaredLogger) func(msg string, fields map[string]interface{}) {
	return func(msg string, fields map[string]interface{}) {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kv := make([]interface{}, 0, 2*len(keys))
		for _, k := range keys {
			kv = append(kv, k, fields[k])
		}
		log.Infow(msg, kv...)
	}
}

// RebuildLockKey is the Redis key guarding one organization's rebuild.
func RebuildLockKey(orgID int64) string {
	return fmt.Sprintf("agenda:rebuild:org:%d", orgID)
}

// Rebuild recomputes the block, booking and match rows of the agenda from
// their source tables and soft-deletes rows whose source is gone. Events
// and tournaments are left to the incremental consumer. Running it twice
// without source changes writes nothing the second time.
func (s *AgendaService) Rebuild(ctx context.Context, p RebuildParams) (RebuildResult, error) {
	batch := p.BatchSize
	if batch <= 0 {
		batch = DefaultRebuildBatchSize
	}
	logf := p.Logger
	if logf == nil {
		logf = func(string, map[string]interface{}) {}
	}

	var orgIDs []int64
	if p.OrganizationID != nil {
		orgIDs = []int64{*p.OrganizationID}
	} else {
		ids, err := s.repo.ListOrganizationIDs(ctx)
		if err != nil {
			return RebuildResult{}, fmt.Errorf("list organizations: %w", err)
		}
		orgIDs = ids
	}

	total := RebuildResult{Organizations: len(orgIDs)}
	logf("agenda rebuild started", map[string]interface{}{"organizations": len(orgIDs), "batchSize": batch})
	for _, orgID := range orgIDs {
		logf("agenda rebuild organization started", map[string]interface{}{"organizationId": orgID})
		res, err := s.rebuildOrganization(ctx, orgID, batch)
		if err != nil {
			return total, fmt.Errorf("rebuild organization %d: %w", orgID, err)
		}
		total.add(res)
		f := res.fields()
		delete(f, "organizations")
		f["organizationId"] = orgID
		logf("agenda rebuild organization done", f)
	}
	logf("agenda rebuild finished", total.fields())
	return total, nil
}

type agendaKey struct {
	st model.SourceType
	id string
}

// orgRebuild is the state of one organization's pass.
type orgRebuild struct {
	s        *AgendaService
	orgID    int64
	now      time.Time
	sequence uint64
	existing map[agendaKey]model.AgendaItem
	res      RebuildResult
}

func (s *AgendaService) rebuildOrganization(ctx context.Context, orgID int64, batch int) (res RebuildResult, err error) {
	unlock, err := s.repo.AcquireLock(ctx, RebuildLockKey(orgID), s.lockTTL)
	if errors.Is(err, repo.ErrLockNotAcquired) {
		return res, fmt.Errorf("%w: %d", ErrRebuildLocked, orgID)
	}
	if err != nil {
		return res, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() {
		if uerr := unlock(context.Background()); uerr != nil {
			s.log.Warnw("release rebuild lock failed", "organizationId", orgID, "err", uerr)
		}
	}()

	seq, err := s.repo.MaxEventSequence(ctx, orgID)
	if err != nil {
		return res, fmt.Errorf("max event sequence: %w", err)
	}
	o := &orgRebuild{s: s, orgID: orgID, now: s.now().UTC(), sequence: seq, existing: map[agendaKey]model.AgendaItem{}}

	err = eachPage(batch,
		func(after uint64) ([]model.AgendaItem, error) {
			return s.repo.PageAgendaItems(ctx, orgID, model.RebuildableSourceTypes, after, batch)
		},
		func(it model.AgendaItem) uint64 { return it.ID },
		func(it model.AgendaItem) error {
			o.existing[agendaKey{it.SourceType, it.SourceID}] = it
			return nil
		})
	if err != nil {
		return res, fmt.Errorf("load agenda items: %w", err)
	}

	if err := o.scanSoftBlocks(ctx, batch); err != nil {
		return o.res, fmt.Errorf("soft blocks: %w", err)
	}
	if err := o.scanBookings(ctx, batch); err != nil {
		return o.res, fmt.Errorf("bookings: %w", err)
	}
	if err := o.scanMatches(ctx, batch); err != nil {
		return o.res, fmt.Errorf("matches: %w", err)
	}
	if err := o.scanCourtBlocks(ctx, batch); err != nil {
		return o.res, fmt.Errorf("court blocks: %w", err)
	}
	if err := o.deleteOrphans(ctx); err != nil {
		return o.res, fmt.Errorf("orphans: %w", err)
	}
	return o.res, nil
}

type cursor interface{ ~int64 | ~uint64 }

// eachPage walks a keyset-paginated listing until a short page.
func eachPage[T any, K cursor](batch int, fetch func(after K) ([]T, error), key func(T) K, fn func(T) error) error {
	var after K
	for {
		rows, err := fetch(after)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := fn(row); err != nil {
				return err
			}
		}
		if len(rows) < batch {
			return nil
		}
		after = key(rows[len(rows)-1])
	}
}

func (o *orgRebuild) scanSoftBlocks(ctx context.Context, batch int) error {
	return eachPage(batch,
		func(after int64) ([]model.SoftBlock, error) {
			return o.s.repo.PageSoftBlocks(ctx, o.orgID, after, batch)
		},
		func(b model.SoftBlock) int64 { return b.ID },
		func(b model.SoftBlock) error {
			return o.reconcile(ctx, model.SourceSoftBlock, b.ID, softBlockSnapshot(&b))
		})
}

func (o *orgRebuild) scanBookings(ctx context.Context, batch int) error {
	return eachPage(batch,
		func(after int64) ([]model.Booking, error) {
			return o.s.repo.PageBookings(ctx, o.orgID, after, batch)
		},
		func(b model.Booking) int64 { return b.ID },
		func(b model.Booking) error {
			if b.DurationMinutes <= 0 {
				o.invalid(model.SourceBooking, b.ID)
				return nil
			}
			return o.reconcile(ctx, model.SourceBooking, b.ID, bookingSnapshot(&b))
		})
}

func (o *orgRebuild) scanMatches(ctx context.Context, batch int) error {
	return eachPage(batch,
		func(after int64) ([]model.PadelMatch, error) {
			return o.s.repo.PageMatches(ctx, o.orgID, after, batch)
		},
		func(m model.PadelMatch) int64 { return m.ID },
		func(m model.PadelMatch) error {
			start, end := m.Window()
			if start == nil || end == nil {
				o.invalid(model.SourceMatch, m.ID)
				return nil
			}
			status := m.Status
			if status == "" {
				status = model.StatusActive
			}
			return o.reconcile(ctx, model.SourceMatch, m.ID, snapshot{
				title:    defaultMatchTitle,
				startsAt: *start,
				endsAt:   *end,
				status:   status,
			})
		})
}

func (o *orgRebuild) scanCourtBlocks(ctx context.Context, batch int) error {
	return eachPage(batch,
		func(after int64) ([]model.PadelCourtBlock, error) {
			return o.s.repo.PageCourtBlocks(ctx, o.orgID, after, batch)
		},
		func(b model.PadelCourtBlock) int64 { return b.ID },
		func(b model.PadelCourtBlock) error {
			return o.reconcile(ctx, model.SourceHardBlock, b.ID, hardBlockSnapshot(&b))
		})
}

// invalid counts a source row that cannot be materialized. Its agenda row,
// if any, stays in the map and is soft-deleted as an orphan.
func (o *orgRebuild) invalid(st model.SourceType, id int64) {
	o.res.Invalid++
	o.s.log.Debugw("rebuild skipped invalid source", "organizationId", o.orgID, "sourceType", st, "sourceId", id)
}

func (o *orgRebuild) stamp(item *model.AgendaItem) {
	item.LastEventID = uuid.NewString()
	item.LastSequence = o.sequence
	item.UpdatedAt = o.now
}

func (o *orgRebuild) reconcile(ctx context.Context, st model.SourceType, id int64, snap snapshot) error {
	if !validInterval(snap.startsAt, snap.endsAt) {
		o.invalid(st, id)
		return nil
	}
	want := model.AgendaItem{
		OrganizationID: o.orgID,
		SourceType:     st,
		SourceID:       formatID(id),
		Title:          snap.title,
		StartsAt:       snap.startsAt,
		EndsAt:         snap.endsAt,
		Status:         snap.status,
	}
	key := agendaKey{st, want.SourceID}
	have, found := o.existing[key]
	delete(o.existing, key)

	if found && have.SameProjection(want) {
		o.res.Skipped++
		return nil
	}
	o.stamp(&want)

	if !found {
		ok, err := o.s.repo.InsertAgendaItem(ctx, &want)
		if err != nil {
			return err
		}
		if !ok {
			o.conflict(want)
			return nil
		}
		o.res.Created++
		o.s.publish(ctx, want)
		return nil
	}

	want.ID = have.ID
	ok, err := o.s.repo.ReplaceAgendaItem(ctx, &want, have.LastEventID)
	if err != nil {
		return err
	}
	if !ok {
		o.conflict(want)
		return nil
	}
	o.res.Updated++
	o.s.publish(ctx, want)
	return nil
}

// deleteOrphans soft-deletes every agenda row no valid source row claimed.
func (o *orgRebuild) deleteOrphans(ctx context.Context) error {
	orphans := make([]model.AgendaItem, 0, len(o.existing))
	for _, it := range o.existing {
		orphans = append(orphans, it)
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].ID < orphans[j].ID })

	for _, have := range orphans {
		if have.Status == model.StatusDeleted {
			o.res.Skipped++
			continue
		}
		gone := have
		gone.Status = model.StatusDeleted
		o.stamp(&gone)
		ok, err := o.s.repo.ReplaceAgendaItem(ctx, &gone, have.LastEventID)
		if err != nil {
			return err
		}
		if !ok {
			o.conflict(gone)
			continue
		}
		o.res.Deleted++
		o.s.publish(ctx, gone)
	}
	o.existing = nil
	return nil
}

// conflict records a row another writer changed while the pass ran.
func (o *orgRebuild) conflict(item model.AgendaItem) {
	o.res.Conflicts++
	o.s.log.Warnw("rebuild lost write race",
		"organizationId", o.orgID, "sourceType", item.SourceType, "sourceId", item.SourceID)
}
