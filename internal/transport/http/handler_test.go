package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/agenda-service/internal/config"
	"github.com/richardliu001/agenda-service/internal/model"
	"github.com/richardliu001/agenda-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type fakeService struct {
	result     service.Result
	err        error
	outcomes   []service.DrainOutcome
	rebuild    service.RebuildParams
	rebuildErr error
	window     service.Window
	deleted    bool
	items      []model.AgendaItem
	drainLimit int
}

func (f *fakeService) ApplyEvent(context.Context, string) (service.Result, error) {
	return f.result, f.err
}

func (f *fakeService) Drain(_ context.Context, limit int) ([]service.DrainOutcome, error) {
	f.drainLimit = limit
	return f.outcomes, f.err
}

func (f *fakeService) Rebuild(_ context.Context, p service.RebuildParams) (service.RebuildResult, error) {
	f.rebuild = p
	if p.Logger != nil {
		p.Logger("agenda rebuild finished", map[string]interface{}{"organizations": 1, "created": 2})
	}
	return service.RebuildResult{Organizations: 1, Created: 2}, f.rebuildErr
}

func (f *fakeService) ListAgenda(_ context.Context, _ int64, w service.Window, includeDeleted bool) ([]model.AgendaItem, error) {
	f.window, f.deleted = w, includeDeleted
	if !w.To.After(w.From) {
		return nil, service.ErrInvalidWindow
	}
	return f.items, f.err
}

const secret = "s3cret"

func newTestRouter(t *testing.T, svc *fakeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	var cfg config.Config
	cfg.Server.InternalSecret = secret
	return NewRouter(svc, cfg, zaptest.NewLogger(t).Sugar())
}

func do(r http.Handler, method, path, body string, internal bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if internal {
		req.Header.Set(InternalSecretHeader, secret)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListAgenda_Month(t *testing.T) {
	start := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	svc := &fakeService{items: []model.AgendaItem{{
		SourceType: model.SourceBooking, SourceID: "9", Title: "Reserva",
		StartsAt: start, EndsAt: start.Add(time.Hour), Status: "CONFIRMED",
	}}}
	r := newTestRouter(t, svc)

	w := do(r, http.MethodGet, "/v1/organizations/7/agenda?month=2025-02&includeDeleted=true", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.window.From.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, svc.window.To.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, svc.deleted)

	var body struct {
		Items []agendaItemResp `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "9", body.Items[0].SourceID)
	assert.Equal(t, model.SourceBooking, body.Items[0].SourceType)
}

func TestListAgenda_BadInput(t *testing.T) {
	r := newTestRouter(t, &fakeService{})
	for _, path := range []string{
		"/v1/organizations/x/agenda",
		"/v1/organizations/7/agenda?month=02-2025",
		"/v1/organizations/7/agenda?start=2025-02-01T00:00:00Z",
		"/v1/organizations/7/agenda?start=2025-02-02T00:00:00Z&end=2025-02-01T00:00:00Z",
	} {
		w := do(r, http.MethodGet, path, "", false)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestInternalEndpoints_RequireSecret(t *testing.T) {
	r := newTestRouter(t, &fakeService{result: service.Result{OK: true}})
	w := do(r, http.MethodPost, "/v1/internal/agenda/events/e1/apply", "", false)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodPost, "/v1/internal/agenda/events/e1/apply", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestApplyEvent_Statuses(t *testing.T) {
	svc := &fakeService{result: service.Result{Code: service.CodeEventNotFound}}
	r := newTestRouter(t, svc)
	w := do(r, http.MethodPost, "/v1/internal/agenda/events/e1/apply", "", true)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"ok":false,"code":"EVENT_NOT_FOUND"}`, w.Body.String())

	svc.err = errors.New("db down")
	w = do(r, http.MethodPost, "/v1/internal/agenda/events/e1/apply", "", true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDrain_Summary(t *testing.T) {
	svc := &fakeService{outcomes: []service.DrainOutcome{
		{EventID: "a", Result: service.Result{OK: true}},
		{EventID: "b", Result: service.Result{Code: service.CodeMatchNotFound}},
		{EventID: "c", Err: errors.New("timeout")},
	}}
	r := newTestRouter(t, svc)

	w := do(r, http.MethodPost, "/v1/internal/agenda/drain?limit=10", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, svc.drainLimit)

	var body struct {
		Processed int                `json:"processed"`
		Failed    int                `json:"failed"`
		Outcomes  []drainOutcomeResp `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Processed)
	assert.Equal(t, 2, body.Failed)
	assert.Equal(t, "timeout", body.Outcomes[2].Error)

	w = do(r, http.MethodPost, "/v1/internal/agenda/drain?limit=0", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRebuild_Request(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(t, svc)

	w := do(r, http.MethodPost, "/v1/internal/agenda/rebuild", `{"organizationId":7,"batchSize":100}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.rebuild.OrganizationID)
	assert.Equal(t, int64(7), *svc.rebuild.OrganizationID)
	assert.Equal(t, 100, svc.rebuild.BatchSize)
	assert.JSONEq(t, `{"organizations":1,"created":2,"updated":0,"deleted":0,"skipped":0,"invalid":0,"conflicts":0}`, w.Body.String())

	w = do(r, http.MethodPost, "/v1/internal/agenda/rebuild", `{}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(r, http.MethodPost, "/v1/internal/agenda/rebuild", `{"organizationId":7,"all":true}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.rebuildErr = service.ErrRebuildLocked
	w = do(r, http.MethodPost, "/v1/internal/agenda/rebuild", `{"all":true}`, true)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(1, 1))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodGet, "/", "", false).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/", "", false).Code)
}

func TestRebuild_LogsFlatCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	var cfg config.Config
	cfg.Server.InternalSecret = secret
	r := NewRouter(&fakeService{}, cfg, zap.New(core).Sugar())

	w := do(r, http.MethodPost, "/v1/internal/agenda/rebuild", `{"all":true}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	found := logs.FilterMessage("agenda rebuild finished").All()
	require.Len(t, found, 1)
	ctx := found[0].ContextMap()
	assert.Equal(t, int64(2), ctx["created"])
	assert.Equal(t, int64(1), ctx["organizations"])
	assert.NotContains(t, ctx, "fields")
}

func TestIPLimiter_EvictsIdleBuckets(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newIPLimiter(1, 1, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))
	assert.Len(t, l.visitors, 2)

	// 10.0.0.2 stays active, 10.0.0.1 goes idle
	now = now.Add(30 * time.Second)
	l.allow("10.0.0.2")
	now = now.Add(45 * time.Second)
	assert.True(t, l.allow("10.0.0.3"))
	assert.Len(t, l.visitors, 2)
	assert.NotContains(t, l.visitors, "10.0.0.1")
	assert.Contains(t, l.visitors, "10.0.0.2")
}
