package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/agenda-service/internal/model"
	"github.com/richardliu001/agenda-service/internal/service"
	"go.uber.org/zap"
)

// AgendaService is what the handlers need from service.AgendaService.
type AgendaService interface {
	ApplyEvent(ctx context.Context, eventID string) (service.Result, error)
	Drain(ctx context.Context, limit int) ([]service.DrainOutcome, error)
	Rebuild(ctx context.Context, p service.RebuildParams) (service.RebuildResult, error)
	ListAgenda(ctx context.Context, orgID int64, w service.Window, includeDeleted bool) ([]model.AgendaItem, error)
}

type Handler struct {
	svc AgendaService
	log *zap.SugaredLogger
	now func() time.Time
}

func NewHandler(svc AgendaService, log *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, log: log, now: time.Now}
}

func RegisterHandlers(r *gin.Engine, h *Handler, internalSecret string) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/v1")
	{
		v1.GET("/organizations/:orgId/agenda", h.listAgenda)
	}

	internal := v1.Group("/internal/agenda", InternalSecretMiddleware(internalSecret))
	{
		internal.POST("/events/:id/apply", h.applyEvent)
		internal.POST("/drain", h.drain)
		internal.POST("/rebuild", h.rebuild)
	}
}

type agendaItemResp struct {
	SourceType  model.SourceType `json:"sourceType"`
	SourceID    string           `json:"sourceId"`
	Title       string           `json:"title"`
	StartsAt    time.Time        `json:"startsAt"`
	EndsAt      time.Time        `json:"endsAt"`
	Status      string           `json:"status"`
	LastEventID string           `json:"lastEventId"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// window reads start/end, else month=YYYY-MM, else the current month.
func (h *Handler) window(c *gin.Context) (service.Window, error) {
	start, end := c.Query("start"), c.Query("end")
	if start != "" || end != "" {
		from, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return service.Window{}, errors.New("invalid start")
		}
		to, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return service.Window{}, errors.New("invalid end")
		}
		return service.Window{From: from, To: to}, nil
	}
	if month := c.Query("month"); month != "" {
		m, err := time.Parse("2006-01", month)
		if err != nil {
			return service.Window{}, errors.New("invalid month")
		}
		return service.MonthWindow(m.Year(), m.Month()), nil
	}
	now := h.now().UTC()
	return service.MonthWindow(now.Year(), now.Month()), nil
}

func (h *Handler) listAgenda(c *gin.Context) {
	orgID, err := strconv.ParseInt(c.Param("orgId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization id"})
		return
	}
	w, err := h.window(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	includeDeleted, _ := strconv.ParseBool(c.DefaultQuery("includeDeleted", "false"))

	items, err := h.svc.ListAgenda(c, orgID, w, includeDeleted)
	if errors.Is(err, service.ErrInvalidWindow) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Errorw("list agenda", "organizationId", orgID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]agendaItemResp, 0, len(items))
	for _, it := range items {
		out = append(out, agendaItemResp{
			SourceType:  it.SourceType,
			SourceID:    it.SourceID,
			Title:       it.Title,
			StartsAt:    it.StartsAt,
			EndsAt:      it.EndsAt,
			Status:      it.Status,
			LastEventID: it.LastEventID,
			UpdatedAt:   it.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"organizationId": orgID,
		"from":           w.From,
		"to":             w.To,
		"items":          out,
	})
}

func (h *Handler) applyEvent(c *gin.Context) {
	id := c.Param("id")
	res, err := h.svc.ApplyEvent(c, id)
	if err != nil {
		h.log.Errorw("apply event", "eventId", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !res.OK {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

type drainOutcomeResp struct {
	EventID string         `json:"eventId"`
	Result  service.Result `json:"result"`
	Error   string         `json:"error,omitempty"`
}

func (h *Handler) drain(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultDrainLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	outcomes, err := h.svc.Drain(c, limit)
	if err != nil {
		h.log.Errorw("drain", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	failed := 0
	out := make([]drainOutcomeResp, 0, len(outcomes))
	for _, o := range outcomes {
		r := drainOutcomeResp{EventID: o.EventID, Result: o.Result}
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		if o.Failed() {
			failed++
		}
		out = append(out, r)
	}
	c.JSON(http.StatusOK, gin.H{"processed": len(out), "failed": failed, "outcomes": out})
}

type rebuildReq struct {
	OrganizationID *int64 `json:"organizationId"`
	All            bool   `json:"all"`
	BatchSize      int    `json:"batchSize"`
}

func (h *Handler) rebuild(c *gin.Context) {
	var req rebuildReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (req.OrganizationID == nil) == !req.All {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of organizationId or all is required"})
		return
	}
	res, err := h.svc.Rebuild(c, service.RebuildParams{
		OrganizationID: req.OrganizationID,
		BatchSize:      req.BatchSize,
		Logger:         service.ZapRebuildLogger(h.log),
	})
	if errors.Is(err, service.ErrRebuildLocked) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Errorw("rebuild", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, res)
}
