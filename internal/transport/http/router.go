package http

import (
	"github.com/gin-gonic/gin"
	"github.com/richardliu001/agenda-service/internal/config"
	"go.uber.org/zap"
)

// NewRouter wires middleware and handlers. With a zero RPS no rate limit
// is applied.
func NewRouter(svc AgendaService, cfg config.Config, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	if cfg.RateLimit.RPS > 0 {
		r.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	RegisterHandlers(r, NewHandler(svc, log), cfg.Server.InternalSecret)
	return r
}
