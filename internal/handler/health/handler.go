package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Checker is a dependency that must answer before the service is ready.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

type Handler struct {
	checks  []Checker
	metrics gin.HandlerFunc
}

func NewHandler(metrics gin.HandlerFunc, checks ...Checker) *Handler {
	return &Handler{
		checks:  checks,
		metrics: metrics,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
		if h.metrics != nil {
			health.GET("/metrics", h.metrics)
		}
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			log.Warn().Err(err).Str("dependency", check.Name()).Msg("readiness check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "DOWN",
				"reason": check.Name() + " unavailable",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (f CheckFunc) Name() string { return f.Label }

func (f CheckFunc) Check(ctx context.Context) error { return f.Fn(ctx) }
