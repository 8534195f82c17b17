package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medrecord-api/internal/handler/assignment"
	"github.com/jwalitptl/medrecord-api/internal/handler/auth"
	"github.com/jwalitptl/medrecord-api/internal/handler/health"
	"github.com/jwalitptl/medrecord-api/internal/handler/patient"
	"github.com/jwalitptl/medrecord-api/internal/handler/prometheus"
	"github.com/jwalitptl/medrecord-api/internal/handler/record"
	"github.com/jwalitptl/medrecord-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine      *gin.Engine
	auth        *middleware.AuthMiddleware
	authH       *auth.Handler
	healthH     Handler
	patientH    Handler
	recordH     Handler
	assignmentH Handler
	limiter     *middleware.RateLimiter
}

type RouterConfig struct {
	Mode           string
	RequestTimeout time.Duration
	CORSConfig     middleware.CORSConfig
	SizeLimit      middleware.SizeLimitConfig
	RateLimit      middleware.RateLimiterConfig
}

type Handlers struct {
	Auth       *auth.Handler
	Health     *health.Handler
	Patient    *patient.Handler
	Record     *record.Handler
	Assignment *assignment.Handler
	Metrics    *prometheus.Handler
}

func NewRouter(authMW *middleware.AuthMiddleware, handlers Handlers, config RouterConfig) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	engine := gin.New()

	r := &Router{
		engine:      engine,
		auth:        authMW,
		authH:       handlers.Auth,
		healthH:     handlers.Health,
		patientH:    handlers.Patient,
		recordH:     handlers.Record,
		assignmentH: handlers.Assignment,
		limiter:     middleware.NewRateLimiter(config.RateLimit),
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.ErrorHandler(),
	)
	if handlers.Metrics != nil {
		engine.Use(handlers.Metrics.Middleware())
	}
	if config.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(config.RequestTimeout))
	}
	engine.Use(
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(config.SizeLimit),
		middleware.AuditContext(),
	)

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.healthH.RegisterRoutes(api)

	r.authH.RegisterRoutes(api, r.limiter.RateLimit())

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.setupProtectedRoutes(protected)
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	r.authH.RegisterProtectedRoutes(rg)
	r.patientH.RegisterRoutes(rg)
	r.recordH.RegisterRoutes(rg)
	r.assignmentH.RegisterRoutes(rg)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
