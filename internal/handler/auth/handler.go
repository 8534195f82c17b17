package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medrecord-api/internal/handler"
	"github.com/jwalitptl/medrecord-api/internal/middleware"
	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/service/auth"
	"github.com/jwalitptl/medrecord-api/pkg/httputil"
)

type Handler struct {
	svc *auth.Service
}

func NewHandler(svc *auth.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the unauthenticated endpoints. limit guards
// credential guessing and may be nil.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, limit gin.HandlerFunc) {
	auth := r.Group("/auth")
	if limit != nil {
		auth.Use(limit)
	}
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
	}
}

func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/logout", h.Logout)
		auth.GET("/me", h.Me)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !handler.Bind(c, &req) {
		return
	}

	user, err := h.svc.Register(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.Bind(c, &req) {
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), middleware.Token(c)); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithMessage(c, "logged out")
}

func (h *Handler) Me(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	user, err := h.svc.Me(c.Request.Context(), actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, user)
}
