package assignment

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medrecord-api/internal/handler"
	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/service/assignment"
	"github.com/jwalitptl/medrecord-api/pkg/httputil"
)

type Handler struct {
	service *assignment.Service
}

func NewHandler(service *assignment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	assignments := r.Group("/assignments")
	{
		assignments.POST("", h.Assign)
		assignments.DELETE("/:id", h.Remove)
		assignments.GET("/nurse/patients", h.ListForNurse)
		assignments.GET("/patient/:patientId", h.ActiveForPatient)
		assignments.GET("/department", h.ListDepartment)
	}
}

func (h *Handler) Assign(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.CreateAssignmentRequest
	if !handler.Bind(c, &req) {
		return
	}

	a, err := h.service.Assign(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, a)
}

func (h *Handler) Remove(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	if err := h.service.Remove(c.Request.Context(), actor, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithMessage(c, "assignment removed")
}

func (h *Handler) ListForNurse(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	views, err := h.service.ListForNurse(c.Request.Context(), actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, views)
}

func (h *Handler) ActiveForPatient(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	patientID, ok := handler.ParamID(c, "patientId")
	if !ok {
		return
	}

	view, err := h.service.ActiveForPatient(c.Request.Context(), actor, patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, view)
}

func (h *Handler) ListDepartment(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	views, err := h.service.ListDepartment(c.Request.Context(), actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, views)
}
