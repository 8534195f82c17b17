package patient

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medrecord-api/internal/handler"
	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/service/patient"
	"github.com/jwalitptl/medrecord-api/pkg/httputil"
)

type Handler struct {
	service *patient.Service
}

func NewHandler(service *patient.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.CreatePatient)
		patients.GET("/hospital/:hospital", h.ListByHospital)
		patients.GET("/by-email/:email", h.GetByEmail)
		patients.GET("/:id", h.GetPatient)
		patients.PUT("/:id", h.UpdatePatient)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.CreatePatientRequest
	if !handler.Bind(c, &req) {
		return
	}

	created, err := h.service.Create(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, created)
}

func (h *Handler) GetPatient(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	p, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, patient.Present(actor, p))
}

func (h *Handler) GetByEmail(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	p, err := h.service.GetByEmail(c.Request.Context(), actor, c.Param("email"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, patient.Present(actor, p))
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdatePatientRequest
	if !handler.Bind(c, &req) {
		return
	}

	p, err := h.service.Update(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, patient.Present(actor, p))
}

func (h *Handler) ListByHospital(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}

	patients, err := h.service.ListByHospital(c.Request.Context(), actor, c.Param("hospital"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, patients)
}
