package record

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medrecord-api/internal/handler"
	"github.com/jwalitptl/medrecord-api/internal/model"
	"github.com/jwalitptl/medrecord-api/internal/service/medical"
	"github.com/jwalitptl/medrecord-api/pkg/httputil"
)

type Handler struct {
	service *medical.Service
}

func NewHandler(service *medical.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	records := r.Group("/records")
	{
		records.POST("", h.CreateRecord)
		records.GET("/patient/:patientId", h.ListForPatient)
		records.GET("/:id", h.GetRecord)
		records.PUT("/:id", h.UpdateRecord)
	}
}

func (h *Handler) CreateRecord(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.CreateRecordRequest
	if !handler.Bind(c, &req) {
		return
	}

	view, err := h.service.Create(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithCreated(c, view)
}

// ListForPatient answers 200 even when some records fail to decrypt; each
// failed entry carries its own error.
func (h *Handler) ListForPatient(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	patientID, ok := handler.ParamID(c, "patientId")
	if !ok {
		return
	}

	views, err := h.service.ListForPatient(c.Request.Context(), actor, patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, views)
}

func (h *Handler) GetRecord(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	view, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, view)
}

func (h *Handler) UpdateRecord(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateRecordRequest
	if !handler.Bind(c, &req) {
		return
	}

	view, err := h.service.Update(c.Request.Context(), actor, id, req.Data)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, view)
}
