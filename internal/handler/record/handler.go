package record

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medinet/federation-api/internal/handler"
	"github.com/medinet/federation-api/internal/middleware"
	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/service/record"
	"github.com/medinet/federation-api/pkg/httputil"
)

type Handler struct {
	service *record.Service
}

func NewHandler(service *record.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/hospitals/:hospitalID/records", h.CreateRecord)
}

func (h *Handler) CreateRecord(c *gin.Context) {
	var req model.CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	principal := middleware.PrincipalFrom(c)
	hospitalID := c.Param("hospitalID")

	recordID, err := h.service.Create(c.Request.Context(), principal, hospitalID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(gin.H{
		"record_id":   recordID,
		"hospital_id": hospitalID,
	}))
}
