package policy

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medinet/federation-api/internal/handler"
	"github.com/medinet/federation-api/internal/middleware"
	"github.com/medinet/federation-api/internal/service/policy"
	"github.com/medinet/federation-api/pkg/httputil"
)

type Handler struct {
	service *policy.Service
}

func NewHandler(service *policy.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.PUT("/:identity/access/:hospitalID", h.SetHospitalAccess)
		patients.GET("/:identity/access", h.ListHospitalAccess)
	}
}

type setAccessRequest struct {
	Blocked *bool `json:"blocked" binding:"required"`
}

func (h *Handler) SetHospitalAccess(c *gin.Context) {
	var req setAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	principal := middleware.PrincipalFrom(c)
	identity := c.Param("identity")
	hospitalID := c.Param("hospitalID")

	if err := h.service.SetBlocked(c.Request.Context(), principal, identity, hospitalID, *req.Blocked); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, gin.H{
		"identity_number": identity,
		"hospital_id":     hospitalID,
		"blocked":         *req.Blocked,
	})
}

func (h *Handler) ListHospitalAccess(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	identity := c.Param("identity")

	policies, err := h.service.List(c.Request.Context(), principal, identity)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, policies)
}
