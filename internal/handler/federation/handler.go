package federation

import (
	"github.com/gin-gonic/gin"

	"github.com/medinet/federation-api/internal/middleware"
	"github.com/medinet/federation-api/internal/service/federation"
	"github.com/medinet/federation-api/pkg/httputil"
)

type Handler struct {
	service *federation.Service
}

func NewHandler(service *federation.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.GET("/:identity/federated", h.QueryPatient)
		patients.GET("/:identity/summary", h.GetPatientSummary)
	}
}

// QueryPatient returns the aggregated cross-hospital view for an identity
// number. An identity unknown to the index yields an empty aggregate, not
// an error.
func (h *Handler) QueryPatient(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	identity := c.Param("identity")

	resp, err := h.service.QueryPatient(c.Request.Context(), identity, principal)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, resp)
}

func (h *Handler) GetPatientSummary(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	identity := c.Param("identity")

	summary, err := h.service.GetPatientSummary(c.Request.Context(), identity, principal)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, summary)
}
