package hospital

import (
	"github.com/gin-gonic/gin"

	"github.com/medinet/federation-api/internal/hospital"
	"github.com/medinet/federation-api/pkg/httputil"
)

type Handler struct {
	registry *hospital.Registry
}

func NewHandler(registry *hospital.Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/hospitals", h.ListHospitals)
}

// ListHospitals returns the active hospital directory, used by the UI to
// render hospital names and the per-hospital access toggles.
func (h *Handler) ListHospitals(c *gin.Context) {
	hospitals, err := h.registry.List(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, hospitals)
}
