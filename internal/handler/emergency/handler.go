package emergency

import (
	"github.com/gin-gonic/gin"

	"github.com/medinet/federation-api/internal/service/emergency"
	"github.com/medinet/federation-api/pkg/httputil"
)

type Handler struct {
	service *emergency.Service
}

func NewHandler(service *emergency.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the break-glass endpoint outside the auth
// middleware: emergency access must work without a normal principal. The
// mandatory audit entry and compliance alert are the compensating
// controls.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/emergency/:identity", h.Query)
}

func (h *Handler) Query(c *gin.Context) {
	identity := c.Param("identity")
	// Opaque caller reference (ambulance unit, ER station) for the audit
	// trail.
	requestRef := c.GetHeader("X-Request-Ref")
	if requestRef == "" {
		requestRef = c.ClientIP()
	}

	profile, err := h.service.Query(c.Request.Context(), identity, requestRef)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, profile)
}
