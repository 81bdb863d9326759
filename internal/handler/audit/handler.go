package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medinet/federation-api/internal/handler"
	"github.com/medinet/federation-api/internal/middleware"
	"github.com/medinet/federation-api/internal/model"
	"github.com/medinet/federation-api/internal/service/audit"
	"github.com/medinet/federation-api/pkg/httputil"
)

type Handler struct {
	service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{service: service}
}

// ListLogs is the compliance review path, restricted by the router to
// admin principals.
func (h *Handler) ListLogs(c *gin.Context) {
	filters := &model.AuditFilters{
		ActorID:        c.Query("actor_id"),
		TargetIdentity: c.Query("target_identity"),
		Action:         c.Query("action"),
	}

	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid since timestamp"))
			return
		}
		filters.Since = t
	}
	if v := c.Query("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid until timestamp"))
			return
		}
		filters.Until = t
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}
	filters.Limit = pageSize
	filters.Offset = (page - 1) * pageSize

	entries, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	total, err := h.service.Count(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithPagination(c, entries, page, pageSize, int(total))
}

// MyAccessLogs is the patient's "who viewed my records" view.
func (h *Handler) MyAccessLogs(c *gin.Context) {
	principal := middleware.PrincipalFrom(c)
	if principal == nil || principal.Type != model.PrincipalPatient {
		c.JSON(http.StatusForbidden, handler.NewErrorResponse("only patients can view their access history"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.service.AccessLogsFor(c.Request.Context(), principal.ID, limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, entries)
}
