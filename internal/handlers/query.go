package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/veridoc/veridoc-backend/internal/domain"
	"github.com/veridoc/veridoc-backend/internal/pkg/logger"
	"github.com/veridoc/veridoc-backend/internal/services"
)

type QueryHandler struct {
	log      *logger.Logger
	querySvc services.QueryService
}

func NewQueryHandler(log *logger.Logger, querySvc services.QueryService) *QueryHandler {
	return &QueryHandler{
		log:      log.With("handler", "QueryHandler"),
		querySvc: querySvc,
	}
}

// POST /api/query
// Run one retrieval-and-synthesis query against a document group.
func (h *QueryHandler) Query(c *gin.Context) {
	var req domain.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	resp := h.querySvc.Query(c.Request.Context(), req)
	c.JSON(statusFor(resp), resp)
}

// POST /api/groups/:id/communities/invalidate
// Ingestion hook: drop the cached community list for a group.
func (h *QueryHandler) InvalidateCommunities(c *gin.Context) {
	groupID := c.Param("id")
	if groupID == "" {
		RespondError(c, http.StatusBadRequest, "bad_request", nil)
		return
	}
	h.querySvc.InvalidateCommunities(groupID)
	c.Status(http.StatusNoContent)
}

// statusFor maps the engine's error string onto an HTTP status. The full
// envelope is returned either way so clients always see timings.
func statusFor(resp domain.QueryResponse) int {
	switch {
	case resp.Error == "":
		return http.StatusOK
	case strings.HasPrefix(resp.Error, "validation:"):
		return http.StatusBadRequest
	case resp.Error == "timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
