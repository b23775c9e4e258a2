package handler

import (
	"net/http"
	"strconv"

	"timetracker/internal/security"
	"timetracker/pkg/response"

	"github.com/gin-gonic/gin"
)

// EventSource is the read side of the security event log.
type EventSource interface {
	RecentEvents(limit int) []security.Event
}

type SecurityHandler struct {
	events EventSource
}

func NewSecurityHandler(events EventSource) *SecurityHandler {
	return &SecurityHandler{events: events}
}

// RegisterRoutes mounts the event listing behind requireAdmin.
func (h *SecurityHandler) RegisterRoutes(router *gin.RouterGroup, requireAdmin gin.HandlerFunc) {
	router.GET("/security/events", requireAdmin, h.RecentEvents)
}

// RecentEvents returns the most recent security events, oldest first (admin)
// @Summary      Recent security events
// @Tags         security
// @Security     BearerAuth
// @Produce      json
// @Param        limit  query     int  false  "Maximum events (default 50)"
// @Success      200    {object}  response.Response{data=[]security.Event}
// @Failure      403    {object}  response.Response
// @Router       /api/security/events [get]
func (h *SecurityHandler) RecentEvents(c *gin.Context) {
	limit := security.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.events.RecentEvents(limit)))
}
