package handler

import (
	"net/http"

	"timetracker/internal/service"
	"timetracker/pkg/pagination"
	"timetracker/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/audit-logs", h.GetAuditLogs)
	router.GET("/entries/:id/history", h.EntryHistory)
}

// GetAuditLogs lists entry and catalog changes, newest first (admin)
// @Summary      Get audit logs
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Param        entity_id  query  string  false  "Only changes to this entity"
// @Param        action     query  string  false  "Only this action, e.g. APPROVE_ENTRY"
// @Success      200    {object}  response.Response{data=response.Page}
// @Failure      403    {object}  response.Response
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)

	query := service.AuditQuery{EntityID: c.Query("entity_id"), Action: c.Query("action")}

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), actorID(c), query, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, logs, total, p)
}

// EntryHistory lists the transitions of one entry, oldest first
// @Summary      Get entry history
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Entry ID"
// @Success      200  {object}  response.Response{data=[]service.AuditLogResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/entries/{id}/history [get]
func (h *AuditHandler) EntryHistory(c *gin.Context) {
	logs, err := h.auditService.EntryHistory(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, logs))
}
