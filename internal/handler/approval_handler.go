package handler

import (
	"net/http"

	"timetracker/internal/service"
	"timetracker/pkg/pagination"
	"timetracker/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
}

func NewApprovalHandler(approvalService service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

// RegisterRoutes expects router to be authenticated already. Admin rights
// are checked by the service against the stored role.
func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/approvals")
	{
		approvals.GET("/pending", h.ListPending)
		approvals.POST("/range", h.ApproveRange)
		approvals.POST("/bulk", h.BulkApprove)
		approvals.POST("/users/:userId", h.ApproveAllForUser)
		approvals.POST("/:id/approve", h.ApproveEntry)
		approvals.POST("/:id/return", h.ReturnEntry)
	}
}

// ListPending returns entries waiting for approval
// @Summary      List pending entries
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        user_id  query     string  false  "Owner"
// @Param        from     query     string  false  "First date (YYYY-MM-DD)"
// @Param        to       query     string  false  "Last date (YYYY-MM-DD)"
// @Param        page     query     int     false  "Page number (default 1)"
// @Param        limit    query     int     false  "Items per page (default 20)"
// @Success      200      {object}  response.Response{data=response.Page}
// @Failure      403      {object}  response.Response
// @Router       /api/approvals/pending [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	var req service.ListTimeEntriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid query: "+err.Error()))
		return
	}
	p := pagination.Parse(c)
	req.Page, req.Limit = p.Page, p.Limit

	entries, total, err := h.approvalService.ListPending(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, entries, total, p)
}

// ApproveEntry approves a pending entry
// @Summary      Approve entry
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string          true   "Entry ID"
// @Param        payload  body      VersionRequest  false  "Expected version"
// @Success      200      {object}  response.Response{data=service.TimeEntryResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/approve [post]
func (h *ApprovalHandler) ApproveEntry(c *gin.Context) {
	var req VersionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	entry, err := h.approvalService.ApproveEntry(c.Request.Context(), actorID(c), c.Param("id"), req.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entry))
}

// ReturnEntry sends an entry back to its owner as a draft
// @Summary      Return entry
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true   "Entry ID"
// @Param        payload  body      service.ReturnEntryRequest  false  "Comment and expected version"
// @Success      200      {object}  response.Response{data=service.TimeEntryResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/approvals/{id}/return [post]
func (h *ApprovalHandler) ReturnEntry(c *gin.Context) {
	var req service.ReturnEntryRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	entry, err := h.approvalService.ReturnEntry(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entry))
}

// ApproveAllForUser approves every pending entry of one user
// @Summary      Approve all for user
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        userId  path      string  true  "User ID"
// @Success      200     {object}  response.Response{data=service.BatchResult}
// @Router       /api/approvals/users/{userId} [post]
func (h *ApprovalHandler) ApproveAllForUser(c *gin.Context) {
	result, err := h.approvalService.ApproveAllForUser(c.Request.Context(), actorID(c), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ApproveRange approves every pending entry between two dates
// @Summary      Approve date range
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ApproveRangeRequest  true  "Inclusive range"
// @Success      200      {object}  response.Response{data=service.BatchResult}
// @Router       /api/approvals/range [post]
func (h *ApprovalHandler) ApproveRange(c *gin.Context) {
	var req service.ApproveRangeRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.approvalService.ApproveAllPendingInRange(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// BulkApprove approves the listed entries, drafts included
// @Summary      Bulk approve
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.BulkApproveRequest  true  "Entry IDs"
// @Success      200      {object}  response.Response{data=service.BatchResult}
// @Router       /api/approvals/bulk [post]
func (h *ApprovalHandler) BulkApprove(c *gin.Context) {
	var req service.BulkApproveRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.approvalService.BulkApproveDrafts(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
