package handler

import (
	"net/http"
	"time"

	"timetracker/internal/service"
	"timetracker/pkg/pagination"
	"timetracker/pkg/response"

	"github.com/gin-gonic/gin"
)

type VersionRequest struct {
	Version *int `json:"version"`
}

type SubmitWeekRequest struct {
	Date string `json:"date" binding:"required"`
}

type TimeEntryHandler struct {
	entryService service.TimeEntryService
	now          func() time.Time
}

func NewTimeEntryHandler(entryService service.TimeEntryService) *TimeEntryHandler {
	return &TimeEntryHandler{entryService: entryService, now: time.Now}
}

// RegisterRoutes expects router to be authenticated already.
func (h *TimeEntryHandler) RegisterRoutes(router *gin.RouterGroup) {
	entries := router.Group("/entries")
	{
		entries.GET("", h.ListEntries)
		entries.POST("", h.CreateEntry)
		entries.POST("/submit-week", h.SubmitWeek)
		entries.POST("/copy-previous-day", h.CopyPreviousDay)
		entries.GET("/:id", h.GetEntry)
		entries.PUT("/:id", h.UpdateEntry)
		entries.DELETE("/:id", h.DeleteEntry)
		entries.POST("/:id/submit", h.SubmitEntry)
	}
}

// ListEntries returns the caller's entries, or anyone's for admins
// @Summary      List time entries
// @Tags         entries
// @Produce      json
// @Security     BearerAuth
// @Param        user_id     query     string  false  "Owner (admins only)"
// @Param        project_id  query     string  false  "Project"
// @Param        client_id   query     string  false  "Client"
// @Param        status      query     string  false  "Comma separated statuses"
// @Param        from        query     string  false  "First date (YYYY-MM-DD)"
// @Param        to          query     string  false  "Last date (YYYY-MM-DD)"
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=response.Page}
// @Failure      400  {object}  response.Response
// @Router       /api/entries [get]
func (h *TimeEntryHandler) ListEntries(c *gin.Context) {
	var req service.ListTimeEntriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid query: "+err.Error()))
		return
	}
	p := pagination.Parse(c)
	req.Page, req.Limit = p.Page, p.Limit

	entries, total, err := h.entryService.List(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	paged(c, entries, total, p)
}

// CreateEntry logs hours as a draft
// @Summary      Create time entry
// @Tags         entries
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateTimeEntryRequest  true  "Entry"
// @Success      201      {object}  response.Response{data=service.TimeEntryResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/entries [post]
func (h *TimeEntryHandler) CreateEntry(c *gin.Context) {
	var req service.CreateTimeEntryRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.entryService.Create(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, entry))
}

// GetEntry returns a single entry
// @Summary      Get time entry
// @Tags         entries
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Entry ID"
// @Success      200  {object}  response.Response{data=service.TimeEntryResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/entries/{id} [get]
func (h *TimeEntryHandler) GetEntry(c *gin.Context) {
	entry, err := h.entryService.Get(c.Request.Context(), actorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entry))
}

// UpdateEntry changes the fields present in the body
// @Summary      Update time entry
// @Tags         entries
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                          true  "Entry ID"
// @Param        payload  body      service.UpdateTimeEntryRequest  true  "Changes"
// @Success      200      {object}  response.Response{data=service.TimeEntryResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/entries/{id} [put]
func (h *TimeEntryHandler) UpdateEntry(c *gin.Context) {
	var req service.UpdateTimeEntryRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.entryService.Update(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entry))
}

// DeleteEntry removes a draft entry
// @Summary      Delete time entry
// @Tags         entries
// @Security     BearerAuth
// @Param        id   path      string  true  "Entry ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/entries/{id} [delete]
func (h *TimeEntryHandler) DeleteEntry(c *gin.Context) {
	if err := h.entryService.Delete(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Entry deleted successfully"))
}

// SubmitEntry sends a draft for approval
// @Summary      Submit time entry
// @Tags         entries
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string          true   "Entry ID"
// @Param        payload  body      VersionRequest  false  "Expected version"
// @Success      200      {object}  response.Response{data=service.TimeEntryResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/entries/{id}/submit [post]
func (h *TimeEntryHandler) SubmitEntry(c *gin.Context) {
	var req VersionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	entry, err := h.entryService.Submit(c.Request.Context(), actorID(c), c.Param("id"), req.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entry))
}

// SubmitWeek submits every draft in the week containing date
// @Summary      Submit a week
// @Tags         entries
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      SubmitWeekRequest  true  "Any date in the week"
// @Success      200      {object}  response.Response{data=service.BatchResult}
// @Router       /api/entries/submit-week [post]
func (h *TimeEntryHandler) SubmitWeek(c *gin.Context) {
	var req SubmitWeekRequest
	if !bindJSON(c, &req) {
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "date must be YYYY-MM-DD"))
		return
	}
	result, err := h.entryService.SubmitWeek(c.Request.Context(), actorID(c), date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// CopyPreviousDay copies the most recent day's entries to today
// @Summary      Copy previous day
// @Tags         entries
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.CopyResult}
// @Router       /api/entries/copy-previous-day [post]
func (h *TimeEntryHandler) CopyPreviousDay(c *gin.Context) {
	result, err := h.entryService.CopyPreviousDay(c.Request.Context(), actorID(c), h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
