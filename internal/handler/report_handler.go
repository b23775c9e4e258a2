package handler

import (
	"bytes"
	"net/http"
	"time"

	"timetracker/internal/service"
	"timetracker/pkg/response"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reportService service.ReportService
	now           func() time.Time
}

func NewReportHandler(reportService service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService, now: time.Now}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("/reports")
	{
		reports.GET("", h.GetReport)
		reports.GET("/export", h.ExportReport)
		reports.GET("/week", h.GetWeekSummary)
	}
}

func bindReport(c *gin.Context) (service.ReportRequest, bool) {
	var req service.ReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid query: "+err.Error()))
		return req, false
	}
	// Reports always cover every matching entry.
	req.Page, req.Limit = 0, 0
	return req, true
}

// GetReport aggregates hours by day, week, project or client
// @Summary      Hours report
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        group_by    query     string  false  "day, week, project (default) or client"
// @Param        user_id     query     string  false  "Owner (admins only)"
// @Param        project_id  query     string  false  "Project"
// @Param        client_id   query     string  false  "Client"
// @Param        status      query     string  false  "Comma separated statuses"
// @Param        from        query     string  false  "First date (YYYY-MM-DD)"
// @Param        to          query     string  false  "Last date (YYYY-MM-DD)"
// @Success      200  {object}  response.Response{data=report.Result}
// @Failure      400  {object}  response.Response
// @Router       /api/reports [get]
func (h *ReportHandler) GetReport(c *gin.Context) {
	req, ok := bindReport(c)
	if !ok {
		return
	}
	result, err := h.reportService.Build(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ExportReport downloads matching entries as CSV or XLSX
// @Summary      Export entries
// @Tags         reports
// @Produce      text/csv
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security     BearerAuth
// @Param        format  query  string  false  "csv (default) or xlsx"
// @Param        from    query  string  false  "First date (YYYY-MM-DD)"
// @Param        to      query  string  false  "Last date (YYYY-MM-DD)"
// @Success      200
// @Failure      400  {object}  response.Response
// @Router       /api/reports/export [get]
func (h *ReportHandler) ExportReport(c *gin.Context) {
	req, ok := bindReport(c)
	if !ok {
		return
	}
	// Buffer so a failure can still be reported as JSON.
	var buf bytes.Buffer
	file, err := h.reportService.Export(c.Request.Context(), actorID(c), req, &buf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, buf.Bytes())
}

// GetWeekSummary totals the week containing date against expected hours
// @Summary      Week summary
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        date     query     string  false  "Any date in the week (default today)"
// @Param        user_id  query     string  false  "User (admins only)"
// @Success      200      {object}  response.Response{data=report.WeekSummary}
// @Router       /api/reports/week [get]
func (h *ReportHandler) GetWeekSummary(c *gin.Context) {
	date := h.now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "date must be YYYY-MM-DD"))
			return
		}
		date = parsed
	}
	summary, err := h.reportService.WeekSummary(c.Request.Context(), actorID(c), c.Query("user_id"), date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}
