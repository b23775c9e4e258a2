package handler

import (
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"timetracker/internal/middleware"
	"timetracker/pkg/apperror"
	"timetracker/pkg/pagination"
	"timetracker/pkg/response"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
)

// respondError maps a service error to its status and public message. The
// full error is only logged.
func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	msg := apperror.PublicMessage(err)

	if appErr, ok := apperror.As(err); ok && appErr.Kind == apperror.KindRateLimited {
		var seconds int
		seconds, msg = response.RetryAfter(appErr.ResetAt, time.Now())
		c.Header("Retry-After", strconv.Itoa(seconds))
	}
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %+v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, response.Error(status, msg))
}

// bindJSON decodes the body into req and writes a 400 on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return false
	}
	return true
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return false
	}
	return true
}

func actorID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserID)
}

func paged(c *gin.Context, items interface{}, total int64, p pagination.Params) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page{
		Items: items,
		Total: total,
		Page:  p.Page,
		Limit: p.Limit,
	}))
}
