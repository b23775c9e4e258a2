package response

import (
	"math"
	"time"

	"github.com/hako/durafmt"
)

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Page wraps one page of a list result.
type Page struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// RetryAfter returns the whole seconds until resetAt (at least 1) and a
// human readable wait such as "Too many requests, try again in 42 seconds".
func RetryAfter(resetAt, now time.Time) (int, string) {
	wait := resetAt.Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	seconds := int(math.Ceil(wait.Seconds()))
	wait = time.Duration(seconds) * time.Second
	return seconds, "Too many requests, try again in " + durafmt.Parse(wait).LimitFirstN(2).String()
}
