package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is one page of a list query. The zero value means "every row",
// which reports and batch approvals rely on.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// New clamps page and limit to the API bounds: page defaults to 1, limit to
// DefaultLimit and never exceeds MaxLimit.
func New(page, limit int) Params {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// Parse reads page and limit from the query string.
func Parse(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return New(page, limit)
}

// All reports whether p selects every row.
func (p Params) All() bool {
	return p.Limit <= 0
}

// Scope applies the page to a gorm query, as in db.Scopes(p.Scope).
func (p Params) Scope(db *gorm.DB) *gorm.DB {
	if p.All() {
		return db
	}
	return db.Offset(p.Offset).Limit(p.Limit)
}
