package repository

import (
	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
)

// ErrStaleVersion is returned when a conditional update finds the row was
// changed since it was read.
var ErrStaleVersion = errors.New("record was modified concurrently")

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
