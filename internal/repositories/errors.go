package repositories

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is the repository-level miss; services translate it to their
// own sentinel errors.
var ErrNotFound = errors.New("record not found")

// IsNotFoundError reports whether err is a repository or gorm not-found.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
