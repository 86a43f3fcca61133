package lookout

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by updates and deletes which matched no row
var ErrNotFound = errors.New("record not found")

// PersistenceError is returned for every failed write to the inventory.
// Err keeps the error reported by the store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("Can't %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsConstraintViolation reports whether err was caused by any SQLite
// constraint (foreign key, primary key, unique, not null)
func IsConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.Code == sqlite3.ErrConstraint
}
