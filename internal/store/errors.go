package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a task or item does not exist, including
	// when an insert references a task that is gone.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned for integrity violations other than a missing
	// parent row.
	ErrConflict = errors.New("conflict")
)

const (
	foreignKeyViolation = pq.ErrorCode("23503")
	integrityClass      = pq.ErrorClass("23")
)

// translate maps driver errors to the store's taxonomy. A foreign key
// pointing at a missing row reads as not-found, not as a generic failure;
// every other integrity violation is a conflict.
func translate(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == foreignKeyViolation {
			return fmt.Errorf("%w: %s", ErrNotFound, pqErr.Message)
		}
		if pqErr.Code.Class() == integrityClass {
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		}
	}

	return err
}
