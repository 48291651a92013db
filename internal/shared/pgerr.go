package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ClassifyPgError maps retryable PostgreSQL failures onto
// ErrConcurrentModification so callers can distinguish "retry the whole
// operation" from genuine errors. Other errors pass through unchanged.
func ClassifyPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", ErrConcurrentModification, pgErr.Code)
		}
	}
	return err
}
