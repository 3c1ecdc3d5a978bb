package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lalith-99/dmstream/internal/repository"
)

// SQLSTATE 23505: unique_violation.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func errDuplicate(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, repository.ErrDuplicate, err)
}
