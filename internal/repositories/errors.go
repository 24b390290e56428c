package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicate is returned when a unique name is already taken.
	ErrDuplicate = errors.New("duplicate name")
	// ErrReferenced is returned when a row is still referenced by a foreign key.
	ErrReferenced = errors.New("still referenced")
	ErrNotFound   = errors.New("not found")
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return errors.Join(ErrDuplicate, err)
		case foreignKeyViolation:
			return errors.Join(ErrReferenced, err)
		}
	}
	return err
}
