package repositories

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

// ErrDuplicate is returned when an insert hits a unique constraint. Callers
// use it to turn insert-or-fetch races into a refetch.
var ErrDuplicate = errors.New("duplicate key")

const uniqueViolation = "23505"

// translate classifies storage errors: missing rows are NotFound, unique
// violations are ErrDuplicate, everything else is Transient.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicate):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.Wrap(apperrors.NotFound, op, err)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	default:
		return apperrors.Wrap(apperrors.Transient, op, err)
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
