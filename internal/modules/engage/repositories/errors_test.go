package repositories

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/models"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate("op", nil))
	assert.ErrorIs(t, translate("op", gorm.ErrRecordNotFound), apperrors.NotFound)
	assert.ErrorIs(t, translate("op", gorm.ErrDuplicatedKey), ErrDuplicate)
	assert.ErrorIs(t, translate("op", &pgconn.PgError{Code: "23505"}), ErrDuplicate)
	assert.ErrorIs(t, translate("op", &pq.Error{Code: "23505"}), ErrDuplicate)
	assert.ErrorIs(t, translate("op", ErrDuplicate), ErrDuplicate)

	err := translate("op", errors.New("connection refused"))
	assert.ErrorIs(t, err, apperrors.Transient)
	assert.Equal(t, apperrors.Transient, apperrors.KindOf(err))
}

func TestContactChangeColumns(t *testing.T) {
	ext := "wamid.1"
	empty := ""
	cols := ContactChange{
		Status:            models.ContactSent,
		ExternalMessageID: &ext,
		ErrorMessage:      &empty,
		IncrementRetry:    true,
		ClearQueued:       true,
	}.columns()

	assert.Equal(t, models.ContactSent, cols["status"])
	assert.Equal(t, "wamid.1", cols["external_message_id"])
	assert.Equal(t, "", cols["error_message"])
	assert.Contains(t, cols, "retry_count")
	assert.Contains(t, cols, "queued_at")
	assert.NotContains(t, cols, "sent_at")
}
