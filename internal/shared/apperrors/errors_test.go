package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("retry contact: %w", New(PreconditionFailed, "campaign.Retry", "contact is sent"))

	assert.True(t, errors.Is(err, PreconditionFailed))
	assert.False(t, errors.Is(err, NotFound))
	assert.Equal(t, PreconditionFailed, KindOf(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Transient, "message.Create", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, Transient)
	assert.Nil(t, Wrap(Transient, "noop", nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		New(Malformed, "op", "bad"):          http.StatusBadRequest,
		New(Unauthorized, "op", "sig"):       http.StatusUnauthorized,
		New(NotFound, "op", "missing"):       http.StatusNotFound,
		New(PreconditionFailed, "op", "no"):  http.StatusConflict,
		New(InvalidIdentifier, "op", "tel"):  http.StatusUnprocessableEntity,
		New(Transient, "op", "db"):           http.StatusInternalServerError,
		errors.New("something unclassified"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}
