package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/apperrors"
)

func headers(h map[string]string) HeaderFunc {
	return func(key string) string { return h[key] }
}

func TestVerifyAcceptsSignedBodies(t *testing.T) {
	body := []byte(`{"messageId":"abc123"}`)
	for _, p := range []Provider{ProviderZAPI, ProviderWAHA, ProviderCloudAPI} {
		parser, err := NewParser(p)
		require.NoError(t, err)

		k, v := Sign(p, body, "s3cret")
		assert.NoError(t, parser.Verify(headers(map[string]string{k: v}), body, "s3cret"), p)
	}
}

func TestVerifyRejectsTamperedOrMissing(t *testing.T) {
	body := []byte(`{"messageId":"abc123"}`)
	for _, p := range []Provider{ProviderZAPI, ProviderWAHA, ProviderCloudAPI} {
		parser, err := NewParser(p)
		require.NoError(t, err)

		k, v := Sign(p, body, "other-secret")
		err = parser.Verify(headers(map[string]string{k: v}), body, "s3cret")
		assert.ErrorIs(t, err, apperrors.Unauthorized, p)

		err = parser.Verify(headers(nil), body, "s3cret")
		assert.ErrorIs(t, err, apperrors.Unauthorized, p)
	}
}

func TestVerifySkippedWithoutSecret(t *testing.T) {
	for _, p := range []Provider{ProviderZAPI, ProviderWAHA, ProviderCloudAPI} {
		parser, err := NewParser(p)
		require.NoError(t, err)
		assert.NoError(t, parser.Verify(headers(nil), []byte(`{}`), ""), p)
	}
}

func TestVerifyRejectsNonHexSignature(t *testing.T) {
	parser, err := NewParser(ProviderCloudAPI)
	require.NoError(t, err)

	err = parser.Verify(headers(map[string]string{headerCloudAPISignature: "sha256=zz"}), []byte(`{}`), "s3cret")
	assert.ErrorIs(t, err, apperrors.Unauthorized)
}
