package chatconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealerRoundTrip(t *testing.T) {
	sealer := NewSealer("123456:bot-token")

	sealed, err := sealer.Seal("sk-very-secret-key")
	require.NoError(t, err)
	assert.NotEqual(t, "sk-very-secret-key", sealed)

	// Nonces make every sealing unique.
	sealed2, err := sealer.Seal("sk-very-secret-key")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2)

	plain, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-very-secret-key", plain)
}

func TestSealerWrongKey(t *testing.T) {
	sealed, err := NewSealer("token-a").Seal("secret")
	require.NoError(t, err)

	_, err = NewSealer("token-b").Open(sealed)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestSealerGarbage(t *testing.T) {
	sealer := NewSealer("token")

	_, err := sealer.Open("not base64 at all!!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = sealer.Open("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestObfuscate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"short", "*****"},
		{"exactly10!", "**********"},
		{"sk-abcdefghijklmnop", "sk-a***********mnop"},
		{"https://api.example.com/v1", "https://api.**********m/v1"},
		{"https://short", "https://*****"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Obfuscate(tt.in), "input %q", tt.in)
	}
}
