package pkce

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/andyleap/ndirp/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy source unavailable")
}

func TestNewVerifierAllZero(t *testing.T) {
	v, err := NewVerifier(bytes.NewReader(make([]byte, VerifierSize)))
	require.NoError(t, err)

	assert.Len(t, v.String(), 86)
	assert.Equal(t, strings.Repeat("A", 86), v.String())
	assert.NotContains(t, v.String(), "+")
	assert.NotContains(t, v.String(), "/")
	assert.NotContains(t, v.String(), "=")
}

func TestNewVerifierFailingSource(t *testing.T) {
	_, err := NewVerifier(failingReader{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRandomGeneration)
}

func TestNewVerifierShortSource(t *testing.T) {
	_, err := NewVerifier(bytes.NewReader(make([]byte, 10)))
	assert.ErrorIs(t, err, models.ErrRandomGeneration)
}

func TestGenerateVerifierFresh(t *testing.T) {
	a, err := GenerateVerifier()
	require.NoError(t, err)
	b, err := GenerateVerifier()
	require.NoError(t, err)

	assert.Len(t, a.Bytes(), VerifierSize)
	assert.NotEqual(t, a.String(), b.String())
}

func TestEncodeBase64URLRoundTrip(t *testing.T) {
	for n := 1; n <= 130; n++ {
		in := make([]byte, n)
		for i := range in {
			in[i] = byte(i*37 + n)
		}
		enc := EncodeBase64URL(in)
		assert.NotContains(t, enc, "=")

		padded := enc
		if m := len(padded) % 4; m != 0 {
			padded += strings.Repeat("=", 4-m)
		}
		out, err := base64.URLEncoding.DecodeString(padded)
		require.NoError(t, err, "length %d", n)
		assert.Equal(t, in, out, "length %d", n)
	}
}

func TestEncodeBase64URLAlphabet(t *testing.T) {
	assert.Equal(t, "-_8", EncodeBase64URL([]byte{0xfb, 0xff}))
}

func TestDeriveChallenge(t *testing.T) {
	// RFC 7636 appendix B
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		DeriveChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))

	a := DeriveChallenge("same input")
	b := DeriveChallenge("same input")
	assert.Equal(t, a, b)

	sum := sha256.Sum256([]byte("same input"))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), a)
}

func TestVerifierChallengeUsesEncodedForm(t *testing.T) {
	v, err := NewVerifier(bytes.NewReader(make([]byte, VerifierSize)))
	require.NoError(t, err)

	assert.Equal(t, DeriveChallenge(strings.Repeat("A", 86)), v.Challenge())
}
