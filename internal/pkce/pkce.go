// Package pkce produces the per-attempt session verifier and its S256
// challenge.
package pkce

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/andyleap/ndirp/internal/models"
	"golang.org/x/oauth2"
)

// VerifierSize is the number of random bytes behind a verifier.
const VerifierSize = 64

// MethodS256 is the only challenge method this package derives.
const MethodS256 = "S256"

// Verifier is a freshly generated session verifier. It is never persisted.
type Verifier struct {
	raw     []byte
	encoded string
}

// String returns the base64url form that is sent to the RP backend.
func (v *Verifier) String() string {
	return v.encoded
}

// Bytes returns a copy of the random bytes.
func (v *Verifier) Bytes() []byte {
	out := make([]byte, len(v.raw))
	copy(out, v.raw)
	return out
}

// Challenge derives the S256 challenge for this verifier.
func (v *Verifier) Challenge() string {
	return DeriveChallenge(v.encoded)
}

// GenerateVerifier reads VerifierSize bytes from crypto/rand.
func GenerateVerifier() (*Verifier, error) {
	return NewVerifier(rand.Reader)
}

// NewVerifier reads VerifierSize bytes from r. A failing or short source is
// reported as models.ErrRandomGeneration; nothing weaker is substituted.
func NewVerifier(r io.Reader) (*Verifier, error) {
	raw := make([]byte, VerifierSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: failed to read %d random bytes: %v", models.ErrRandomGeneration, VerifierSize, err)
	}

	return &Verifier{
		raw:     raw,
		encoded: EncodeBase64URL(raw),
	}, nil
}

// EncodeBase64URL encodes b with the URL alphabet and no padding.
func EncodeBase64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DeriveChallenge hashes the encoded verifier text with SHA-256 and returns
// the digest in base64url without padding.
func DeriveChallenge(encodedVerifier string) string {
	return oauth2.S256ChallengeFromVerifier(encodedVerifier)
}
