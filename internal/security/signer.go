// internal/security/signer.go
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Signer produces the x-auth-signature value for an outbound partner request.
// Implementations must be deterministic for a given payload.
type Signer interface {
	Sign(payload any) (string, error)
}

// SignerFunc adapts a plain function to Signer.
type SignerFunc func(payload any) (string, error)

func (f SignerFunc) Sign(payload any) (string, error) { return f(payload) }

var ErrEmptySecret = errors.New("signing secret is empty")

// HMACSigner signs the JSON encoding of a payload with HMAC-SHA256 and
// returns the hex digest.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) (*HMACSigner, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &HMACSigner{secret: []byte(secret)}, nil
}

// Sign encodes payload with encoding/json, whose struct field order and
// sorted map keys make the encoding stable.
func (s *HMACSigner) Sign(payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload for signature: %w", err)
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature for payload and compares in constant time.
func (s *HMACSigner) Verify(payload any, signature string) bool {
	expected, err := s.Sign(payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
