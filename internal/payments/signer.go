package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// CallbackSigner authenticates gateway callbacks with an HMAC-SHA256 over the intent id and the
// external payment id.
type CallbackSigner struct {
	secret []byte
}

// NewCallbackSigner builds a signer for the shared gateway secret.
func NewCallbackSigner(secret string) (*CallbackSigner, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: callback secret is required")
	}
	return &CallbackSigner{secret: []byte(secret)}, nil
}

// Sign returns the hex encoded signature for the pair.
func (s *CallbackSigner) Sign(intentID, externalPaymentID string) string {
	return hex.EncodeToString(s.mac(intentID, externalPaymentID))
}

// Verify compares signature against the expected MAC in constant time.
func (s *CallbackSigner) Verify(intentID, externalPaymentID, signature string) bool {
	if s == nil || intentID == "" || externalPaymentID == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(got, s.mac(intentID, externalPaymentID))
}

func (s *CallbackSigner) mac(intentID, externalPaymentID string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(intentID))
	h.Write([]byte{'|'})
	h.Write([]byte(externalPaymentID))
	return h.Sum(nil)
}
