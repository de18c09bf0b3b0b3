package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// SignatureVerifier checks the HMAC-SHA256 the gateway attaches to a payment callback.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier builds a verifier for the shared callback secret.
func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	if secret == "" {
		return nil, errors.New("callback secret is required")
	}
	return &SignatureVerifier{secret: []byte(secret)}, nil
}

// Sign returns the hex signature for the order/payment pair.
func (v *SignatureVerifier) Sign(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares the signature string in constant time against the canonical
// lower-case hex form. Any other spelling of the same bytes does not match.
func (v *SignatureVerifier) Verify(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(v.Sign(gatewayOrderID, gatewayPaymentID)))
}
