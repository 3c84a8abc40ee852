// Package signature computes and verifies the HMAC-SHA256 signatures
// carried in the X-Webhook-Signature header. The bytes that are signed are
// exactly the bytes sent as the request body, so receivers can verify a
// delivery by recomputing the HMAC over the raw body they received.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signatureHex is the valid signature of payload
// under secret. The comparison is constant-time. Malformed input simply
// yields false.
func Verify(secret string, payload []byte, signatureHex string) bool {
	got, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}
