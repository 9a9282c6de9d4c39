package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the provider's HMAC over the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// VerifySignature checks an HMAC-SHA256 hex signature over the raw body.
// Accepts an optional "sha256=" prefix. Comparison is constant time.
func VerifySignature(secret []byte, raw []byte, signature string) bool {
	if len(secret) == 0 || signature == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(raw)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign computes the signature for a body. Used by tests and outbound tooling.
func Sign(secret []byte, raw []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}
