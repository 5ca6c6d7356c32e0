// Package signature provides HMAC-SHA256 webhook signing and verification.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes HMAC-SHA256(secret, body) over the exact byte sequence that
// will be posted and returns the header value "sha256=<lowercase-hex>".
// The timestamp is not folded into the signed content; it travels in a
// separate X-Timestamp header for the receiver to bind against a freshness
// window.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
