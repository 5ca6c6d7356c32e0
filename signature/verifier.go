package signature

import "crypto/hmac"

// Verify checks whether sig equals the expected "sha256=<hex>" signature for
// body under secret, using a constant-time comparison. The relay only
// produces signed outbound requests; Verify exists for subscriber-side reuse
// and for tests that assert the outbound signature is correct.
func Verify(body []byte, secret string, sig string) bool {
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(sig))
}
