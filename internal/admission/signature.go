package admission

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/aresgw/gateway/internal/errs"
)

const (
	SignatureHeader = "X-ARES-SIGNATURE"
	signaturePrefix = "sha256="
)

// computeSignature returns the lower-case hex HMAC-SHA256 of body under
// secret, matching the teacher's webhooks.SignPayload convention.
func computeSignature(secret []byte, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SHA256Hex returns the lower-case hex SHA-256 digest of body, used for
// the audit trail's body hash.
func SHA256Hex(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// verifySignature checks the X-ARES-SIGNATURE header value against the
// expected HMAC-SHA256 of body under secret, using a constant-time
// comparison. Returns a typed AuthError naming the specific failure
// reason on mismatch.
func verifySignature(secret []byte, body []byte, headerValue string) *errs.Error {
	if headerValue == "" {
		return errs.AuthError("missing_signature")
	}
	if !strings.HasPrefix(headerValue, signaturePrefix) {
		return errs.AuthError("bad_signature_format")
	}

	provided := strings.TrimPrefix(headerValue, signaturePrefix)
	expected := computeSignature(secret, body)

	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return errs.AuthError("signature_mismatch")
	}
	return nil
}
