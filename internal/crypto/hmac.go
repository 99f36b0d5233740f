package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Header names carried by HMAC-signed API requests.
const (
	HeaderKey       = "X-Dex-Key"
	HeaderTimestamp = "X-Dex-Timestamp"
	HeaderSignature = "X-Dex-Signature"
)

// ErrBadRequestSignature is returned when an HMAC request signature does not
// verify.
var ErrBadRequestSignature = errors.New("crypto: bad request signature")

// HMACAuth holds an API key pair used to sign requests. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body), base64 encoded.
type HMACAuth struct {
	Key    string
	Secret string
	// Account, when set, is the only account requests signed with this key
	// may act for.
	Account common.Address
}

// Headers returns the signed headers for a request made now.
func (h *HMACAuth) Headers(method, path, body string) map[string]string {
	return h.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers with a caller supplied Unix timestamp.
func (h *HMACAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderKey:       h.Key,
		HeaderTimestamp: ts,
		HeaderSignature: hmacSHA256Base64([]byte(h.Secret), ts+method+path+body),
	}
}

// Verify checks a signature produced by HeadersAt. Timestamps further than
// maxSkew from now are rejected.
func (h *HMACAuth) Verify(method, path, body, ts, signature string, now time.Time, maxSkew time.Duration) error {
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid timestamp", ErrBadRequestSignature)
	}
	skew := now.Sub(time.Unix(unix, 0))
	if skew < -maxSkew || skew > maxSkew {
		return fmt.Errorf("%w: timestamp outside window", ErrBadRequestSignature)
	}
	want := hmacSHA256Base64([]byte(h.Secret), ts+method+path+body)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadRequestSignature
	}
	return nil
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
