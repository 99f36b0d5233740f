package middleware

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/dexengine/internal/crypto"
)

// maxSignedBody bounds the body buffered for HMAC verification.
const maxSignedBody = 1 << 20

// AuthConfig configures request authentication. Either mechanism may be
// left empty; with both empty the middleware passes all requests through.
type AuthConfig struct {
	// APIKey is accepted as a Bearer token or in the X-API-Key header. It is
	// an operator credential: requests carrying it may act for any account.
	APIKey string
	// HMAC holds the key pairs accepted for X-Dex-* signed requests,
	// keyed by HMACAuth.Key.
	HMAC []crypto.HMACAuth
	// MaxSkew bounds the X-Dex-Timestamp distance from now. Defaults to 30s.
	MaxSkew time.Duration
	// Public lists path prefixes that skip authentication.
	Public []string
}

type boundAccountKey struct{}

// WithBoundAccount records the only account the request may act for.
func WithBoundAccount(ctx context.Context, account common.Address) context.Context {
	return context.WithValue(ctx, boundAccountKey{}, account)
}

// BoundAccount returns the account the request's HMAC key is bound to.
func BoundAccount(ctx context.Context) (common.Address, bool) {
	account, ok := ctx.Value(boundAccountKey{}).(common.Address)
	return account, ok
}

func (c AuthConfig) enabled() bool {
	return c.APIKey != "" || len(c.HMAC) > 0
}

// Auth returns middleware that validates API requests using either a static
// API key or an HMAC request signature.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = 30 * time.Second
	}
	keys := make(map[string]crypto.HMACAuth, len(cfg.HMAC))
	for _, k := range cfg.HMAC {
		keys[k.Key] = k
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.enabled() || isPublic(r.URL.Path, cfg.Public) {
				next.ServeHTTP(w, r)
				return
			}

			if key := r.Header.Get(crypto.HeaderKey); key != "" {
				auth, ok := keys[key]
				if !ok {
					writeJSONError(w, http.StatusUnauthorized, "unknown api key")
					return
				}
				body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
				if err != nil {
					writeJSONError(w, http.StatusUnauthorized, "unreadable request body")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				err = auth.Verify(
					r.Method,
					r.URL.RequestURI(),
					string(body),
					r.Header.Get(crypto.HeaderTimestamp),
					r.Header.Get(crypto.HeaderSignature),
					time.Now(),
					cfg.MaxSkew,
				)
				if err != nil {
					writeJSONError(w, http.StatusUnauthorized, "invalid request signature")
					return
				}
				if auth.Account != (common.Address{}) {
					r = r.WithContext(WithBoundAccount(r.Context(), auth.Account))
				}
				next.ServeHTTP(w, r)
				return
			}

			if cfg.APIKey == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing request signature")
				return
			}
			token := extractToken(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing authentication token")
				return
			}

			// Constant-time comparison to prevent timing attacks.
			if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.APIKey)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isPublic(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}

	return ""
}

// writeJSONError sends {"error": msg} with the given status.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
