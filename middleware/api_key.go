package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/veloursalon/websec/config"
	"github.com/veloursalon/websec/domain"
	"github.com/veloursalon/websec/internal/crypto"
)

// Headers of the machine-to-machine security layer.
const (
	APIKeyHeader    = "X-Api-Key"
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Timestamp"
)

// signatureSkew bounds how far a signed timestamp may drift from the
// server clock in either direction.
const signatureSkew = 5 * time.Minute

// apiKeyLimiter is a fixed-window per-key request counter.
type apiKeyLimiter struct {
	mu      sync.Mutex
	windows map[string]*keyWindow
}

type keyWindow struct {
	count int
	start time.Time
}

func (l *apiKeyLimiter) allow(name string, limit int, now time.Time) bool {
	if limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[name]
	if !ok || now.Sub(w.start) >= time.Minute {
		l.windows[name] = &keyWindow{count: 1, start: now}
		return true
	}
	w.count++
	return w.count <= limit
}

// APIKeyAuth authenticates machine-to-machine requests: the key must be
// registered, carry the required permission, originate from an allowed IP
// when the key restricts that, and stay under its rate limit. When a
// signature secret is configured the request must also be signed.
func (g *Gate) APIKeyAuth(requiredPermission string) echo.MiddlewareFunc {
	byKey := make(map[string]config.APIKey, len(g.cfg.APIKeys))
	for _, k := range g.cfg.APIKeys {
		byKey[k.Key] = k
	}
	limiter := &apiKeyLimiter{windows: make(map[string]*keyWindow)}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rc := requestContext(c)
			ctx := c.Request().Context()

			presented := c.Request().Header.Get(APIKeyHeader)
			key, ok := byKey[presented]
			if presented == "" || !ok {
				g.events.Record(ctx, domain.EventAPIKeyInvalid, rc,
					map[string]string{"reason": "unknown api key"}, "")
				return echo.NewHTTPError(http.StatusForbidden, "invalid API key")
			}

			if requiredPermission != "" && !hasPermission(key.Permissions, requiredPermission) {
				g.events.Record(ctx, domain.EventUnauthorizedAPIAccess, rc,
					map[string]string{"reason": "permission missing", "key_name": key.Name}, "")
				return echo.NewHTTPError(http.StatusForbidden, "permission denied")
			}

			if len(key.AllowedIPs) > 0 && !ipAllowed(key.AllowedIPs, rc.SourceIP) {
				g.events.Record(ctx, domain.EventUnauthorizedAPIAccess, rc,
					map[string]string{"reason": "ip not allowed for key", "key_name": key.Name}, "")
				return echo.NewHTTPError(http.StatusForbidden, "access denied")
			}

			if !limiter.allow(key.Name, key.RateLimit, time.Now()) {
				g.events.Record(ctx, domain.EventRateLimitExceeded, rc,
					map[string]string{"key_name": key.Name}, "")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			if g.cfg.SignatureSecret != "" {
				if err := verifySignature(c.Request(), g.cfg.SignatureSecret); err != nil {
					g.events.Record(ctx, domain.EventInvalidSignature, rc,
						map[string]string{"reason": err.Error(), "key_name": key.Name}, "")
					return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
				}
			}

			return next(c)
		}
	}
}

func hasPermission(perms []string, required string) bool {
	for _, p := range perms {
		if p == required || p == "*" {
			return true
		}
	}
	return false
}

func ipAllowed(allowed []string, ip string) bool {
	for _, a := range allowed {
		if a == ip {
			return true
		}
	}
	return false
}

// verifySignature checks the HMAC-SHA256 of "method|path|timestamp".
func verifySignature(r *http.Request, secret string) error {
	signature := r.Header.Get(SignatureHeader)
	timestamp := r.Header.Get(TimestampHeader)
	if signature == "" || timestamp == "" {
		return errSignatureMissing
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return errTimestampInvalid
	}
	drift := time.Since(time.Unix(ts, 0))
	if drift > signatureSkew || drift < -signatureSkew {
		return errTimestampStale
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(r.Method + "|" + r.URL.Path + "|" + timestamp))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !crypto.SecureCompare(expected, signature) {
		return errSignatureMismatch
	}
	return nil
}

var (
	errSignatureMissing  = errors.New("signature or timestamp missing")
	errTimestampInvalid  = errors.New("timestamp not a unix epoch")
	errTimestampStale    = errors.New("timestamp outside accepted window")
	errSignatureMismatch = errors.New("signature mismatch")
)
