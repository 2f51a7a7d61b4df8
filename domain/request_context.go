package domain

import (
	"net"
	"net/http"
	"strings"
)

// RequestContext is the slice of an inbound HTTP request the security core
// cares about. The web layer builds one per request and hands it down.
type RequestContext struct {
	Method    string
	Path      string
	SourceIP  string
	UserAgent string
}

// RequestContextFromHTTP extracts a RequestContext from a raw request.
// Client IP resolution prefers the first X-Forwarded-For hop, then
// X-Real-Ip, then the transport peer address.
func RequestContextFromHTTP(r *http.Request) RequestContext {
	return RequestContext{
		Method:    r.Method,
		Path:      r.URL.Path,
		SourceIP:  ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// ClientIP resolves the originating client address behind proxies.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First entry is the originating client; later hops are proxies.
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		if ip := strings.TrimSpace(fwd); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IsSafeMethod reports whether the HTTP method cannot mutate state and is
// therefore exempt from CSRF validation.
func IsSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
