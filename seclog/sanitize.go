package seclog

import "strings"

const (
	redactedValue = "[REDACTED]"
	maxDetailLen  = 200
)

// secretKeyFragments are matched case-insensitively against detail keys;
// values under matching keys never reach the log.
var secretKeyFragments = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"api_key",
	"authorization",
	"cookie",
	"credential",
	"signature",
}

// Sanitize returns a copy of details safe to persist: secret-looking keys
// are redacted and long values truncated. A nil map stays nil.
func Sanitize(details map[string]string) map[string]string {
	if details == nil {
		return nil
	}
	out := make(map[string]string, len(details))
	for k, v := range details {
		if isSecretKey(k) {
			out[k] = redactedValue
			continue
		}
		if len(v) > maxDetailLen {
			v = v[:maxDetailLen] + "..."
		}
		out[k] = v
	}
	return out
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range secretKeyFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
