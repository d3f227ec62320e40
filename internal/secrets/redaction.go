package secrets

import (
	"regexp"
	"strings"
)

const replacement = "[REDACTED]"

// Redactor masks credentials in log fields and stored request parameters.
type Redactor struct {
	patterns []*regexp.Regexp
}

// userinfo in connection URLs: keep scheme and user, drop the password
var urlCredentials = regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://[^:/@\s]*):[^@\s]+@`)

// NewRedactor creates a redactor with the default credential patterns.
func NewRedactor() *Redactor {
	defaultPatterns := []string{
		`(?i)(?:api[_-]?key|token|secret|password|pwd)=[^\s&"']+`,
		`(?i)bearer\s+[a-zA-Z0-9\-\._~\+/]+=*`,
		`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
	}

	patterns := make([]*regexp.Regexp, len(defaultPatterns))
	for i, pattern := range defaultPatterns {
		patterns[i] = regexp.MustCompile(pattern)
	}
	return &Redactor{patterns: patterns}
}

// RedactString masks URL passwords and key=value credentials in input.
func (r *Redactor) RedactString(input string) string {
	result := urlCredentials.ReplaceAllString(input, "${1}:"+replacement+"@")
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllStringFunc(result, func(m string) string {
			if i := strings.IndexAny(m, "= "); i >= 0 {
				return m[:i+1] + replacement
			}
			return replacement
		})
	}
	return result
}

// RedactParams returns a copy of params with sensitive keys masked and
// remaining values passed through RedactString.
func (r *Redactor) RedactParams(params map[string]string) map[string]string {
	if params == nil {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		if IsSensitiveKey(k) {
			out[k] = replacement
			continue
		}
		out[k] = r.RedactString(v)
	}
	return out
}

// IsSensitiveKey checks if a key name suggests sensitive content
func IsSensitiveKey(key string) bool {
	sensitiveKeys := []string{
		"password", "pwd", "secret", "token", "api_key", "apikey",
		"auth", "credential", "dsn", "private_key",
	}

	lowerKey := strings.ToLower(key)
	for _, sensitiveKey := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitiveKey) {
			return true
		}
	}
	return false
}
