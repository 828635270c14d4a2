package observability

import (
	"regexp"
	"strings"
)

// Redactor masks provider credentials in log output. Every provider this
// tool talks to authenticates with an API key, and those keys show up in
// three places worth scrubbing: raw key material in error text, bearer
// and x-api-key headers, and the key= query parameter that the Google
// endpoint carries in its URL.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
	name        string
}

// NewRedactor creates a redactor with the default credential patterns.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.addDefaultPatterns()
	return r
}

func (r *Redactor) addDefaultPatterns() {
	// Provider key formats, most specific first.
	r.AddPattern(`sk-or-v1-[a-f0-9]{20,}`, "[REDACTED_OPENROUTER_KEY]", "openrouter_key")
	r.AddPattern(`sk-ant-[a-zA-Z0-9\-_]{20,}`, "[REDACTED_ANTHROPIC_KEY]", "anthropic_key")
	r.AddPattern(`sk-proj-[a-zA-Z0-9\-_]{20,}`, "[REDACTED_OPENAI_PROJECT_KEY]", "openai_project_key")
	r.AddPattern(`sk-[a-zA-Z0-9]{20,}`, "[REDACTED_OPENAI_KEY]", "openai_key")
	r.AddPattern(`AIza[a-zA-Z0-9\-_]{35}`, "[REDACTED_GOOGLE_KEY]", "google_key")

	// Keys carried in URLs (Google-style authentication).
	r.AddPattern(`([?&]key=)[a-zA-Z0-9\-_]+`, "${1}[REDACTED]", "url_key_param")

	// Headers echoed into error text.
	r.AddPattern(`Bearer\s+[a-zA-Z0-9\-_\.]+`, "Bearer [REDACTED]", "bearer_token")
	r.AddPattern(`(?i)(x-api-key:\s*)[^\s]+`, "${1}[REDACTED]", "api_key_header")
	r.AddPattern(`(?i)(authorization:\s*)[^\s]+`, "${1}[REDACTED]", "auth_header")

	// Catch-all for opaque 32-hex tokens.
	r.AddPattern(`\b[a-f0-9]{32}\b`, "[REDACTED_API_KEY]", "generic_api_key")
}

// AddPattern adds a custom redaction pattern. Invalid patterns are skipped.
func (r *Redactor) AddPattern(pattern, replacement, name string) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	r.patterns = append(r.patterns, &redactPattern{
		regex:       regex,
		replacement: replacement,
		name:        name,
	})
}

// Redact applies all redaction patterns to the input string.
func (r *Redactor) Redact(input string) string {
	result := input
	for _, p := range r.patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

// RedactHeaders redacts sensitive HTTP headers before they are logged.
func (r *Redactor) RedactHeaders(headers map[string][]string) map[string][]string {
	sensitiveHeaders := map[string]bool{
		"authorization":  true,
		"x-api-key":      true,
		"api-key":        true,
		"x-goog-api-key": true,
		"x-auth-token":   true,
		"cookie":         true,
		"set-cookie":     true,
	}

	result := make(map[string][]string, len(headers))
	for k, v := range headers {
		if sensitiveHeaders[strings.ToLower(k)] {
			result[k] = []string{"[REDACTED]"}
		} else {
			result[k] = v
		}
	}
	return result
}
