// Package redact strips credential-shaped substrings from diagnostics
// before they reach a log line or an HTTP error body. Every adapter and
// the structured logger route through here, so no API key ever reaches
// a log sink or an error response.
package redact

import "regexp"

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key["']?\s*[:=]\s*["']?)([A-Za-z0-9\-_./+]{8,})`),
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-_.]{8,})`),
	regexp.MustCompile(`(?i)(authorization["']?\s*[:=]\s*["']?)([A-Za-z0-9\-_./+]{8,})`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{16,}`),
	regexp.MustCompile(`x-goog-api-key["']?\s*[:=]\s*["']?[A-Za-z0-9\-_]{16,}`),
}

const mask = "[REDACTED]"

// String returns s with every recognized credential pattern replaced by a
// fixed mask. It never lengthens the surprise of a log line by echoing
// partial key material.
func String(s string) string {
	out := s
	for _, p := range patterns {
		if p.NumSubexp() > 0 {
			out = p.ReplaceAllString(out, "${1}"+mask)
		} else {
			out = p.ReplaceAllString(out, mask)
		}
	}
	return out
}

// Error wraps an error's message through String, preserving the wrap
// chain's ability to unwrap but never printing the raw message.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
