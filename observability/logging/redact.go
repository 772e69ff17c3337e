package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// Keys that are never masked even when they contain a sensitive marker.
var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"op":        {},
	"class":     {},
	"module":    {},
	"status":    {},
	"requestid": {},
	"caller":    {},
	"token_id":  {},
	"tokenid":   {},
}

var sensitiveMarkers = []string{
	"secret",
	"password",
	"passphrase",
	"token",
	"authorization",
	"credential",
	"private",
	"headers",
}

// IsSensitive reports whether string values logged under key are masked by
// the handler built in Setup.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if _, ok := redactionAllowlist[normalized]; ok {
		return false
	}
	for _, marker := range sensitiveMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// MaskValue returns RedactedValue for non-empty values. Empty values pass
// through so an unset secret stays visibly unset.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskDSN keeps the scheme and host of a connection string and hides
// credentials and query parameters.
func MaskDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return trimmed
	}
	scheme, rest, ok := strings.Cut(trimmed, "://")
	if !ok {
		return RedactedValue
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	if q := strings.IndexAny(rest, "?"); q >= 0 {
		rest = rest[:q]
	}
	return scheme + "://" + RedactedValue + "@" + rest
}

// MaskField builds an attribute for a value that must never reach the logs in
// clear text.
func MaskField(key, value string) slog.Attr {
	return slog.String(key, MaskValue(value))
}

// redactAttr masks string attributes under sensitive keys. Values already
// masked by MaskField or MaskDSN are left alone.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || !IsSensitive(attr.Key) {
		return attr
	}
	value := attr.Value.String()
	if value == RedactedValue {
		return attr
	}
	return MaskField(attr.Key, value)
}
