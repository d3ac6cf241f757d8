package ingest

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeID trims surrounding whitespace and applies NFKC so that visually
// identical identifiers from different upstream encoders map to one key.
func NormalizeID(id string) string {
	return norm.NFKC.String(strings.TrimSpace(id))
}

// formatID renders a raw JSON identifier as a normalized string key.
// Numeric identifiers lose a trailing ".0" so 15.0 and "15" collide as
// intended.
func formatID(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case string:
		return NormalizeID(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}
