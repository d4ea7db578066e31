package schema

import (
	"fmt"
	"strings"
	"unicode"
)

// NormalizeSource validates a source key. Allowed characters: A-Z, a-z, 0-9, '_', '-'.
func NormalizeSource(value string) (Source, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: source is required", ErrInvalidRequest)
	}
	for _, r := range trimmed {
		if r == '_' || r == '-' {
			continue
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		return "", fmt.Errorf("%w: source %q", ErrInvalidRequest, value)
	}
	return Source(trimmed), nil
}

// ValidateTabID ensures a tab id is non-empty and free of surrounding whitespace.
func ValidateTabID(tabID TabID) error {
	raw := string(tabID)
	if raw == "" || strings.TrimSpace(raw) != raw {
		return fmt.Errorf("%w: tabId", ErrInvalidRequest)
	}
	return nil
}
