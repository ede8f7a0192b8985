package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"mts/internal/config"
)

const (
	MaxKeyLength   = 1024
	MaxQueryLength = 256
)

var (
	identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	filterPattern     = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// ValidateKey validates a caller-chosen cache key. Timestamp records share the
// key space, so base keys must not end in the timestamp suffix.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	if len(key) > MaxKeyLength {
		return fmt.Errorf("key length cannot exceed %d characters, got %d", MaxKeyLength, len(key))
	}

	if strings.HasSuffix(key, config.TimestampSuffix) {
		return fmt.Errorf("key must not end in %s", config.TimestampSuffix)
	}

	return nil
}

// ValidateIdentifier validates a SQL identifier such as a store name
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("identifier must start with letter or underscore, contain only letters, numbers, and underscores")
	}

	return nil
}

// ValidateQuery validates free-text search input
func ValidateQuery(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("query cannot be empty")
	}

	if !utf8.ValidString(trimmed) {
		return fmt.Errorf("query must be valid UTF-8")
	}

	if n := utf8.RuneCountInString(trimmed); n > MaxQueryLength {
		return fmt.Errorf("query length cannot exceed %d characters, got %d", MaxQueryLength, n)
	}

	return nil
}

// ValidateFilterName validates a search filter name
func ValidateFilterName(name string) error {
	if !filterPattern.MatchString(name) {
		return fmt.Errorf("filter %q must start with a lowercase letter and contain only lowercase letters, numbers, and underscores", name)
	}

	return nil
}

// ParseFilter splits a "name=value" filter argument
func ParseFilter(arg string) (string, string, error) {
	name, value, ok := strings.Cut(arg, "=")
	if !ok {
		return "", "", fmt.Errorf("invalid filter %q: expected name=value", arg)
	}

	name = strings.TrimSpace(name)
	if err := ValidateFilterName(name); err != nil {
		return "", "", err
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", "", fmt.Errorf("filter %s has an empty value", name)
	}

	return name, value, nil
}
