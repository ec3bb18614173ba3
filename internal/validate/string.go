// Package validate provides input validation for pinmap requests: free-text
// field constraints and struct validation backed by go-playground/validator.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// Field limits.
const (
	UsernameMinLength    = 3
	UsernameMaxLength    = 20
	PasswordMinLength    = 6
	PinTitleMaxLength    = 100
	DescriptionMaxLength = 1000
	QueryMaxLength       = 256
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length in runes (0 = no minimum)
	MaxLength      int            // Maximum length in runes (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional pattern the whole string must match
	AllowEmpty     bool
	TrimSpace      bool
}

// String validates s against constraints and returns the (optionally trimmed) value.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	if !utf8.ValidString(s) || strings.IndexFunc(s, isDisallowedControl) >= 0 {
		return "", ErrInvalidCharacters
	}

	length := utf8.RuneCountInString(s)
	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	return s, nil
}

// isDisallowedControl rejects control characters other than newline and tab.
func isDisallowedControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}

// Username validates a login name: 3-20 characters of letters, digits, '_', '.', '-'.
func Username(name string) (string, error) {
	return String(name, StringConstraints{
		MinLength:      UsernameMinLength,
		MaxLength:      UsernameMaxLength,
		AllowedPattern: usernamePattern,
		TrimSpace:      true,
	})
}

// PinTitle validates a pin title: required, at most 100 characters.
func PinTitle(title string) (string, error) {
	return String(title, StringConstraints{
		MinLength: 1,
		MaxLength: PinTitleMaxLength,
		TrimSpace: true,
	})
}

// Description validates a pin description: optional, at most 1000 characters.
func Description(desc string) (string, error) {
	return String(desc, StringConstraints{
		MaxLength:  DescriptionMaxLength,
		AllowEmpty: true,
		TrimSpace:  true,
	})
}

// SearchQuery validates free-text geocoding input. Surrounding whitespace is
// trimmed; an all-whitespace query is reported as ErrEmpty.
func SearchQuery(q string) (string, error) {
	return String(q, StringConstraints{
		MinLength: 1,
		MaxLength: QueryMaxLength,
		TrimSpace: true,
	})
}
