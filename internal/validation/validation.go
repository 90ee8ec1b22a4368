// Package validation checks query parameters before they reach the service
// layer. Errors are suitable for 400 responses.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/kjstillabower/certexam-service/internal/region"
)

var (
	// ErrQueryTooLong is returned when a search or filter query exceeds the maximum length.
	ErrQueryTooLong = errors.New("query too long")

	// ErrQueryInvalidChars is returned when a query contains disallowed characters.
	ErrQueryInvalidChars = errors.New("query contains invalid characters")

	// ErrAddressEmpty is returned when a required address is blank.
	ErrAddressEmpty = errors.New("address is required")

	// ErrUnknownRegion is returned for a region tag outside the forecast regions.
	ErrUnknownRegion = errors.New("unknown region")

	// ErrDateEmpty is returned when a required date is blank.
	ErrDateEmpty = errors.New("date is required")

	// ErrInvalidDate is returned when a date is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD")

	// ErrInvalidLimit is returned when a limit is not a positive integer.
	ErrInvalidLimit = errors.New("limit must be a positive integer")
)

// ValidateQuery trims and NFC-normalizes a free-text query. An empty result is
// valid and means "no filter". maxLen counts runes; 0 disables the bound.
func ValidateQuery(input string, maxLen int) (string, error) {
	s := norm.NFC.String(strings.TrimSpace(input))
	r := []rune(s)
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if !isAllowedQueryRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

// ValidateAddress is ValidateQuery for a required address.
func ValidateAddress(input string, maxLen int) (string, error) {
	s, err := ValidateQuery(input, maxLen)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", ErrAddressEmpty
	}
	return s, nil
}

// ValidateRegion resolves a region tag.
func ValidateRegion(input string) (region.Region, error) {
	r, err := region.Parse(strings.TrimSpace(input))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownRegion, input)
	}
	return r, nil
}

// ValidateDate parses a YYYY-MM-DD date in loc.
func ValidateDate(input string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, ErrDateEmpty
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// ValidateLimit parses an optional limit. Empty returns def; values above max
// are clamped to max.
func ValidateLimit(input string, def, max int) (int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, ErrInvalidLimit
	}
	if max > 0 && n > max {
		return max, nil
	}
	return n, nil
}

// isAllowedQueryRune allows letters, digits, combining marks, spaces and the
// punctuation found in certification names and addresses.
func isAllowedQueryRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '(', ')', '·', '/', '&', '+', '_':
		return true
	}
	return false
}
