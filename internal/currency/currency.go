// Package currency handles validation and normalization of ISO 4217
// currency codes.
package currency

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// codeRegex matches a 3-letter currency code in either case.
var codeRegex = regexp.MustCompile(`^[A-Za-z]{3}$`)

// ErrInvalidCode is returned for anything that is not a 3-letter code.
var ErrInvalidCode = errors.New("currency: invalid currency code")

// Normalize validates a currency code and returns its canonical
// uppercase form.
func Normalize(code string) (string, error) {
	trimmed := strings.TrimSpace(code)
	if !codeRegex.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q (expected 3-letter ISO code)", ErrInvalidCode, code)
	}
	return strings.ToUpper(trimmed), nil
}
