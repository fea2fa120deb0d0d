// Package security validates operator input and masks secrets before they
// reach logs, alerts or command output.
package security

import (
	"regexp"
	"strings"

	apperrors "options-engine/internal/errors"
)

var (
	// Underlyings: letters and digits with an optional class suffix (BRK.B).
	symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,9}([.-][A-Z0-9]{1,3})?$`)

	// Trade and signal IDs: uuids or the prop_SYMBOL_ASOF form.
	idPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,80}$`)
)

// NormalizeSymbol upper-cases and validates an underlying symbol.
func NormalizeSymbol(symbol string) (string, error) {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))
	if symbol == "" {
		return "", apperrors.NewValidationError("symbol", symbol, "symbol is required")
	}
	if !symbolPattern.MatchString(symbol) {
		return "", apperrors.NewValidationError("symbol", symbol, "invalid symbol format")
	}
	return symbol, nil
}

// NormalizeSymbols normalizes a list, dropping blanks and duplicates while
// keeping the first-seen order.
func NormalizeSymbols(symbols []string) ([]string, error) {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if strings.TrimSpace(s) == "" {
			continue
		}
		sym, err := NormalizeSymbol(s)
		if err != nil {
			return nil, err
		}
		if !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out, nil
}

// ValidateID checks a trade or signal identifier.
func ValidateID(field, id string) error {
	if !idPattern.MatchString(id) {
		return apperrors.NewValidationError(field, id, "invalid identifier")
	}
	return nil
}

// SanitizeText strips control characters from free-form text such as
// reject reasons.
func SanitizeText(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
