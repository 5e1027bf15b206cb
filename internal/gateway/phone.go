package gateway

import (
	"strings"

	"github.com/dreamtalk/dreamtalk/internal/models"
)

// NormalizePhone formats a Russian phone number as +7XXXXXXXXXX.
// Accepted inputs: +7XXXXXXXXXX, 8XXXXXXXXXX, 7XXXXXXXXXX and the bare
// 10-digit form; separators and parentheses are stripped first.
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	if cleaned == "" {
		return "", models.ErrEmptyPhone
	}

	var candidate string
	switch {
	case strings.HasPrefix(cleaned, "+7") && len(cleaned) == 12:
		candidate = cleaned
	case strings.HasPrefix(cleaned, "8") && len(cleaned) == 11:
		candidate = "+7" + cleaned[1:]
	case strings.HasPrefix(cleaned, "7") && len(cleaned) == 11:
		candidate = "+" + cleaned
	case len(cleaned) == 10:
		candidate = "+7" + cleaned
	default:
		return "", models.ErrInvalidPhone
	}

	if !isDigits(candidate[2:]) || len(candidate) != 12 {
		return "", models.ErrInvalidPhone
	}
	return candidate, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
