package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ValidateName checks a registration display name. Names consisting only of
// digits are rejected to catch phone numbers typed into the wrong step.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	allDigits := true
	for _, r := range name {
		if !unicode.IsDigit(r) {
			allDigits = false
			break
		}
	}
	if allDigits {
		return ErrNumericName
	}
	return nil
}

// ParseBirthDate normalizes a birth date to YYYY-MM-DD. Both YYYY-MM-DD and
// DD.MM.YYYY inputs are accepted; future dates are rejected.
func ParseBirthDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyBirthDate
	}

	normalized := raw
	if strings.Contains(raw, ".") {
		parts := strings.Split(raw, ".")
		if len(parts) != 3 {
			return "", ErrInvalidBirthDate
		}
		day, errD := strconv.Atoi(parts[0])
		month, errM := strconv.Atoi(parts[1])
		year, errY := strconv.Atoi(parts[2])
		if errD != nil || errM != nil || errY != nil {
			return "", ErrInvalidBirthDate
		}
		normalized = fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	} else if !strings.Contains(raw, "-") {
		return "", ErrInvalidBirthDate
	}

	parsed, err := time.Parse("2006-01-02", normalized)
	if err != nil {
		return "", ErrInvalidBirthDate
	}
	if parsed.After(time.Now()) {
		return "", ErrFutureBirthDate
	}
	return parsed.Format("2006-01-02"), nil
}

// ValidateChatMessage checks an outgoing chat message against backend limits.
func ValidateChatMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if len(text) > MaxChatMessageLength {
		return ErrMessageTooLong
	}
	return nil
}
