package models

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	if err := ValidateName("Анна"); err != nil {
		t.Errorf("valid name rejected: %v", err)
	}
	if err := ValidateName("  "); !errors.Is(err, ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}
	if err := ValidateName("12345"); !errors.Is(err, ErrNumericName) {
		t.Errorf("expected ErrNumericName, got %v", err)
	}
	// Mixed letters and digits is allowed.
	if err := ValidateName("Анна2"); err != nil {
		t.Errorf("mixed name rejected: %v", err)
	}
}

func TestParseBirthDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "ISO format", input: "1990-05-10", want: "1990-05-10"},
		{name: "dotted format", input: "10.05.1990", want: "1990-05-10"},
		{name: "dotted single digits padded", input: "1.2.1990", want: "1990-02-01"},
		{name: "empty", input: "", wantErr: ErrEmptyBirthDate},
		{name: "garbage", input: "вчера", wantErr: ErrInvalidBirthDate},
		{name: "future date", input: "2999-01-01", wantErr: ErrFutureBirthDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBirthDate(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseBirthDate(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBirthDate(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseBirthDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateChatMessage(t *testing.T) {
	if err := ValidateChatMessage("мне снился лес"); err != nil {
		t.Errorf("valid message rejected: %v", err)
	}
	if err := ValidateChatMessage("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if err := ValidateChatMessage(strings.Repeat("а", MaxChatMessageLength+1)); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}
}
