// Package messaging provides the pluggable messenger transport used by the
// dreamtalk bot front-end.
package messaging

import (
	"context"
	"errors"
	"regexp"

	"github.com/dreamtalk/dreamtalk/internal/models"
)

// ErrServiceStopped is returned when a send is attempted after Stop.
var ErrServiceStopped = errors.New("messaging service is stopped")

// phoneNumberRegex strips everything that is not a digit during recipient
// canonicalization.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
// It supports sending text and voice notes, and exposes a channel of
// incoming user events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Returns the canonicalized recipient and an error if validation fails.
	// This allows each service to implement its own recipient validation rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendVoiceNote sends raw audio as a voice note to a recipient.
	SendVoiceNote(ctx context.Context, to string, audio []byte) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Inbound returns a channel of incoming user events (text or voice).
	Inbound() <-chan models.Inbound
}
