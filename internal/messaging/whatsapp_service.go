package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dreamtalk/dreamtalk/internal/models"
	"github.com/dreamtalk/dreamtalk/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// Constants for WhatsAppService configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for the inbound channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client // Access to underlying client for event handling
	inbound  chan models.Inbound
	done     chan struct{}
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given Sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client:  client,
		inbound: make(chan models.Inbound, DefaultChannelBufferSize),
		done:    make(chan struct{}),
	}

	// If the client is a full Client (not just an interface), store it for event handling
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
// It removes all non-numeric characters and validates the result has at least 6 digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}

	if recipient != canonical {
		slog.Debug("WhatsAppService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start begins background processing (e.g., event polling).
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")

	if s.waClient != nil {
		slog.Debug("WhatsAppService starting event handler")
		go s.handleEvents(ctx)
		slog.Debug("WhatsAppService event handler started")
	} else {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
	}

	return nil
}

// Stop stops background processing.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	close(s.done)
	close(s.inbound)
	slog.Info("WhatsAppService stopped and channels closed")
	return nil
}

// SendMessage sends a text message.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	slog.Debug("WhatsAppService SendMessage invoked", "to", to, "body_length", len(body))
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", to)
		return err
	}
	return nil
}

// SendVoiceNote sends raw audio as a WhatsApp voice note.
func (s *WhatsAppService) SendVoiceNote(ctx context.Context, to string, audio []byte) error {
	slog.Debug("WhatsAppService SendVoiceNote invoked", "to", to, "audio_bytes", len(audio))
	if err := s.client.SendVoiceNote(ctx, to, audio); err != nil {
		slog.Error("WhatsAppService SendVoiceNote error", "error", err, "to", to)
		return err
	}
	return nil
}

// Inbound returns a channel of incoming user events.
func (s *WhatsAppService) Inbound() <-chan models.Inbound {
	return s.inbound
}

// handleEvents processes WhatsApp events and feeds them into the inbound channel
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	slog.Debug("WhatsAppService handleEvents starting")

	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if v, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(ctx, v)
		}
	})

	slog.Debug("WhatsAppService event handler registered")

	// Keep handler running until context is cancelled
	<-ctx.Done()
	slog.Debug("WhatsAppService handleEvents stopping due to context cancellation")
}

// handleIncomingMessage converts an incoming WhatsApp message into an Inbound
// event. Text messages forward their body; voice notes are downloaded and
// forwarded as raw audio. Other media is ignored.
func (s *WhatsAppService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	if evt.Message == nil {
		return
	}

	inbound := models.Inbound{
		From: canonicalJIDNumber(evt.Info.Sender.User),
		Time: evt.Info.Timestamp.Unix(),
	}

	switch {
	case evt.Message.Conversation != nil:
		inbound.Text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		inbound.Text = *evt.Message.ExtendedTextMessage.Text
	case evt.Message.AudioMessage != nil:
		audio, err := s.waClient.DownloadAudio(ctx, evt.Message.AudioMessage)
		if err != nil {
			slog.Error("WhatsAppService failed to download inbound voice note", "error", err, "from", inbound.From)
			return
		}
		inbound.Audio = audio
	default:
		slog.Debug("WhatsAppService ignoring non-text, non-audio message", "from", inbound.From)
		return
	}

	slog.Debug("WhatsAppService processing incoming message", "from", inbound.From, "text_length", len(inbound.Text), "audio_bytes", len(inbound.Audio))

	// Send to inbound channel (non-blocking)
	select {
	case s.inbound <- inbound:
		slog.Info("WhatsAppService incoming message forwarded", "from", inbound.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService inbound channel blocked, dropping message", "from", inbound.From, "timeout", DefaultChannelTimeout)
	}
}

// canonicalJIDNumber converts a WhatsApp JID user part to E.164 format.
func canonicalJIDNumber(user string) string {
	if !strings.HasPrefix(user, "+") {
		return "+" + user
	}
	return user
}
