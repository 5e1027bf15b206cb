package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dreamtalk/dreamtalk/internal/models"
	"github.com/dreamtalk/dreamtalk/internal/twiliowhatsapp"
)

// TwilioService implements the Service interface using the Twilio API.
// Inbound messages arrive via the webhook handler rather than a live socket.
type TwilioService struct {
	client  twiliowhatsapp.Sender // Could be real Twilio client or MockClient
	inbound chan models.Inbound
	done    chan struct{}
	mu      sync.RWMutex
	stopped bool
}

// NewTwilioService creates a new TwilioService with the given Twilio client.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:  client,
		inbound: make(chan models.Inbound, DefaultChannelBufferSize),
		done:    make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
// It removes all non-numeric characters and validates the result has at least 6 digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
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
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op for Twilio (inbound arrives via webhook)
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.inbound)
	}()

	return nil
}

// SendMessage sends a text message via Twilio.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}

	return s.client.SendMessage(ctx, canonicalTo, body)
}

// SendVoiceNote is unsupported over the Twilio transport: the REST API only
// accepts media by public URL, not raw payloads. Callers fall back to text.
func (s *TwilioService) SendVoiceNote(ctx context.Context, to string, audio []byte) error {
	slog.Debug("TwilioService SendVoiceNote unsupported", "to", to)
	return fmt.Errorf("voice notes are not supported over the Twilio transport")
}

// Inbound returns the channel for incoming messages.
func (s *TwilioService) Inbound() <-chan models.Inbound {
	return s.inbound
}

// WebhookHandler handles inbound Twilio webhook requests.
// It parses incoming messages and emits them into the Inbound() channel.
func (s *TwilioService) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("Twilio webhook received")

	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")

	if from == "" || body == "" {
		slog.Warn("Twilio webhook missing fields", "from", from, "body", body)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	slog.Info("Inbound WhatsApp message from Twilio", "from", from)

	s.safeEmitInbound(models.Inbound{
		From: from,
		Text: body,
		Time: time.Now().Unix(),
	})

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// safeEmitInbound safely pushes events into the inbound channel.
func (s *TwilioService) safeEmitInbound(inbound models.Inbound) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("TwilioService dropping inbound message (service stopped)", "from", inbound.From)
		return
	}

	select {
	case s.inbound <- inbound:
		slog.Debug("TwilioService emitted inbound message", "from", inbound.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService inbound channel blocked, dropping message", "from", inbound.From)
	}
}
