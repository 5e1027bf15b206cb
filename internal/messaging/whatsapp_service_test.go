package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/dreamtalk/dreamtalk/internal/twiliowhatsapp"
	"github.com/dreamtalk/dreamtalk/internal/whatsapp"
)

func TestWhatsAppServiceValidateAndCanonicalizeRecipient(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	tests := []struct {
		name      string
		recipient string
		want      string
		wantErr   bool
	}{
		{name: "already canonical", recipient: "79001234567", want: "79001234567"},
		{name: "formatted number", recipient: "+7 (900) 123-45-67", want: "79001234567"},
		{name: "empty", recipient: "", wantErr: true},
		{name: "no digits", recipient: "abc", wantErr: true},
		{name: "too short", recipient: "12345", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ValidateAndCanonicalizeRecipient(tt.recipient)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.recipient)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("canonical = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWhatsAppServiceSendMessage(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.SendMessage(context.Background(), "79001234567", "Здравствуйте"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
}

func TestWhatsAppServiceSendVoiceNote(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.SendVoiceNote(context.Background(), "79001234567", []byte("opus")); err != nil {
		t.Fatalf("SendVoiceNote failed: %v", err)
	}
}

func TestTwilioServiceVoiceNotesUnsupported(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := svc.SendVoiceNote(context.Background(), "79001234567", []byte("opus")); err == nil {
		t.Fatal("expected SendVoiceNote to be rejected on the Twilio transport")
	}
}

func TestTwilioServiceSendAfterStop(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := svc.SendMessage(context.Background(), "79001234567", "x"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func TestTwilioWebhookEmitsInbound(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	form := url.Values{"From": {"whatsapp:+79001234567"}, "Body": {"мне снился лес"}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.WebhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d, want 200", rec.Code)
	}
	select {
	case inbound := <-svc.Inbound():
		if inbound.Text != "мне снился лес" || inbound.From != "whatsapp:+79001234567" {
			t.Errorf("unexpected inbound event: %+v", inbound)
		}
	default:
		t.Fatal("webhook did not emit an inbound event")
	}
}

func TestTwilioWebhookRejectsMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	form := url.Values{"From": {"whatsapp:+79001234567"}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	svc.WebhookHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("webhook status = %d, want 400", rec.Code)
	}
}
