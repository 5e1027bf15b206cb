package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dreamtalk/dreamtalk/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestChatGuestPayload(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("guest chat must not carry a bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(models.ChatResult{Reply: "ответ", Stage: "exploration", Hint: "подсказка"})
	})

	profile := &models.GuestProfile{Name: "Гость"}
	res, err := c.Chat(context.Background(), "", "мне снился лес", "guest_1_2", profile)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if got.GuestSessionID != "guest_1_2" || got.GuestProfile == nil || got.GuestProfile.Name != "Гость" {
		t.Errorf("guest fields not forwarded: %+v", got)
	}
	if res.Reply != "ответ" || res.Stage != "exploration" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestChatAuthenticatedOmitsGuestFields(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok123" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(models.ChatResult{Reply: "ok"})
	})

	if _, err := c.Chat(context.Background(), "tok123", "сон", "guest_x", &models.GuestProfile{Name: "n"}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if got.GuestSessionID != "" || got.GuestProfile != nil {
		t.Errorf("authenticated chat leaked guest fields: %+v", got)
	}
}

func TestUnauthorizedIsSentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := c.Sessions(context.Background(), "expired")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestLoginNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "user not found"})
	})
	_, err := c.Login(context.Background(), "+79991234567")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSynthesizeDecodesAudio(t *testing.T) {
	want := []byte("OggS fake audio")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"audio_base64": base64.StdEncoding.EncodeToString(want),
		})
	})
	got, err := c.Synthesize(context.Background(), "озвучь это")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("decoded audio mismatch")
	}
}

func TestErrorDetailWrapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"detail": "chat service unavailable"})
	})
	_, err := c.Chat(context.Background(), "", "сон", "g", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := err.Error(); !containsAll(got, "502", "chat service unavailable") {
		t.Errorf("error should carry status and detail, got %q", got)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		found := false
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+79991234567", "+79991234567", false},
		{"89991234567", "+79991234567", false},
		{"79991234567", "+79991234567", false},
		{"9991234567", "+79991234567", false},
		{"+7 (999) 123-45-67", "+79991234567", false},
		{"", "", true},
		{"12345", "", true},
		{"+7999123456a", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizePhone(%q) expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}
