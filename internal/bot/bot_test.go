package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/dreamtalk/dreamtalk/internal/models"
	"github.com/dreamtalk/dreamtalk/internal/store"
)

var digitsOnly = regexp.MustCompile(`\D`)

// fakeService records outbound traffic and lets tests inject inbound events.
type fakeService struct {
	sent       []string
	voiceNotes [][]byte
	inbound    chan models.Inbound
}

func newFakeService() *fakeService {
	return &fakeService{inbound: make(chan models.Inbound, 10)}
}

func (f *fakeService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical := digitsOnly.ReplaceAllString(recipient, "")
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid recipient %q", recipient)
	}
	return canonical, nil
}

func (f *fakeService) SendMessage(ctx context.Context, to, body string) error {
	f.sent = append(f.sent, body)
	return nil
}

func (f *fakeService) SendVoiceNote(ctx context.Context, to string, audio []byte) error {
	f.voiceNotes = append(f.voiceNotes, audio)
	return nil
}

func (f *fakeService) Start(ctx context.Context) error { return nil }
func (f *fakeService) Stop() error                     { return nil }
func (f *fakeService) Inbound() <-chan models.Inbound  { return f.inbound }

// fakeGateway implements the Backend bundle for the bot.
type fakeGateway struct {
	chatResult   models.ChatResult
	chatErr      error
	loginResult  models.LoginResult
	loginErr     error
	migrateCalls int
	transcribed  string
	audio        []byte
}

func (f *fakeGateway) Login(ctx context.Context, phone string) (models.LoginResult, error) {
	return f.loginResult, f.loginErr
}

func (f *fakeGateway) Register(ctx context.Context, phone, name, birthDate string) (models.LoginResult, error) {
	return f.loginResult, f.loginErr
}

func (f *fakeGateway) Chat(ctx context.Context, token, message, guestSessionID string, profile *models.GuestProfile) (models.ChatResult, error) {
	return f.chatResult, f.chatErr
}

func (f *fakeGateway) Sessions(ctx context.Context, token string) ([]models.SessionRecord, error) {
	return nil, nil
}

func (f *fakeGateway) DeleteSessions(ctx context.Context, token string) error { return nil }

func (f *fakeGateway) CreatePayment(ctx context.Context, token string, amount float64, description string) (models.PaymentResult, error) {
	return models.PaymentResult{PaymentURL: "https://pay.example/inv", InvoiceID: "inv1"}, nil
}

func (f *fakeGateway) Transcribe(ctx context.Context, audioBase64 string) (string, error) {
	return f.transcribed, nil
}

func (f *fakeGateway) MigrateGuestSession(ctx context.Context, token string, turns []models.Turn, profile models.GuestProfile) error {
	f.migrateCalls++
	return nil
}

func (f *fakeGateway) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f.audio, nil
}

func newTestBot(backend *fakeGateway) (*Bot, *fakeService) {
	svc := newFakeService()
	b := New(svc, backend, store.NewInMemoryStore())
	return b, svc
}

func lastSent(svc *fakeService) string {
	if len(svc.sent) == 0 {
		return ""
	}
	return svc.sent[len(svc.sent)-1]
}

func TestStartCommand(t *testing.T) {
	b, svc := newTestBot(&fakeGateway{})
	b.handleInbound(context.Background(), models.Inbound{From: "79001234567", Text: "/start"})
	if !strings.Contains(lastSent(svc), "ИИ Сонник") {
		t.Errorf("greeting not sent, got %q", lastSent(svc))
	}
}

func TestChatRendersStageBannerAndHint(t *testing.T) {
	backend := &fakeGateway{chatResult: models.ChatResult{
		Reply:               "Лес во сне говорит о поиске.",
		Stage:               "analysis",
		Hint:                "Опишите, что вы чувствовали.",
		SuggestRegistration: true,
	}}
	b, svc := newTestBot(backend)

	b.handleInbound(context.Background(), models.Inbound{From: "79001234567", Text: "мне снился лес"})

	reply := lastSent(svc)
	if !strings.Contains(reply, "Лес во сне говорит о поиске.") {
		t.Errorf("reply text missing: %q", reply)
	}
	if !strings.Contains(reply, "📊 Этап: Анализ образов") {
		t.Errorf("stage banner missing: %q", reply)
	}
	if !strings.Contains(reply, "💡 Опишите, что вы чувствовали.") {
		t.Errorf("hint missing: %q", reply)
	}
	if !strings.Contains(reply, "/register") {
		t.Errorf("registration nudge missing: %q", reply)
	}
}

func TestRegistrationDialogFlow(t *testing.T) {
	backend := &fakeGateway{loginResult: models.LoginResult{Token: "tok1", User: models.User{ID: 7, Name: "Анна"}}}
	b, svc := newTestBot(backend)
	ctx := context.Background()
	from := "79001234567"

	b.handleInbound(ctx, models.Inbound{From: from, Text: "/register"})
	if !strings.Contains(lastSent(svc), "Как вас зовут") {
		t.Fatalf("name prompt missing: %q", lastSent(svc))
	}

	b.handleInbound(ctx, models.Inbound{From: from, Text: "12345"})
	if !strings.Contains(lastSent(svc), "из цифр") {
		t.Fatalf("numeric name must be rejected: %q", lastSent(svc))
	}

	b.handleInbound(ctx, models.Inbound{From: from, Text: "Анна"})
	if !strings.Contains(lastSent(svc), "дату рождения") {
		t.Fatalf("birth date prompt missing: %q", lastSent(svc))
	}

	b.handleInbound(ctx, models.Inbound{From: from, Text: "10.05.1990"})
	if !strings.Contains(lastSent(svc), "номер телефона") {
		t.Fatalf("phone prompt missing: %q", lastSent(svc))
	}

	b.handleInbound(ctx, models.Inbound{From: from, Text: "+7 900 123-45-67"})
	if !strings.Contains(lastSent(svc), "Аккаунт создан") {
		t.Fatalf("registration confirmation missing: %q", lastSent(svc))
	}
}

func TestDialogCancel(t *testing.T) {
	b, svc := newTestBot(&fakeGateway{chatResult: models.ChatResult{Reply: "ответ"}})
	ctx := context.Background()
	from := "79001234567"

	b.handleInbound(ctx, models.Inbound{From: from, Text: "/auth"})
	b.handleInbound(ctx, models.Inbound{From: from, Text: "отмена"})
	if !strings.Contains(lastSent(svc), "отменено") {
		t.Fatalf("cancel confirmation missing: %q", lastSent(svc))
	}

	// The next message goes to the chat path, not the dead dialog.
	b.handleInbound(ctx, models.Inbound{From: from, Text: "мне снился лес"})
	if !strings.Contains(lastSent(svc), "ответ") {
		t.Errorf("post-cancel message not routed to chat: %q", lastSent(svc))
	}
}

func TestAuthDialogInvalidPhoneRetries(t *testing.T) {
	backend := &fakeGateway{loginResult: models.LoginResult{Token: "tok1", User: models.User{ID: 7, Name: "Анна"}}}
	b, svc := newTestBot(backend)
	ctx := context.Background()
	from := "79001234567"

	b.handleInbound(ctx, models.Inbound{From: from, Text: "/auth"})
	b.handleInbound(ctx, models.Inbound{From: from, Text: "не номер"})
	if !strings.Contains(lastSent(svc), "Не похоже на номер") {
		t.Fatalf("invalid phone not rejected: %q", lastSent(svc))
	}

	// The dialog stays open for a second attempt.
	b.handleInbound(ctx, models.Inbound{From: from, Text: "89001234567"})
	if !strings.Contains(lastSent(svc), "С возвращением") {
		t.Errorf("retry did not log in: %q", lastSent(svc))
	}
}

func TestSpeakSendsVoiceNote(t *testing.T) {
	backend := &fakeGateway{
		chatResult: models.ChatResult{Reply: "Лес — это поиск."},
		audio:      []byte("opus-data"),
	}
	b, svc := newTestBot(backend)
	ctx := context.Background()
	from := "79001234567"

	b.handleInbound(ctx, models.Inbound{From: from, Text: "озвучить"})
	if !strings.Contains(lastSent(svc), "нечего озвучивать") {
		t.Fatalf("empty transcript must not be voiced: %q", lastSent(svc))
	}

	b.handleInbound(ctx, models.Inbound{From: from, Text: "мне снился лес"})
	b.handleInbound(ctx, models.Inbound{From: from, Text: "Озвучить"})

	if len(svc.voiceNotes) != 1 || string(svc.voiceNotes[0]) != "opus-data" {
		t.Fatalf("voice note not delivered: %v", svc.voiceNotes)
	}
}

func TestVoiceNoteIsTranscribedAndRouted(t *testing.T) {
	backend := &fakeGateway{
		chatResult:  models.ChatResult{Reply: "Полёт — это свобода."},
		transcribed: "мне снился полёт",
	}
	b, svc := newTestBot(backend)

	b.handleInbound(context.Background(), models.Inbound{From: "79001234567", Audio: []byte("ogg")})

	var sawEcho, sawReply bool
	for _, m := range svc.sent {
		if strings.Contains(m, "мне снился полёт") {
			sawEcho = true
		}
		if strings.Contains(m, "Полёт — это свобода.") {
			sawReply = true
		}
	}
	if !sawEcho {
		t.Error("transcription echo not sent")
	}
	if !sawReply {
		t.Error("transcribed text not routed to chat")
	}
}

func TestSupportRequiresAccount(t *testing.T) {
	backend := &fakeGateway{loginResult: models.LoginResult{Token: "tok1", User: models.User{ID: 7, Name: "Анна"}}}
	b, svc := newTestBot(backend)
	ctx := context.Background()
	from := "79001234567"

	b.handleInbound(ctx, models.Inbound{From: from, Text: "/support"})
	if !strings.Contains(lastSent(svc), "зарегистрированные") {
		t.Fatalf("guest support must be rejected: %q", lastSent(svc))
	}

	b.handleInbound(ctx, models.Inbound{From: from, Text: "/auth"})
	b.handleInbound(ctx, models.Inbound{From: from, Text: "+79001234567"})
	b.handleInbound(ctx, models.Inbound{From: from, Text: "/support"})
	if !strings.Contains(lastSent(svc), "https://pay.example/inv") {
		t.Errorf("payment link missing: %q", lastSent(svc))
	}
}

func TestLogoutCommand(t *testing.T) {
	backend := &fakeGateway{loginResult: models.LoginResult{Token: "tok1", User: models.User{ID: 7, Name: "Анна"}}}
	b, svc := newTestBot(backend)
	ctx := context.Background()
	from := "79001234567"

	b.handleInbound(ctx, models.Inbound{From: from, Text: "/auth"})
	b.handleInbound(ctx, models.Inbound{From: from, Text: "+79001234567"})
	b.handleInbound(ctx, models.Inbound{From: from, Text: "/logout"})
	if !strings.Contains(lastSent(svc), "вышли из аккаунта") {
		t.Fatalf("logout confirmation missing: %q", lastSent(svc))
	}

	b.handleInbound(ctx, models.Inbound{From: from, Text: "/profile"})
	if !strings.Contains(lastSent(svc), "как гость") {
		t.Errorf("profile after logout must show guest notice: %q", lastSent(svc))
	}
}
