// Package bot is the messenger front-end: it routes incoming WhatsApp
// messages to per-user session controllers and renders replies with the
// stage banner and hint.
package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/dreamtalk/dreamtalk/internal/conversation"
	"github.com/dreamtalk/dreamtalk/internal/gateway"
	"github.com/dreamtalk/dreamtalk/internal/identity"
	"github.com/dreamtalk/dreamtalk/internal/messaging"
	"github.com/dreamtalk/dreamtalk/internal/migration"
	"github.com/dreamtalk/dreamtalk/internal/models"
	"github.com/dreamtalk/dreamtalk/internal/playback"
	"github.com/dreamtalk/dreamtalk/internal/session"
	"github.com/dreamtalk/dreamtalk/internal/store"
)

// DefaultSupportAmount is the default donation amount in rubles.
const DefaultSupportAmount = 199

// Backend bundles everything the bot needs from the remote gateway. The
// gateway client satisfies it directly.
type Backend interface {
	session.Backend
	conversation.HistoryFetcher
	migration.Submitter
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Opts holds configuration options for the bot.
type Opts struct {
	SupportAmount float64
}

// Option defines a configuration option for the bot.
type Option func(*Opts)

// WithSupportAmount overrides the default donation amount.
func WithSupportAmount(amount float64) Option {
	return func(o *Opts) { o.SupportAmount = amount }
}

// Bot routes inbound messenger events to per-user controllers.
type Bot struct {
	svc           messaging.Service
	backend       Backend
	guest         store.Store
	supportAmount float64

	mu    sync.Mutex
	users map[string]*userState
}

// userState is the per-user slice of the bot: the session controller, the
// playback controller, and the active dialog (if any).
type userState struct {
	controller *session.Controller
	playback   *playback.Controller
	dialog     dialog
}

// New creates a Bot over the given transport, gateway, and guest store.
func New(svc messaging.Service, backend Backend, guest store.Store, opts ...Option) *Bot {
	cfg := Opts{SupportAmount: DefaultSupportAmount}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Bot{
		svc:           svc,
		backend:       backend,
		guest:         guest,
		supportAmount: cfg.SupportAmount,
		users:         make(map[string]*userState),
	}
}

// Run starts the transport and processes inbound events until the context is
// cancelled or the inbound channel closes.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.svc.Start(ctx); err != nil {
		return err
	}
	slog.Info("Bot started")

	for {
		select {
		case inbound, ok := <-b.svc.Inbound():
			if !ok {
				slog.Info("Bot inbound channel closed")
				return nil
			}
			b.handleInbound(ctx, inbound)
		case <-ctx.Done():
			slog.Info("Bot stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// handleInbound processes one inbound event. Voice notes are transcribed
// first and then routed exactly like typed text.
func (b *Bot) handleInbound(ctx context.Context, inbound models.Inbound) {
	from, err := b.svc.ValidateAndCanonicalizeRecipient(inbound.From)
	if err != nil {
		slog.Error("Bot dropping event with invalid sender", "error", err, "from", inbound.From)
		return
	}
	user := b.userFor(from)

	text := inbound.Text
	if len(inbound.Audio) > 0 {
		text, err = user.controller.Transcribe(ctx, base64.StdEncoding.EncodeToString(inbound.Audio))
		if err != nil {
			slog.Error("Bot voice transcription failed", "error", err, "from", from)
			b.reply(ctx, from, msgTranscribeFailed)
			return
		}
		slog.Debug("Bot transcribed voice note", "from", from, "text_length", len(text))
		b.reply(ctx, from, msgTranscribed(text))
	}

	b.dispatch(ctx, from, user, text)
}

// userFor returns the per-user state, wiring up the controller stack on
// first contact.
func (b *Bot) userFor(from string) *userState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if user, ok := b.users[from]; ok {
		return user
	}

	ids := identity.NewAssigner()
	state := conversation.New(from, b.guest, b.backend, ids)
	player := &voiceNotePlayer{svc: b.svc, to: from}
	pb := playback.NewController(b.backend, player)
	controller := session.NewController(from, b.backend, state, b.guest, ids, migration.NewMigrator(b.backend), pb)
	controller.Restore(context.Background())

	user := &userState{controller: controller, playback: pb}
	b.users[from] = user
	slog.Debug("Bot created user state", "from", from)
	return user
}

// dispatch routes one text input: an active dialog consumes it first, then
// commands, then the default chat path.
func (b *Bot) dispatch(ctx context.Context, from string, user *userState, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	if user.dialog != nil && !strings.HasPrefix(trimmed, "/") {
		b.continueDialog(ctx, from, user, trimmed)
		return
	}
	// A command aborts any dialog in progress.
	user.dialog = nil

	switch strings.ToLower(trimmed) {
	case "/start":
		b.reply(ctx, from, msgStart)
	case "/auth":
		user.dialog = &authDialog{}
		b.reply(ctx, from, msgAskPhone)
	case "/register":
		user.dialog = &registerDialog{}
		b.reply(ctx, from, msgAskName)
	case "/profile":
		b.handleProfile(ctx, from, user)
	case "/clear":
		b.handleClear(ctx, from, user)
	case "/support":
		b.handleSupport(ctx, from, user)
	case "/logout":
		user.controller.Logout()
		b.reply(ctx, from, msgLoggedOut)
	case keywordSpeak:
		b.handleSpeak(ctx, from, user)
	default:
		b.handleChat(ctx, from, user, trimmed)
	}
}

// handleChat runs one dream exchange and renders the outcome.
func (b *Bot) handleChat(ctx context.Context, from string, user *userState, text string) {
	outcome, err := user.controller.SendMessage(ctx, text)
	if err != nil {
		b.reply(ctx, from, chatErrorText(err))
		return
	}
	b.reply(ctx, from, renderOutcome(outcome))
}

func (b *Bot) handleProfile(ctx context.Context, from string, user *userState) {
	if user.controller.Mode() != models.ModeAuthenticated {
		b.reply(ctx, from, msgProfileGuest)
		return
	}
	b.reply(ctx, from, renderProfile(user.controller.User()))
}

func (b *Bot) handleClear(ctx context.Context, from string, user *userState) {
	if err := user.controller.ClearHistory(ctx); err != nil {
		b.reply(ctx, from, chatErrorText(err))
		return
	}
	b.reply(ctx, from, msgHistoryCleared)
}

func (b *Bot) handleSupport(ctx context.Context, from string, user *userState) {
	result, err := user.controller.SupportLink(ctx, b.supportAmount, supportDescription)
	if err != nil {
		b.reply(ctx, from, supportErrorText(err))
		return
	}
	b.reply(ctx, from, msgSupportLink(result.PaymentURL))
}

// handleSpeak voices the most recent bot reply as a voice note.
func (b *Bot) handleSpeak(ctx context.Context, from string, user *userState) {
	snapshot := user.controller.Snapshot()
	var last models.Message
	for i := len(snapshot.Messages) - 1; i >= 0; i-- {
		if snapshot.Messages[i].Role == models.RoleBot {
			last = snapshot.Messages[i]
			break
		}
	}
	if last.ID == "" {
		b.reply(ctx, from, msgNothingToSpeak)
		return
	}
	if err := user.playback.RequestPlay(ctx, last); err != nil {
		slog.Error("Bot voice playback failed", "error", err, "from", from)
		b.reply(ctx, from, msgSpeakFailed)
	}
}

// reply sends a text message, logging delivery failures.
func (b *Bot) reply(ctx context.Context, to, text string) {
	if err := b.svc.SendMessage(ctx, to, text); err != nil {
		slog.Error("Bot failed to send reply", "error", err, "to", to)
	}
}

// voiceNotePlayer adapts the messenger transport to the playback controller.
// A sent voice note cannot be retracted, so Stop only releases the slot.
type voiceNotePlayer struct {
	svc messaging.Service
	to  string
}

func (p *voiceNotePlayer) Play(ctx context.Context, messageID string, audio []byte) error {
	return p.svc.SendVoiceNote(ctx, p.to, audio)
}

func (p *voiceNotePlayer) Stop() error { return nil }

// chatErrorText maps controller errors to user-facing text.
func chatErrorText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, session.ErrSessionExpired):
		return msgSessionExpired
	case errors.Is(err, models.ErrEmptyMessage):
		return msgEmptyMessage
	case errors.Is(err, models.ErrMessageTooLong):
		return msgMessageTooLong
	default:
		return msgChatFailed
	}
}

func supportErrorText(err error) string {
	switch {
	case errors.Is(err, models.ErrNotAuthenticated):
		return msgSupportNeedsAccount
	case errors.Is(err, session.ErrSessionExpired):
		return msgSessionExpired
	default:
		return msgSupportFailed
	}
}

func loginErrorText(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidPhone), errors.Is(err, models.ErrEmptyPhone):
		return msgInvalidPhone
	case errors.Is(err, gateway.ErrUserNotFound):
		return msgUserNotFound
	case errors.Is(err, gateway.ErrAlreadyRegistered):
		return msgAlreadyRegistered
	default:
		return msgAuthFailed
	}
}
