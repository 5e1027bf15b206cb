// Package session owns the session mode state machine and orchestrates the
// reconciliation layer.
//
// The controller is the only component allowed to trigger persistence-tier
// switches. It holds the process-wide session context (mode, token, guest
// session id, guest profile), mediates every chat exchange, runs the guest
// transcript migration exactly once per successful authentication, and
// demotes to guest mode when the backend rejects the token.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dreamtalk/dreamtalk/internal/conversation"
	"github.com/dreamtalk/dreamtalk/internal/gateway"
	"github.com/dreamtalk/dreamtalk/internal/identity"
	"github.com/dreamtalk/dreamtalk/internal/migration"
	"github.com/dreamtalk/dreamtalk/internal/models"
	"github.com/dreamtalk/dreamtalk/internal/stage"
	"github.com/dreamtalk/dreamtalk/internal/store"
)

// ErrSessionExpired is surfaced as a transient notice after the backend
// rejected the stored token and the controller demoted itself to guest
// mode. It never crosses the event handler boundary as a crash.
var ErrSessionExpired = errors.New("session expired, continuing as guest")

// Backend is the slice of the gateway client the controller depends on.
type Backend interface {
	Login(ctx context.Context, phone string) (models.LoginResult, error)
	Register(ctx context.Context, phone, name, birthDate string) (models.LoginResult, error)
	Chat(ctx context.Context, token, message, guestSessionID string, profile *models.GuestProfile) (models.ChatResult, error)
	DeleteSessions(ctx context.Context, token string) error
	CreatePayment(ctx context.Context, token string, amount float64, description string) (models.PaymentResult, error)
	Transcribe(ctx context.Context, audioBase64 string) (string, error)
}

// PlaybackStopper releases the audio resource on mode transitions, since the
// prior conversation's messages may no longer be displayed.
type PlaybackStopper interface {
	Stop()
}

// sessionContext is the explicit process-wide mutable session state. It is
// owned by the controller and passed nowhere; collaborators receive the
// individual values they need.
type sessionContext struct {
	mode           models.SessionMode
	token          string
	user           models.User
	guestSessionID string
	profile        models.GuestProfile
}

// ChatOutcome is what one send/receive cycle produces for rendering.
type ChatOutcome struct {
	BotMessage          models.Message
	Stage               stage.Stage
	Hint                string
	SuggestRegistration bool
}

// Controller is the top-level session mode orchestrator for one user.
type Controller struct {
	userID   string
	backend  Backend
	state    *conversation.StateStore
	guest    store.Store
	ids      *identity.Assigner
	migrator *migration.Migrator
	playback PlaybackStopper

	mu       sync.Mutex
	ctx      sessionContext
	snapshot models.ConversationSnapshot
	suggest  bool
}

// NewController creates a guest-mode controller, restoring the guest session
// id and profile markers from the guest tier when present. The assigner must
// be the same one the state store uses, so ids stay stable across loads.
func NewController(userID string, backend Backend, state *conversation.StateStore, guest store.Store, ids *identity.Assigner, migrator *migration.Migrator, playback PlaybackStopper) *Controller {
	c := &Controller{
		userID:   userID,
		backend:  backend,
		state:    state,
		guest:    guest,
		ids:      ids,
		migrator: migrator,
		playback: playback,
		ctx:      sessionContext{mode: models.ModeGuest},
	}
	c.restoreGuestMarkers()
	return c
}

// Restore loads the initial guest snapshot. Called once at startup.
func (c *Controller) Restore(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, err := c.state.Load(ctx, c.ctx.token)
	if err != nil {
		slog.Error("Controller failed to restore snapshot", "error", err, "userID", c.userID)
		return
	}
	c.snapshot = snap
}

// Mode returns the active session mode.
func (c *Controller) Mode() models.SessionMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx.mode
}

// User returns the authenticated account, zero in guest mode.
func (c *Controller) User() models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx.user
}

// Snapshot returns a copy of the live conversation snapshot.
func (c *Controller) Snapshot() models.ConversationSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Clone()
}

// DisplayStage infers the stage to show for the current snapshot.
func (c *Controller) DisplayStage() stage.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return stage.Infer(c.snapshot.Stage, c.snapshot.Messages)
}

// SuggestRegistration reports whether the last guest exchange asked to nudge
// the user toward registration.
func (c *Controller) SuggestRegistration() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suggest
}

// SetGuestProfile records the optional display name and birth date that are
// forwarded on guest chat calls and folded into the migration payload.
func (c *Controller) SetGuestProfile(profile models.GuestProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx.profile = profile
	c.persistGuestMarker(store.KeyProfileName, profile.Name)
	c.persistGuestMarker(store.KeyProfileBirthDate, profile.BirthDate)
}

// SendMessage runs one send/receive cycle. The optimistic user message is
// appended (and persisted in guest mode) before the remote call, and stays
// in the transcript even when the call fails; the bot reply is only
// appended on success. A 401 in authenticated mode demotes to guest and
// returns ErrSessionExpired.
func (c *Controller) SendMessage(ctx context.Context, text string) (ChatOutcome, error) {
	if err := models.ValidateChatMessage(text); err != nil {
		return ChatOutcome{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	userMsg := c.ids.Assign(models.Message{Role: models.RoleUser, Text: text})
	c.snapshot.Messages = append(c.snapshot.Messages, userMsg)
	c.persistSnapshot()

	token := c.ctx.token
	var guestSessionID string
	var profile *models.GuestProfile
	if c.ctx.mode == models.ModeGuest {
		guestSessionID = c.guestSessionIDLocked()
		if !c.ctx.profile.IsEmpty() {
			p := c.ctx.profile
			profile = &p
		}
	}

	res, err := c.backend.Chat(ctx, token, text, guestSessionID, profile)
	if err != nil {
		if errors.Is(err, gateway.ErrUnauthorized) && c.ctx.mode == models.ModeAuthenticated {
			c.demoteLocked()
			return ChatOutcome{}, ErrSessionExpired
		}
		slog.Error("Controller chat call failed", "error", err, "userID", c.userID)
		return ChatOutcome{}, fmt.Errorf("chat failed: %w", err)
	}

	botMsg := c.ids.Assign(models.Message{Role: models.RoleBot, Text: res.Reply, Meta: res.Stage})
	c.snapshot.Messages = append(c.snapshot.Messages, botMsg)
	c.snapshot.Stage = res.Stage
	c.snapshot.Hint = res.Hint
	c.suggest = res.SuggestRegistration && c.ctx.mode == models.ModeGuest
	c.persistSnapshot()

	return ChatOutcome{
		BotMessage:          botMsg,
		Stage:               stage.Infer(res.Stage, c.snapshot.Messages),
		Hint:                res.Hint,
		SuggestRegistration: c.suggest,
	}, nil
}

// Login authenticates by phone and promotes to authenticated mode.
func (c *Controller) Login(ctx context.Context, phone string) (models.User, error) {
	result, err := c.backend.Login(ctx, phone)
	if err != nil {
		return models.User{}, err
	}
	c.promote(ctx, result)
	return result.User, nil
}

// Register creates an account and promotes to authenticated mode.
func (c *Controller) Register(ctx context.Context, phone, name, birthDate string) (models.User, error) {
	result, err := c.backend.Register(ctx, phone, name, birthDate)
	if err != nil {
		return models.User{}, err
	}
	c.promote(ctx, result)
	return result.User, nil
}

// promote switches guest → authenticated. The guest transcript is migrated
// exactly once per successful authentication: a duplicate success event
// (e.g. a retried login) finds the controller already authenticated and
// only refreshes credentials. Guest-tier state is cleared unconditionally,
// whether or not migration succeeded.
func (c *Controller) promote(ctx context.Context, result models.LoginResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.playback.Stop()

	if c.ctx.mode == models.ModeGuest {
		turns := migration.Build(c.snapshot.Messages)
		c.migrator.Migrate(ctx, result.Token, turns, c.ctx.profile)
		if err := c.state.ClearGuestTier(); err != nil {
			slog.Error("Controller failed to clear guest tier on promote", "error", err, "userID", c.userID)
		}
		c.ctx.guestSessionID = ""
		c.ctx.profile = models.GuestProfile{}
	}

	c.ctx.mode = models.ModeAuthenticated
	c.ctx.token = result.Token
	c.ctx.user = result.User
	c.suggest = false
	c.state.SetMode(models.ModeAuthenticated)

	snap, err := c.state.Load(ctx, c.ctx.token)
	if err != nil {
		slog.Error("Controller failed to load remote history after promote", "error", err, "userID", c.userID)
		c.snapshot = models.ConversationSnapshot{}
		return
	}
	c.snapshot = snap
	slog.Info("Controller promoted to authenticated mode", "userID", c.userID, "account_id", result.User.ID)
}

// Logout clears credentials and all guest markers, abandons the old guest
// transcript, and starts a brand-new guest session.
func (c *Controller) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.playback.Stop()
	c.ctx = sessionContext{mode: models.ModeGuest}
	c.suggest = false
	c.state.SetMode(models.ModeGuest)
	if err := c.state.ClearGuestTier(); err != nil {
		slog.Error("Controller failed to clear guest tier on logout", "error", err, "userID", c.userID)
	}
	c.snapshot = models.ConversationSnapshot{}
	c.guestSessionIDLocked() // mint and persist the new guest session id
	slog.Info("Controller logged out", "userID", c.userID)
}

// demoteLocked handles authenticated → guest on auth failure: credentials
// are cleared and a fresh guest session begins. The previously cached guest
// snapshot is not restored. Callers hold c.mu.
func (c *Controller) demoteLocked() {
	c.playback.Stop()
	c.ctx = sessionContext{mode: models.ModeGuest}
	c.suggest = false
	c.state.SetMode(models.ModeGuest)
	c.snapshot = models.ConversationSnapshot{}
	slog.Warn("Controller demoted to guest mode after auth failure", "userID", c.userID)
}

// ClearHistory empties the conversation. Authenticated mode clears the
// remote history; guest mode removes the persisted local transcript.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.mode == models.ModeAuthenticated {
		if err := c.backend.DeleteSessions(ctx, c.ctx.token); err != nil {
			if errors.Is(err, gateway.ErrUnauthorized) {
				c.demoteLocked()
				return ErrSessionExpired
			}
			return fmt.Errorf("failed to clear history: %w", err)
		}
	}
	c.snapshot = models.ConversationSnapshot{}
	c.persistSnapshot()
	return nil
}

// SupportLink requests a payment link. Authenticated only.
func (c *Controller) SupportLink(ctx context.Context, amount float64, description string) (models.PaymentResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.mode != models.ModeAuthenticated {
		return models.PaymentResult{}, models.ErrNotAuthenticated
	}
	result, err := c.backend.CreatePayment(ctx, c.ctx.token, amount, description)
	if err != nil {
		if errors.Is(err, gateway.ErrUnauthorized) {
			c.demoteLocked()
			return models.PaymentResult{}, ErrSessionExpired
		}
		return models.PaymentResult{}, err
	}
	return result, nil
}

// Transcribe converts recorded audio to text via the backend.
func (c *Controller) Transcribe(ctx context.Context, audioBase64 string) (string, error) {
	return c.backend.Transcribe(ctx, audioBase64)
}

// persistSnapshot writes the live snapshot to the active tier. Guest-tier
// write failures are logged, never fatal.
func (c *Controller) persistSnapshot() {
	if err := c.state.Save(c.snapshot); err != nil {
		slog.Error("Controller failed to persist snapshot", "error", err, "userID", c.userID)
	}
}

// guestSessionIDLocked returns the guest session id, minting and persisting
// one on first use. Callers hold c.mu.
func (c *Controller) guestSessionIDLocked() string {
	if c.ctx.guestSessionID == "" {
		c.ctx.guestSessionID = identity.NewGuestSessionID()
		c.persistGuestMarker(store.KeyGuestSessionID, c.ctx.guestSessionID)
	}
	return c.ctx.guestSessionID
}

// restoreGuestMarkers reloads the guest session id and profile fields
// persisted by a prior run.
func (c *Controller) restoreGuestMarkers() {
	if v, ok, err := c.guest.Get(c.userID, store.KeyGuestSessionID); err == nil && ok {
		c.ctx.guestSessionID = v
	}
	if v, ok, err := c.guest.Get(c.userID, store.KeyProfileName); err == nil && ok {
		c.ctx.profile.Name = v
	}
	if v, ok, err := c.guest.Get(c.userID, store.KeyProfileBirthDate); err == nil && ok {
		c.ctx.profile.BirthDate = v
	}
}

func (c *Controller) persistGuestMarker(key, value string) {
	var err error
	if value == "" {
		err = c.guest.Delete(c.userID, key)
	} else {
		err = c.guest.Set(c.userID, key, value)
	}
	if err != nil {
		slog.Error("Controller failed to persist guest marker", "error", err, "userID", c.userID, "key", key)
	}
}
