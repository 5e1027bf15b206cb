// Package models defines the core data structures for dreamtalk.
//
// It includes the conversation transcript types, session modes, and the wire
// shapes exchanged with the remote dream-interpretation backend, shared
// across modules.
package models

import (
	"errors"
	"time"
)

// Role identifies which side of the conversation produced a message.
type Role string

const (
	// RoleUser marks a message typed (or spoken) by the person.
	RoleUser Role = "user"
	// RoleBot marks a reply produced by the remote assistant.
	RoleBot Role = "bot"
)

// IsValidRole checks if the given role is supported.
func IsValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleBot:
		return true
	default:
		return false
	}
}

// Validation constants for input validation
const (
	// MaxChatMessageLength defines the maximum allowed length for an outgoing chat message
	MaxChatMessageLength = 2000
	// MaxTTSTextLength defines the maximum allowed length for text-to-speech input
	MaxTTSTextLength = 5000
)

// Error variables for better error handling and testability
var (
	ErrEmptyMessage       = errors.New("message text cannot be empty")
	ErrMessageTooLong     = errors.New("message text exceeds maximum length")
	ErrInvalidRole        = errors.New("invalid message role")
	ErrEmptyPhone         = errors.New("phone cannot be empty")
	ErrInvalidPhone       = errors.New("invalid phone number format")
	ErrEmptyName          = errors.New("name cannot be empty")
	ErrNumericName        = errors.New("name cannot consist only of digits")
	ErrEmptyBirthDate     = errors.New("birth date is required")
	ErrInvalidBirthDate   = errors.New("birth date must be in YYYY-MM-DD or DD.MM.YYYY format")
	ErrFutureBirthDate    = errors.New("birth date cannot be in the future")
	ErrNotAuthenticated   = errors.New("operation requires an authenticated session")
	ErrInvalidAmount      = errors.New("payment amount must be positive")
	ErrMessageNotPlayable = errors.New("only bot messages can be played back")
)

// Message is a single transcript entry. ID is assigned once by the identity
// assigner and never reassigned; two messages are the same entity iff their
// ids are equal. Meta carries the backend's stage label on bot messages.
type Message struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Text string `json:"text"`
	Meta string `json:"meta,omitempty"`
}

// Validate performs basic validation on a Message.
func (m *Message) Validate() error {
	if !IsValidRole(m.Role) {
		return ErrInvalidRole
	}
	return nil
}

// Turn pairs one user utterance with the following bot reply. It is derived,
// never stored, and exists only as the migration wire format.
type Turn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// SessionMode identifies which persistence tier is authoritative.
type SessionMode string

const (
	// ModeGuest operates without an account; state lives in the guest tier.
	ModeGuest SessionMode = "guest"
	// ModeAuthenticated operates against the remote backend's history.
	ModeAuthenticated SessionMode = "authenticated"
)

// IsValidSessionMode checks if the given session mode is supported.
func IsValidSessionMode(m SessionMode) bool {
	switch m {
	case ModeGuest, ModeAuthenticated:
		return true
	default:
		return false
	}
}

// GuestProfile carries the optional display name and birth date forwarded to
// the backend on guest chat calls and folded into the migration payload.
type GuestProfile struct {
	Name      string `json:"name,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
}

// IsEmpty reports whether the profile carries no data at all.
func (p GuestProfile) IsEmpty() bool {
	return p.Name == "" && p.BirthDate == ""
}

// ConversationSnapshot is the unit of persistence and of UI refresh: the
// ordered transcript plus the display stage and the backend's hint.
type ConversationSnapshot struct {
	Messages []Message `json:"messages"`
	Stage    string    `json:"stage,omitempty"`
	Hint     string    `json:"hint,omitempty"`
}

// Clone returns a deep copy so callers can mutate freely without aliasing
// the live snapshot.
func (s ConversationSnapshot) Clone() ConversationSnapshot {
	out := ConversationSnapshot{Stage: s.Stage, Hint: s.Hint}
	if len(s.Messages) > 0 {
		out.Messages = make([]Message, len(s.Messages))
		copy(out.Messages, s.Messages)
	}
	return out
}

// PlaybackStatus represents the voice playback controller's state.
type PlaybackStatus string

const (
	// PlaybackIdle means no audio resource is held.
	PlaybackIdle PlaybackStatus = "idle"
	// PlaybackLoading means a text-to-speech request is in flight.
	PlaybackLoading PlaybackStatus = "loading"
	// PlaybackPlaying means audio for the active message is playing.
	PlaybackPlaying PlaybackStatus = "playing"
)

// PlaybackState describes the single process-wide playback resource.
type PlaybackState struct {
	Status          PlaybackStatus `json:"status"`
	ActiveMessageID string         `json:"active_message_id,omitempty"`
}

// User is the backend's account record returned on login/registration.
type User struct {
	ID        int64  `json:"id"`
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	BirthDate string `json:"birth_date,omitempty"`
}

// LoginResult is the response of POST /auth/login and /auth/register.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ChatResult is the response of POST /chat.
type ChatResult struct {
	Reply               string `json:"reply"`
	Stage               string `json:"stage,omitempty"`
	Hint                string `json:"hint,omitempty"`
	SuggestRegistration bool   `json:"suggest_registration,omitempty"`
}

// SessionRecord is one entry of GET /sessions: a persisted exchange with the
// mood/stage label the backend attached to it. The list arrives
// most-recent-first.
type SessionRecord struct {
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Mood      string    `json:"mood,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Inbound is one incoming messenger event from a user: plain text, or a
// voice note carrying the raw audio payload.
type Inbound struct {
	From  string
	Text  string
	Audio []byte
	Time  int64
}

// PaymentResult is the response of POST /payments.
type PaymentResult struct {
	PaymentURL string `json:"payment_url"`
	InvoiceID  string `json:"invoice_id"`
}
