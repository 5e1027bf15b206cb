// Package gateway implements the HTTP client for the remote dream
// interpretation backend.
//
// The backend owns token issuance, the LLM pipeline, speech conversion and
// payment links; this package is a thin typed wrapper over its REST
// contract. Unauthorized responses surface as ErrUnauthorized so the session
// controller can demote to guest mode instead of crashing.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dreamtalk/dreamtalk/internal/models"
	"github.com/google/uuid"
)

// DefaultTimeout bounds every backend call.
const DefaultTimeout = 15 * time.Second

// Error variables for remote call classification.
var (
	// ErrUnauthorized is returned when the backend rejects the bearer token.
	ErrUnauthorized = errors.New("backend rejected credentials")
	// ErrUserNotFound is returned when login hits an unknown phone number.
	ErrUserNotFound = errors.New("user not found")
	// ErrAlreadyRegistered is returned when registering an existing phone.
	ErrAlreadyRegistered = errors.New("phone already registered")
)

// Opts holds configuration options for the gateway client.
type Opts struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option defines a configuration option for the gateway client.
type Option func(*Opts)

// WithBaseURL sets the backend base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithHTTPClient injects a custom HTTP client (used by tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = c
	}
}

// Client talks to the remote backend. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a gateway client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		slog.Error("Gateway base URL not set")
		return nil, fmt.Errorf("gateway base URL not set")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	slog.Debug("Gateway client created", "base_url_set", true, "timeout", timeout)
	return &Client{baseURL: strings.TrimRight(cfg.BaseURL, "/"), http: httpClient}, nil
}

// chatRequest is the POST /chat payload. The guest fields are only sent for
// unauthenticated calls.
type chatRequest struct {
	Message        string               `json:"message"`
	GuestSessionID string               `json:"guest_session_id,omitempty"`
	GuestProfile   *models.GuestProfile `json:"guest_profile,omitempty"`
}

type migrateRequest struct {
	Turns   []models.Turn       `json:"turns"`
	Profile models.GuestProfile `json:"profile"`
}

// Login exchanges a phone number for a token. The phone is normalized first.
func (c *Client) Login(ctx context.Context, phone string) (models.LoginResult, error) {
	var out models.LoginResult
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return out, err
	}
	err = c.do(ctx, http.MethodPost, "/auth/login", "", map[string]string{"phone": normalized}, &out)
	if err != nil {
		slog.Debug("Gateway login failed", "error", err)
		return out, err
	}
	slog.Info("Gateway login succeeded", "user_id", out.User.ID)
	return out, nil
}

// Register creates an account and returns its first token.
func (c *Client) Register(ctx context.Context, phone, name, birthDate string) (models.LoginResult, error) {
	var out models.LoginResult
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return out, err
	}
	payload := map[string]string{"phone": normalized, "name": strings.TrimSpace(name), "birth_date": birthDate}
	err = c.do(ctx, http.MethodPost, "/auth/register", "", payload, &out)
	if err != nil {
		slog.Debug("Gateway register failed", "error", err)
		return out, err
	}
	slog.Info("Gateway register succeeded", "user_id", out.User.ID)
	return out, nil
}

// Chat sends one user message. With an empty token the guest session id and
// profile are forwarded so the backend can keep per-guest dialog state.
func (c *Client) Chat(ctx context.Context, token, message, guestSessionID string, profile *models.GuestProfile) (models.ChatResult, error) {
	var out models.ChatResult
	if err := models.ValidateChatMessage(message); err != nil {
		return out, err
	}
	req := chatRequest{Message: message}
	if token == "" {
		req.GuestSessionID = guestSessionID
		req.GuestProfile = profile
	}
	if err := c.do(ctx, http.MethodPost, "/chat", token, req, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Sessions fetches the persisted exchange history, most-recent-first as the
// backend returns it.
func (c *Client) Sessions(ctx context.Context, token string) ([]models.SessionRecord, error) {
	var out []models.SessionRecord
	if err := c.do(ctx, http.MethodGet, "/sessions", token, nil, &out); err != nil {
		return nil, err
	}
	slog.Debug("Gateway sessions fetched", "count", len(out))
	return out, nil
}

// DeleteSessions clears the remote history.
func (c *Client) DeleteSessions(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/sessions", token, nil, nil)
}

// MigrateGuestSession imports a guest transcript into the authenticated
// account as one completed session. The backend acknowledges without data.
func (c *Client) MigrateGuestSession(ctx context.Context, token string, turns []models.Turn, profile models.GuestProfile) error {
	return c.do(ctx, http.MethodPost, "/sessions/migrate", token, migrateRequest{Turns: turns, Profile: profile}, nil)
}

// Transcribe converts base64-encoded audio to text via POST /asr.
func (c *Client) Transcribe(ctx context.Context, audioBase64 string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.do(ctx, http.MethodPost, "/asr", "", map[string]string{"audio_base64": audioBase64}, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

// Synthesize converts text to audio bytes via POST /tts.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.ErrEmptyMessage
	}
	if len(text) > models.MaxTTSTextLength {
		return nil, models.ErrMessageTooLong
	}
	var out struct {
		AudioBase64 string `json:"audio_base64"`
	}
	if err := c.do(ctx, http.MethodPost, "/tts", "", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioBase64)
	if err != nil {
		slog.Error("Gateway TTS returned undecodable audio", "error", err)
		return nil, fmt.Errorf("failed to decode synthesized audio: %w", err)
	}
	return audio, nil
}

// CreatePayment requests a support payment link.
func (c *Client) CreatePayment(ctx context.Context, token string, amount float64, description string) (models.PaymentResult, error) {
	var out models.PaymentResult
	if amount <= 0 {
		return out, models.ErrInvalidAmount
	}
	payload := map[string]any{"amount": amount, "description": description}
	if err := c.do(ctx, http.MethodPost, "/payments", token, payload, &out); err != nil {
		return out, err
	}
	return out, nil
}

// do performs one JSON request/response cycle against the backend.
func (c *Client) do(ctx context.Context, method, path, token string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	// Correlation id, echoed back by the backend in its logs.
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("Gateway request failed", "error", err, "method", method, "path", path, "request_id", requestID)
		return fmt.Errorf("backend call %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyError(method, path, resp)
	}
	if respBody == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		slog.Error("Gateway response decode failed", "error", err, "method", method, "path", path)
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// classifyError maps backend error responses to sentinel errors where the
// caller behavior depends on them, wrapping the backend detail otherwise.
func classifyError(method, path string, resp *http.Response) error {
	detail := readDetail(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		slog.Debug("Gateway call unauthorized", "method", method, "path", path)
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound && path == "/auth/login":
		return ErrUserNotFound
	case resp.StatusCode == http.StatusConflict && path == "/auth/register":
		return ErrAlreadyRegistered
	case path == "/auth/register" && strings.Contains(strings.ToLower(detail), "already registered"):
		return ErrAlreadyRegistered
	}

	slog.Error("Gateway call returned error status", "method", method, "path", path, "status", resp.StatusCode, "detail", detail)
	if detail == "" {
		detail = resp.Status
	}
	return fmt.Errorf("backend call %s %s returned %d: %s", method, path, resp.StatusCode, detail)
}

// readDetail extracts FastAPI-style {"detail": ...} error bodies, falling
// back to the raw text.
func readDetail(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var parsed struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return strings.TrimSpace(string(raw))
}
