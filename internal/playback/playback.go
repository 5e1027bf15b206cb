// Package playback arbitrates the single process-wide audio resource used
// to voice bot replies.
//
// The controller is a small state machine (idle → loading → playing → idle)
// with toggle-to-stop semantics: requesting the message that is already
// playing stops it, and requesting a different message supersedes whatever
// is in flight. A synthesis result that arrives after its request was
// superseded or stopped is discarded, so rapid toggling never leaks the
// audio handle.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dreamtalk/dreamtalk/internal/models"
)

// ErrSynthesisFailed wraps text-to-speech failures; the controller has
// already reset itself to idle when this is returned.
var ErrSynthesisFailed = errors.New("voice synthesis failed")

// Synthesizer is the remote text-to-speech collaborator.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player owns the underlying audio resource. Implementations deliver the
// audio (e.g. as a messenger voice note) and release the resource on Stop.
type Player interface {
	// Play acquires the resource and starts playback of the given audio.
	Play(ctx context.Context, messageID string, audio []byte) error
	// Stop releases the resource; stopping an idle player is a no-op.
	Stop() error
}

// Controller is the single-flight playback state machine. Safe for
// concurrent use; only one underlying audio resource is ever held.
type Controller struct {
	tts    Synthesizer
	player Player

	mu         sync.Mutex
	status     models.PlaybackStatus
	activeID   string
	generation uint64
	cancel     context.CancelFunc
}

// NewController creates an idle Controller.
func NewController(tts Synthesizer, player Player) *Controller {
	return &Controller{tts: tts, player: player, status: models.PlaybackIdle}
}

// State returns a copy of the current playback state.
func (c *Controller) State() models.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.PlaybackState{Status: c.status, ActiveMessageID: c.activeID}
}

// RequestPlay voices a bot message. Requesting the currently playing message
// stops it instead (toggle). Any other active playback or in-flight load is
// superseded first. On synthesis failure the controller resets to idle and
// returns a recoverable error.
func (c *Controller) RequestPlay(ctx context.Context, msg models.Message) error {
	if msg.Role != models.RoleBot {
		return models.ErrMessageNotPlayable
	}

	c.mu.Lock()
	if c.status == models.PlaybackPlaying && c.activeID == msg.ID {
		slog.Debug("Playback toggle-to-stop", "messageID", msg.ID)
		c.stopLocked()
		c.mu.Unlock()
		return nil
	}

	// Supersede whatever is loading or playing.
	c.stopLocked()
	c.status = models.PlaybackLoading
	c.activeID = msg.ID
	c.generation++
	gen := c.generation
	loadCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	slog.Debug("Playback loading", "messageID", msg.ID)
	audio, err := c.tts.Synthesize(loadCtx, msg.Text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		// Superseded or stopped while the request was in flight; the
		// result belongs to a conversation state that no longer exists.
		slog.Debug("Playback discarding stale synthesis result", "messageID", msg.ID)
		return nil
	}
	cancel()
	c.cancel = nil

	if err != nil {
		slog.Error("Playback synthesis failed", "error", err, "messageID", msg.ID)
		c.status = models.PlaybackIdle
		c.activeID = ""
		return fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	if err := c.player.Play(ctx, msg.ID, audio); err != nil {
		slog.Error("Playback failed to start audio", "error", err, "messageID", msg.ID)
		c.status = models.PlaybackIdle
		c.activeID = ""
		return fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	c.status = models.PlaybackPlaying
	slog.Info("Playback started", "messageID", msg.ID)
	return nil
}

// Stop unconditionally releases the audio resource and idles the
// controller. Safe to call any number of times, in any state.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// stopLocked cancels any in-flight load, releases the player, and resets to
// idle. Callers hold c.mu.
func (c *Controller) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	if err := c.player.Stop(); err != nil {
		slog.Error("Playback failed to release audio resource", "error", err)
	}
	c.status = models.PlaybackIdle
	c.activeID = ""
}
