package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dreamtalk/dreamtalk/internal/models"
)

type fakeSynth struct {
	mu      sync.Mutex
	err     error
	block   chan struct{} // when non-nil, Synthesize waits until closed
	started chan string   // receives the text of each started synthesis
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	block := f.block
	started := f.started
	err := f.err
	f.mu.Unlock()
	if started != nil {
		started <- text
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return []byte("audio:" + text), nil
}

type fakePlayer struct {
	mu     sync.Mutex
	plays  []string
	stops  int
	active bool
}

func (f *fakePlayer) Play(ctx context.Context, messageID string, audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		return errors.New("audio resource already held")
	}
	f.active = true
	f.plays = append(f.plays, messageID)
	return nil
}

func (f *fakePlayer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.active = false
	return nil
}

func botMsg(id, text string) models.Message {
	return models.Message{ID: id, Role: models.RoleBot, Text: text}
}

func TestRequestPlayOnlyBotMessages(t *testing.T) {
	c := NewController(&fakeSynth{}, &fakePlayer{})
	err := c.RequestPlay(context.Background(), models.Message{ID: "m", Role: models.RoleUser, Text: "x"})
	if !errors.Is(err, models.ErrMessageNotPlayable) {
		t.Fatalf("expected ErrMessageNotPlayable, got %v", err)
	}
}

func TestRequestPlayThenToggleStops(t *testing.T) {
	player := &fakePlayer{}
	c := NewController(&fakeSynth{}, player)
	msg := botMsg("msg_a", "ответ")

	if err := c.RequestPlay(context.Background(), msg); err != nil {
		t.Fatalf("first RequestPlay failed: %v", err)
	}
	if st := c.State(); st.Status != models.PlaybackPlaying || st.ActiveMessageID != "msg_a" {
		t.Fatalf("expected playing msg_a, got %+v", st)
	}

	// Second request for the same message toggles to stop.
	if err := c.RequestPlay(context.Background(), msg); err != nil {
		t.Fatalf("toggle RequestPlay failed: %v", err)
	}
	if st := c.State(); st.Status != models.PlaybackIdle || st.ActiveMessageID != "" {
		t.Fatalf("expected idle after toggle, got %+v", st)
	}
	player.mu.Lock()
	defer player.mu.Unlock()
	if player.active {
		t.Error("audio resource not released on toggle")
	}
}

func TestRequestPlaySupersedesInFlight(t *testing.T) {
	synth := &fakeSynth{block: make(chan struct{}), started: make(chan string, 2)}
	player := &fakePlayer{}
	c := NewController(synth, player)

	done := make(chan error, 1)
	go func() {
		done <- c.RequestPlay(context.Background(), botMsg("msg_a", "первый"))
	}()
	<-synth.started // A's synthesis is in flight

	// B supersedes A before A resolves. B's own synthesis must not block.
	synth.mu.Lock()
	blockA := synth.block
	synth.block = nil
	synth.mu.Unlock()
	if err := c.RequestPlay(context.Background(), botMsg("msg_b", "второй")); err != nil {
		t.Fatalf("RequestPlay(B) failed: %v", err)
	}

	// Now let A's stale synthesis resolve.
	close(blockA)

	// A's request must complete without activating A's playback.
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("superseded request should resolve silently, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded request never resolved")
	}

	if st := c.State(); st.Status != models.PlaybackPlaying || st.ActiveMessageID != "msg_b" {
		t.Fatalf("expected only B active, got %+v", st)
	}
	player.mu.Lock()
	defer player.mu.Unlock()
	for _, id := range player.plays {
		if id == "msg_a" {
			t.Error("superseded message must never reach the player")
		}
	}
}

func TestSynthesisFailureResetsToIdle(t *testing.T) {
	synth := &fakeSynth{err: errors.New("tts down")}
	c := NewController(synth, &fakePlayer{})

	err := c.RequestPlay(context.Background(), botMsg("msg_a", "ответ"))
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("expected ErrSynthesisFailed, got %v", err)
	}
	if st := c.State(); st.Status != models.PlaybackIdle || st.ActiveMessageID != "" {
		t.Fatalf("expected idle after failure, got %+v", st)
	}

	// The controller remains usable after a failure.
	synth.mu.Lock()
	synth.err = nil
	synth.mu.Unlock()
	if err := c.RequestPlay(context.Background(), botMsg("msg_b", "второй")); err != nil {
		t.Fatalf("controller unusable after failure: %v", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	player := &fakePlayer{}
	c := NewController(&fakeSynth{}, player)

	c.Stop()
	c.Stop()
	if err := c.RequestPlay(context.Background(), botMsg("msg_a", "ответ")); err != nil {
		t.Fatalf("RequestPlay failed: %v", err)
	}
	c.Stop()
	c.Stop()
	if st := c.State(); st.Status != models.PlaybackIdle {
		t.Fatalf("expected idle, got %+v", st)
	}
}
