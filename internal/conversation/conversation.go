// Package conversation owns the durable representation of the transcript,
// stage, and hint for the current session mode.
//
// In guest mode the snapshot round-trips through the device-local guest
// tier after every mutation. In authenticated mode the remote backend is
// authoritative: Load reconstructs the snapshot from the session history and
// Save is a no-op. Mode switches never merge snapshots; migrating a guest
// transcript into an account is the migration package's job.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dreamtalk/dreamtalk/internal/identity"
	"github.com/dreamtalk/dreamtalk/internal/models"
	"github.com/dreamtalk/dreamtalk/internal/store"
)

// HistoryFetcher is the slice of the gateway client needed here.
type HistoryFetcher interface {
	Sessions(ctx context.Context, token string) ([]models.SessionRecord, error)
}

// StateStore loads and saves ConversationSnapshots for one user, switching
// persistence rules with the active session mode.
type StateStore struct {
	userID string
	mode   models.SessionMode
	guest  store.Store
	remote HistoryFetcher
	ids    *identity.Assigner
}

// New creates a StateStore starting in guest mode.
func New(userID string, guest store.Store, remote HistoryFetcher, ids *identity.Assigner) *StateStore {
	return &StateStore{
		userID: userID,
		mode:   models.ModeGuest,
		guest:  guest,
		remote: remote,
		ids:    ids,
	}
}

// Mode returns the active session mode.
func (s *StateStore) Mode() models.SessionMode {
	return s.mode
}

// SetMode switches the persistence tier. Only the session controller may
// call this; it is responsible for migration and clearing around the switch.
func (s *StateStore) SetMode(mode models.SessionMode) {
	slog.Debug("StateStore mode switch", "userID", s.userID, "from", s.mode, "to", mode)
	s.mode = mode
}

// Load reads the snapshot for the current mode. Guest mode reads the guest
// tier, treating corrupt entries as absent; authenticated mode fetches the
// remote history and reconstructs message pairs in chronological order.
func (s *StateStore) Load(ctx context.Context, token string) (models.ConversationSnapshot, error) {
	if s.mode == models.ModeAuthenticated {
		return s.loadRemote(ctx, token)
	}
	return s.loadGuest(), nil
}

// Save persists the snapshot. Guest mode writes transcript, stage, and hint
// as three independent keys; authenticated mode is a no-op because the
// backend already persisted the exchange.
func (s *StateStore) Save(snapshot models.ConversationSnapshot) error {
	if s.mode == models.ModeAuthenticated {
		return nil
	}
	return s.saveGuest(snapshot)
}

// ClearGuestTier removes every guest-tier key for the user, including the
// session id and profile markers.
func (s *StateStore) ClearGuestTier() error {
	if err := s.guest.ClearUser(s.userID); err != nil {
		return fmt.Errorf("failed to clear guest tier: %w", err)
	}
	slog.Info("StateStore guest tier cleared", "userID", s.userID)
	return nil
}

// loadGuest never fails: a parse failure means "no transcript", and the
// corrupt entry is discarded so it cannot resurface.
func (s *StateStore) loadGuest() models.ConversationSnapshot {
	var snapshot models.ConversationSnapshot

	raw, ok, err := s.guest.Get(s.userID, store.KeyTranscript)
	if err != nil {
		slog.Error("StateStore guest transcript read failed", "error", err, "userID", s.userID)
	} else if ok {
		var msgs []models.Message
		if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
			slog.Warn("StateStore discarding corrupt guest transcript", "error", err, "userID", s.userID)
			if delErr := s.guest.Delete(s.userID, store.KeyTranscript); delErr != nil {
				slog.Error("StateStore failed to discard corrupt transcript", "error", delErr, "userID", s.userID)
			}
		} else {
			snapshot.Messages = s.ids.AssignAll(msgs)
		}
	}

	if v, ok, err := s.guest.Get(s.userID, store.KeyStage); err == nil && ok {
		snapshot.Stage = v
	}
	if v, ok, err := s.guest.Get(s.userID, store.KeyHint); err == nil && ok {
		snapshot.Hint = v
	}

	slog.Debug("StateStore guest snapshot loaded", "userID", s.userID, "messages", len(snapshot.Messages))
	return snapshot
}

func (s *StateStore) saveGuest(snapshot models.ConversationSnapshot) error {
	if len(snapshot.Messages) == 0 {
		// Keep the persisted tier minimal: remove rather than write an
		// empty placeholder.
		if err := s.guest.Delete(s.userID, store.KeyTranscript); err != nil {
			return err
		}
	} else {
		encoded, err := json.Marshal(snapshot.Messages)
		if err != nil {
			return fmt.Errorf("failed to encode guest transcript: %w", err)
		}
		if err := s.guest.Set(s.userID, store.KeyTranscript, string(encoded)); err != nil {
			return err
		}
	}

	if err := s.writeOrDelete(store.KeyStage, snapshot.Stage); err != nil {
		return err
	}
	if err := s.writeOrDelete(store.KeyHint, snapshot.Hint); err != nil {
		return err
	}
	slog.Debug("StateStore guest snapshot saved", "userID", s.userID, "messages", len(snapshot.Messages))
	return nil
}

func (s *StateStore) writeOrDelete(key, value string) error {
	if value == "" {
		return s.guest.Delete(s.userID, key)
	}
	return s.guest.Set(s.userID, key, value)
}

// loadRemote reconstructs a snapshot from the backend history. Records
// arrive most-recent-first and are reversed to chronological order; each
// expands into a user message and a bot message whose meta carries the
// record's mood/stage label.
func (s *StateStore) loadRemote(ctx context.Context, token string) (models.ConversationSnapshot, error) {
	records, err := s.remote.Sessions(ctx, token)
	if err != nil {
		return models.ConversationSnapshot{}, err
	}

	msgs := make([]models.Message, 0, len(records)*2)
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		msgs = append(msgs,
			models.Message{Role: models.RoleUser, Text: rec.Message},
			models.Message{Role: models.RoleBot, Text: rec.Response, Meta: rec.Mood},
		)
	}

	snapshot := models.ConversationSnapshot{Messages: s.ids.AssignAll(msgs)}
	slog.Debug("StateStore remote snapshot loaded", "userID", s.userID, "records", len(records))
	return snapshot, nil
}
