// Package migration converts a flat guest transcript into ordered turn
// records and submits them once on successful authentication.
//
// Failure to migrate is never fatal: the user stays logged in and simply
// loses the unmigrated guest transcript.
package migration

import (
	"context"
	"log/slog"

	"github.com/dreamtalk/dreamtalk/internal/models"
)

// Build pairs the flat message sequence into turns, scanning chronologically
// with a single pending-user-text slot:
//
//   - a user message overwrites the pending slot, so the earlier of two
//     consecutive user messages is dropped — a known quirk of the pairing
//     contract, kept deliberately because the backend's turn format has no
//     place for it;
//   - a bot message emits a turn when the slot is set or the bot text is
//     non-empty, then clears the slot;
//   - a trailing unanswered user message emits a final turn with an empty
//     bot side.
//
// Build is pure; result ordering matches input order.
func Build(msgs []models.Message) []models.Turn {
	var turns []models.Turn
	var pending string
	var pendingSet bool

	for _, m := range msgs {
		switch m.Role {
		case models.RoleUser:
			pending = m.Text
			pendingSet = true
		case models.RoleBot:
			if pendingSet || m.Text != "" {
				turns = append(turns, models.Turn{User: pending, Bot: m.Text})
				pending = ""
				pendingSet = false
			}
		}
	}

	if pendingSet {
		turns = append(turns, models.Turn{User: pending, Bot: ""})
	}
	return turns
}

// Submitter is the slice of the gateway client needed to submit a batch.
type Submitter interface {
	MigrateGuestSession(ctx context.Context, token string, turns []models.Turn, profile models.GuestProfile) error
}

// Migrator submits built turn batches to the remote migration endpoint.
type Migrator struct {
	remote Submitter
}

// NewMigrator creates a Migrator over the given submitter.
func NewMigrator(remote Submitter) *Migrator {
	return &Migrator{remote: remote}
}

// Migrate submits the batch once. An empty batch is skipped entirely; any
// remote failure is logged and swallowed. The caller (the session mode
// controller) guarantees at most one call per successful authentication.
func (m *Migrator) Migrate(ctx context.Context, token string, turns []models.Turn, profile models.GuestProfile) {
	if len(turns) == 0 {
		slog.Debug("Migrator skipping empty guest transcript")
		return
	}

	if err := m.remote.MigrateGuestSession(ctx, token, turns, profile); err != nil {
		slog.Error("Migrator failed to import guest transcript; continuing without it", "error", err, "turns", len(turns))
		return
	}
	slog.Info("Migrator imported guest transcript", "turns", len(turns))
}
