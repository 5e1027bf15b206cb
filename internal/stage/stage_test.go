package stage

import (
	"testing"

	"github.com/dreamtalk/dreamtalk/internal/models"
)

func TestInferExplicitWins(t *testing.T) {
	msgs := []models.Message{
		{ID: "1", Role: models.RoleBot, Text: "x", Meta: "stage: greeting"},
	}
	if got := Infer("closing", msgs); got != StageClosing {
		t.Errorf("explicit stage should win regardless of content, got %q", got)
	}
	if got := Infer("Analysis", nil); got != StageAnalysis {
		t.Errorf("explicit stage should parse case-insensitively, got %q", got)
	}
}

func TestInferFromMetaLabels(t *testing.T) {
	tests := []struct {
		name string
		msgs []models.Message
		want Stage
	}{
		{
			name: "newest bot meta wins",
			msgs: []models.Message{
				{ID: "1", Role: models.RoleBot, Text: "a", Meta: "greeting"},
				{ID: "2", Role: models.RoleUser, Text: "b"},
				{ID: "3", Role: models.RoleBot, Text: "c", Meta: "... analysis ..."},
			},
			want: StageAnalysis,
		},
		{
			name: "user meta is ignored",
			msgs: []models.Message{
				{ID: "1", Role: models.RoleUser, Text: "a", Meta: "closing"},
				{ID: "2", Role: models.RoleBot, Text: "b", Meta: "exploration"},
			},
			want: StageExploration,
		},
		{
			name: "case-insensitive substring",
			msgs: []models.Message{
				{ID: "1", Role: models.RoleBot, Text: "a", Meta: "Stage=CLOSING; final"},
			},
			want: StageClosing,
		},
		{
			name: "no labels defaults to exploration",
			msgs: []models.Message{
				{ID: "1", Role: models.RoleUser, Text: "a"},
				{ID: "2", Role: models.RoleBot, Text: "b"},
			},
			want: StageExploration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Infer("", tt.msgs); got != tt.want {
				t.Errorf("Infer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInferEmptyTranscript(t *testing.T) {
	if got := Infer("", nil); got != StageNone {
		t.Errorf("empty transcript should infer StageNone, got %q", got)
	}
}

func TestInferDoesNotEnforceProgression(t *testing.T) {
	// A regressing meta label regresses the displayed stage. This mirrors
	// the backend's observable behavior and is intentionally not clamped.
	msgs := []models.Message{
		{ID: "1", Role: models.RoleBot, Text: "a", Meta: "analysis"},
		{ID: "2", Role: models.RoleBot, Text: "b", Meta: "greeting"},
	}
	if got := Infer("", msgs); got != StageGreeting {
		t.Errorf("expected regression to greeting, got %q", got)
	}
}

func TestParseAndLabel(t *testing.T) {
	if Parse("nonsense") != StageNone {
		t.Error("unknown label should parse to StageNone")
	}
	if Label(StageNone) != "" {
		t.Error("StageNone should have no label")
	}
	for _, s := range canonical {
		if Label(s) == "" {
			t.Errorf("stage %q is missing a display label", s)
		}
	}
}
