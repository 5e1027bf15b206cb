// Package stage derives the display-level conversation stage from whatever
// signals are available.
//
// The backend labels each exchange with one of four stages
// (greeting → exploration → analysis → closing). When the most recent
// exchange carries no explicit stage, the engine falls back to the newest
// bot message whose meta label mentions a stage, and finally to a default.
// Inference is a pure function and is safe to run on every render.
package stage

import (
	"strings"

	"github.com/dreamtalk/dreamtalk/internal/models"
)

// Stage is a coarse label describing dialog progress.
type Stage string

const (
	// StageNone is the state before the first exchange.
	StageNone Stage = ""
	// StageGreeting is the opening of a new dream conversation.
	StageGreeting Stage = "greeting"
	// StageExploration is the detail-gathering phase.
	StageExploration Stage = "exploration"
	// StageAnalysis is the interpretation phase.
	StageAnalysis Stage = "analysis"
	// StageClosing wraps up with recommendations.
	StageClosing Stage = "closing"
)

// canonical lists the stages in their intended progression order. The order
// is informational only: inference never enforces monotonicity, so a reset
// or hand-edited meta label can make the displayed stage regress.
var canonical = []Stage{StageGreeting, StageExploration, StageAnalysis, StageClosing}

// labels maps each stage to its display banner text.
var labels = map[Stage]string{
	StageGreeting:    "Приветствие",
	StageExploration: "Исследование деталей",
	StageAnalysis:    "Анализ образов",
	StageClosing:     "Завершение и рекомендации",
}

// IsValid reports whether s is one of the four canonical stages.
func IsValid(s Stage) bool {
	switch s {
	case StageGreeting, StageExploration, StageAnalysis, StageClosing:
		return true
	default:
		return false
	}
}

// Parse maps a raw backend label to a Stage, case-insensitively.
// Unrecognized labels parse to StageNone.
func Parse(raw string) Stage {
	s := Stage(strings.ToLower(strings.TrimSpace(raw)))
	if IsValid(s) {
		return s
	}
	return StageNone
}

// Label returns the human-readable banner text for a stage, or "" for
// StageNone and unknown values.
func Label(s Stage) string {
	return labels[s]
}

// Infer derives the display stage. Priority:
//  1. an explicit stage supplied with the most recent exchange;
//  2. the newest bot message whose meta label contains a canonical stage
//     name (case-insensitive substring match);
//  3. StageNone for an empty transcript, StageExploration otherwise.
func Infer(explicit string, msgs []models.Message) Stage {
	if s := Parse(explicit); s != StageNone {
		return s
	}

	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role != models.RoleBot || m.Meta == "" {
			continue
		}
		meta := strings.ToLower(m.Meta)
		for _, s := range canonical {
			if strings.Contains(meta, string(s)) {
				return s
			}
		}
	}

	if len(msgs) == 0 {
		return StageNone
	}
	return StageExploration
}
