package actuation

import (
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/catalog"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region command
// Command is one device-agnostic instruction. Write-once: the engine hands it
// to a dispatcher and never tracks delivery.
type Command struct {
	CorrelationID  string           `json:"correlation_id"`
	SuggestionID   string           `json:"suggestion_id"`
	InterventionID string           `json:"intervention_id"`
	BehaviorID     string           `json:"behavior_id"`
	Category       catalog.Category `json:"category"`
	Device         string           `json:"device"`
	Payload        map[string]any   `json:"payload"`
	IssuedAt       time.Time        `json:"issued_at"`
}
// #endregion command

// #region meta
// Meta is per-suggestion context the compiler stamps onto every command.
type Meta struct {
	SuggestionID string
	BehaviorID   string
	IssuedAt     time.Time
	Streak       streak.State
}

// Skipped records a target that could not be compiled.
type Skipped struct {
	Device string `json:"device"`
	Param  string `json:"param"`
	Reason string `json:"reason"`
}
// #endregion meta
