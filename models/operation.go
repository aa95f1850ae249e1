// Package models contains the domain types for the Operator Network core:
// operations (claimable units of work), operator profiles, and the enums
// that drive the lifecycle engine and reward settlement.
//
// The types here carry no persistence logic. Storage is handled by the
// store package, which moves documents in and out of these structs at the
// adapter boundary.
package models

import "time"

// OperationStatus represents the lifecycle state of an operation.
type OperationStatus string

// Operation status constants. Cancelled is a terminal state reachable only
// through administrative withdrawal, never through the lifecycle engine.
const (
	StatusOpen       OperationStatus = "open"
	StatusClaimed    OperationStatus = "claimed"
	StatusInProgress OperationStatus = "in_progress"
	StatusSubmitted  OperationStatus = "submitted"
	StatusVerified   OperationStatus = "verified"
	StatusCancelled  OperationStatus = "cancelled"
)

// Difficulty grades an operation and scales its XP payout.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyExpert       Difficulty = "expert"
)

// Multiplier returns the fixed XP multiplier for a difficulty grade.
// Unknown grades fall back to the beginner multiplier so that a malformed
// document never zeroes out a payout.
func (d Difficulty) Multiplier() float64 {
	switch d {
	case DifficultyIntermediate:
		return 1.5
	case DifficultyAdvanced:
		return 2.0
	case DifficultyExpert:
		return 3.0
	default:
		return 1.0
	}
}

// Reward describes the payout attached to an operation. Tokens are recorded
// against the operator profile for off-core settlement; no transfer happens
// here.
type Reward struct {
	XP       int     `json:"xp"`
	Tokens   float64 `json:"tokens,omitempty"`
	Currency string  `json:"currency,omitempty"`
}

// Operation is a claimable unit of work belonging to a machine.
//
// The lifecycle timestamps are set exactly once each, by the engine, at the
// corresponding transition. A rejected verification clears them again when
// the operation re-enters the pool. AssigneeID is non-empty exactly when the
// status is not open and not cancelled; on a verified operation it records
// who earned the reward.
type Operation struct {
	ID             string          `json:"_id"`
	Rev            string          `json:"_rev,omitempty"`
	MachineID      string          `json:"machineId"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Status         OperationStatus `json:"status"`
	AssigneeID     string          `json:"assigneeId,omitempty"`
	Reward         Reward          `json:"reward"`
	Difficulty     Difficulty      `json:"difficulty"`
	RequiredSkills []string        `json:"requiredSkills,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	VerifiedBy     string          `json:"verifiedBy,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	ClaimedAt      *time.Time      `json:"claimedAt,omitempty"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	SubmittedAt    *time.Time      `json:"submittedAt,omitempty"`
	VerifiedAt     *time.Time      `json:"verifiedAt,omitempty"`
}

// Assigned reports whether the operation currently has an assignee.
func (o *Operation) Assigned() bool {
	return o.AssigneeID != ""
}

// Terminal reports whether the operation has reached a final state.
func (o *Operation) Terminal() bool {
	return o.Status == StatusVerified || o.Status == StatusCancelled
}
