// Package lifecycle implements the operation state machine: the guarded
// transitions Claim, Start, Submit, and Verify over
//
//	open --claim--> claimed --start--> in_progress --submit--> submitted
//	submitted --verify(approve)--> verified
//	submitted --verify(reject)--> open (assignee and timestamps cleared)
//
// Guards are pure functions that evaluate preconditions against a freshly
// read operation without side effects; the engine re-reads and re-guards
// immediately before every write, so a racing caller loses by observing a
// status its transition no longer permits.
package lifecycle

import (
	"fmt"

	"github.com/operatornetwork/opnet/models"
)

// CanClaim evaluates whether an operation can be claimed.
// Rules:
//   - Status must be open
//   - No assignee may be set (defensive double-check; implied by open)
func CanClaim(op *models.Operation) error {
	if op.Status != models.StatusOpen {
		return fmt.Errorf("%w: can only claim open operations (current status: %s)", ErrInvalidTransition, op.Status)
	}
	if op.Assigned() {
		return fmt.Errorf("%w: operation %s is held by %s", ErrAlreadyAssigned, op.ID, op.AssigneeID)
	}
	return nil
}

// CanStart evaluates whether an operator can start a claimed operation.
// Rules:
//   - Status must be claimed
//   - Only the claimant may start
func CanStart(op *models.Operation, operatorID string) error {
	if op.Status != models.StatusClaimed {
		return fmt.Errorf("%w: can only start claimed operations (current status: %s)", ErrInvalidTransition, op.Status)
	}
	if op.AssigneeID != operatorID {
		return fmt.Errorf("%w: operation %s belongs to %s", ErrForbidden, op.ID, op.AssigneeID)
	}
	return nil
}

// CanSubmit evaluates whether an operator can submit work.
// Rules:
//   - Status must be in_progress
//   - Only the assignee may submit
func CanSubmit(op *models.Operation, operatorID string) error {
	if op.Status != models.StatusInProgress {
		return fmt.Errorf("%w: can only submit in_progress operations (current status: %s)", ErrInvalidTransition, op.Status)
	}
	if op.AssigneeID != operatorID {
		return fmt.Errorf("%w: operation %s belongs to %s", ErrForbidden, op.ID, op.AssigneeID)
	}
	return nil
}

// CanVerify evaluates whether an operation can be verified.
// Rules:
//   - Status must be submitted (a verified operation cannot be re-verified)
func CanVerify(op *models.Operation) error {
	if op.Status != models.StatusSubmitted {
		return fmt.Errorf("%w: can only verify submitted operations (current status: %s)", ErrInvalidTransition, op.Status)
	}
	return nil
}
