package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/operatornetwork/opnet/models"
	"github.com/operatornetwork/opnet/store"
)

// Settler applies the reward for a verified operation to the assignee's
// profile. Implementations must handle their own failure policy: a settle
// failure after a committed verification is queued for reconciliation, not
// propagated as a transition failure.
type Settler interface {
	Settle(ctx context.Context, operationID, operatorID string, reward models.Reward, difficulty models.Difficulty) error
}

// Engine executes operation lifecycle transitions against the store.
//
// Every transition follows the same shape: read the current document,
// re-validate preconditions, write the patch. The patch carries the _rev
// observed by the engine's own read, so on a store with MVCC the loser of a
// race fails with a conflict that the engine reports as an invalid
// transition. On stores without revisions this check-then-act is
// best-effort race avoidance, no stronger than last-write-wins.
type Engine struct {
	store   store.Store
	settler Settler
	log     *logrus.Logger
	clock   func() time.Time
}

// New creates a lifecycle engine. The settler may be nil, in which case
// verification commits without reward settlement (used by tests that only
// exercise transitions).
func New(s store.Store, settler Settler, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		store:   s,
		settler: settler,
		log:     log,
		clock:   time.Now,
	}
}

// SetClock overrides the engine's time source. Tests use this to pin
// lifecycle timestamps.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

// Get returns the current state of an operation.
func (e *Engine) Get(ctx context.Context, operationID string) (*models.Operation, error) {
	return e.load(ctx, operationID)
}

// Claim assigns an open operation to an operator.
func (e *Engine) Claim(ctx context.Context, operationID, operatorID string) (*models.Operation, error) {
	op, err := e.load(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if err := CanClaim(op); err != nil {
		return nil, err
	}

	now := e.clock().UTC()
	patch := store.Document{
		"status":     string(models.StatusClaimed),
		"assigneeId": operatorID,
		"claimedAt":  now,
		"updatedAt":  now,
	}
	if err := e.write(ctx, op, patch); err != nil {
		return nil, err
	}

	op.Status = models.StatusClaimed
	op.AssigneeID = operatorID
	op.ClaimedAt = &now
	op.UpdatedAt = now

	e.log.WithFields(logrus.Fields{
		"operation": operationID,
		"operator":  operatorID,
	}).Info("operation claimed")
	return op, nil
}

// Start moves a claimed operation to in_progress. Only the claimant may
// start it.
func (e *Engine) Start(ctx context.Context, operationID, operatorID string) (*models.Operation, error) {
	op, err := e.load(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if err := CanStart(op, operatorID); err != nil {
		return nil, err
	}

	now := e.clock().UTC()
	patch := store.Document{
		"status":    string(models.StatusInProgress),
		"startedAt": now,
		"updatedAt": now,
	}
	if err := e.write(ctx, op, patch); err != nil {
		return nil, err
	}

	op.Status = models.StatusInProgress
	op.StartedAt = &now
	op.UpdatedAt = now

	e.log.WithFields(logrus.Fields{
		"operation": operationID,
		"operator":  operatorID,
	}).Info("operation started")
	return op, nil
}

// Submit hands in the work on an in_progress operation. Only the assignee
// may submit. Optional notes travel with the submission for the verifier.
func (e *Engine) Submit(ctx context.Context, operationID, operatorID, notes string) (*models.Operation, error) {
	op, err := e.load(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if err := CanSubmit(op, operatorID); err != nil {
		return nil, err
	}

	now := e.clock().UTC()
	patch := store.Document{
		"status":      string(models.StatusSubmitted),
		"submittedAt": now,
		"updatedAt":   now,
	}
	if notes != "" {
		patch["notes"] = notes
	}
	if err := e.write(ctx, op, patch); err != nil {
		return nil, err
	}

	op.Status = models.StatusSubmitted
	op.SubmittedAt = &now
	op.UpdatedAt = now
	if notes != "" {
		op.Notes = notes
	}

	e.log.WithFields(logrus.Fields{
		"operation": operationID,
		"operator":  operatorID,
	}).Info("operation submitted")
	return op, nil
}

// Verify resolves a submitted operation.
//
// On approval the operation becomes verified and reward settlement runs for
// the assignee. Settlement failure never rolls the verification back: the
// settler queues the payout for reconciliation and the error is logged
// here, not returned. Re-opening a verified operation would be a worse
// outcome than a delayed reward.
//
// On rejection the operation returns to the pool: status open, assignee and
// all lifecycle timestamps cleared, submission notes dropped.
func (e *Engine) Verify(ctx context.Context, operationID, verifierID string, approved bool, notes string) (*models.Operation, error) {
	op, err := e.load(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if err := CanVerify(op); err != nil {
		return nil, err
	}

	now := e.clock().UTC()

	if !approved {
		patch := store.Document{
			"status":      string(models.StatusOpen),
			"assigneeId":  nil,
			"claimedAt":   nil,
			"startedAt":   nil,
			"submittedAt": nil,
			"notes":       nil,
			"updatedAt":   now,
		}
		if err := e.write(ctx, op, patch); err != nil {
			return nil, err
		}

		assignee := op.AssigneeID
		op.Status = models.StatusOpen
		op.AssigneeID = ""
		op.ClaimedAt = nil
		op.StartedAt = nil
		op.SubmittedAt = nil
		op.Notes = ""
		op.UpdatedAt = now

		e.log.WithFields(logrus.Fields{
			"operation": operationID,
			"verifier":  verifierID,
			"assignee":  assignee,
		}).Info("operation rejected, returned to pool")
		return op, nil
	}

	patch := store.Document{
		"status":     string(models.StatusVerified),
		"verifiedAt": now,
		"verifiedBy": verifierID,
		"updatedAt":  now,
	}
	if notes != "" {
		patch["notes"] = notes
	}
	if err := e.write(ctx, op, patch); err != nil {
		return nil, err
	}

	op.Status = models.StatusVerified
	op.VerifiedAt = &now
	op.VerifiedBy = verifierID
	op.UpdatedAt = now
	if notes != "" {
		op.Notes = notes
	}

	e.log.WithFields(logrus.Fields{
		"operation": operationID,
		"verifier":  verifierID,
		"assignee":  op.AssigneeID,
	}).Info("operation verified")

	if e.settler != nil {
		if err := e.settler.Settle(ctx, op.ID, op.AssigneeID, op.Reward, op.Difficulty); err != nil {
			// Verification has committed; the settler has queued the
			// payout for reconciliation. Log and move on.
			e.log.WithError(err).WithFields(logrus.Fields{
				"operation": operationID,
				"operator":  op.AssigneeID,
			}).Error("reward settlement deferred to reconciliation")
		}
	}
	return op, nil
}

// load fetches and decodes an operation, mapping store errors into the
// transition taxonomy.
func (e *Engine) load(ctx context.Context, operationID string) (*models.Operation, error) {
	doc, err := e.store.Get(ctx, store.CollectionOperations, operationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, operationID)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var op models.Operation
	if err := store.Decode(doc, &op); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	op.ID = operationID
	return &op, nil
}

// write persists a transition patch for the operation as loaded by this
// transition. The revision observed by that load rides along in the patch,
// so a writer that committed between our read and this write makes the
// store reject us with a conflict; their transition invalidated ours, and
// the caller sees it as an invalid transition rather than a transport
// failure.
func (e *Engine) write(ctx context.Context, op *models.Operation, patch store.Document) error {
	if op.Rev != "" {
		patch["_rev"] = op.Rev
	}
	err := e.store.Update(ctx, store.CollectionOperations, op.ID, patch)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: operation %s changed concurrently", ErrInvalidTransition, op.ID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, op.ID)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
