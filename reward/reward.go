// Package reward implements settlement for verified operations: the pure
// XP computation, the pure profile mutation, and the Settler that persists
// the result. A settlement that fails after its verification has committed
// is handed to the reconciliation queue instead of being rolled back; a
// delayed reward beats re-opening a verified operation.
package reward

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/operatornetwork/opnet/models"
	"github.com/operatornetwork/opnet/store"
)

// ErrReconciliationPending indicates reward application failed after the
// verification committed and the payout was queued for retry. It is logged
// and queued rather than surfaced as a user-facing failure.
var ErrReconciliationPending = errors.New("reward application pending reconciliation")

// ComputeReward returns the final XP payout for a base amount at a given
// difficulty. Deterministic, no side effects.
func ComputeReward(baseXP int, difficulty models.Difficulty) int {
	return int(math.Round(float64(baseXP) * difficulty.Multiplier()))
}

// ApplyReward returns a copy of the profile with the XP added, the rank
// recomputed from the fixed thresholds, and any token amount recorded on
// the pending balance. The input profile is never mutated, so callers can
// diff old and new state.
func ApplyReward(profile models.OperatorProfile, finalXP int, tokens float64) models.OperatorProfile {
	updated := profile
	updated.XP = profile.XP + finalXP
	updated.Rank = models.RankForXP(updated.XP)
	updated.PendingTokens = profile.PendingTokens + tokens
	return updated
}

// Enqueuer accepts a failed settlement for later retry. Implemented by the
// reconcile package's Redis queue.
type Enqueuer interface {
	EnqueueReward(ctx context.Context, operationID, operatorID string, xp int, tokens float64) error
}

// Settler loads the assignee's profile, applies the reward, and writes the
// updated profile back. On any failure it enqueues the payout for
// reconciliation and reports ErrReconciliationPending.
type Settler struct {
	store store.Store
	queue Enqueuer
	log   *logrus.Logger
	clock func() time.Time
}

// NewSettler creates a settler. The queue may be nil, in which case a
// failed settlement is only logged; production wiring always passes the
// reconciliation queue.
func NewSettler(s store.Store, queue Enqueuer, log *logrus.Logger) *Settler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Settler{store: s, queue: queue, log: log, clock: time.Now}
}

// Settle computes and applies the payout for a verified operation. It
// implements lifecycle.Settler.
func (s *Settler) Settle(ctx context.Context, operationID, operatorID string, rw models.Reward, difficulty models.Difficulty) error {
	finalXP := ComputeReward(rw.XP, difficulty)

	if err := s.Apply(ctx, operatorID, finalXP, rw.Tokens); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"operation": operationID,
			"operator":  operatorID,
			"xp":        finalXP,
		}).Error("reward application failed")

		if s.queue != nil {
			if qerr := s.queue.EnqueueReward(ctx, operationID, operatorID, finalXP, rw.Tokens); qerr != nil {
				// Both the write and the queue failed; nothing more to do
				// here but report both.
				return fmt.Errorf("%w: %v (enqueue also failed: %v)", ErrReconciliationPending, err, qerr)
			}
		}
		return fmt.Errorf("%w: %v", ErrReconciliationPending, err)
	}

	s.log.WithFields(logrus.Fields{
		"operation": operationID,
		"operator":  operatorID,
		"xp":        finalXP,
	}).Info("reward settled")
	return nil
}

// Apply performs the single profile mutation: load, apply, write back.
// Exposed separately so the reconciliation worker can retry it directly.
func (s *Settler) Apply(ctx context.Context, operatorID string, finalXP int, tokens float64) error {
	doc, err := s.store.Get(ctx, store.CollectionOperators, operatorID)
	if err != nil {
		return fmt.Errorf("failed to load profile %s: %w", operatorID, err)
	}

	var profile models.OperatorProfile
	if err := store.Decode(doc, &profile); err != nil {
		return fmt.Errorf("failed to decode profile %s: %w", operatorID, err)
	}

	updated := ApplyReward(profile, finalXP, tokens)

	patch := store.Document{
		"xp":        updated.XP,
		"rank":      string(updated.Rank),
		"updatedAt": s.clock().UTC(),
	}
	if updated.PendingTokens > 0 {
		patch["pendingTokens"] = updated.PendingTokens
	}
	if err := s.store.Update(ctx, store.CollectionOperators, operatorID, patch); err != nil {
		return fmt.Errorf("failed to write profile %s: %w", operatorID, err)
	}
	return nil
}
