package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/meng-fucius/guardbot/internal/observability"
)

type violationStore interface {
	IncrementViolation(ctx context.Context, externalUserID, guildID int64, at time.Time) (int, error)
	ResetViolation(ctx context.Context, externalUserID, guildID int64) error
}

type EscalationAction string

const (
	ActionWarn EscalationAction = "warn"
	ActionMute EscalationAction = "mute"
)

type Escalation struct {
	Count  int
	Action EscalationAction
}

// ViolationTracker drives the per (user, guild) escalation counter. Reaching
// the threshold yields a mute and resets the counter to zero, so the next
// violation starts a fresh warn cycle.
type ViolationTracker struct {
	store violationStore
	now   func() time.Time
}

func NewViolationTracker(store violationStore) *ViolationTracker {
	return &ViolationTracker{store: store, now: time.Now}
}

func (t *ViolationTracker) RecordViolation(ctx context.Context, externalUserID, guildID int64, threshold int) (Escalation, error) {
	count, err := t.store.IncrementViolation(ctx, externalUserID, guildID, t.now().UTC())
	if err != nil {
		return Escalation{}, fmt.Errorf("increment violation: %w", err)
	}
	if count >= threshold {
		if err := t.store.ResetViolation(ctx, externalUserID, guildID); err != nil {
			return Escalation{}, fmt.Errorf("reset after mute: %w", err)
		}
		observability.RecordViolation(string(ActionMute))
		return Escalation{Count: count, Action: ActionMute}, nil
	}
	observability.RecordViolation(string(ActionWarn))
	return Escalation{Count: count, Action: ActionWarn}, nil
}

// Reset zeroes the counter for a pair without any enforcement side effect.
func (t *ViolationTracker) Reset(ctx context.Context, externalUserID, guildID int64) error {
	return t.store.ResetViolation(ctx, externalUserID, guildID)
}
