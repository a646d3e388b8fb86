package handlers

import (
	"context"
	"testing"
	"time"
)

type violationKey struct {
	userID  int64
	guildID int64
}

type memoryViolationStore struct {
	counts map[violationKey]int
}

func newMemoryViolationStore() *memoryViolationStore {
	return &memoryViolationStore{counts: make(map[violationKey]int)}
}

func (m *memoryViolationStore) IncrementViolation(_ context.Context, externalUserID, guildID int64, _ time.Time) (int, error) {
	key := violationKey{externalUserID, guildID}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memoryViolationStore) ResetViolation(_ context.Context, externalUserID, guildID int64) error {
	m.counts[violationKey{externalUserID, guildID}] = 0
	return nil
}

func TestViolationEscalationCycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := NewViolationTracker(newMemoryViolationStore())
	const threshold = 3

	want := []Escalation{
		{Count: 1, Action: ActionWarn},
		{Count: 2, Action: ActionWarn},
		{Count: 3, Action: ActionMute},
		{Count: 1, Action: ActionWarn},
		{Count: 2, Action: ActionWarn},
		{Count: 3, Action: ActionMute},
	}
	for i, expected := range want {
		got, err := tracker.RecordViolation(ctx, 777, -100, threshold)
		if err != nil {
			t.Fatalf("violation %d: %v", i+1, err)
		}
		if got != expected {
			t.Fatalf("violation %d: got %+v, want %+v", i+1, got, expected)
		}
	}
}

func TestViolationThresholdOneAlwaysMutes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := NewViolationTracker(newMemoryViolationStore())

	for i := 0; i < 3; i++ {
		got, err := tracker.RecordViolation(ctx, 1, 2, 1)
		if err != nil {
			t.Fatalf("violation %d: %v", i+1, err)
		}
		if got.Action != ActionMute || got.Count != 1 {
			t.Fatalf("violation %d: got %+v, want count 1 mute", i+1, got)
		}
	}
}

func TestViolationCountsAreScopedPerGuild(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := NewViolationTracker(newMemoryViolationStore())

	if _, err := tracker.RecordViolation(ctx, 777, -100, 3); err != nil {
		t.Fatalf("first guild: %v", err)
	}
	got, err := tracker.RecordViolation(ctx, 777, -200, 3)
	if err != nil {
		t.Fatalf("second guild: %v", err)
	}
	if got.Count != 1 {
		t.Fatalf("second guild count = %d, want 1", got.Count)
	}
}
