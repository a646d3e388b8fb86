package handlers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meng-fucius/guardbot/internal/config"
	"github.com/meng-fucius/guardbot/internal/db"
	"github.com/meng-fucius/guardbot/internal/templates"
)

func newScanPolicy() *config.Policy {
	return &config.Policy{
		ScanSchedule:  "@every 1h",
		NotifyAdminID: 42,
		Messages: config.Messages{
			ScanSummary: templates.Set{"run %run%: kicked %kicked%, failures %failures%"},
		},
	}
}

func TestScannerKicksOnlyBlacklistedMembers(t *testing.T) {
	t.Parallel()

	store := newMemoryBlacklistStore()
	store.accounts[100] = 1
	store.accounts[200] = 2
	store.banned[1] = 100
	store.banned[2] = 200

	sess := &fakeSession{
		name:   "guardbot",
		guilds: []db.GuildMeta{{ID: -1}, {ID: -2}},
		members: map[int64][]int64{
			-1: {100, 300},
			-2: {300, 400},
		},
	}

	scanner := NewScanner(NewBlacklistService(store), []Session{sess}, newScanPolicy())
	report, err := scanner.Trigger(context.Background())
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	if report.Kicked != 1 {
		t.Fatalf("kicked = %d, want 1", report.Kicked)
	}
	if report.Failures != 0 {
		t.Fatalf("failures = %d, want 0", report.Failures)
	}
	if len(sess.kicked) != 1 || sess.kicked[0] != 100 {
		t.Fatalf("kicked = %v, want [100]", sess.kicked)
	}
	if len(sess.direct) != 1 {
		t.Fatalf("direct = %v, want one summary", sess.direct)
	}
}

func TestScannerCountsFailuresAndContinues(t *testing.T) {
	t.Parallel()

	store := newMemoryBlacklistStore()
	store.accounts[100] = 1
	store.banned[1] = 100

	broken := &fakeSession{name: "broken", listErr: context.DeadlineExceeded}
	working := &fakeSession{
		name:    "working",
		guilds:  []db.GuildMeta{{ID: -1}},
		members: map[int64][]int64{-1: {100}},
	}

	scanner := NewScanner(NewBlacklistService(store), []Session{broken, working}, newScanPolicy())
	report, err := scanner.Trigger(context.Background())
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	if report.Failures != 1 {
		t.Fatalf("failures = %d, want 1", report.Failures)
	}
	if report.Kicked != 1 {
		t.Fatalf("kicked = %d, want 1 despite the broken session", report.Kicked)
	}
}

func TestScannerEmptyBlacklistScansNothing(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{
		name:    "guardbot",
		guilds:  []db.GuildMeta{{ID: -1}},
		members: map[int64][]int64{-1: {100}},
	}
	scanner := NewScanner(NewBlacklistService(newMemoryBlacklistStore()), []Session{sess}, newScanPolicy())
	report, err := scanner.Trigger(context.Background())
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if report.Kicked != 0 || len(sess.kicked) != 0 {
		t.Fatalf("report = %+v, kicked = %v, want no kicks", report, sess.kicked)
	}
}

// slowSession blocks its first ListGuilds call until released so concurrent
// triggers can pile up on one in-flight scan.
type slowSession struct {
	fakeSession
	gate  chan struct{}
	calls atomic.Int32
}

func (s *slowSession) ListGuilds(ctx context.Context) ([]db.GuildMeta, error) {
	s.calls.Add(1)
	<-s.gate
	return s.fakeSession.ListGuilds(ctx)
}

func TestScannerCoalescesConcurrentTriggers(t *testing.T) {
	t.Parallel()

	store := newMemoryBlacklistStore()
	store.accounts[100] = 1
	store.banned[1] = 100

	sess := &slowSession{
		fakeSession: fakeSession{
			name:    "guardbot",
			guilds:  []db.GuildMeta{{ID: -1}},
			members: map[int64][]int64{-1: {100}},
		},
		gate: make(chan struct{}),
	}

	scanner := NewScanner(NewBlacklistService(store), []Session{sess}, newScanPolicy())

	const triggers = 4
	reports := make([]ScanReport, triggers)
	var wg sync.WaitGroup
	trigger := func(i int) {
		defer wg.Done()
		report, err := scanner.Trigger(context.Background())
		if err != nil {
			t.Errorf("trigger %d: %v", i, err)
			return
		}
		reports[i] = report
	}

	wg.Add(1)
	go trigger(0)
	for sess.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	// the first scan is parked on the gate, the rest must join it
	for i := 1; i < triggers; i++ {
		wg.Add(1)
		go trigger(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(sess.gate)
	wg.Wait()

	if got := sess.calls.Load(); got != 1 {
		t.Fatalf("ListGuilds calls = %d, want a single coalesced scan", got)
	}
	for i := 1; i < triggers; i++ {
		if reports[i].RunID != reports[0].RunID {
			t.Fatalf("trigger %d saw run %q, want shared run %q", i, reports[i].RunID, reports[0].RunID)
		}
	}
	if reports[0].Kicked != 1 {
		t.Fatalf("kicked = %d, want 1", reports[0].Kicked)
	}
}
