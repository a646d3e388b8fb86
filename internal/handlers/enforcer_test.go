package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/meng-fucius/guardbot/internal/bot"
	"github.com/meng-fucius/guardbot/internal/config"
	"github.com/meng-fucius/guardbot/internal/db"
	"github.com/meng-fucius/guardbot/internal/db/sqlite"
	moderation "github.com/meng-fucius/guardbot/internal/handlers/moderation"
	"github.com/meng-fucius/guardbot/internal/ledger"
	"github.com/meng-fucius/guardbot/internal/templates"
)

type stubSession struct {
	sent   []string
	direct []string
}

func (s *stubSession) Name() string { return "testbot" }

func (s *stubSession) ListGuilds(_ context.Context) ([]db.GuildMeta, error) { return nil, nil }

func (s *stubSession) ListMembers(_ context.Context, _ int64) ([]int64, error) { return nil, nil }

func (s *stubSession) Kick(_ context.Context, _, _ int64) error { return nil }

func (s *stubSession) Mute(_ context.Context, _, _ int64, _ time.Time) error { return nil }

func (s *stubSession) DeleteMessage(_ context.Context, _ int64, _ int) error { return nil }

func (s *stubSession) DeclineJoinRequest(_ context.Context, _, _ int64) error { return nil }

func (s *stubSession) Send(_ context.Context, _ int64, text string) error {
	s.sent = append(s.sent, text)
	return nil
}

func (s *stubSession) SendDirect(_ context.Context, _ int64, text string) error {
	s.direct = append(s.direct, text)
	return nil
}

// newRewardRig wires an enforcer against a real store and a ledger stub that
// always answers with the given service code, with every message qualifying
// for a reward.
func newRewardRig(t *testing.T, code, score int) (*Enforcer, *stubSession, *atomic.Int32) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.NewSQLiteClient(ctx, t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	calls := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req ledger.ModifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode modify request: %v", err)
		}
		if req.Operation != ledger.OperationRandomAdd {
			t.Errorf("operation = %q, want %q", req.Operation, ledger.OperationRandomAdd)
		}
		if err := json.NewEncoder(w).Encode(map[string]any{
			"code": code,
			"data": map[string]int{"score": score, "rank": 1},
		}); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)

	messages := config.Messages{
		AddSuccess: templates.Set{"%user% now at %score%"},
	}
	controller := moderation.NewController(
		moderation.NewBlacklistService(store),
		moderation.NewViolationTracker(store),
		moderation.NewKeywordFilter(nil),
		moderation.Policy{MuteThreshold: 3, MuteDuration: time.Minute, Probability: 1},
		messages,
	)
	ledgerClient := ledger.NewClient(config.Ledger{
		BaseURL:    server.URL,
		ModifyPath: "points/modify",
		Timeout:    5 * time.Second,
	})

	sess := &stubSession{}
	enforcer := NewEnforcer(bot.NewService(nil, store), controller, sess, ledgerClient, messages)
	return enforcer, sess, calls
}

func rewardMessage(id int) (*api.Chat, *api.User, *api.Message) {
	chat := &api.Chat{ID: -100, Title: "general", Type: "supergroup"}
	user := &api.User{ID: 9, UserName: "alice"}
	return chat, user, &api.Message{MessageID: id, Text: "hello"}
}

func TestRewardCreditedOncePerMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	enforcer, sess, calls := newRewardRig(t, 0, 15)

	chat, user, msg := rewardMessage(1)
	if err := enforcer.handleMessage(ctx, chat, user, msg); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("ledger calls = %d, want exactly one credit", got)
	}
	if len(sess.sent) != 1 {
		t.Fatalf("sent = %v, want one announcement", sess.sent)
	}
	if !strings.Contains(sess.sent[0], "15") {
		t.Fatalf("announcement %q must carry the returned score", sess.sent[0])
	}
	if !strings.Contains(sess.sent[0], "alice") {
		t.Fatalf("announcement %q must name the rewarded user", sess.sent[0])
	}

	chat, user, msg = rewardMessage(2)
	if err := enforcer.handleMessage(ctx, chat, user, msg); err != nil {
		t.Fatalf("handle second message: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("ledger calls = %d, want one credit per qualifying message", got)
	}
}

func TestRewardDuplicateSuppressedStaysSilent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	enforcer, sess, calls := newRewardRig(t, 40001, 0)

	chat, user, msg := rewardMessage(1)
	if err := enforcer.handleMessage(ctx, chat, user, msg); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("ledger calls = %d, want the attempt to happen", got)
	}
	if len(sess.sent) != 0 {
		t.Fatalf("sent = %v, want silence on a suppressed duplicate", sess.sent)
	}
}

func TestRewardLedgerFailureSendsNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	enforcer, sess, calls := newRewardRig(t, 500, 0)

	chat, user, msg := rewardMessage(1)
	if err := enforcer.handleMessage(ctx, chat, user, msg); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("ledger calls = %d, want a single attempt without retry", got)
	}
	if len(sess.sent) != 0 {
		t.Fatalf("sent = %v, want no announcement on failure", sess.sent)
	}
}
