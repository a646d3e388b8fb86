package handlers

import (
	"context"
	"time"

	"github.com/meng-fucius/guardbot/internal/db"
)

// Session is one connected bot identity on the chat platform. Every method
// maps to a single remote call that can fail; callers treat failures as
// loggable and skippable.
type Session interface {
	Name() string
	ListGuilds(ctx context.Context) ([]db.GuildMeta, error)
	ListMembers(ctx context.Context, guildID int64) ([]int64, error)
	Kick(ctx context.Context, guildID, userID int64) error
	Mute(ctx context.Context, guildID, userID int64, until time.Time) error
	DeleteMessage(ctx context.Context, guildID int64, messageID int) error
	DeclineJoinRequest(ctx context.Context, guildID, userID int64) error
	Send(ctx context.Context, guildID int64, text string) error
	SendDirect(ctx context.Context, userID int64, text string) error
}

type (
	MessageEvent struct {
		GuildID     int64
		MessageID   int
		UserID      int64
		DisplayName string
		Text        string
	}

	JoinRequestEvent struct {
		GuildID     int64
		UserID      int64
		DisplayName string
		ViaInvite   bool
	}

	MemberRemovedEvent struct {
		GuildID     int64
		UserID      int64
		DisplayName string
		OperatorID  int64
		AdminKick   bool
	}

	// RewardIntent is the typed pending side effect of the two-phase reward
	// path. It is attached to the decision and consumed exactly once by the
	// dispatch adapter; it never travels through visible chat content.
	RewardIntent struct {
		UserID      int64
		DisplayName string
	}

	Decision struct {
		Reply         string
		PendingReward *RewardIntent
	}
)
