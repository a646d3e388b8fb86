package handlers

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/meng-fucius/guardbot/internal/config"
	"github.com/meng-fucius/guardbot/internal/db"
	"github.com/meng-fucius/guardbot/internal/observability"
)

type Policy struct {
	AutoKickOnSpeak bool
	MuteThreshold   int
	MuteDuration    time.Duration
	Probability     float64
}

// Controller holds the per-event enforcement logic. It is platform-agnostic:
// events come in as plain values, remote effects go through a Session, and
// the returned decision is executed by the dispatch adapter.
type Controller struct {
	blacklist *BlacklistService
	tracker   *ViolationTracker
	filter    *KeywordFilter
	policy    Policy
	messages  config.Messages
	rand      func() float64
}

func NewController(blacklist *BlacklistService, tracker *ViolationTracker, filter *KeywordFilter, policy Policy, messages config.Messages) *Controller {
	return &Controller{
		blacklist: blacklist,
		tracker:   tracker,
		filter:    filter,
		policy:    policy,
		messages:  messages,
		rand:      rand.Float64,
	}
}

func (c *Controller) getLogEntry() *log.Entry {
	return log.WithField("context", "enforcement")
}

// HandleMessage runs the message pipeline: kick blacklisted speakers, then
// scan for keywords and escalate, then consider a reward. Platform failures
// along the way are logged and skipped.
func (c *Controller) HandleMessage(ctx context.Context, sess Session, ev MessageEvent) Decision {
	entry := c.getLogEntry().WithFields(log.Fields{
		"guild_id": ev.GuildID,
		"user_id":  ev.UserID,
	})

	banned, err := c.blacklist.IsBanned(ctx, ev.UserID)
	if err != nil {
		entry.WithError(err).Error("failed to check blacklist")
		banned = false
	}

	if banned && c.policy.AutoKickOnSpeak {
		if err := sess.Kick(ctx, ev.GuildID, ev.UserID); err != nil {
			entry.WithError(err).Warn("failed to kick blacklisted speaker")
		} else {
			observability.RecordKick("auto_kick_on_speak")
			observability.Audit.Info("kick",
				zap.Int64("guild_id", ev.GuildID),
				zap.Int64("user_id", ev.UserID),
				zap.String("reason", "auto_kick_on_speak"),
			)
			return Decision{Reply: c.messages.Kick.Render(map[string]string{
				"user": ev.DisplayName,
			})}
		}
	}

	if match := c.filter.Scan(ev.Text); match != nil {
		return c.handleViolation(ctx, sess, ev, match, entry)
	}

	if banned {
		return Decision{}
	}
	if c.rand() < c.policy.Probability {
		return Decision{PendingReward: &RewardIntent{
			UserID:      ev.UserID,
			DisplayName: ev.DisplayName,
		}}
	}
	return Decision{}
}

func (c *Controller) handleViolation(ctx context.Context, sess Session, ev MessageEvent, match *Match, entry *log.Entry) Decision {
	entry = entry.WithField("term", match.Term)

	if err := sess.DeleteMessage(ctx, ev.GuildID, ev.MessageID); err != nil {
		entry.WithError(err).Warn("failed to delete offending message")
	}

	escalation, err := c.tracker.RecordViolation(ctx, ev.UserID, ev.GuildID, c.policy.MuteThreshold)
	if err != nil {
		entry.WithError(err).Error("failed to record violation")
		return Decision{}
	}

	if escalation.Action == ActionMute {
		until := time.Now().Add(c.policy.MuteDuration)
		if err := sess.Mute(ctx, ev.GuildID, ev.UserID, until); err != nil {
			entry.WithError(err).Warn("failed to mute violator")
		}
		observability.Audit.Info("mute",
			zap.Int64("guild_id", ev.GuildID),
			zap.Int64("user_id", ev.UserID),
			zap.Int("count", escalation.Count),
		)
		return Decision{Reply: c.messages.Mute.Render(map[string]string{
			"user":     ev.DisplayName,
			"duration": c.policy.MuteDuration.String(),
		})}
	}

	return Decision{Reply: c.messages.Warn.Render(map[string]string{
		"user":      ev.DisplayName,
		"count":     strconv.Itoa(escalation.Count),
		"threshold": strconv.Itoa(c.policy.MuteThreshold),
	})}
}

// HandleJoinRequest declines requests from blacklisted users and leaves
// everyone else to human moderation. Returns whether the request was declined.
func (c *Controller) HandleJoinRequest(ctx context.Context, sess Session, ev JoinRequestEvent) bool {
	entry := c.getLogEntry().WithFields(log.Fields{
		"guild_id":   ev.GuildID,
		"user_id":    ev.UserID,
		"via_invite": ev.ViaInvite,
	})

	banned, err := c.blacklist.IsBanned(ctx, ev.UserID)
	if err != nil {
		entry.WithError(err).Error("failed to check blacklist")
		return false
	}
	if !banned {
		return false
	}

	if err := sess.DeclineJoinRequest(ctx, ev.GuildID, ev.UserID); err != nil {
		entry.WithError(err).Warn("failed to decline join request")
		return false
	}
	observability.Audit.Info("decline_join",
		zap.Int64("guild_id", ev.GuildID),
		zap.Int64("user_id", ev.UserID),
	)
	return true
}

// HandleMemberRemoved treats an administrator kick as an implicit ban command
// issued by that administrator. Voluntary departures are ignored.
func (c *Controller) HandleMemberRemoved(ctx context.Context, ev MemberRemovedEvent) error {
	if !ev.AdminKick {
		return nil
	}
	err := c.blacklist.Ban(ctx, ev.UserID, ev.DisplayName, ev.OperatorID)
	if errors.Is(err, db.ErrUnresolvedAccount) {
		c.getLogEntry().WithFields(log.Fields{
			"guild_id": ev.GuildID,
			"user_id":  ev.UserID,
		}).Info("kicked member has no linked account, skipping implicit ban")
		return nil
	}
	return err
}
