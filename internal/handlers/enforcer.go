package handlers

import (
	"context"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/meng-fucius/guardbot/internal/bot"
	"github.com/meng-fucius/guardbot/internal/config"
	"github.com/meng-fucius/guardbot/internal/db"
	moderation "github.com/meng-fucius/guardbot/internal/handlers/moderation"
	"github.com/meng-fucius/guardbot/internal/ledger"
	"github.com/meng-fucius/guardbot/internal/observability"
)

// Enforcer adapts raw updates into enforcement events, keeps the guild
// roster current and executes the resulting decisions, including the pending
// reward side of a decision.
type Enforcer struct {
	s          bot.Service
	controller *moderation.Controller
	sess       moderation.Session
	ledger     *ledger.Client
	messages   config.Messages
}

func NewEnforcer(s bot.Service, controller *moderation.Controller, sess moderation.Session, ledgerClient *ledger.Client, messages config.Messages) *Enforcer {
	return &Enforcer{
		s:          s,
		controller: controller,
		sess:       sess,
		ledger:     ledgerClient,
		messages:   messages,
	}
}

func (e *Enforcer) getLogEntry() *log.Entry {
	return log.WithField("context", "enforcer")
}

func (e *Enforcer) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error) {
	if chat == nil || user == nil {
		return true, nil
	}

	switch {
	case u.ChatJoinRequest != nil:
		declined := e.controller.HandleJoinRequest(ctx, e.sess, moderation.JoinRequestEvent{
			GuildID:     chat.ID,
			UserID:      u.ChatJoinRequest.From.ID,
			DisplayName: bot.GetUN(&u.ChatJoinRequest.From),
			ViaInvite:   u.ChatJoinRequest.InviteLink != nil,
		})
		return !declined, nil

	case u.ChatMember != nil:
		return true, e.handleMemberUpdate(ctx, chat, u.ChatMember)

	case u.Message != nil:
		if !chat.IsGroup() && !chat.IsSuperGroup() {
			return true, nil
		}
		if user.IsBot {
			return true, nil
		}
		return true, e.handleMessage(ctx, chat, user, u.Message)
	}
	return true, nil
}

func (e *Enforcer) handleMessage(ctx context.Context, chat *api.Chat, user *api.User, m *api.Message) error {
	store := e.s.GetDB()
	entry := e.getLogEntry().WithFields(log.Fields{
		"guild_id": chat.ID,
		"user_id":  user.ID,
	})

	if err := store.UpsertGuild(ctx, &db.GuildMeta{ID: chat.ID, Title: chat.Title, Session: e.sess.Name()}); err != nil {
		entry.WithError(err).Warn("failed to upsert guild")
	}
	if err := store.InsertMember(ctx, chat.ID, user.ID); err != nil {
		entry.WithError(err).Warn("failed to track member")
	}
	if _, err := store.EnsureLinkedAccount(ctx, user.ID); err != nil {
		entry.WithError(err).Warn("failed to link account")
	}

	decision := e.controller.HandleMessage(ctx, e.sess, moderation.MessageEvent{
		GuildID:     chat.ID,
		MessageID:   m.MessageID,
		UserID:      user.ID,
		DisplayName: bot.GetUN(user),
		Text:        strings.TrimSpace(m.Text + " " + m.Caption),
	})

	if decision.Reply != "" {
		if err := e.sess.Send(ctx, chat.ID, decision.Reply); err != nil {
			entry.WithError(err).Warn("failed to send enforcement notice")
		}
	}
	if decision.PendingReward != nil {
		e.creditReward(ctx, chat.ID, decision.PendingReward, entry)
	}
	return nil
}

// creditReward consumes the pending reward exactly once. A duplicate
// suppression from the ledger is silent; any other failure is logged and the
// reward is simply lost.
func (e *Enforcer) creditReward(ctx context.Context, guildID int64, reward *moderation.RewardIntent, entry *log.Entry) {
	points, err := e.ledger.Modify(ctx, ledger.ModifyRequest{
		UserID:    strconv.FormatInt(reward.UserID, 10),
		Name:      reward.DisplayName,
		Operation: ledger.OperationRandomAdd,
		Amount:    1,
	})
	switch {
	case errors.Is(err, ledger.ErrDuplicateSuppressed):
		observability.RecordReward("duplicate")
		return
	case err != nil:
		observability.RecordReward("error")
		entry.WithError(err).Warn("failed to credit reward")
		return
	}
	observability.RecordReward("credited")

	text := e.messages.AddSuccess.Render(map[string]string{
		"user":  reward.DisplayName,
		"score": strconv.Itoa(points.Score),
	})
	if err := e.sess.Send(ctx, guildID, text); err != nil {
		entry.WithError(err).Warn("failed to announce reward")
	}
}

func (e *Enforcer) handleMemberUpdate(ctx context.Context, chat *api.Chat, update *api.ChatMemberUpdated) error {
	store := e.s.GetDB()
	target := update.NewChatMember.User
	if target == nil {
		return nil
	}
	entry := e.getLogEntry().WithFields(log.Fields{
		"guild_id": chat.ID,
		"user_id":  target.ID,
	})

	switch update.NewChatMember.Status {
	case "member", "administrator", "creator", "restricted":
		if err := store.UpsertGuild(ctx, &db.GuildMeta{ID: chat.ID, Title: chat.Title, Session: e.sess.Name()}); err != nil {
			entry.WithError(err).Warn("failed to upsert guild")
		}
		if err := store.InsertMember(ctx, chat.ID, target.ID); err != nil {
			entry.WithError(err).Warn("failed to track member")
		}

	case "kicked", "left":
		if err := store.DeleteMember(ctx, chat.ID, target.ID); err != nil {
			entry.WithError(err).Warn("failed to untrack member")
		}
		adminKick := update.NewChatMember.Status == "kicked" &&
			update.From.ID != target.ID &&
			update.From.ID != e.s.GetBot().Self.ID
		if err := e.controller.HandleMemberRemoved(ctx, moderation.MemberRemovedEvent{
			GuildID:     chat.ID,
			UserID:      target.ID,
			DisplayName: bot.GetUN(target),
			OperatorID:  update.From.ID,
			AdminKick:   adminKick,
		}); err != nil {
			return errors.WithMessage(err, "cant process member removal")
		}
	}
	return nil
}
