package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/meng-fucius/guardbot/internal/bot"
	"github.com/meng-fucius/guardbot/internal/config"
	"github.com/meng-fucius/guardbot/internal/db"
	moderation "github.com/meng-fucius/guardbot/internal/handlers/moderation"
	"github.com/meng-fucius/guardbot/internal/policy/permissions"
)

const banlistPageSize = 10

// Admin handles the moderator command surface: ban, unban, banlist, scan and
// violation resets. Every command is gated on restrict rights in the chat it
// was issued from.
type Admin struct {
	s         bot.Service
	blacklist *moderation.BlacklistService
	tracker   *moderation.ViolationTracker
	scanner   *moderation.Scanner
	sess      moderation.Session
	messages  config.Messages
}

func NewAdmin(s bot.Service, blacklist *moderation.BlacklistService, tracker *moderation.ViolationTracker, scanner *moderation.Scanner, sess moderation.Session, messages config.Messages) *Admin {
	return &Admin{
		s:         s,
		blacklist: blacklist,
		tracker:   tracker,
		scanner:   scanner,
		sess:      sess,
		messages:  messages,
	}
}

func (a *Admin) getLogEntry() *log.Entry {
	return log.WithField("context", "admin")
}

func (a *Admin) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error) {
	if chat == nil || user == nil {
		return true, nil
	}

	switch {
	case
		u.Message == nil,
		user.IsBot,
		!u.Message.IsCommand():
		return true, nil
	}
	m := u.Message

	command := m.Command()
	switch command {
	case "ban", "unban", "banlist", "scan", "resetviolations":
	default:
		return true, nil
	}

	b := a.s.GetBot()
	chatMember, err := b.GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			UserID: user.ID,
			ChatConfig: api.ChatConfig{
				ChatID: chat.ID,
			},
		},
	})
	if err != nil {
		return true, errors.New("cant get chat member")
	}
	if !permissions.IsPrivilegedModerator(&chatMember) {
		a.getLogEntry().WithField("user_id", user.ID).Trace("not privileged")
		return true, nil
	}

	entry := a.getLogEntry().WithFields(log.Fields{
		"command":  command,
		"guild_id": chat.ID,
		"user_id":  user.ID,
	})

	switch command {
	case "ban":
		a.handleBan(ctx, chat, user, m, entry)
	case "unban":
		a.handleUnban(ctx, chat, m, entry)
	case "banlist":
		a.handleBanlist(ctx, chat, m, entry)
	case "scan":
		a.handleScan(ctx, chat, entry)
	case "resetviolations":
		a.handleResetViolations(ctx, chat, m, entry)
	}
	return false, nil
}

// targetOf resolves the command target: the replied-to user, or a numeric id
// given as the first argument.
func (a *Admin) targetOf(m *api.Message) (int64, string, bool) {
	if m.ReplyToMessage != nil && m.ReplyToMessage.From != nil {
		target := m.ReplyToMessage.From
		return target.ID, bot.GetUN(target), true
	}
	args := strings.Fields(m.CommandArguments())
	if len(args) == 0 {
		return 0, "", false
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return userID, args[0], true
}

func (a *Admin) reply(ctx context.Context, chatID int64, text string, entry *log.Entry) {
	if err := a.sess.Send(ctx, chatID, text); err != nil {
		entry.WithError(err).Warn("failed to reply")
	}
}

func (a *Admin) handleBan(ctx context.Context, chat *api.Chat, operator *api.User, m *api.Message, entry *log.Entry) {
	targetID, targetName, ok := a.targetOf(m)
	if !ok {
		return
	}
	err := a.blacklist.Ban(ctx, targetID, targetName, operator.ID)
	switch {
	case errors.Is(err, db.ErrUnresolvedAccount):
		a.reply(ctx, chat.ID, a.messages.Unresolved.Render(map[string]string{"user": targetName}), entry)
		return
	case err != nil:
		entry.WithError(err).Error("ban failed")
		a.reply(ctx, chat.ID, a.messages.OperationFail.Pick(), entry)
		return
	}
	if err := a.sess.Kick(ctx, chat.ID, targetID); err != nil {
		entry.WithError(err).Warn("failed to kick banned user")
	}
	a.reply(ctx, chat.ID, a.messages.BanSuccess.Render(map[string]string{"user": targetName}), entry)
}

func (a *Admin) handleUnban(ctx context.Context, chat *api.Chat, m *api.Message, entry *log.Entry) {
	targetID, targetName, ok := a.targetOf(m)
	if !ok {
		return
	}
	err := a.blacklist.Unban(ctx, targetID)
	switch {
	case errors.Is(err, db.ErrUnresolvedAccount):
		a.reply(ctx, chat.ID, a.messages.Unresolved.Render(map[string]string{"user": targetName}), entry)
		return
	case err != nil:
		entry.WithError(err).Error("unban failed")
		a.reply(ctx, chat.ID, a.messages.OperationFail.Pick(), entry)
		return
	}
	a.reply(ctx, chat.ID, a.messages.UnbanSuccess.Render(map[string]string{"user": targetName}), entry)
}

func (a *Admin) handleBanlist(ctx context.Context, chat *api.Chat, m *api.Message, entry *log.Entry) {
	page := 1
	if args := strings.Fields(m.CommandArguments()); len(args) > 0 {
		if parsed, err := strconv.Atoi(args[0]); err == nil && parsed > 0 {
			page = parsed
		}
	}

	entries, total, err := a.blacklist.List(ctx, page, banlistPageSize)
	if err != nil {
		entry.WithError(err).Error("banlist failed")
		a.reply(ctx, chat.ID, a.messages.OperationFail.Pick(), entry)
		return
	}
	if total == 0 {
		a.reply(ctx, chat.ID, "banlist is empty", entry)
		return
	}

	pages := (total + banlistPageSize - 1) / banlistPageSize
	var sb strings.Builder
	fmt.Fprintf(&sb, "banlist %d/%d (%d total)\n", page, pages, total)
	for _, banned := range entries {
		fmt.Fprintf(&sb, "%s (%d), banned %s\n", banned.DisplayName, banned.ExternalUserID, banned.CreatedAt.Format("2006-01-02"))
	}
	a.reply(ctx, chat.ID, strings.TrimSpace(sb.String()), entry)
}

func (a *Admin) handleScan(ctx context.Context, chat *api.Chat, entry *log.Entry) {
	report, err := a.scanner.Trigger(ctx)
	if err != nil {
		entry.WithError(err).Error("scan failed")
		a.reply(ctx, chat.ID, a.messages.OperationFail.Pick(), entry)
		return
	}
	a.reply(ctx, chat.ID, a.messages.ScanSummary.Render(map[string]string{
		"run":      report.RunID,
		"kicked":   strconv.Itoa(report.Kicked),
		"failures": strconv.Itoa(report.Failures),
	}), entry)
}

func (a *Admin) handleResetViolations(ctx context.Context, chat *api.Chat, m *api.Message, entry *log.Entry) {
	targetID, targetName, ok := a.targetOf(m)
	if !ok {
		return
	}
	if err := a.tracker.Reset(ctx, targetID, chat.ID); err != nil {
		entry.WithError(err).Error("reset violations failed")
		a.reply(ctx, chat.ID, a.messages.OperationFail.Pick(), entry)
		return
	}
	a.reply(ctx, chat.ID, fmt.Sprintf("violations reset for %s", targetName), entry)
}
