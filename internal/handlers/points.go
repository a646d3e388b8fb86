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
	moderation "github.com/meng-fucius/guardbot/internal/handlers/moderation"
	"github.com/meng-fucius/guardbot/internal/ledger"
	"github.com/meng-fucius/guardbot/internal/policy/permissions"
	"github.com/meng-fucius/guardbot/internal/templates"
)

// Points exposes the ledger to chat commands. Balances live on the remote
// service; this handler only relays operations and renders the outcome.
type Points struct {
	s        bot.Service
	ledger   *ledger.Client
	sess     moderation.Session
	messages config.Messages
}

func NewPoints(s bot.Service, ledgerClient *ledger.Client, sess moderation.Session, messages config.Messages) *Points {
	return &Points{
		s:        s,
		ledger:   ledgerClient,
		sess:     sess,
		messages: messages,
	}
}

func (p *Points) getLogEntry() *log.Entry {
	return log.WithField("context", "points")
}

func (p *Points) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error) {
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
	case "points", "rank", "give", "deduct", "transfer":
	default:
		return true, nil
	}

	entry := p.getLogEntry().WithFields(log.Fields{
		"command":  command,
		"guild_id": chat.ID,
		"user_id":  user.ID,
	})

	switch command {
	case "points":
		p.handleQuery(ctx, chat, user, entry)
	case "rank":
		p.handleRank(ctx, chat, entry)
	case "give":
		p.handleAdminModify(ctx, chat, user, m, ledger.OperationAdd, p.messages.GiveSuccess, entry)
	case "deduct":
		p.handleAdminModify(ctx, chat, user, m, ledger.OperationDeduct, p.messages.DeductSuccess, entry)
	case "transfer":
		p.handleTransfer(ctx, chat, user, m, entry)
	}
	return false, nil
}

func (p *Points) reply(ctx context.Context, chatID int64, text string, entry *log.Entry) {
	if err := p.sess.Send(ctx, chatID, text); err != nil {
		entry.WithError(err).Warn("failed to reply")
	}
}

func (p *Points) handleQuery(ctx context.Context, chat *api.Chat, user *api.User, entry *log.Entry) {
	points, err := p.ledger.Query(ctx, user.ID)
	if err != nil {
		entry.WithError(err).Error("query failed")
		p.reply(ctx, chat.ID, p.messages.OperationFail.Pick(), entry)
		return
	}
	p.reply(ctx, chat.ID, p.messages.QuerySuccess.Render(map[string]string{
		"user":  bot.GetUN(user),
		"score": strconv.Itoa(points.Score),
		"rank":  strconv.Itoa(points.Rank),
	}), entry)
}

func (p *Points) handleRank(ctx context.Context, chat *api.Chat, entry *log.Entry) {
	ranking, err := p.ledger.Rank(ctx)
	if err != nil {
		entry.WithError(err).Error("rank failed")
		p.reply(ctx, chat.ID, p.messages.OperationFail.Pick(), entry)
		return
	}
	if len(ranking) == 0 {
		p.reply(ctx, chat.ID, "no scores yet", entry)
		return
	}

	var sb strings.Builder
	sb.WriteString(p.messages.RankSuccess.Pick())
	for i, item := range ranking {
		fmt.Fprintf(&sb, "\n%d. %s: %d", i+1, item.Name, item.Score)
	}
	p.reply(ctx, chat.ID, sb.String(), entry)
}

func (p *Points) isPrivileged(chat *api.Chat, user *api.User) (bool, error) {
	chatMember, err := p.s.GetBot().GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			UserID: user.ID,
			ChatConfig: api.ChatConfig{
				ChatID: chat.ID,
			},
		},
	})
	if err != nil {
		return false, errors.New("cant get chat member")
	}
	return permissions.IsPrivilegedModerator(&chatMember), nil
}

// targetAndAmount resolves "<reply> /cmd N" or "/cmd <userID> N" forms.
func targetAndAmount(m *api.Message) (int64, string, int, bool) {
	args := strings.Fields(m.CommandArguments())
	if m.ReplyToMessage != nil && m.ReplyToMessage.From != nil {
		if len(args) != 1 {
			return 0, "", 0, false
		}
		amount, err := strconv.Atoi(args[0])
		if err != nil || amount <= 0 {
			return 0, "", 0, false
		}
		target := m.ReplyToMessage.From
		return target.ID, bot.GetUN(target), amount, true
	}
	if len(args) != 2 {
		return 0, "", 0, false
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, "", 0, false
	}
	amount, err := strconv.Atoi(args[1])
	if err != nil || amount <= 0 {
		return 0, "", 0, false
	}
	return userID, args[0], amount, true
}

func (p *Points) handleAdminModify(ctx context.Context, chat *api.Chat, user *api.User, m *api.Message, operation string, success templates.Set, entry *log.Entry) {
	privileged, err := p.isPrivileged(chat, user)
	if err != nil {
		entry.WithError(err).Error("permission check failed")
		return
	}
	if !privileged {
		entry.Trace("not privileged")
		return
	}

	targetID, targetName, amount, ok := targetAndAmount(m)
	if !ok {
		return
	}

	points, err := p.ledger.Modify(ctx, ledger.ModifyRequest{
		UserID:    strconv.FormatInt(targetID, 10),
		Name:      targetName,
		Operation: operation,
		Amount:    amount,
	})
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		p.reply(ctx, chat.ID, fmt.Sprintf("%s has not enough points", targetName), entry)
		return
	case err != nil:
		entry.WithError(err).Error("modify failed")
		p.reply(ctx, chat.ID, p.messages.OperationFail.Pick(), entry)
		return
	}
	p.reply(ctx, chat.ID, success.Render(map[string]string{
		"user":   targetName,
		"target": targetName,
		"amount": strconv.Itoa(amount),
		"score":  strconv.Itoa(points.Score),
	}), entry)
}

func (p *Points) handleTransfer(ctx context.Context, chat *api.Chat, user *api.User, m *api.Message, entry *log.Entry) {
	targetID, targetName, amount, ok := targetAndAmount(m)
	if !ok || targetID == user.ID {
		return
	}

	points, err := p.ledger.Modify(ctx, ledger.ModifyRequest{
		UserID:     strconv.FormatInt(user.ID, 10),
		Name:       bot.GetUN(user),
		Operation:  ledger.OperationTransfer,
		Amount:     amount,
		Target:     strconv.FormatInt(targetID, 10),
		TargetName: targetName,
	})
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		p.reply(ctx, chat.ID, "not enough points to transfer", entry)
		return
	case err != nil:
		entry.WithError(err).Error("transfer failed")
		p.reply(ctx, chat.ID, p.messages.OperationFail.Pick(), entry)
		return
	}
	p.reply(ctx, chat.ID, p.messages.TransferSuccess.Render(map[string]string{
		"user":   bot.GetUN(user),
		"target": targetName,
		"amount": strconv.Itoa(amount),
		"score":  strconv.Itoa(points.Score),
	}), entry)
}
