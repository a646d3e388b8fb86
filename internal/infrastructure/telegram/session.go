package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/meng-fucius/guardbot/internal/db"
)

type rosterStore interface {
	GetGuilds(ctx context.Context, session string) ([]db.GuildMeta, error)
	GetMembers(ctx context.Context, guildID int64) ([]int64, error)
}

// Session wraps one connected bot account. Guild and member listings come
// from the local roster store because the platform cannot enumerate chat
// members on demand.
type Session struct {
	bot   *api.BotAPI
	store rosterStore
}

func NewSession(token string, store rosterStore) (*Session, error) {
	bot, err := api.NewBotAPIWithClient(token, api.APIEndpoint, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to connect bot: %w", err)
	}
	return &Session{bot: bot, store: store}, nil
}

func (s *Session) Bot() *api.BotAPI {
	return s.bot
}

func (s *Session) Name() string {
	return s.bot.Self.UserName
}

func (s *Session) ListGuilds(ctx context.Context) ([]db.GuildMeta, error) {
	return s.store.GetGuilds(ctx, s.Name())
}

func (s *Session) ListMembers(ctx context.Context, guildID int64) ([]int64, error) {
	return s.store.GetMembers(ctx, guildID)
}

func (s *Session) Kick(ctx context.Context, guildID, userID int64) error {
	config := api.BanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: guildID,
			},
			UserID: userID,
		},
		UntilDate:      time.Now().Add(10 * time.Minute).Unix(),
		RevokeMessages: true,
	}
	if _, err := s.bot.Request(config); err != nil {
		if strings.Contains(err.Error(), "not enough rights") {
			return fmt.Errorf("not enough rights to kick user")
		}
		return fmt.Errorf("failed to kick user: %w", err)
	}
	return nil
}

func (s *Session) Mute(ctx context.Context, guildID, userID int64, until time.Time) error {
	config := api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: guildID,
			},
			UserID: userID,
		},
		UntilDate: until.Unix(),
		Permissions: &api.ChatPermissions{
			CanSendMessages:       false,
			CanSendOtherMessages:  false,
			CanAddWebPagePreviews: false,
		},
	}
	if _, err := s.bot.Request(config); err != nil {
		return fmt.Errorf("failed to mute user: %w", err)
	}
	return nil
}

func (s *Session) DeleteMessage(ctx context.Context, guildID int64, messageID int) error {
	if _, err := s.bot.Request(api.NewDeleteMessage(guildID, messageID)); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func (s *Session) DeclineJoinRequest(ctx context.Context, guildID, userID int64) error {
	config := api.DeclineChatJoinRequest{
		ChatConfig: api.ChatConfig{
			ChatID: guildID,
		},
		UserID: userID,
	}
	if _, err := s.bot.Request(config); err != nil {
		return fmt.Errorf("failed to decline join request: %w", err)
	}
	return nil
}

func (s *Session) Send(ctx context.Context, guildID int64, text string) error {
	if text == "" {
		return nil
	}
	if _, err := s.bot.Send(api.NewMessage(guildID, text)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (s *Session) SendDirect(ctx context.Context, userID int64, text string) error {
	return s.Send(ctx, userID, text)
}
