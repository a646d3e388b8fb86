package db

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrUnresolvedAccount is returned when an external user id has no linked
	// account, which makes ban/unban a no-op by contract.
	ErrUnresolvedAccount = errors.New("no linked account")
)

type Client interface {
	Close() error

	// Identity bindings. The linking subsystem owns these rows; this engine
	// only resolves through them and registers accounts for observed users.
	ResolveAccountID(ctx context.Context, externalUserID int64) (int64, error)
	EnsureLinkedAccount(ctx context.Context, externalUserID int64) (int64, error)

	// Blacklist. BanAccount and UnbanAccount mutate the account authority and
	// the blacklist entry inside a single transaction.
	BanAccount(ctx context.Context, accountID, externalUserID int64, displayName string, operatorID int64, at time.Time) error
	UnbanAccount(ctx context.Context, accountID int64) error
	IsBlacklisted(ctx context.Context, externalUserID int64) (bool, error)
	ListBlacklist(ctx context.Context, offset, limit int) ([]BlacklistEntry, int, error)
	BlacklistSnapshot(ctx context.Context) (map[int64]struct{}, error)

	// Keyword violation counters, unique per (user, guild).
	IncrementViolation(ctx context.Context, externalUserID, guildID int64, at time.Time) (int, error)
	ResetViolation(ctx context.Context, externalUserID, guildID int64) error

	// Tracked rosters, maintained from observed updates.
	UpsertGuild(ctx context.Context, guild *GuildMeta) error
	GetGuilds(ctx context.Context, session string) ([]GuildMeta, error)
	InsertMember(ctx context.Context, guildID, userID int64) error
	DeleteMember(ctx context.Context, guildID, userID int64) error
	GetMembers(ctx context.Context, guildID int64) ([]int64, error)
}
