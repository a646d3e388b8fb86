package sqlite

import (
	"context"

	"github.com/iamwavecut/tool"

	"github.com/meng-fucius/guardbot/internal/db"
)

func (s *sqliteClient) UpsertGuild(ctx context.Context, guild *db.GuildMeta) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO guilds (id, title, session)
		VALUES (:id, :title, :session)
		ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		session = excluded.session
	`
	return tool.Err(s.db.NamedExecContext(ctx, query, guild))
}

func (s *sqliteClient) GetGuilds(ctx context.Context, session string) ([]db.GuildMeta, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var guilds []db.GuildMeta
	err := s.db.SelectContext(ctx, &guilds,
		`SELECT id, title, session FROM guilds WHERE session = ? ORDER BY id`, session)
	return guilds, err
}

func (s *sqliteClient) InsertMember(ctx context.Context, guildID, userID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO guild_members (guild_id, user_id) VALUES (?, ?)`, guildID, userID)
	return err
}

func (s *sqliteClient) DeleteMember(ctx context.Context, guildID, userID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM guild_members WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	return err
}

func (s *sqliteClient) GetMembers(ctx context.Context, guildID int64) ([]int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var userIDs []int64
	err := s.db.SelectContext(ctx, &userIDs,
		`SELECT user_id FROM guild_members WHERE guild_id = ? ORDER BY user_id`, guildID)
	return userIDs, err
}

// IsMember checks a single roster pair. Not part of db.Client; tests use it
// to observe roster state.
func (s *sqliteClient) IsMember(ctx context.Context, guildID, userID int64) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM guild_members WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	return count > 0, err
}
