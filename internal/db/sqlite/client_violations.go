package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/meng-fucius/guardbot/internal/db"
)

func (s *sqliteClient) IncrementViolation(ctx context.Context, externalUserID, guildID int64, at time.Time) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO keyword_violations (external_user_id, guild_id, count, last_violation_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(external_user_id, guild_id) DO UPDATE SET
		count = count + 1,
		last_violation_at = excluded.last_violation_at
	`, externalUserID, guildID, at); err != nil {
		return 0, fmt.Errorf("increment violation: %w", err)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, `
		SELECT count FROM keyword_violations WHERE external_user_id = ? AND guild_id = ?
	`, externalUserID, guildID); err != nil {
		return 0, fmt.Errorf("read violation count: %w", err)
	}
	return count, nil
}

func (s *sqliteClient) ResetViolation(ctx context.Context, externalUserID, guildID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE keyword_violations SET count = 0 WHERE external_user_id = ? AND guild_id = ?
	`, externalUserID, guildID)
	return err
}

// GetViolation reads a counter row directly. Not part of db.Client; tests use
// it to observe escalation state.
func (s *sqliteClient) GetViolation(ctx context.Context, externalUserID, guildID int64) (*db.KeywordViolation, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	violation := &db.KeywordViolation{}
	err := s.db.GetContext(ctx, violation, `
		SELECT id, external_user_id, guild_id, count, last_violation_at
		FROM keyword_violations
		WHERE external_user_id = ? AND guild_id = ?
	`, externalUserID, guildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return violation, nil
}
