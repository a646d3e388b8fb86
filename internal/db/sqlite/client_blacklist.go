package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/meng-fucius/guardbot/internal/db"
)

// BanAccount zeroes the account authority and upserts the blacklist entry in
// one transaction. Repeated bans of the same account converge on a single row
// through the unique constraint on account_id.
func (s *sqliteClient) BanAccount(ctx context.Context, accountID, externalUserID int64, displayName string, operatorID int64, at time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	rollback := true
	defer func() {
		if rollback {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.WithError(err).Error("failed to rollback ban transaction")
			}
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`UPDATE accounts SET authority = 0 WHERE id = ?`, accountID); err != nil {
		return fmt.Errorf("set authority: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO blacklist_manager (account_id, external_user_id, display_name, created_at, operator_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
		external_user_id = excluded.external_user_id,
		display_name = excluded.display_name,
		operator_id = excluded.operator_id
	`, accountID, externalUserID, displayName, at, operatorID); err != nil {
		return fmt.Errorf("upsert blacklist entry: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	rollback = false
	return nil
}

// UnbanAccount is the exact inverse of BanAccount, in one transaction.
func (s *sqliteClient) UnbanAccount(ctx context.Context, accountID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	rollback := true
	defer func() {
		if rollback {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.WithError(err).Error("failed to rollback unban transaction")
			}
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`UPDATE accounts SET authority = 1 WHERE id = ?`, accountID); err != nil {
		return fmt.Errorf("set authority: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM blacklist_manager WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("delete blacklist entry: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	rollback = false
	return nil
}

func (s *sqliteClient) IsBlacklisted(ctx context.Context, externalUserID int64) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM blacklist_manager WHERE external_user_id = ?`, externalUserID)
	return count > 0, err
}

func (s *sqliteClient) ListBlacklist(ctx context.Context, offset, limit int) ([]db.BlacklistEntry, int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM blacklist_manager`); err != nil {
		return nil, 0, fmt.Errorf("count blacklist: %w", err)
	}

	var entries []db.BlacklistEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, account_id, external_user_id, display_name, created_at, operator_id
		FROM blacklist_manager
		ORDER BY id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list blacklist: %w", err)
	}
	return entries, total, nil
}

func (s *sqliteClient) BlacklistSnapshot(ctx context.Context) (map[int64]struct{}, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var userIDs []int64
	err := s.db.SelectContext(ctx, &userIDs, `SELECT external_user_id FROM blacklist_manager`)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[int64]struct{}, len(userIDs))
	for _, userID := range userIDs {
		snapshot[userID] = struct{}{}
	}
	return snapshot, nil
}
