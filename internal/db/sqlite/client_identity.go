package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/meng-fucius/guardbot/internal/db"
)

func (s *sqliteClient) ResolveAccountID(ctx context.Context, externalUserID int64) (int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var accountID int64
	err := s.db.GetContext(ctx, &accountID,
		`SELECT account_id FROM user_links WHERE external_user_id = ?`, externalUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, db.ErrUnresolvedAccount
		}
		return 0, fmt.Errorf("resolve account for user %d: %w", externalUserID, err)
	}
	return accountID, nil
}

func (s *sqliteClient) EnsureLinkedAccount(ctx context.Context, externalUserID int64) (int64, error) {
	if accountID, err := s.ResolveAccountID(ctx, externalUserID); err == nil {
		return accountID, nil
	} else if !errors.Is(err, db.ErrUnresolvedAccount) {
		return 0, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `INSERT INTO accounts (authority) VALUES (1)`)
	if err != nil {
		return 0, fmt.Errorf("create account: %w", err)
	}
	accountID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("account id: %w", err)
	}

	// A concurrent linker may have won the race on external_user_id; keep the
	// existing binding in that case.
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO user_links (external_user_id, account_id) VALUES (?, ?)
		ON CONFLICT(external_user_id) DO NOTHING
	`, externalUserID, accountID); err != nil {
		return 0, fmt.Errorf("link account: %w", err)
	}

	var linkedID int64
	if err = tx.GetContext(ctx, &linkedID,
		`SELECT account_id FROM user_links WHERE external_user_id = ?`, externalUserID); err != nil {
		return 0, fmt.Errorf("reread link: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return linkedID, nil
}

// GetAccount reads a registry row directly. Not part of db.Client; tests use
// it to observe authority state.
func (s *sqliteClient) GetAccount(ctx context.Context, accountID int64) (*db.Account, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	account := &db.Account{}
	err := s.db.GetContext(ctx, account,
		`SELECT id, authority FROM accounts WHERE id = ?`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("get account %d: %w", accountID, err)
	}
	return account, nil
}
