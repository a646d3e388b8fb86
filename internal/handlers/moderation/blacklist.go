package handlers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meng-fucius/guardbot/internal/db"
	"github.com/meng-fucius/guardbot/internal/observability"
)

type blacklistStore interface {
	ResolveAccountID(ctx context.Context, externalUserID int64) (int64, error)
	BanAccount(ctx context.Context, accountID, externalUserID int64, displayName string, operatorID int64, at time.Time) error
	UnbanAccount(ctx context.Context, accountID int64) error
	IsBlacklisted(ctx context.Context, externalUserID int64) (bool, error)
	ListBlacklist(ctx context.Context, offset, limit int) ([]db.BlacklistEntry, int, error)
	BlacklistSnapshot(ctx context.Context) (map[int64]struct{}, error)
}

// BlacklistService maintains the global ban registry. The authority flag and
// the registry entry always move together inside one storage transaction; a
// target without a linked account fails with db.ErrUnresolvedAccount before
// anything is touched.
type BlacklistService struct {
	store blacklistStore
}

func NewBlacklistService(store blacklistStore) *BlacklistService {
	return &BlacklistService{store: store}
}

func (s *BlacklistService) Ban(ctx context.Context, externalUserID int64, displayName string, operatorID int64) error {
	accountID, err := s.store.ResolveAccountID(ctx, externalUserID)
	if err != nil {
		return err
	}
	if err := s.store.BanAccount(ctx, accountID, externalUserID, displayName, operatorID, time.Now().UTC()); err != nil {
		return fmt.Errorf("ban transaction: %w", err)
	}
	observability.Audit.Info("ban",
		zap.Int64("account_id", accountID),
		zap.Int64("user_id", externalUserID),
		zap.Int64("operator_id", operatorID),
	)
	return nil
}

func (s *BlacklistService) Unban(ctx context.Context, externalUserID int64) error {
	accountID, err := s.store.ResolveAccountID(ctx, externalUserID)
	if err != nil {
		return err
	}
	if err := s.store.UnbanAccount(ctx, accountID); err != nil {
		return fmt.Errorf("unban transaction: %w", err)
	}
	observability.Audit.Info("unban",
		zap.Int64("account_id", accountID),
		zap.Int64("user_id", externalUserID),
	)
	return nil
}

func (s *BlacklistService) IsBanned(ctx context.Context, externalUserID int64) (bool, error) {
	return s.store.IsBlacklisted(ctx, externalUserID)
}

// List returns one page of the registry plus the total entry count. Pages are
// 1-based.
func (s *BlacklistService) List(ctx context.Context, page, pageSize int) ([]db.BlacklistEntry, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return s.store.ListBlacklist(ctx, (page-1)*pageSize, pageSize)
}

// Snapshot loads the banned external id set once, for use by a sweep. Bans
// added after the snapshot wait for the next sweep.
func (s *BlacklistService) Snapshot(ctx context.Context) (map[int64]struct{}, error) {
	return s.store.BlacklistSnapshot(ctx)
}
