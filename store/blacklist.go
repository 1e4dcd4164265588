package store

import "context"

// AddBlacklistEntity blocks a chat or user id. Returns false when the id was
// already blocked. Chats and users share one id namespace.
func (s *Store) AddBlacklistEntity(ctx context.Context, entityID int64) (bool, error) {
	return s.driver.AddBlacklistEntity(ctx, entityID)
}

// RemoveBlacklistEntity unblocks an id. Returns false when it was not blocked.
func (s *Store) RemoveBlacklistEntity(ctx context.Context, entityID int64) (bool, error) {
	return s.driver.RemoveBlacklistEntity(ctx, entityID)
}

// IsBlacklistedEntity reports whether an id is blocked.
func (s *Store) IsBlacklistedEntity(ctx context.Context, entityID int64) (bool, error) {
	return s.driver.IsBlacklistedEntity(ctx, entityID)
}

// ListBlacklistEntities returns every blocked id.
func (s *Store) ListBlacklistEntities(ctx context.Context) ([]int64, error) {
	return s.driver.ListBlacklistEntities(ctx)
}
