// Package blacklist tracks chats and users the bot refuses to serve.
// Lookups sit on the hot path of every update, so they are LRU-cached;
// writes invalidate the exact entity.
package blacklist

import (
	"context"
	"time"

	"github.com/hrygo/mynah/ai/cache"
	"github.com/hrygo/mynah/store"
)

const (
	cacheCapacity = 1024
	cacheTTL      = time.Hour
)

type Service struct {
	store *store.Store
	cache *cache.LRU[int64, bool]
}

func New(st *store.Store) *Service {
	return &Service{
		store: st,
		cache: cache.New[int64, bool](cacheCapacity, cacheTTL),
	}
}

// IsBlocked reports whether either the chat or the sender is blacklisted.
func (s *Service) IsBlocked(ctx context.Context, chatID, userID int64) (bool, error) {
	blocked, err := s.isBlacklisted(ctx, chatID)
	if err != nil || blocked {
		return blocked, err
	}
	if userID == chatID {
		return false, nil
	}
	return s.isBlacklisted(ctx, userID)
}

func (s *Service) isBlacklisted(ctx context.Context, entityID int64) (bool, error) {
	if v, ok := s.cache.Get(entityID); ok {
		return v, nil
	}

	blocked, err := s.store.IsBlacklistedEntity(ctx, entityID)
	if err != nil {
		return false, err
	}

	s.cache.Set(entityID, blocked, 0)
	return blocked, nil
}

// Add blacklists an entity. Reports false when it was already listed.
func (s *Service) Add(ctx context.Context, entityID int64) (bool, error) {
	added, err := s.store.AddBlacklistEntity(ctx, entityID)
	if err != nil {
		return false, err
	}
	s.cache.Remove(entityID)
	return added, nil
}

// Remove unblacklists an entity. Reports false when it was not listed.
func (s *Service) Remove(ctx context.Context, entityID int64) (bool, error) {
	removed, err := s.store.RemoveBlacklistEntity(ctx, entityID)
	if err != nil {
		return false, err
	}
	s.cache.Remove(entityID)
	return removed, nil
}

// List returns every blacklisted entity id.
func (s *Service) List(ctx context.Context) ([]int64, error) {
	return s.store.ListBlacklistEntities(ctx)
}

// PurgeCache drops the whole cache. Used by the dropcaches admin command.
func (s *Service) PurgeCache() {
	s.cache.Purge()
}
