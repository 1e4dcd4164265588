// Package chatconfig stores typed per-chat parameters backed by the
// chat_config table, with an LRU cache in front and a static schema that
// drives validation, column migration and the settings command surface.
package chatconfig

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hrygo/mynah/ai/cache"
	"github.com/hrygo/mynah/store"
)

const (
	cacheCapacity = 8192
	cacheTTL      = 30 * time.Minute
)

type cacheKey struct {
	ChatID int64
	Param  string
}

// Store reads and writes chat parameters. Reads go through the cache; writes
// invalidate the exact key.
type Store struct {
	store  *store.Store
	sealer *Sealer
	cache  *cache.LRU[cacheKey, *string]
}

func New(st *store.Store, sealer *Sealer) *Store {
	return &Store{
		store:  st,
		sealer: sealer,
		cache:  cache.New[cacheKey, *string](cacheCapacity, cacheTTL),
	}
}

// raw returns the canonical text value, nil for NULL. The chat row is
// materialised on first access.
func (s *Store) raw(ctx context.Context, chatID int64, name string) (*string, error) {
	key := cacheKey{ChatID: chatID, Param: name}
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	if err := s.store.EnsureChatConfig(ctx, chatID); err != nil {
		return nil, err
	}
	v, err := s.store.GetConfigValue(ctx, chatID, name)
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, v, 0)
	return v, nil
}

func (s *Store) param(name string) (*Param, error) {
	if p, ok := paramIndex[name]; ok {
		return p, nil
	}
	return nil, &UnknownParamError{Name: name}
}

// Text returns a text parameter, decrypting sealed values. NULL falls back
// to the declared default; an unreadable sealed value degrades to unset.
func (s *Store) Text(ctx context.Context, chatID int64, name string) (string, error) {
	p, err := s.param(name)
	if err != nil {
		return "", err
	}
	v, err := s.raw(ctx, chatID, name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return p.Default, nil
	}
	if p.Sealed {
		plain, err := s.sealer.Open(*v)
		if err != nil {
			slog.Warn("failed to open sealed parameter, treating as unset",
				"chat_id", chatID, "param", name)
			return "", nil
		}
		return plain, nil
	}
	return *v, nil
}

func (s *Store) Int(ctx context.Context, chatID int64, name string) (int, error) {
	text, err := s.Text(ctx, chatID, name)
	if err != nil {
		return 0, err
	}
	if text == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s value %q: %w", name, text, err)
	}
	return v, nil
}

func (s *Store) Float(ctx context.Context, chatID int64, name string) (float64, error) {
	text, err := s.Text(ctx, chatID, name)
	if err != nil {
		return 0, err
	}
	if text == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s value %q: %w", name, text, err)
	}
	return v, nil
}

func (s *Store) Bool(ctx context.Context, chatID int64, name string) (bool, error) {
	text, err := s.Text(ctx, chatID, name)
	if err != nil {
		return false, err
	}
	if text == "" {
		return false, nil
	}
	v, err := parseBool(text)
	if err != nil {
		return false, fmt.Errorf("failed to parse %s value %q: %w", name, text, err)
	}
	return v, nil
}

// Endpoint returns the chat's active backend name.
func (s *Store) Endpoint(ctx context.Context, chatID int64) (string, error) {
	return s.Text(ctx, chatID, "endpoint")
}

// Display renders the current value for the settings surface: NULL shows the
// default or "not set", private values are obfuscated.
func (s *Store) Display(ctx context.Context, chatID int64, p *Param) (string, error) {
	text, err := s.Text(ctx, chatID, p.Name)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "not set", nil
	}
	if p.Private {
		return Obfuscate(text), nil
	}
	return text, nil
}

// Set validates, canonicalises and persists one parameter, then invalidates
// the cache entry. adminOverride admits out-of-range values; the returned
// flag reports the override was used.
func (s *Store) Set(ctx context.Context, chatID int64, name, raw string, adminOverride bool) (string, bool, error) {
	p, err := s.param(name)
	if err != nil {
		return "", false, err
	}

	canonical, overrode, err := p.Validate(raw, adminOverride)
	if err != nil {
		return "", false, err
	}

	stored := canonical
	if p.Sealed {
		sealed, err := s.sealer.Seal(canonical)
		if err != nil {
			return "", false, fmt.Errorf("failed to seal %s: %w", name, err)
		}
		stored = sealed
	}

	if err := s.store.EnsureChatConfig(ctx, chatID); err != nil {
		return "", false, err
	}
	assign := store.ConfigAssignment{Column: p.Name, SQLType: p.SQLType(), Value: &stored}
	if err := s.store.SetConfigValues(ctx, chatID, []store.ConfigAssignment{assign}); err != nil {
		return "", false, err
	}

	s.cache.Remove(cacheKey{ChatID: chatID, Param: name})
	return canonical, overrode, nil
}

// Assignment is one (parameter, canonical value) pair for batch application.
type Assignment struct {
	Name  string
	Value string
}

// SetMany applies assignments atomically and invalidates each touched key.
// Values are validated and canonicalised like single sets.
func (s *Store) SetMany(ctx context.Context, chatID int64, assignments []Assignment) error {
	if len(assignments) == 0 {
		return nil
	}

	assigns := make([]store.ConfigAssignment, 0, len(assignments))
	for _, a := range assignments {
		p, err := s.param(a.Name)
		if err != nil {
			return err
		}
		canonical, _, err := p.Validate(a.Value, false)
		if err != nil {
			return err
		}
		if p.Sealed {
			canonical, err = s.sealer.Seal(canonical)
			if err != nil {
				return fmt.Errorf("failed to seal %s: %w", a.Name, err)
			}
		}
		value := canonical
		assigns = append(assigns, store.ConfigAssignment{Column: p.Name, SQLType: p.SQLType(), Value: &value})
	}

	if err := s.store.EnsureChatConfig(ctx, chatID); err != nil {
		return err
	}
	if err := s.store.SetConfigValues(ctx, chatID, assigns); err != nil {
		return err
	}

	for _, a := range assignments {
		s.cache.Remove(cacheKey{ChatID: chatID, Param: a.Name})
	}
	return nil
}

// InvalidateChat drops every cached parameter of one chat.
func (s *Store) InvalidateChat(chatID int64) int {
	return s.cache.RemoveFunc(func(k cacheKey) bool { return k.ChatID == chatID })
}

// PurgeCache drops the whole cache. Used by the dropcaches admin command.
func (s *Store) PurgeCache() {
	s.cache.Purge()
}
