package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

type (
	// Denylist keeps the ids of tokens that were signed out before
	// they expired.
	Denylist interface {
		Revoke(ctx context.Context, tokenID string) error
		Revoked(ctx context.Context, tokenID string) (bool, error)
	}

	memDenylist struct {
		cache *bigcache.BigCache
	}
)

// InMemoryDenylist keeps revoked ids for ttl, which should match the
// session lifetime.
func InMemoryDenylist(ttl time.Duration) (Denylist, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.CleanWindow = time.Minute
	cfg.Verbose = false
	cache, err := bigcache.NewBigCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to allocate denylist, cause %w", err)
	}
	return &memDenylist{
		cache: cache,
	}, nil
}

func (m *memDenylist) Revoke(ctx context.Context, tokenID string) error {
	return m.cache.Set(tokenID, []byte{1})
}

func (m *memDenylist) Revoked(ctx context.Context, tokenID string) (bool, error) {
	buf, err := m.cache.Get(tokenID)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return (len(buf) > 0 && buf[0] == 1), nil
}
