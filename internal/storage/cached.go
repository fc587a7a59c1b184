package storage

import (
	"context"
	"time"

	"github.com/tbourn/settlement-showcase/internal/sysutil"
)

// Existence cache lifetimes. Misses expire sooner so a photo uploaded after
// the first lookup shows up quickly.
const (
	PositiveTTL = 10 * time.Minute
	NegativeTTL = time.Minute
)

// CachedPhotos answers existence lookups through a Cache before asking the
// object store.
type CachedPhotos struct {
	Store PhotoStore
	Cache Cache
}

func existsKey(key string) string { return "photo-exists:" + key }

// Exists reports whether key is stored. Cache failures fall through to the
// store.
func (p *CachedPhotos) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	if v, ok, err := p.Cache.GetBool(ctx, existsKey(key)); err == nil && ok {
		return v, nil
	} else if err != nil {
		sysutil.Logger(ctx).Warn().Err(err).Msg("photo existence cache read failed")
	}

	exists, err := p.Store.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	ttl := NegativeTTL
	if exists {
		ttl = PositiveTTL
	}
	if err := p.Cache.SetBool(ctx, existsKey(key), exists, ttl); err != nil {
		sysutil.Logger(ctx).Warn().Err(err).Msg("photo existence cache write failed")
	}
	return exists, nil
}

// URL returns a presigned GET URL for key, or "" when the object is absent.
func (p *CachedPhotos) URL(ctx context.Context, key string) (string, error) {
	ok, err := p.Exists(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	return p.Store.PresignGet(ctx, key)
}

// Delete removes the object and forgets its cached existence.
func (p *CachedPhotos) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := p.Store.Delete(ctx, key); err != nil {
		return err
	}
	return p.Cache.Delete(ctx, existsKey(key))
}

// Forget drops the cached existence answer for key (after an upload).
func (p *CachedPhotos) Forget(ctx context.Context, key string) error {
	return p.Cache.Delete(ctx, existsKey(key))
}
