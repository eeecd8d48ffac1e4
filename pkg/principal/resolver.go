package principal

import (
	"context"
	"errors"

	"github.com/bluele/gcache"

	"github.com/shareguard/shareguard/internal/logger"
	"github.com/shareguard/shareguard/pkg/directory"
	"github.com/shareguard/shareguard/pkg/sid"
)

// resolverCacheSize bounds the SID memoization cache. Deployments rarely
// see more than a few thousand distinct trustees across all watched trees.
const resolverCacheSize = 8192

// Resolver memoizes SID resolution against a directory backend.
//
// Resolutions are long-lived: account renames are rare and SIDs are stable,
// so entries are evicted only by LRU pressure or an explicit ClearCache.
type Resolver struct {
	dir   directory.Directory
	cache gcache.Cache
}

// NewResolver creates a resolver backed by dir.
func NewResolver(dir directory.Directory) *Resolver {
	return &Resolver{
		dir:   dir,
		cache: gcache.New(resolverCacheSize).LRU().Build(),
	}
}

// Resolve maps a SID string to a Principal. It never returns an error:
// well-known SIDs resolve locally, directory hits are classified and
// memoized, and everything else degrades to an unknown principal.
func (r *Resolver) Resolve(ctx context.Context, sidStr string) Principal {
	if v, err := r.cache.Get(sidStr); err == nil {
		return v.(Principal)
	}

	p := r.resolveUncached(ctx, sidStr)
	_ = r.cache.Set(sidStr, p)
	return p
}

func (r *Resolver) resolveUncached(ctx context.Context, sidStr string) Principal {
	// Well-known SIDs never need a directory round-trip.
	if domain, name, ok := sid.WellKnownName(sidStr); ok {
		p := Principal{
			SID:    sidStr,
			Name:   name,
			Domain: domain,
			Kind:   KindWellKnownGroup,
		}
		p.FullName = fullName(domain, name)
		p.IsSystem = IsSystemName(p.FullName)
		return p
	}

	account, err := r.dir.LookupSID(ctx, sidStr)
	if err != nil {
		if !errors.Is(err, directory.ErrNotFound) {
			logger.Warn("SID resolution failed", "sid", sidStr, "error", err)
		}
		return Unknown(sidStr)
	}

	p := Principal{
		SID:    account.SID,
		Name:   account.Name,
		Domain: account.Domain,
		Kind:   kindFromAccountType(account.Type),
	}
	p.FullName = fullName(account.Domain, account.Name)
	p.IsSystem = IsSystemName(p.FullName)
	return p
}

// ClearCache drops all memoized resolutions. Admin flushes only.
func (r *Resolver) ClearCache() {
	r.cache.Purge()
}

// CacheLen returns the number of memoized resolutions.
func (r *Resolver) CacheLen() int {
	return r.cache.Len(false)
}

func fullName(domain, name string) string {
	if domain == "" {
		return name
	}
	return domain + "\\" + name
}
