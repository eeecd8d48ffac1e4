package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/shareguard/shareguard/internal/logger"
	"github.com/shareguard/shareguard/pkg/acl"
)

// DefaultTTL is how long a cache entry stands in for a fresh scan.
const DefaultTTL = 24 * time.Hour

// DefaultRetention is how long entries survive before the reaper removes
// them.
const DefaultRetention = 48 * time.Hour

// GetEntry returns the cache entry for a path, or ErrEntryNotFound.
func (s *Store) GetEntry(ctx context.Context, path string) (*CacheEntry, error) {
	var entry CacheEntry
	err := s.db.WithContext(ctx).Where("path = ?", path).First(&entry).Error
	if err != nil {
		return nil, convertNotFoundError(err, ErrEntryNotFound)
	}
	return &entry, nil
}

// PutEntry stores the latest snapshot for a path, resetting staleness.
// The snapshot is fingerprinted if the scanner has not already done so.
func (s *Store) PutEntry(ctx context.Context, snapshot *acl.Snapshot, fsMTime *time.Time) error {
	if snapshot.Checksum == "" {
		snapshot.Fingerprint()
	}

	mu := s.lockPath(snapshot.Path)
	mu.Lock()
	defer mu.Unlock()

	entry := CacheEntry{
		Path:     snapshot.Path,
		Snapshot: snapshot,
		Checksum: snapshot.Checksum,
		FSMTime:  fsMTime,
		StoredAt: time.Now().UTC(),
		IsStale:  false,
	}
	return s.db.WithContext(ctx).Save(&entry).Error
}

// MarkStale flags the entry at path, every cached descendant, and every
// cached ancestor whose tree contains path. Prefix matching happens in Go
// rather than SQL LIKE because cached paths are full of backslashes, which
// PostgreSQL treats as pattern escapes.
func (s *Store) MarkStale(ctx context.Context, path string) (int64, error) {
	mu := s.lockPath(path)
	mu.Lock()
	defer mu.Unlock()

	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var paths []string
		if err := tx.Model(&CacheEntry{}).Pluck("path", &paths).Error; err != nil {
			return err
		}

		target := normalizeCachePath(path)
		var related []string
		for _, p := range paths {
			if pathsRelated(normalizeCachePath(p), target) {
				related = append(related, p)
			}
		}
		if len(related) == 0 {
			return nil
		}

		res := tx.Model(&CacheEntry{}).
			Where("path IN ?", related).
			Update("is_stale", true)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, err
	}

	if affected > 0 {
		logger.Debug("cache entries marked stale",
			logger.KeyPath, path,
			"entries", affected)
	}
	return affected, nil
}

// Reap removes entries older than olderThan, plus stale entries older than
// staleCutoff. Returns the number of removed entries.
func (s *Store) Reap(ctx context.Context, olderThan, staleCutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("stored_at < ? OR (is_stale = ? AND stored_at < ?)", olderThan, true, staleCutoff).
		Delete(&CacheEntry{})
	return res.RowsAffected, res.Error
}

// ListEntries returns all cache entries, most recently stored first.
func (s *Store) ListEntries(ctx context.Context) ([]*CacheEntry, error) {
	var entries []*CacheEntry
	err := s.db.WithContext(ctx).Order("stored_at DESC").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func normalizeCachePath(p string) string {
	return strings.ToLower(strings.TrimRight(p, `\`))
}

// pathsRelated reports whether a is b, an ancestor of b, or a descendant
// of b.
func pathsRelated(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+`\`) || strings.HasPrefix(b, a+`\`)
}
