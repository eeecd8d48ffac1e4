package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AddChange persists a change record, assigning an ID and detection time
// when unset.
func (s *Store) AddChange(ctx context.Context, change *ChangeRecord) error {
	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	if change.DetectedAt.IsZero() {
		change.DetectedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(change).Error
}

// ChangeFilter narrows ListChanges.
type ChangeFilter struct {
	// Path restricts to one path when non-empty.
	Path string

	// Since restricts to changes detected at or after the given time.
	Since time.Time

	// Limit caps the result count; 0 means the default page of 100.
	Limit int

	// Offset skips results for pagination.
	Offset int
}

// ListChanges returns change records newest first.
func (s *Store) ListChanges(ctx context.Context, filter ChangeFilter) ([]*ChangeRecord, error) {
	q := s.db.WithContext(ctx).Order("detected_at DESC")
	if filter.Path != "" {
		q = q.Where("path = ?", filter.Path)
	}
	if !filter.Since.IsZero() {
		q = q.Where("detected_at >= ?", filter.Since)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q = q.Limit(limit).Offset(filter.Offset)

	var changes []*ChangeRecord
	if err := q.Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}
