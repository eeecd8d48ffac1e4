package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// AddScorePoint appends one health score sample.
func (s *Store) AddScorePoint(ctx context.Context, point *ScorePoint) error {
	if point.Timestamp.IsZero() {
		point.Timestamp = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(point).Error
}

// ListScorePoints returns score samples at or after since, oldest first,
// suitable for plotting a trend line.
func (s *Store) ListScorePoints(ctx context.Context, since time.Time, limit int) ([]*ScorePoint, error) {
	q := s.db.WithContext(ctx).Order("timestamp ASC")
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var points []*ScorePoint
	if err := q.Find(&points).Error; err != nil {
		return nil, err
	}
	return points, nil
}

// LatestScore returns the most recent score sample, or nil when no
// analyzer run has happened yet.
func (s *Store) LatestScore(ctx context.Context) (*ScorePoint, error) {
	var point ScorePoint
	err := s.db.WithContext(ctx).Order("timestamp DESC").First(&point).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &point, nil
}
