package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shareguard/shareguard/pkg/acl"
)

// UpsertIssue records a health finding. A second detection of the same
// (path, issue_type) while an active issue exists refreshes that issue's
// mutable fields instead of inserting a duplicate.
func (s *Store) UpsertIssue(ctx context.Context, issue *Issue) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Issue
		err := tx.Where("path = ? AND issue_type = ? AND status = ?",
			issue.Path, issue.IssueType, IssueActive).
			First(&existing).Error

		if err == nil {
			// A struct update (not a map) so the affected_principals JSON
			// serializer is applied; Select forces zero values through too.
			return tx.Model(&existing).
				Select("severity", "risk_score", "description", "affected_principals", "last_seen").
				Updates(&Issue{
					Severity:           issue.Severity,
					RiskScore:          issue.RiskScore,
					Description:        issue.Description,
					AffectedPrincipals: issue.AffectedPrincipals,
					LastSeen:           now,
				}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if issue.ID == "" {
			issue.ID = uuid.New().String()
		}
		issue.Status = IssueActive
		issue.FirstDetected = now
		issue.LastSeen = now
		return tx.Create(issue).Error
	})
}

// SetIssueStatus transitions an issue to active, resolved, or ignored.
func (s *Store) SetIssueStatus(ctx context.Context, id string, status IssueStatus) error {
	switch status {
	case IssueActive, IssueResolved, IssueIgnored:
	default:
		return ErrInvalidStatus
	}

	res := s.db.WithContext(ctx).Model(&Issue{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrIssueNotFound
	}
	return nil
}

// IssueFilter narrows ListIssues.
type IssueFilter struct {
	// Status restricts to one lifecycle state when non-empty.
	Status IssueStatus

	// Path restricts to one path when non-empty.
	Path string

	// Limit caps the result count; 0 means the default page of 100.
	Limit int

	// Offset skips results for pagination.
	Offset int
}

// ListIssues returns issues ordered by risk, highest first.
func (s *Store) ListIssues(ctx context.Context, filter IssueFilter) ([]*Issue, error) {
	q := s.db.WithContext(ctx).Order("risk_score DESC, last_seen DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Path != "" {
		q = q.Where("path = ?", filter.Path)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q = q.Limit(limit).Offset(filter.Offset)

	var issues []*Issue
	if err := q.Find(&issues).Error; err != nil {
		return nil, err
	}
	return issues, nil
}

// CountActiveBySeverity tallies active issues per severity grade.
func (s *Store) CountActiveBySeverity(ctx context.Context) (map[string]int, int, error) {
	type row struct {
		Severity acl.Severity
		N        int
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&Issue{}).
		Select("severity, COUNT(*) AS n").
		Where("status = ?", IssueActive).
		Group("severity").
		Scan(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	counts := map[string]int{}
	total := 0
	for _, r := range rows {
		counts[string(r.Severity)] = r.N
		total += r.N
	}
	return counts, total, nil
}
