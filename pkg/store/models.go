package store

import (
	"time"

	"github.com/shareguard/shareguard/pkg/acl"
)

// IssueStatus is the lifecycle state of a health issue.
type IssueStatus string

const (
	IssueActive   IssueStatus = "active"
	IssueResolved IssueStatus = "resolved"
	IssueIgnored  IssueStatus = "ignored"
)

// ChangeType labels what a diff found.
type ChangeType string

const (
	ChangeOwner              ChangeType = "owner_changed"
	ChangeInheritance        ChangeType = "inheritance_changed"
	ChangePermissionAdded    ChangeType = "permission_added"
	ChangePermissionRemoved  ChangeType = "permission_removed"
	ChangePermissionModified ChangeType = "permission_modified"
)

// IssueType labels what a health detector found.
type IssueType string

const (
	IssueBrokenInheritance    IssueType = "broken_inheritance"
	IssueDirectUserACE        IssueType = "direct_user_ace"
	IssueOrphanedSID          IssueType = "orphaned_sid"
	IssueExcessiveACECount    IssueType = "excessive_ace_count"
	IssueConflictingDenyOrder IssueType = "conflicting_deny_order"
	IssueOverPermissiveGroups IssueType = "over_permissive_groups"
)

// CacheEntry is the persisted latest snapshot of one path.
type CacheEntry struct {
	// Path is the unique key, stored exactly as scanned.
	Path string `gorm:"primaryKey" json:"path"`

	Snapshot *acl.Snapshot `gorm:"serializer:json" json:"snapshot"`
	Checksum string        `gorm:"index" json:"checksum"`

	// FSMTime is the filesystem modification time at store time, when the
	// source could provide one.
	FSMTime *time.Time `json:"fs_mtime,omitempty"`

	StoredAt time.Time `gorm:"index" json:"stored_at"`
	IsStale  bool      `gorm:"index" json:"is_stale"`
}

// Valid reports whether the entry can stand in for a fresh scan: not
// stale, younger than ttl, and not contradicted by a newer filesystem
// mtime.
func (e *CacheEntry) Valid(now time.Time, ttl time.Duration) bool {
	if e.IsStale {
		return false
	}
	if now.Sub(e.StoredAt) >= ttl {
		return false
	}
	if e.FSMTime != nil && e.FSMTime.After(e.StoredAt) {
		return false
	}
	return true
}

// ChangeRecord is one persisted diff result.
type ChangeRecord struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	DetectedAt time.Time  `gorm:"index" json:"detected_at"`
	Path       string     `gorm:"index" json:"path"`
	ChangeType ChangeType `json:"change_type"`

	// PreviousState and CurrentState hold the relevant snapshot subset,
	// not entire snapshots.
	PreviousState map[string]any `gorm:"serializer:json" json:"previous_state"`
	CurrentState  map[string]any `gorm:"serializer:json" json:"current_state"`

	Severity acl.Severity `json:"severity"`
	Message  string       `json:"message"`
}

// Issue is one persisted health analyzer finding.
type Issue struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Path      string    `gorm:"index:idx_issue_dedup" json:"path"`
	IssueType IssueType `gorm:"index:idx_issue_dedup" json:"issue_type"`

	Severity           acl.Severity `json:"severity"`
	RiskScore          float64      `json:"risk_score"`
	Description        string       `json:"description"`
	AffectedPrincipals []string     `gorm:"serializer:json" json:"affected_principals"`

	FirstDetected time.Time   `json:"first_detected"`
	LastSeen      time.Time   `gorm:"index" json:"last_seen"`
	Status        IssueStatus `gorm:"index:idx_issue_dedup" json:"status"`
}

// ScorePoint is one append-only aggregate health score sample.
type ScorePoint struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	Timestamp   time.Time `gorm:"index" json:"timestamp"`
	Score       float64   `json:"score"`
	TotalIssues int       `json:"total_issues"`

	// CountsBySeverity maps severity name to issue count at sample time.
	CountsBySeverity map[string]int `gorm:"serializer:json" json:"counts_by_severity"`
}

// allModels feeds AutoMigrate.
func allModels() []any {
	return []any{
		&CacheEntry{},
		&ChangeRecord{},
		&Issue{},
		&ScorePoint{},
	}
}
