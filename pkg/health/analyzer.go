// Package health runs permission hygiene detectors over snapshots and
// maintains the aggregate health score.
package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/shareguard/shareguard/internal/logger"
	"github.com/shareguard/shareguard/pkg/acl"
	"github.com/shareguard/shareguard/pkg/scanner"
	"github.com/shareguard/shareguard/pkg/store"
)

// maxBaseWeightSum is the denominator of the aggregate score: the sum of
// the six detectors' raw base weights.
const maxBaseWeightSum = 100.0

// Config tunes the detectors.
type Config struct {
	// MaxACECount is the excessive-ACE trigger threshold.
	MaxACECount int

	// MaxDirectUserACEs is the count above which direct user grants
	// escalate from medium to high.
	MaxDirectUserACEs int

	// CriticalGroups are substrings matched against Allow trustee names.
	CriticalGroups []string

	// CacheTTL bounds how old a stored snapshot may be before the
	// analyzer re-scans.
	CacheTTL time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.MaxACECount <= 0 {
		c.MaxACECount = DefaultMaxACECount
	}
	if c.MaxDirectUserACEs <= 0 {
		c.MaxDirectUserACEs = DefaultMaxDirectUserACEs
	}
	if len(c.CriticalGroups) == 0 {
		c.CriticalGroups = append([]string{}, DefaultCriticalGroups...)
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = store.DefaultTTL
	}
}

// Analyzer evaluates paths and persists issues and score history.
type Analyzer struct {
	store   *store.Store
	scanner *scanner.Scanner
	config  Config
}

// New builds an Analyzer. The scanner may be nil when callers guarantee
// every analyzed path already has a valid store entry.
func New(st *store.Store, sc *scanner.Scanner, cfg Config) *Analyzer {
	cfg.ApplyDefaults()
	return &Analyzer{store: st, scanner: sc, config: cfg}
}

// Result summarizes one analyzer run.
type Result struct {
	RunID       string         `json:"run_id"`
	Score       float64        `json:"score"`
	TotalIssues int            `json:"total_issues"`
	BySeverity  map[string]int `json:"by_severity"`
	Issues      []*store.Issue `json:"issues"`
	PathErrors  int            `json:"path_errors"`
}

// Run analyzes the given paths. Each path's latest snapshot comes from
// the store when still valid, otherwise from a fresh scan that is also
// persisted. Per-path failures are counted, not fatal.
func (a *Analyzer) Run(ctx context.Context, paths []string) (*Result, error) {
	runID := uuid.New().String()
	start := time.Now()
	ctx = logger.WithContext(ctx, logger.NewScanContext(runID, "health"))

	result := &Result{
		RunID:      runID,
		BySeverity: map[string]int{},
	}
	var contribution float64

	for _, path := range paths {
		snap, err := a.snapshotFor(ctx, path)
		if err != nil {
			logger.WarnCtx(ctx, "health: skipping path",
				logger.Path(path), logger.Err(err))
			result.PathErrors++
			continue
		}

		for _, f := range a.detect(snap) {
			issue := &store.Issue{
				Path:               snap.Path,
				IssueType:          f.IssueType,
				Severity:           f.Severity,
				RiskScore:          round1(f.riskScore()),
				Description:        f.Description,
				AffectedPrincipals: f.Affected,
			}
			if err := a.store.UpsertIssue(ctx, issue); err != nil {
				return nil, fmt.Errorf("persisting issue for %s: %w", snap.Path, err)
			}
			result.Issues = append(result.Issues, issue)
			result.TotalIssues++
			result.BySeverity[string(f.Severity)]++
			contribution += f.weightedContribution()
		}
	}

	result.Score = Score(contribution)

	point := &store.ScorePoint{
		Timestamp:        time.Now().UTC(),
		Score:            result.Score,
		TotalIssues:      result.TotalIssues,
		CountsBySeverity: result.BySeverity,
	}
	if err := a.store.AddScorePoint(ctx, point); err != nil {
		return nil, fmt.Errorf("recording score point: %w", err)
	}

	logger.InfoCtx(ctx, "health run complete",
		logger.KeyScore, result.Score,
		logger.KeyIssueCount, result.TotalIssues,
		logger.KeyDurationMs, logger.Duration(start))
	return result, nil
}

// Analyze runs the detectors over one snapshot without touching the
// store. Used by tests and by callers that already hold a snapshot.
func (a *Analyzer) Analyze(snap *acl.Snapshot) []*store.Issue {
	var issues []*store.Issue
	for _, f := range a.detect(snap) {
		issues = append(issues, &store.Issue{
			Path:               snap.Path,
			IssueType:          f.IssueType,
			Severity:           f.Severity,
			RiskScore:          round1(f.riskScore()),
			Description:        f.Description,
			AffectedPrincipals: f.Affected,
		})
	}
	return issues
}

func (a *Analyzer) detect(snap *acl.Snapshot) []*finding {
	raw := []*finding{
		detectBrokenInheritance(snap),
		detectDirectUserACEs(snap, a.config.MaxDirectUserACEs),
		detectOrphanedSIDs(snap),
		detectExcessiveACECount(snap, a.config.MaxACECount),
		detectConflictingDenyOrder(snap),
		detectOverPermissiveGroups(snap, a.config.CriticalGroups),
	}

	findings := raw[:0]
	for _, f := range raw {
		if significant(f) {
			findings = append(findings, f)
		}
	}
	return findings
}

func (a *Analyzer) snapshotFor(ctx context.Context, path string) (*acl.Snapshot, error) {
	now := time.Now().UTC()
	entry, err := a.store.GetEntry(ctx, path)
	if err == nil && entry.Valid(now, a.config.CacheTTL) {
		return entry.Snapshot, nil
	}

	if a.scanner == nil {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("stale entry for %s and no scanner configured", path)
	}

	snap, scanErr := a.scanner.Scan(ctx, path)
	if scanErr != nil {
		return nil, scanErr
	}
	var mtime *time.Time
	if t, err := a.scanner.ModTime(ctx, path); err == nil {
		mtime = &t
	}
	if err := a.store.PutEntry(ctx, snap, mtime); err != nil {
		return nil, err
	}
	return snap, nil
}

// Score converts the summed weighted contribution of all findings into
// the 0-100 aggregate, one decimal. Zero contribution yields exactly 100.
func Score(contribution float64) float64 {
	if contribution > maxBaseWeightSum {
		contribution = maxBaseWeightSum
	}
	if contribution < 0 {
		contribution = 0
	}
	return round1(100 - 100*contribution/maxBaseWeightSum)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
