package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shareguard/shareguard/pkg/acl"
	"github.com/shareguard/shareguard/pkg/principal"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func snapshotFor(path string) *acl.Snapshot {
	snap := &acl.Snapshot{
		Path:      path,
		ScannedAt: time.Now().UTC(),
		Owner: principal.Principal{
			SID: "S-1-5-21-1-2-3-1000", Name: "jdoe", Domain: "CORP",
			FullName: `CORP\jdoe`, Kind: principal.KindUser,
		},
		InheritanceEnabled: true,
		ACEs: []acl.ACE{
			{
				Trustee: principal.Principal{
					SID: "S-1-5-21-1-2-3-2000", Name: "Engineering", Domain: "CORP",
					FullName: `CORP\Engineering`, Kind: principal.KindGroup,
				},
				Type:        acl.Allow,
				Permissions: acl.NewPermissionSet([]acl.Right{acl.RightRead}, nil, nil),
			},
		},
	}
	snap.Fingerprint()
	return snap
}

func TestPutGetEntry(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	snap := snapshotFor(`C:\Shares\Finance`)
	if err := s.PutEntry(ctx, snap, nil); err != nil {
		t.Fatalf("PutEntry failed: %v", err)
	}

	entry, err := s.GetEntry(ctx, `C:\Shares\Finance`)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if entry.Checksum != snap.Checksum {
		t.Errorf("checksum = %q, want %q", entry.Checksum, snap.Checksum)
	}
	if entry.IsStale {
		t.Error("fresh entry must not be stale")
	}
	if entry.Snapshot == nil || entry.Snapshot.Owner.FullName != `CORP\jdoe` {
		t.Errorf("snapshot did not survive the round trip: %+v", entry.Snapshot)
	}
	if len(entry.Snapshot.ACEs) != 1 {
		t.Errorf("ACEs = %d, want 1", len(entry.Snapshot.ACEs))
	}

	_, err = s.GetEntry(ctx, `C:\Shares\Missing`)
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("missing entry error = %v, want ErrEntryNotFound", err)
	}
}

func TestPutResetsStaleness(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	path := `C:\Shares\Finance`

	if err := s.PutEntry(ctx, snapshotFor(path), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.MarkStale(ctx, path); err != nil {
		t.Fatal(err)
	}

	entry, _ := s.GetEntry(ctx, path)
	if !entry.IsStale {
		t.Fatal("entry should be stale after MarkStale")
	}

	if err := s.PutEntry(ctx, snapshotFor(path), nil); err != nil {
		t.Fatal(err)
	}
	entry, _ = s.GetEntry(ctx, path)
	if entry.IsStale {
		t.Error("put must reset staleness")
	}
}

func TestMarkStalePropagation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	paths := []string{
		`C:\Shares\Finance`,
		`C:\Shares\Finance\Reports`,
		`C:\Shares\Finance\Reports\2026`,
		`C:\Shares\HR`,
	}
	for _, p := range paths {
		if err := s.PutEntry(ctx, snapshotFor(p), nil); err != nil {
			t.Fatal(err)
		}
	}

	// Marking the middle path hits itself, its descendant, and its
	// cached ancestor; the sibling tree is untouched.
	n, err := s.MarkStale(ctx, `C:\Shares\Finance\Reports`)
	if err != nil {
		t.Fatalf("MarkStale failed: %v", err)
	}
	if n != 3 {
		t.Errorf("marked %d entries, want 3", n)
	}

	stale := map[string]bool{
		`C:\Shares\Finance`:              true,
		`C:\Shares\Finance\Reports`:      true,
		`C:\Shares\Finance\Reports\2026`: true,
		`C:\Shares\HR`:                   false,
	}
	for p, want := range stale {
		entry, err := s.GetEntry(ctx, p)
		if err != nil {
			t.Fatal(err)
		}
		if entry.IsStale != want {
			t.Errorf("%s stale = %v, want %v", p, entry.IsStale, want)
		}
	}
}

func TestEntryValidity(t *testing.T) {
	now := time.Now().UTC()
	fresh := now.Add(-time.Hour)
	old := now.Add(-25 * time.Hour)
	newer := now.Add(-30 * time.Minute)

	tests := []struct {
		name  string
		entry CacheEntry
		valid bool
	}{
		{"fresh", CacheEntry{StoredAt: fresh}, true},
		{"stale flag", CacheEntry{StoredAt: fresh, IsStale: true}, false},
		{"expired", CacheEntry{StoredAt: old}, false},
		{"fs modified after store", CacheEntry{StoredAt: fresh, FSMTime: &newer}, false},
		{"fs modified before store", CacheEntry{StoredAt: fresh, FSMTime: &old}, true},
	}
	for _, tt := range tests {
		if got := tt.entry.Valid(now, DefaultTTL); got != tt.valid {
			t.Errorf("%s: valid = %v, want %v", tt.name, got, tt.valid)
		}
	}
}

func TestReap(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	recent := snapshotFor(`C:\Shares\Recent`)
	ancient := snapshotFor(`C:\Shares\Ancient`)
	staleOld := snapshotFor(`C:\Shares\StaleOld`)
	for _, snap := range []*acl.Snapshot{recent, ancient, staleOld} {
		if err := s.PutEntry(ctx, snap, nil); err != nil {
			t.Fatal(err)
		}
	}

	// Backdate stored_at directly; PutEntry always stamps now.
	now := time.Now().UTC()
	backdate := func(path string, at time.Time) {
		if err := s.DB().Model(&CacheEntry{}).Where("path = ?", path).
			Update("stored_at", at).Error; err != nil {
			t.Fatal(err)
		}
	}
	backdate(`C:\Shares\Ancient`, now.Add(-72*time.Hour))
	backdate(`C:\Shares\StaleOld`, now.Add(-30*time.Hour))
	if _, err := s.MarkStale(ctx, `C:\Shares\StaleOld`); err != nil {
		t.Fatal(err)
	}

	n, err := s.Reap(ctx, now.Add(-DefaultRetention), now.Add(-DefaultTTL))
	if err != nil {
		t.Fatalf("Reap failed: %v", err)
	}
	if n != 2 {
		t.Errorf("reaped %d entries, want 2", n)
	}

	if _, err := s.GetEntry(ctx, `C:\Shares\Recent`); err != nil {
		t.Error("recent entry must survive the reaper")
	}
	if _, err := s.GetEntry(ctx, `C:\Shares\Ancient`); !errors.Is(err, ErrEntryNotFound) {
		t.Error("ancient entry must be reaped")
	}
	if _, err := s.GetEntry(ctx, `C:\Shares\StaleOld`); !errors.Is(err, ErrEntryNotFound) {
		t.Error("old stale entry must be reaped")
	}
}

func TestChangeRecords(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, ct := range []ChangeType{ChangeOwner, ChangePermissionAdded} {
		err := s.AddChange(ctx, &ChangeRecord{
			Path:       `C:\Shares\Finance`,
			ChangeType: ct,
			Severity:   acl.SeverityHigh,
			CurrentState: map[string]any{
				"owner": `CORP\jdoe`,
			},
		})
		if err != nil {
			t.Fatalf("AddChange failed: %v", err)
		}
	}
	if err := s.AddChange(ctx, &ChangeRecord{
		Path:       `C:\Shares\HR`,
		ChangeType: ChangeInheritance,
		Severity:   acl.SeverityMedium,
	}); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListChanges(ctx, ChangeFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("total changes = %d, want 3", len(all))
	}

	finance, err := s.ListChanges(ctx, ChangeFilter{Path: `C:\Shares\Finance`})
	if err != nil {
		t.Fatal(err)
	}
	if len(finance) != 2 {
		t.Errorf("finance changes = %d, want 2", len(finance))
	}
	for _, c := range finance {
		if c.ID == "" {
			t.Error("change must get an ID")
		}
		if c.DetectedAt.IsZero() {
			t.Error("change must get a detection time")
		}
	}

	limited, err := s.ListChanges(ctx, ChangeFilter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limited changes = %d, want 1", len(limited))
	}
}

func TestIssueDeduplication(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := &Issue{
		Path:               `C:\Shares\Finance`,
		IssueType:          IssueDirectUserACE,
		Severity:           acl.SeverityMedium,
		RiskScore:          12,
		AffectedPrincipals: []string{`CORP\jdoe`},
	}
	if err := s.UpsertIssue(ctx, first); err != nil {
		t.Fatalf("UpsertIssue failed: %v", err)
	}

	// Second detection of the same (path, type) refreshes, not inserts.
	second := &Issue{
		Path:               `C:\Shares\Finance`,
		IssueType:          IssueDirectUserACE,
		Severity:           acl.SeverityHigh,
		RiskScore:          22,
		AffectedPrincipals: []string{`CORP\jdoe`, `CORP\asmith`},
	}
	if err := s.UpsertIssue(ctx, second); err != nil {
		t.Fatal(err)
	}

	issues, err := s.ListIssues(ctx, IssueFilter{Status: IssueActive})
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 1 {
		t.Fatalf("active issues = %d, want 1", len(issues))
	}
	got := issues[0]
	if got.RiskScore != 22 || got.Severity != acl.SeverityHigh {
		t.Errorf("mutable fields not refreshed: %+v", got)
	}
	if len(got.AffectedPrincipals) != 2 {
		t.Errorf("affected principals = %v", got.AffectedPrincipals)
	}
	if !got.LastSeen.After(got.FirstDetected) && !got.LastSeen.Equal(got.FirstDetected) {
		t.Error("last_seen must be refreshed")
	}

	// A resolved issue no longer dedups; a new detection inserts fresh.
	if err := s.SetIssueStatus(ctx, got.ID, IssueResolved); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertIssue(ctx, &Issue{
		Path: `C:\Shares\Finance`, IssueType: IssueDirectUserACE,
		Severity: acl.SeverityMedium, RiskScore: 12,
	}); err != nil {
		t.Fatal(err)
	}
	active, _ := s.ListIssues(ctx, IssueFilter{Status: IssueActive})
	resolved, _ := s.ListIssues(ctx, IssueFilter{Status: IssueResolved})
	if len(active) != 1 || len(resolved) != 1 {
		t.Errorf("active = %d resolved = %d, want 1 and 1", len(active), len(resolved))
	}
}

func TestSetIssueStatusValidation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SetIssueStatus(ctx, "nope", IssueStatus("bogus")); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("bogus status error = %v, want ErrInvalidStatus", err)
	}
	if err := s.SetIssueStatus(ctx, "nope", IssueResolved); !errors.Is(err, ErrIssueNotFound) {
		t.Errorf("unknown id error = %v, want ErrIssueNotFound", err)
	}
}

func TestCountActiveBySeverity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	seed := []struct {
		path string
		typ  IssueType
		sev  acl.Severity
	}{
		{`C:\A`, IssueBrokenInheritance, acl.SeverityMedium},
		{`C:\B`, IssueBrokenInheritance, acl.SeverityMedium},
		{`C:\A`, IssueOverPermissiveGroups, acl.SeverityCritical},
	}
	for _, x := range seed {
		if err := s.UpsertIssue(ctx, &Issue{Path: x.path, IssueType: x.typ, Severity: x.sev, RiskScore: 10}); err != nil {
			t.Fatal(err)
		}
	}

	counts, total, err := s.CountActiveBySeverity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if counts["medium"] != 2 || counts["critical"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestScoreHistory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if p, err := s.LatestScore(ctx); err != nil || p != nil {
		t.Fatalf("empty history: point = %v, err = %v", p, err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	for i, score := range []float64{92.5, 88.0, 95.0} {
		err := s.AddScorePoint(ctx, &ScorePoint{
			Timestamp:        base.Add(time.Duration(i) * time.Minute),
			Score:            score,
			TotalIssues:      i,
			CountsBySeverity: map[string]int{"medium": i},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	points, err := s.ListScorePoints(ctx, base, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 3 {
		t.Fatalf("points = %d, want 3", len(points))
	}
	if points[0].Score != 92.5 || points[2].Score != 95.0 {
		t.Error("points must come back oldest first")
	}

	latest, err := s.LatestScore(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Score != 95.0 {
		t.Errorf("latest score = %v, want 95.0", latest.Score)
	}
}
