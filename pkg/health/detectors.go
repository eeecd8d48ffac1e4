package health

import (
	"fmt"
	"strings"

	"github.com/shareguard/shareguard/pkg/acl"
	"github.com/shareguard/shareguard/pkg/principal"
	"github.com/shareguard/shareguard/pkg/store"
)

// Trigger thresholds. The excessive-ACE detector fires at maxACECount but
// a finding is only reported from reportACEThreshold upward; the two
// thresholds are independent knobs and must stay separate.
const (
	DefaultMaxACECount       = 50
	DefaultMaxDirectUserACEs = 5

	reportACEThreshold = 15
	minReportableRisk  = 2.0
)

// DefaultCriticalGroups are the substrings that mark an Allow trustee as
// over-permissive.
var DefaultCriticalGroups = []string{
	"Domain Admins",
	"Enterprise Admins",
	"Administrators",
	`BUILTIN\Administrators`,
	"Everyone",
}

// builtinAccountNames are accounts whose direct ACEs are expected noise
// rather than findings. Matched case-insensitively on the bare name.
var builtinAccountNames = map[string]struct{}{
	"administrator":      {},
	"guest":              {},
	"krbtgt":             {},
	"default account":    {},
	"default user":       {},
	"wdagutilityaccount": {},
}

func isBuiltinAccount(fullName, name string) bool {
	lower := strings.ToLower(name)
	if _, ok := builtinAccountNames[lower]; ok {
		return true
	}
	lowerFull := strings.ToLower(fullName)
	return strings.HasPrefix(lowerFull, "nt ") || strings.HasPrefix(lowerFull, "iis_")
}

// finding is a raw detector result before the significance filter.
type finding struct {
	IssueType store.IssueType
	Severity  acl.Severity
	// BaseWeight is the count-dependent raw weight from the scoring table.
	BaseWeight  float64
	Description string
	Affected    []string
	Count       int
}

// riskScore is the value persisted on the issue. Broken inheritance is
// the one detector whose reported score folds the severity multiplier in;
// the others report the raw weight.
func (f *finding) riskScore() float64 {
	if f.IssueType == store.IssueBrokenInheritance {
		return f.BaseWeight * f.Severity.Multiplier()
	}
	return f.BaseWeight
}

// weightedContribution feeds the aggregate score.
func (f *finding) weightedContribution() float64 {
	return f.BaseWeight * f.Severity.Multiplier()
}

func detectBrokenInheritance(snap *acl.Snapshot) *finding {
	if snap.InheritanceEnabled {
		return nil
	}
	return &finding{
		IssueType:   store.IssueBrokenInheritance,
		Severity:    acl.SeverityMedium,
		BaseWeight:  15,
		Description: "Permission inheritance is disabled; this folder no longer follows its parent's access rules",
	}
}

func detectDirectUserACEs(snap *acl.Snapshot, maxDirect int) *finding {
	var affected []string
	for i := range snap.ACEs {
		t := snap.ACEs[i].Trustee
		if t.Kind != principal.KindUser || t.IsSystem {
			continue
		}
		affected = append(affected, t.FullName)
	}
	if len(affected) == 0 {
		return nil
	}

	count := len(affected)
	severity := acl.SeverityMedium
	if count > maxDirect {
		severity = acl.SeverityHigh
	}
	return &finding{
		IssueType:  store.IssueDirectUserACE,
		Severity:   severity,
		BaseWeight: 10 + 2*float64(count),
		Description: fmt.Sprintf(
			"%d permission %s granted directly to individual users instead of groups",
			count, plural(count, "entry is", "entries are")),
		Affected: affected,
		Count:    count,
	}
}

func detectOrphanedSIDs(snap *acl.Snapshot) *finding {
	var affected []string
	for i := range snap.ACEs {
		t := snap.ACEs[i].Trustee
		if t.Kind != principal.KindUnknown {
			continue
		}
		if !strings.HasPrefix(t.Name, "S-") && !strings.HasPrefix(t.SID, "S-") {
			continue
		}
		affected = append(affected, t.SID)
	}
	if len(affected) == 0 {
		return nil
	}

	count := len(affected)
	severity := acl.SeverityLow
	if count > 3 {
		severity = acl.SeverityMedium
	}
	return &finding{
		IssueType:  store.IssueOrphanedSID,
		Severity:   severity,
		BaseWeight: 5 + float64(count),
		Description: fmt.Sprintf(
			"%d %s reference deleted accounts that can no longer be resolved",
			count, plural(count, "entry", "entries")),
		Affected: affected,
		Count:    count,
	}
}

func detectExcessiveACECount(snap *acl.Snapshot, maxACEs int) *finding {
	count := len(snap.ACEs)
	if count <= maxACEs {
		return nil
	}

	severity := acl.SeverityMedium
	if count > 100 {
		severity = acl.SeverityHigh
	}
	return &finding{
		IssueType:  store.IssueExcessiveACECount,
		Severity:   severity,
		BaseWeight: 20 + 0.5*float64(count),
		Description: fmt.Sprintf(
			"ACL carries %d entries, which makes access decisions hard to audit", count),
		Count: count,
	}
}

// detectConflictingDenyOrder flags Deny ACEs that appear after an Allow
// for the same SID. Inherited-flag differences do not matter here; only
// (sid, position) order does.
func detectConflictingDenyOrder(snap *acl.Snapshot) *finding {
	allowSeen := make(map[string]struct{})
	conflicting := make(map[string]struct{})
	var affected []string

	for i := range snap.ACEs {
		ace := &snap.ACEs[i]
		switch ace.Type {
		case acl.Allow:
			allowSeen[ace.Trustee.SID] = struct{}{}
		case acl.Deny:
			if _, ok := allowSeen[ace.Trustee.SID]; !ok {
				continue
			}
			if _, dup := conflicting[ace.Trustee.SID]; dup {
				continue
			}
			conflicting[ace.Trustee.SID] = struct{}{}
			affected = append(affected, ace.Trustee.FullName)
		}
	}
	if len(affected) == 0 {
		return nil
	}

	count := len(affected)
	return &finding{
		IssueType:  store.IssueConflictingDenyOrder,
		Severity:   acl.SeverityHigh,
		BaseWeight: 25 + 5*float64(count),
		Description: fmt.Sprintf(
			"%d Deny %s ordered after an Allow for the same trustee and will not take effect as intended",
			count, plural(count, "entry is", "entries are")),
		Affected: affected,
		Count:    count,
	}
}

func detectOverPermissiveGroups(snap *acl.Snapshot, criticalGroups []string) *finding {
	var affected []string
	seen := make(map[string]struct{})
	for i := range snap.ACEs {
		ace := &snap.ACEs[i]
		if ace.Type != acl.Allow {
			continue
		}
		name := ace.Trustee.FullName
		if _, dup := seen[name]; dup {
			continue
		}
		for _, critical := range criticalGroups {
			if strings.Contains(name, critical) {
				seen[name] = struct{}{}
				affected = append(affected, name)
				break
			}
		}
	}
	if len(affected) == 0 {
		return nil
	}

	count := len(affected)
	severity := acl.SeverityHigh
	if count > 2 {
		severity = acl.SeverityCritical
	}
	return &finding{
		IssueType:  store.IssueOverPermissiveGroups,
		Severity:   severity,
		BaseWeight: 25 + 10*float64(count),
		Description: fmt.Sprintf(
			"%d broad administrative or public %s granted Allow access",
			count, plural(count, "group is", "groups are")),
		Affected: affected,
		Count:    count,
	}
}

// significant applies the reporting filter on top of raw detection.
func significant(f *finding) bool {
	if f == nil {
		return false
	}
	if f.riskScore() < minReportableRisk {
		return false
	}
	switch f.IssueType {
	case store.IssueDirectUserACE:
		for _, full := range f.Affected {
			name := full
			if i := strings.LastIndex(full, `\`); i >= 0 {
				name = full[i+1:]
			}
			if !isBuiltinAccount(full, name) {
				return true
			}
		}
		return false
	case store.IssueOrphanedSID:
		return len(f.Affected) >= 1
	case store.IssueExcessiveACECount:
		return f.Count >= reportACEThreshold
	}
	return true
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}
