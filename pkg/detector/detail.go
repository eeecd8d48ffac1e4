package detector

import (
	"fmt"
	"strings"

	"github.com/shareguard/shareguard/pkg/acl"
)

// maxItemPrincipals caps how many trustees a detail item names before
// collapsing the rest into an "and N more" suffix.
const maxItemPrincipals = 5

// Item is one rendered change inside a Detail record.
type Item struct {
	Type        string   `json:"type"`
	Icon        string   `json:"icon"`
	Description string   `json:"description"`
	Affected    []string `json:"affected,omitempty"`
	Impact      string   `json:"impact"`
}

// Summary carries the counts a UI shows next to the folder name.
type Summary struct {
	TotalChanges int          `json:"total_changes"`
	Severity     acl.Severity `json:"severity"`
}

// Detail is the structured rendering of a ChangeSet.
type Detail struct {
	Folder   string  `json:"folder"`
	FullPath string  `json:"full_path"`
	Summary  Summary `json:"summary"`
	Items    []Item  `json:"items"`
}

// Message renders a one-line-per-category summary, suitable for change
// records and notification bodies.
func (cs *ChangeSet) Message() string {
	var lines []string
	if cs.OwnerChanged != nil {
		lines = append(lines, fmt.Sprintf("Owner changed from %s to %s",
			cs.OwnerChanged.Old, cs.OwnerChanged.New))
	}
	if cs.InheritanceChanged != nil {
		lines = append(lines, fmt.Sprintf("Inheritance %s", inheritanceVerb(cs.InheritanceChanged.New)))
	}
	if n := len(cs.Added); n > 0 {
		lines = append(lines, fmt.Sprintf("%d permission %s added for %s",
			n, plural(n, "entry", "entries"), joinTrustees(trusteeNames(cs.Added))))
	}
	if n := len(cs.Removed); n > 0 {
		lines = append(lines, fmt.Sprintf("%d permission %s removed for %s",
			n, plural(n, "entry", "entries"), joinTrustees(trusteeNames(cs.Removed))))
	}
	if n := len(cs.Modified); n > 0 {
		names := make([]string, 0, n)
		for _, m := range cs.Modified {
			names = append(names, m.Trustee.FullName)
		}
		lines = append(lines, fmt.Sprintf("%d permission %s modified for %s",
			n, plural(n, "entry", "entries"), joinTrustees(names)))
	}
	if len(lines) == 0 {
		return "No changes detected"
	}
	return strings.Join(lines, "; ")
}

// Detail builds the structured record a UI renders for this change set.
func (cs *ChangeSet) Detail() *Detail {
	d := &Detail{
		Folder:   lastComponent(cs.Path),
		FullPath: cs.Path,
	}
	severity := cs.Severity()
	impact := impactSentence(severity)

	if cs.OwnerChanged != nil {
		d.Items = append(d.Items, Item{
			Type: "owner_changed",
			Icon: "user",
			Description: fmt.Sprintf("Ownership transferred from %s to %s",
				cs.OwnerChanged.Old, cs.OwnerChanged.New),
			Affected: []string{cs.OwnerChanged.New},
			Impact:   impact,
		})
	}
	if cs.InheritanceChanged != nil {
		d.Items = append(d.Items, Item{
			Type:        "inheritance_changed",
			Icon:        "shield",
			Description: fmt.Sprintf("Permission inheritance %s on this folder", inheritanceVerb(cs.InheritanceChanged.New)),
			Impact:      impact,
		})
	}
	if len(cs.Added) > 0 {
		d.Items = append(d.Items, Item{
			Type:        "permission_added",
			Icon:        "plus",
			Description: fmt.Sprintf("%d new permission %s granted", len(cs.Added), plural(len(cs.Added), "entry", "entries")),
			Affected:    capPrincipals(trusteeNames(cs.Added)),
			Impact:      impact,
		})
	}
	if len(cs.Removed) > 0 {
		d.Items = append(d.Items, Item{
			Type:        "permission_removed",
			Icon:        "minus",
			Description: fmt.Sprintf("%d permission %s revoked", len(cs.Removed), plural(len(cs.Removed), "entry", "entries")),
			Affected:    capPrincipals(trusteeNames(cs.Removed)),
			Impact:      impact,
		})
	}
	if len(cs.Modified) > 0 {
		names := make([]string, 0, len(cs.Modified))
		for _, m := range cs.Modified {
			names = append(names, m.Trustee.FullName)
		}
		d.Items = append(d.Items, Item{
			Type:        "permission_modified",
			Icon:        "edit",
			Description: fmt.Sprintf("%d existing permission %s altered", len(cs.Modified), plural(len(cs.Modified), "entry", "entries")),
			Affected:    capPrincipals(names),
			Impact:      impact,
		})
	}

	d.Summary = Summary{TotalChanges: len(d.Items), Severity: severity}
	return d
}

func impactSentence(s acl.Severity) string {
	switch s {
	case acl.SeverityCritical:
		return "Critical exposure: access to this folder has changed in a way that requires immediate review."
	case acl.SeverityHigh:
		return "High impact: users may have gained or lost significant access to this folder."
	case acl.SeverityMedium:
		return "Moderate impact: access to this folder has been adjusted."
	default:
		return "Low impact: a minor permission detail changed."
	}
}

func inheritanceVerb(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func lastComponent(path string) string {
	trimmed := strings.TrimRight(path, `\`)
	if i := strings.LastIndex(trimmed, `\`); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func trusteeNames(changes []TrusteeChange) []string {
	names := make([]string, 0, len(changes))
	for _, c := range changes {
		names = append(names, c.Trustee.FullName)
	}
	return names
}

func capPrincipals(names []string) []string {
	if len(names) <= maxItemPrincipals {
		return names
	}
	capped := append([]string{}, names[:maxItemPrincipals]...)
	return append(capped, fmt.Sprintf("and %d more", len(names)-maxItemPrincipals))
}

func joinTrustees(names []string) string {
	if len(names) > maxItemPrincipals {
		return fmt.Sprintf("%s and %d more",
			strings.Join(names[:maxItemPrincipals], ", "),
			len(names)-maxItemPrincipals)
	}
	return strings.Join(names, ", ")
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}
