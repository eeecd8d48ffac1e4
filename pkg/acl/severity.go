package acl

// Severity grades changes and issues. Shared vocabulary across the change
// detector, health analyzer, and notification filters.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for filter comparison. Unknown values rank 0,
// below low, so a malformed filter never suppresses everything.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the four defined grades.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Multiplier is the risk weight factor applied when aggregating the health
// score.
func (s Severity) Multiplier() float64 {
	switch s {
	case SeverityLow:
		return 0.25
	case SeverityMedium:
		return 0.5
	case SeverityHigh:
		return 0.75
	case SeverityCritical:
		return 1.0
	default:
		return 0
	}
}
