package notify

import (
	"strings"

	"github.com/shareguard/shareguard/pkg/acl"
)

// Filters narrow which notifications a subscription receives. Zero-value
// fields impose no restriction.
type Filters struct {
	// Types whitelists message types when non-empty.
	Types []MessageType `json:"types,omitempty"`

	// MinSeverity drops messages below this severity rank when set.
	MinSeverity acl.Severity `json:"min_severity,omitempty"`

	// PathPrefixes passes a message when any entry is a substring of
	// the message's data.path.
	PathPrefixes []string `json:"path_prefixes,omitempty"`
}

// Match reports whether the envelope passes all configured filters.
// Protocol messages always pass.
func (f *Filters) Match(env *Envelope) bool {
	if !env.IsNotification() {
		return true
	}

	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == env.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.MinSeverity != "" && env.Severity.Rank() < f.MinSeverity.Rank() {
		return false
	}

	if len(f.PathPrefixes) > 0 {
		path := env.path()
		found := false
		for _, prefix := range f.PathPrefixes {
			if prefix != "" && strings.Contains(path, prefix) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
