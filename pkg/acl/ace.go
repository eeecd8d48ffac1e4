package acl

import (
	"github.com/shareguard/shareguard/pkg/groups"
	"github.com/shareguard/shareguard/pkg/principal"
)

// ACEType distinguishes grants from denials.
type ACEType string

const (
	Allow ACEType = "Allow"
	Deny  ACEType = "Deny"
)

// AccessPaths traces how a trustee reaches a folder: directly, through
// group membership chains, or both.
type AccessPaths struct {
	// Direct is true when the trustee itself appears on the ACL.
	Direct bool `json:"direct"`

	// GroupPaths holds one membership tree per ACL group the trustee
	// belongs to.
	GroupPaths []*groups.MembershipPath `json:"group_paths,omitempty"`

	// Depth is the max nested_level across the included paths.
	Depth int `json:"depth"`
}

// ACE is one normalized access control entry.
type ACE struct {
	Trustee     principal.Principal `json:"trustee"`
	Type        ACEType             `json:"type"`
	Inherited   bool                `json:"inherited"`
	Permissions PermissionSet       `json:"permissions"`

	// AccessPaths is filled by the scanner's annotation pass; nil when
	// annotation was not requested.
	AccessPaths *AccessPaths `json:"access_paths,omitempty"`
}

// aceKey identifies an ACE for consolidation.
type aceKey struct {
	fullName  string
	aceType   ACEType
	inherited bool
}

// Consolidate unions ACEs sharing (trustee full name, type, inherited)
// into a single entry at the first-seen position. The FullControl
// reduction is re-applied after each union.
func Consolidate(aces []ACE) []ACE {
	out := make([]ACE, 0, len(aces))
	index := make(map[aceKey]int, len(aces))

	for _, ace := range aces {
		key := aceKey{ace.Trustee.FullName, ace.Type, ace.Inherited}
		if i, ok := index[key]; ok {
			merged := out[i].Permissions.Union(ace.Permissions)
			merged.Reduce()
			out[i].Permissions = merged
			continue
		}
		index[key] = len(out)
		ace.Permissions.Reduce()
		out = append(out, ace)
	}
	return out
}
