// Package detector compares permission snapshots and classifies the drift.
//
// The diff keys ACEs on (trustee SID, type, inherited). The inherited flag
// is part of the key on purpose: an explicit ACE replacing an inherited one
// with identical permissions is a real change, and collapsing the two was a
// recurring source of missed detections.
package detector

import (
	"github.com/shareguard/shareguard/pkg/acl"
	"github.com/shareguard/shareguard/pkg/principal"
)

// TrusteeChange is one added or removed ACE.
type TrusteeChange struct {
	Trustee     principal.Principal `json:"trustee"`
	Type        acl.ACEType         `json:"type"`
	Inherited   bool                `json:"inherited"`
	Permissions acl.PermissionSet   `json:"permissions"`
}

// Modification is one ACE whose permissions changed in place.
type Modification struct {
	Trustee        principal.Principal `json:"trustee"`
	Type           acl.ACEType         `json:"type"`
	Inherited      bool                `json:"inherited"`
	OldPermissions acl.PermissionSet   `json:"old_permissions"`
	NewPermissions acl.PermissionSet   `json:"new_permissions"`
}

// OwnerChange records an ownership transfer by full name.
type OwnerChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// InheritanceChange records an inheritance flag flip.
type InheritanceChange struct {
	Old bool `json:"old"`
	New bool `json:"new"`
}

// ChangeSet is the categorized result of diffing two snapshots of the same
// path.
type ChangeSet struct {
	Path string `json:"path"`

	OwnerChanged       *OwnerChange       `json:"owner_changed,omitempty"`
	InheritanceChanged *InheritanceChange `json:"inheritance_changed,omitempty"`

	Added    []TrusteeChange `json:"permissions_added,omitempty"`
	Removed  []TrusteeChange `json:"permissions_removed,omitempty"`
	Modified []Modification  `json:"permissions_modified,omitempty"`
}

// diffKey identifies an ACE across snapshots.
type diffKey struct {
	sid       string
	aceType   acl.ACEType
	inherited bool
}

// Diff compares two snapshots. When both carry checksums and they match,
// the structural comparison is skipped entirely.
func Diff(old, new *acl.Snapshot) *ChangeSet {
	cs := &ChangeSet{Path: new.Path}

	if old.Checksum != "" && old.Checksum == new.Checksum {
		return cs
	}

	if old.Owner.SID != new.Owner.SID {
		cs.OwnerChanged = &OwnerChange{
			Old: old.Owner.FullName,
			New: new.Owner.FullName,
		}
	}
	if old.InheritanceEnabled != new.InheritanceEnabled {
		cs.InheritanceChanged = &InheritanceChange{
			Old: old.InheritanceEnabled,
			New: new.InheritanceEnabled,
		}
	}

	oldByKey := make(map[diffKey]*acl.ACE, len(old.ACEs))
	for i := range old.ACEs {
		ace := &old.ACEs[i]
		oldByKey[diffKey{ace.Trustee.SID, ace.Type, ace.Inherited}] = ace
	}

	seen := make(map[diffKey]struct{}, len(new.ACEs))
	for i := range new.ACEs {
		ace := &new.ACEs[i]
		key := diffKey{ace.Trustee.SID, ace.Type, ace.Inherited}
		seen[key] = struct{}{}

		prev, ok := oldByKey[key]
		if !ok {
			cs.Added = append(cs.Added, TrusteeChange{
				Trustee: ace.Trustee, Type: ace.Type,
				Inherited: ace.Inherited, Permissions: ace.Permissions,
			})
			continue
		}
		if !prev.Permissions.Equal(ace.Permissions) {
			cs.Modified = append(cs.Modified, Modification{
				Trustee: ace.Trustee, Type: ace.Type, Inherited: ace.Inherited,
				OldPermissions: prev.Permissions, NewPermissions: ace.Permissions,
			})
		}
	}

	for i := range old.ACEs {
		ace := &old.ACEs[i]
		key := diffKey{ace.Trustee.SID, ace.Type, ace.Inherited}
		if _, ok := seen[key]; !ok {
			cs.Removed = append(cs.Removed, TrusteeChange{
				Trustee: ace.Trustee, Type: ace.Type,
				Inherited: ace.Inherited, Permissions: ace.Permissions,
			})
		}
	}

	return cs
}

// Significant reports whether anything changed. Only significant change
// sets trigger persistence, staleness propagation, and notification.
func (cs *ChangeSet) Significant() bool {
	return cs.OwnerChanged != nil ||
		cs.InheritanceChanged != nil ||
		len(cs.Added) > 0 ||
		len(cs.Removed) > 0 ||
		len(cs.Modified) > 0
}

// Severity grades the change set.
//
// High: ownership transfer, any removal, or a modification whose new
// permissions grant Write or FullControl to a non-system trustee. Medium:
// additions, benign modifications, inheritance flips. Low: nothing
// matched, which for a significant set should not happen.
func (cs *ChangeSet) Severity() acl.Severity {
	if cs.OwnerChanged != nil || len(cs.Removed) > 0 {
		return acl.SeverityHigh
	}
	for _, m := range cs.Modified {
		if m.Trustee.IsSystem {
			continue
		}
		if m.NewPermissions.Contains(acl.RightWrite) ||
			m.NewPermissions.Contains(acl.RightFullControl) {
			return acl.SeverityHigh
		}
	}
	if len(cs.Added) > 0 || len(cs.Modified) > 0 || cs.InheritanceChanged != nil {
		return acl.SeverityMedium
	}
	return acl.SeverityLow
}
