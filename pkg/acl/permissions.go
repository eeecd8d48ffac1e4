// Package acl defines the normalized permission model: categorized rights,
// access control entries, and the snapshot a scan produces. The scanner
// builds these from raw security descriptors; the change detector, health
// analyzer, and store all consume them.
package acl

import "sort"

// Right is one named filesystem right.
type Right string

// Basic rights.
const (
	RightRead        Right = "Read"
	RightWrite       Right = "Write"
	RightExecute     Right = "Execute"
	RightFullControl Right = "FullControl"
)

// Advanced rights.
const (
	RightDelete            Right = "Delete"
	RightReadPermissions   Right = "ReadPermissions"
	RightChangePermissions Right = "ChangePermissions"
	RightTakeOwnership     Right = "TakeOwnership"
)

// Directory rights.
const (
	RightListFolder      Right = "ListFolder"
	RightCreateFiles     Right = "CreateFiles"
	RightCreateFolders   Right = "CreateFolders"
	RightReadEA          Right = "ReadEA"
	RightWriteEA         Right = "WriteEA"
	RightTraverse        Right = "Traverse"
	RightDeleteChild     Right = "DeleteChild"
	RightReadAttributes  Right = "ReadAttributes"
	RightWriteAttributes Right = "WriteAttributes"
)

// PermissionSet holds the rights of one ACE, split into three buckets.
// Each bucket is kept sorted and free of duplicates, so two sets with the
// same rights are structurally equal regardless of construction order.
//
// Invariant: when Basic contains FullControl it is the only populated
// entry anywhere in the set. Reduce enforces this.
type PermissionSet struct {
	Basic     []Right `json:"basic"`
	Advanced  []Right `json:"advanced"`
	Directory []Right `json:"directory"`
}

// NewPermissionSet builds a normalized set from the given bucket contents.
func NewPermissionSet(basic, advanced, directory []Right) PermissionSet {
	ps := PermissionSet{
		Basic:     normalizeBucket(basic),
		Advanced:  normalizeBucket(advanced),
		Directory: normalizeBucket(directory),
	}
	ps.Reduce()
	return ps
}

func normalizeBucket(rights []Right) []Right {
	if len(rights) == 0 {
		return []Right{}
	}
	seen := make(map[Right]struct{}, len(rights))
	out := make([]Right, 0, len(rights))
	for _, r := range rights {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reduce applies the FullControl subsumption rule: a set whose basic bucket
// holds FullControl drops everything else.
func (ps *PermissionSet) Reduce() {
	for _, r := range ps.Basic {
		if r == RightFullControl {
			ps.Basic = []Right{RightFullControl}
			ps.Advanced = []Right{}
			ps.Directory = []Right{}
			return
		}
	}
}

// Union returns the normalized union of two sets.
func (ps PermissionSet) Union(other PermissionSet) PermissionSet {
	return NewPermissionSet(
		append(append([]Right{}, ps.Basic...), other.Basic...),
		append(append([]Right{}, ps.Advanced...), other.Advanced...),
		append(append([]Right{}, ps.Directory...), other.Directory...),
	)
}

// Equal reports bucket-wise equality.
func (ps PermissionSet) Equal(other PermissionSet) bool {
	return equalBucket(ps.Basic, other.Basic) &&
		equalBucket(ps.Advanced, other.Advanced) &&
		equalBucket(ps.Directory, other.Directory)
}

func equalBucket(a, b []Right) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IsEmpty reports whether no bucket holds any right.
func (ps PermissionSet) IsEmpty() bool {
	return len(ps.Basic) == 0 && len(ps.Advanced) == 0 && len(ps.Directory) == 0
}

// Contains reports whether any bucket holds r.
func (ps PermissionSet) Contains(r Right) bool {
	for _, bucket := range [][]Right{ps.Basic, ps.Advanced, ps.Directory} {
		for _, have := range bucket {
			if have == r {
				return true
			}
		}
	}
	return false
}

// All returns every right across the three buckets, sorted.
func (ps PermissionSet) All() []Right {
	out := make([]Right, 0, len(ps.Basic)+len(ps.Advanced)+len(ps.Directory))
	out = append(out, ps.Basic...)
	out = append(out, ps.Advanced...)
	out = append(out, ps.Directory...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
