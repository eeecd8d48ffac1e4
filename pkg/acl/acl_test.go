package acl

import (
	"testing"
	"time"

	"github.com/shareguard/shareguard/pkg/principal"
)

func user(name, sid string) principal.Principal {
	return principal.Principal{
		SID: sid, Name: name, Domain: "CORP",
		FullName: `CORP\` + name, Kind: principal.KindUser,
	}
}

func TestPermissionSetNormalization(t *testing.T) {
	a := NewPermissionSet([]Right{RightWrite, RightRead, RightRead}, nil, nil)
	b := NewPermissionSet([]Right{RightRead, RightWrite}, nil, nil)

	if !a.Equal(b) {
		t.Errorf("order and duplicates must not affect equality: %v vs %v", a, b)
	}
	if len(a.Basic) != 2 {
		t.Errorf("duplicates not removed: %v", a.Basic)
	}
}

func TestFullControlReduction(t *testing.T) {
	ps := NewPermissionSet(
		[]Right{RightFullControl, RightRead},
		[]Right{RightDelete},
		[]Right{RightListFolder},
	)
	if len(ps.Basic) != 1 || ps.Basic[0] != RightFullControl {
		t.Errorf("basic = %v, want [FullControl]", ps.Basic)
	}
	if len(ps.Advanced) != 0 || len(ps.Directory) != 0 {
		t.Errorf("FullControl must clear other buckets: %v", ps)
	}
}

func TestUnionTriggersReduction(t *testing.T) {
	a := NewPermissionSet([]Right{RightFullControl}, nil, nil)
	b := NewPermissionSet(nil, []Right{RightDelete}, []Right{RightTraverse})

	u := a.Union(b)
	if len(u.Advanced) != 0 || len(u.Directory) != 0 {
		t.Errorf("union with FullControl must reduce: %v", u)
	}
}

func TestDecodeAccessMask(t *testing.T) {
	tests := []struct {
		name string
		mask uint32
		want PermissionSet
	}{
		{
			"full control",
			0x001F01FF,
			NewPermissionSet([]Right{RightFullControl}, nil, nil),
		},
		{
			"generic all maps to full control",
			0x10000000,
			NewPermissionSet([]Right{RightFullControl}, nil, nil),
		},
		{
			"generic read",
			0x80000000,
			NewPermissionSet([]Right{RightRead}, []Right{RightReadPermissions},
				[]Right{RightListFolder, RightReadEA, RightReadAttributes}),
		},
		{
			"read write execute",
			0x00120089 | 0x00120116 | 0x001200A0,
			NewPermissionSet(
				[]Right{RightRead, RightWrite, RightExecute},
				[]Right{RightReadPermissions},
				[]Right{
					RightListFolder, RightCreateFiles, RightCreateFolders,
					RightReadEA, RightWriteEA, RightTraverse,
					RightReadAttributes, RightWriteAttributes,
				}),
		},
		{
			"delete and change permissions only",
			0x00010000 | 0x00040000,
			NewPermissionSet(nil, []Right{RightDelete, RightChangePermissions}, nil),
		},
		{
			"list and traverse",
			0x00000001 | 0x00000020,
			NewPermissionSet(nil, nil, []Right{RightListFolder, RightTraverse}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeAccessMask(tt.mask)
			if !got.Equal(tt.want) {
				t.Errorf("DecodeAccessMask(%#x) = %+v, want %+v", tt.mask, got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sets := []PermissionSet{
		NewPermissionSet([]Right{RightFullControl}, nil, nil),
		NewPermissionSet([]Right{RightRead}, []Right{RightReadPermissions},
			[]Right{RightListFolder, RightReadEA, RightReadAttributes}),
		NewPermissionSet(nil, []Right{RightDelete, RightTakeOwnership}, []Right{RightTraverse}),
	}
	for _, ps := range sets {
		got := DecodeAccessMask(EncodeAccessMask(ps))
		if !got.Equal(ps) {
			t.Errorf("round trip changed set: %+v -> %+v", ps, got)
		}
	}
}

func TestConsolidate(t *testing.T) {
	jdoe := user("jdoe", "S-1-5-21-1-2-3-1000")
	asmith := user("asmith", "S-1-5-21-1-2-3-1001")

	aces := []ACE{
		{Trustee: jdoe, Type: Allow, Inherited: false,
			Permissions: NewPermissionSet([]Right{RightRead}, nil, nil)},
		{Trustee: asmith, Type: Allow, Inherited: false,
			Permissions: NewPermissionSet([]Right{RightWrite}, nil, nil)},
		{Trustee: jdoe, Type: Allow, Inherited: false,
			Permissions: NewPermissionSet(nil, []Right{RightDelete}, nil)},
		{Trustee: jdoe, Type: Deny, Inherited: false,
			Permissions: NewPermissionSet([]Right{RightWrite}, nil, nil)},
		{Trustee: jdoe, Type: Allow, Inherited: true,
			Permissions: NewPermissionSet([]Right{RightRead}, nil, nil)},
	}

	out := Consolidate(aces)

	// jdoe/Allow/false merges; jdoe/Deny/false and jdoe/Allow/true stay
	// separate keys.
	if len(out) != 4 {
		t.Fatalf("consolidated count = %d, want 4", len(out))
	}
	if out[0].Trustee.FullName != `CORP\jdoe` {
		t.Errorf("first-seen position not preserved: %v", out[0].Trustee.FullName)
	}
	want := NewPermissionSet([]Right{RightRead}, []Right{RightDelete}, nil)
	if !out[0].Permissions.Equal(want) {
		t.Errorf("merged permissions = %+v, want %+v", out[0].Permissions, want)
	}
}

func TestConsolidateFullControlReduction(t *testing.T) {
	jdoe := user("jdoe", "S-1-5-21-1-2-3-1000")
	aces := []ACE{
		{Trustee: jdoe, Type: Allow,
			Permissions: NewPermissionSet([]Right{RightFullControl}, nil, nil)},
		{Trustee: jdoe, Type: Allow,
			Permissions: NewPermissionSet(nil, []Right{RightDelete}, []Right{RightTraverse})},
	}
	out := Consolidate(aces)
	if len(out) != 1 {
		t.Fatalf("consolidated count = %d, want 1", len(out))
	}
	if len(out[0].Permissions.Advanced) != 0 || len(out[0].Permissions.Directory) != 0 {
		t.Errorf("FullControl reduction lost after merge: %+v", out[0].Permissions)
	}
}

func testSnapshot() *Snapshot {
	return &Snapshot{
		Path:               `C:\Shares\Finance`,
		ScannedAt:          time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Owner:              user("jdoe", "S-1-5-21-1-2-3-1000"),
		InheritanceEnabled: true,
		ACEs: []ACE{
			{Trustee: user("asmith", "S-1-5-21-1-2-3-1001"), Type: Allow,
				Permissions: NewPermissionSet([]Right{RightRead}, nil, nil)},
			{Trustee: user("jdoe", "S-1-5-21-1-2-3-1000"), Type: Deny, Inherited: true,
				Permissions: NewPermissionSet([]Right{RightWrite}, nil, nil)},
		},
	}
}

func TestChecksumIgnoresNonCanonicalFields(t *testing.T) {
	a := testSnapshot()
	b := testSnapshot()
	b.ScannedAt = b.ScannedAt.Add(48 * time.Hour)
	b.Path = `D:\Elsewhere`
	b.ACEs[0].AccessPaths = &AccessPaths{Direct: true}
	b.Owner.Name = "renamed" // name changes, SID stable

	if ComputeChecksum(a) != ComputeChecksum(b) {
		t.Error("checksum must depend only on the canonical tuple")
	}
}

func TestChecksumSensitivity(t *testing.T) {
	base := ComputeChecksum(testSnapshot())

	t.Run("owner SID", func(t *testing.T) {
		s := testSnapshot()
		s.Owner.SID = "S-1-5-21-1-2-3-9999"
		if ComputeChecksum(s) == base {
			t.Error("owner SID change must perturb checksum")
		}
	})

	t.Run("inheritance flag", func(t *testing.T) {
		s := testSnapshot()
		s.InheritanceEnabled = false
		if ComputeChecksum(s) == base {
			t.Error("inheritance change must perturb checksum")
		}
	})

	t.Run("inherited flag on ACE", func(t *testing.T) {
		s := testSnapshot()
		s.ACEs[1].Inherited = false
		if ComputeChecksum(s) == base {
			t.Error("inherited flag must perturb checksum")
		}
	})

	t.Run("ACE order", func(t *testing.T) {
		s := testSnapshot()
		s.ACEs[0], s.ACEs[1] = s.ACEs[1], s.ACEs[0]
		if ComputeChecksum(s) == base {
			t.Error("ACE order must perturb checksum")
		}
	})

	t.Run("permission change", func(t *testing.T) {
		s := testSnapshot()
		s.ACEs[0].Permissions = NewPermissionSet([]Right{RightWrite}, nil, nil)
		if ComputeChecksum(s) == base {
			t.Error("permission change must perturb checksum")
		}
	})
}

func TestChecksumStableAcrossBucketRepresentation(t *testing.T) {
	// Two consolidated lists with the same (sid, type, inherited, rights)
	// content hash identically even when the rights were added in a
	// different order.
	a := testSnapshot()
	b := testSnapshot()
	b.ACEs[0].Permissions = NewPermissionSet([]Right{RightRead}, []Right{}, []Right{})

	if ComputeChecksum(a) != ComputeChecksum(b) {
		t.Error("equal permission content must hash identically")
	}
}

func TestSeverityRank(t *testing.T) {
	if SeverityLow.Rank() != 1 || SeverityMedium.Rank() != 2 ||
		SeverityHigh.Rank() != 3 || SeverityCritical.Rank() != 4 {
		t.Error("severity ranks must be low=1 medium=2 high=3 critical=4")
	}
	if Severity("bogus").Rank() != 0 {
		t.Error("unknown severity must rank 0")
	}
	if Severity("bogus").Valid() {
		t.Error("unknown severity must not be valid")
	}
}

func TestSystemACECount(t *testing.T) {
	s := testSnapshot()
	s.ACEs = append(s.ACEs, ACE{
		Trustee: principal.Principal{
			SID: "S-1-5-18", FullName: `NT AUTHORITY\SYSTEM`,
			Kind: principal.KindWellKnownGroup, IsSystem: true,
		},
		Type:        Allow,
		Permissions: NewPermissionSet([]Right{RightFullControl}, nil, nil),
	})
	if s.SystemACECount() != 1 {
		t.Errorf("system ACE count = %d, want 1", s.SystemACECount())
	}
}
