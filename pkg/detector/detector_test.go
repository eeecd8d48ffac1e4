package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shareguard/shareguard/pkg/acl"
	"github.com/shareguard/shareguard/pkg/principal"
)

func user(sid, name string) principal.Principal {
	return principal.Principal{
		SID: sid, Name: name, Domain: "CORP",
		FullName: `CORP\` + name, Kind: principal.KindUser,
	}
}

func systemPrincipal(sid, fullName string) principal.Principal {
	return principal.Principal{
		SID: sid, Name: fullName, FullName: fullName,
		Kind: principal.KindWellKnownGroup, IsSystem: true,
	}
}

func readACE(trustee principal.Principal, inherited bool) acl.ACE {
	return acl.ACE{
		Trustee:     trustee,
		Type:        acl.Allow,
		Inherited:   inherited,
		Permissions: acl.NewPermissionSet([]acl.Right{acl.RightRead}, nil, nil),
	}
}

func snapshot(path string, owner principal.Principal, inheritance bool, aces ...acl.ACE) *acl.Snapshot {
	s := &acl.Snapshot{
		Path:               path,
		Owner:              owner,
		InheritanceEnabled: inheritance,
		ACEs:               aces,
	}
	s.Fingerprint()
	return s
}

func TestDiffNoChanges(t *testing.T) {
	owner := systemPrincipal("S-1-5-32-544", `BUILTIN\Administrators`)
	jdoe := user("S-1-5-21-1-2-3-1001", "jdoe")

	old := snapshot(`C:\Shares\Finance`, owner, true, readACE(jdoe, false))
	new := snapshot(`C:\Shares\Finance`, owner, true, readACE(jdoe, false))

	cs := Diff(old, new)
	assert.False(t, cs.Significant())
	assert.Equal(t, "No changes detected", cs.Message())
}

func TestDiffChecksumFastPath(t *testing.T) {
	owner := systemPrincipal("S-1-5-32-544", `BUILTIN\Administrators`)
	jdoe := user("S-1-5-21-1-2-3-1001", "jdoe")

	old := snapshot(`C:\Shares\Finance`, owner, true, readACE(jdoe, false))

	// Structurally different but with the old checksum forced onto it;
	// matching checksums must short-circuit the comparison.
	new := snapshot(`C:\Shares\Finance`, owner, false)
	new.Checksum = old.Checksum

	cs := Diff(old, new)
	assert.False(t, cs.Significant())
}

func TestDiffAddedRemovedModified(t *testing.T) {
	owner := systemPrincipal("S-1-5-32-544", `BUILTIN\Administrators`)
	jdoe := user("S-1-5-21-1-2-3-1001", "jdoe")
	asmith := user("S-1-5-21-1-2-3-1002", "asmith")
	bwayne := user("S-1-5-21-1-2-3-1003", "bwayne")

	modifiedOld := acl.ACE{
		Trustee: bwayne, Type: acl.Allow,
		Permissions: acl.NewPermissionSet([]acl.Right{acl.RightRead}, nil, nil),
	}
	modifiedNew := acl.ACE{
		Trustee: bwayne, Type: acl.Allow,
		Permissions: acl.NewPermissionSet(
			[]acl.Right{acl.RightRead, acl.RightWrite}, nil, nil),
	}

	old := snapshot(`C:\Shares\Finance`, owner, true, readACE(jdoe, false), modifiedOld)
	new := snapshot(`C:\Shares\Finance`, owner, true, readACE(asmith, false), modifiedNew)

	cs := Diff(old, new)
	require.True(t, cs.Significant())

	require.Len(t, cs.Added, 1)
	assert.Equal(t, `CORP\asmith`, cs.Added[0].Trustee.FullName)

	require.Len(t, cs.Removed, 1)
	assert.Equal(t, `CORP\jdoe`, cs.Removed[0].Trustee.FullName)

	require.Len(t, cs.Modified, 1)
	assert.Equal(t, `CORP\bwayne`, cs.Modified[0].Trustee.FullName)
	assert.True(t, cs.Modified[0].OldPermissions.Contains(acl.RightRead))
	assert.True(t, cs.Modified[0].NewPermissions.Contains(acl.RightWrite))
}

func TestDiffInheritedFlagDistinguishesKeys(t *testing.T) {
	// Same trustee, same type, same permissions; only the inherited flag
	// differs. This must surface as one removal plus one addition, never
	// as a no-op.
	owner := systemPrincipal("S-1-5-32-544", `BUILTIN\Administrators`)
	jdoe := user("S-1-5-21-1-2-3-1001", "jdoe")

	old := snapshot(`C:\Shares\Finance\Reports`, owner, true, readACE(jdoe, true))
	new := snapshot(`C:\Shares\Finance\Reports`, owner, true, readACE(jdoe, false))

	cs := Diff(old, new)
	require.True(t, cs.Significant())
	require.Len(t, cs.Added, 1)
	require.Len(t, cs.Removed, 1)
	assert.Empty(t, cs.Modified)
	assert.True(t, cs.Removed[0].Inherited)
	assert.False(t, cs.Added[0].Inherited)
}

func TestDiffOwnerAndInheritance(t *testing.T) {
	admins := systemPrincipal("S-1-5-32-544", `BUILTIN\Administrators`)
	jdoe := user("S-1-5-21-1-2-3-1001", "jdoe")

	old := snapshot(`C:\Shares\Finance`, admins, true)
	new := snapshot(`C:\Shares\Finance`, jdoe, false)

	cs := Diff(old, new)
	require.NotNil(t, cs.OwnerChanged)
	assert.Equal(t, `BUILTIN\Administrators`, cs.OwnerChanged.Old)
	assert.Equal(t, `CORP\jdoe`, cs.OwnerChanged.New)

	require.NotNil(t, cs.InheritanceChanged)
	assert.True(t, cs.InheritanceChanged.Old)
	assert.False(t, cs.InheritanceChanged.New)

	assert.Equal(t, acl.SeverityHigh, cs.Severity())
}

func TestSeverityRules(t *testing.T) {
	jdoe := user("S-1-5-21-1-2-3-1001", "jdoe")
	system := systemPrincipal("S-1-5-18", `NT AUTHORITY\SYSTEM`)

	writeSet := acl.NewPermissionSet([]acl.Right{acl.RightWrite}, nil, nil)
	readSet := acl.NewPermissionSet([]acl.Right{acl.RightRead}, nil, nil)
	readExecSet := acl.NewPermissionSet(
		[]acl.Right{acl.RightRead, acl.RightExecute}, nil, nil)

	tests := []struct {
		name string
		cs   ChangeSet
		want acl.Severity
	}{
		{
			name: "removal is high",
			cs:   ChangeSet{Removed: []TrusteeChange{{Trustee: jdoe, Permissions: readSet}}},
			want: acl.SeverityHigh,
		},
		{
			name: "escalating modification is high",
			cs: ChangeSet{Modified: []Modification{{
				Trustee: jdoe, OldPermissions: readSet, NewPermissions: writeSet,
			}}},
			want: acl.SeverityHigh,
		},
		{
			name: "escalating modification for system trustee stays medium",
			cs: ChangeSet{Modified: []Modification{{
				Trustee: system, OldPermissions: readSet, NewPermissions: writeSet,
			}}},
			want: acl.SeverityMedium,
		},
		{
			name: "non-escalating modification is medium",
			cs: ChangeSet{Modified: []Modification{{
				Trustee: jdoe, OldPermissions: readSet, NewPermissions: readExecSet,
			}}},
			want: acl.SeverityMedium,
		},
		{
			name: "addition is medium",
			cs:   ChangeSet{Added: []TrusteeChange{{Trustee: jdoe, Permissions: readSet}}},
			want: acl.SeverityMedium,
		},
		{
			name: "inheritance flip is medium",
			cs:   ChangeSet{InheritanceChanged: &InheritanceChange{Old: true, New: false}},
			want: acl.SeverityMedium,
		},
		{
			name: "empty set is low",
			cs:   ChangeSet{},
			want: acl.SeverityLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cs.Severity())
		})
	}
}

func TestMessageFormatting(t *testing.T) {
	jdoe := user("S-1-5-21-1-2-3-1001", "jdoe")
	readSet := acl.NewPermissionSet([]acl.Right{acl.RightRead}, nil, nil)

	cs := ChangeSet{
		Path:               `C:\Shares\Finance`,
		OwnerChanged:       &OwnerChange{Old: `BUILTIN\Administrators`, New: `CORP\jdoe`},
		InheritanceChanged: &InheritanceChange{Old: true, New: false},
		Added:              []TrusteeChange{{Trustee: jdoe, Permissions: readSet}},
	}

	msg := cs.Message()
	assert.Contains(t, msg, "Owner changed from BUILTIN\\Administrators to CORP\\jdoe")
	assert.Contains(t, msg, "Inheritance disabled")
	assert.Contains(t, msg, "1 permission entry added for CORP\\jdoe")
	assert.Equal(t, 3, len(strings.Split(msg, "; ")))
}

func TestDetailRecord(t *testing.T) {
	readSet := acl.NewPermissionSet([]acl.Right{acl.RightRead}, nil, nil)

	var added []TrusteeChange
	for _, name := range []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7"} {
		added = append(added, TrusteeChange{
			Trustee:     user("S-1-5-21-1-2-3-"+name, name),
			Permissions: readSet,
		})
	}

	cs := ChangeSet{
		Path:         `C:\Shares\Finance\Reports`,
		OwnerChanged: &OwnerChange{Old: `BUILTIN\Administrators`, New: `CORP\u1`},
		Added:        added,
	}

	d := cs.Detail()
	assert.Equal(t, "Reports", d.Folder)
	assert.Equal(t, `C:\Shares\Finance\Reports`, d.FullPath)
	assert.Equal(t, 2, d.Summary.TotalChanges)
	assert.Equal(t, acl.SeverityHigh, d.Summary.Severity)

	require.Len(t, d.Items, 2)
	assert.Equal(t, "owner_changed", d.Items[0].Type)
	assert.Equal(t, "user", d.Items[0].Icon)

	addedItem := d.Items[1]
	assert.Equal(t, "permission_added", addedItem.Type)
	require.Len(t, addedItem.Affected, maxItemPrincipals+1)
	assert.Equal(t, "and 2 more", addedItem.Affected[maxItemPrincipals])
	assert.Contains(t, addedItem.Impact, "High impact")
}

func TestLastComponent(t *testing.T) {
	assert.Equal(t, "Reports", lastComponent(`C:\Shares\Finance\Reports`))
	assert.Equal(t, "Reports", lastComponent(`C:\Shares\Finance\Reports\`))
	assert.Equal(t, "C:", lastComponent(`C:`))
}

func TestDiffSymmetry(t *testing.T) {
	owner1 := user("S-1-5-21-1-2-3-500", "fadmin")
	owner2 := user("S-1-5-21-1-2-3-501", "itops")
	jdoe := user("S-1-5-21-1-2-3-1001", "jdoe")
	asmith := user("S-1-5-21-1-2-3-1002", "asmith")

	a := snapshot(`C:\Shares\Finance`, owner1, true, readACE(jdoe, false))
	b := snapshot(`C:\Shares\Finance`, owner2, false, readACE(asmith, false))

	forward := Diff(a, b)
	backward := Diff(b, a)

	require.Len(t, forward.Added, 1)
	require.Len(t, forward.Removed, 1)
	assert.Equal(t, forward.Added[0].Trustee, backward.Removed[0].Trustee)
	assert.Equal(t, forward.Removed[0].Trustee, backward.Added[0].Trustee)

	require.NotNil(t, forward.OwnerChanged)
	require.NotNil(t, backward.OwnerChanged)
	assert.Equal(t, forward.OwnerChanged.Old, backward.OwnerChanged.New)
	assert.Equal(t, forward.OwnerChanged.New, backward.OwnerChanged.Old)

	require.NotNil(t, forward.InheritanceChanged)
	assert.Equal(t, forward.InheritanceChanged.Old, backward.InheritanceChanged.New)
}
