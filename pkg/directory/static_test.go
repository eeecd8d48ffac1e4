package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testStatic() *Static {
	s := NewStatic()
	s.AddAccount(Account{SID: "S-1-5-21-1-2-3-1000", Name: "jdoe", Domain: "CORP", Type: AccountUser})
	s.AddAccount(Account{SID: "S-1-5-21-1-2-3-2000", Name: "Engineering", Domain: "CORP", Type: AccountGroup})
	s.AddAccount(Account{SID: "S-1-5-21-1-2-3-2001", Name: "Platform Team", Domain: "CORP", Type: AccountGroup})
	s.AddMember(`CORP\Engineering`, "S-1-5-21-1-2-3-2001")
	s.AddMember(`CORP\Platform Team`, "S-1-5-21-1-2-3-1000")
	return s
}

func TestStaticLookupSID(t *testing.T) {
	s := testStatic()
	ctx := context.Background()

	a, err := s.LookupSID(ctx, "S-1-5-21-1-2-3-1000")
	if err != nil {
		t.Fatalf("LookupSID failed: %v", err)
	}
	if a.FullName() != `CORP\jdoe` {
		t.Errorf("full name = %q, want CORP\\jdoe", a.FullName())
	}
	if a.Type != AccountUser {
		t.Errorf("type = %q, want user", a.Type)
	}

	_, err = s.LookupSID(ctx, "S-1-5-21-9-9-9-999")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown SID error = %v, want ErrNotFound", err)
	}
}

func TestStaticGroupMembers(t *testing.T) {
	s := testStatic()
	ctx := context.Background()

	members, err := s.GroupMembers(ctx, `CORP\Engineering`)
	if err != nil {
		t.Fatalf("GroupMembers failed: %v", err)
	}
	if len(members) != 1 || members[0].Name != "Platform Team" {
		t.Errorf("members = %v, want [Platform Team]", members)
	}

	// Case-insensitive name matching
	members, err = s.GroupMembers(ctx, `corp\engineering`)
	if err != nil {
		t.Fatalf("case-insensitive GroupMembers failed: %v", err)
	}
	if len(members) != 1 {
		t.Errorf("case-insensitive lookup returned %d members, want 1", len(members))
	}

	if _, err := s.GroupMembers(ctx, `CORP\Nope`); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown group error = %v, want ErrNotFound", err)
	}
}

func TestStaticUserGroups(t *testing.T) {
	s := testStatic()

	groups, err := s.UserGroups(context.Background(), `CORP\jdoe`)
	if err != nil {
		t.Fatalf("UserGroups failed: %v", err)
	}
	if len(groups) != 1 || groups[0] != `CORP\Platform Team` {
		t.Errorf("groups = %v, want [CORP\\Platform Team]", groups)
	}
}

func TestLoadStatic(t *testing.T) {
	fixture := `
accounts:
  - sid: S-1-5-21-1-2-3-1000
    name: jdoe
    domain: CORP
    type: user
  - sid: S-1-5-21-1-2-3-2000
    name: Engineering
    domain: CORP
    type: group
memberships:
  - group: CORP\Engineering
    members: [S-1-5-21-1-2-3-1000]
`
	path := filepath.Join(t.TempDir(), "directory.yaml")
	if err := os.WriteFile(path, []byte(fixture), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadStatic(path)
	if err != nil {
		t.Fatalf("LoadStatic failed: %v", err)
	}

	a, err := s.LookupSID(context.Background(), "S-1-5-21-1-2-3-1000")
	if err != nil {
		t.Fatalf("LookupSID after load failed: %v", err)
	}
	if a.Name != "jdoe" {
		t.Errorf("name = %q, want jdoe", a.Name)
	}

	members, err := s.GroupMembers(context.Background(), `CORP\Engineering`)
	if err != nil || len(members) != 1 {
		t.Fatalf("GroupMembers = %v, %v, want 1 member", members, err)
	}
}

func TestLoadStaticRejectsInvalidType(t *testing.T) {
	fixture := `
accounts:
  - sid: S-1-5-21-1-2-3-1000
    name: jdoe
    domain: CORP
    type: computer
`
	path := filepath.Join(t.TempDir(), "directory.yaml")
	if err := os.WriteFile(path, []byte(fixture), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadStatic(path); err == nil {
		t.Error("expected error for invalid account type")
	}
}
