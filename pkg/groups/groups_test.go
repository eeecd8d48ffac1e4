package groups

import (
	"context"
	"fmt"
	"testing"

	"github.com/shareguard/shareguard/pkg/directory"
	"github.com/shareguard/shareguard/pkg/principal"
)

// buildDirectory seeds:
//
//	CORP\Engineering
//	├── CORP\jdoe (direct)
//	└── CORP\Platform Team
//	    ├── CORP\asmith
//	    └── CORP\Engineering  (cycle, back to the root)
func buildDirectory() *directory.Static {
	d := directory.NewStatic()
	d.AddAccount(directory.Account{SID: "S-1-5-21-1-2-3-1000", Name: "jdoe", Domain: "CORP", Type: directory.AccountUser})
	d.AddAccount(directory.Account{SID: "S-1-5-21-1-2-3-1001", Name: "asmith", Domain: "CORP", Type: directory.AccountUser})
	d.AddAccount(directory.Account{SID: "S-1-5-21-1-2-3-2000", Name: "Engineering", Domain: "CORP", Type: directory.AccountGroup})
	d.AddAccount(directory.Account{SID: "S-1-5-21-1-2-3-2001", Name: "Platform Team", Domain: "CORP", Type: directory.AccountGroup})

	d.AddMember(`CORP\Engineering`, "S-1-5-21-1-2-3-1000")
	d.AddMember(`CORP\Engineering`, "S-1-5-21-1-2-3-2001")
	d.AddMember(`CORP\Platform Team`, "S-1-5-21-1-2-3-1001")
	d.AddMember(`CORP\Platform Team`, "S-1-5-21-1-2-3-2000") // cycle
	return d
}

func groupPrincipal(name string) principal.Principal {
	return principal.Principal{
		SID:      "S-1-5-21-1-2-3-2000",
		Name:     name,
		Domain:   "CORP",
		FullName: `CORP\` + name,
		Kind:     principal.KindGroup,
	}
}

func newTracer(d *directory.Static) *Tracer {
	return NewTracer(d, principal.NewResolver(d))
}

func TestTraceBuildsTree(t *testing.T) {
	tr := newTracer(buildDirectory())

	path, err := tr.Trace(context.Background(), groupPrincipal("Engineering"))
	if err != nil {
		t.Fatalf("Trace failed: %v", err)
	}

	if len(path.DirectMembers) != 2 {
		t.Fatalf("direct members = %d, want 2 (jdoe + Platform Team)", len(path.DirectMembers))
	}
	if path.NestedLevel != 1 {
		t.Errorf("nested level = %d, want 1", path.NestedLevel)
	}
	if len(path.Nested) != 1 {
		t.Fatalf("nested paths = %d, want 1", len(path.Nested))
	}

	nested := path.Nested[0]
	if nested.Group.FullName != `CORP\Platform Team` {
		t.Errorf("nested group = %q, want CORP\\Platform Team", nested.Group.FullName)
	}
	// The cycle back to Engineering shows as a direct member but is not
	// re-expanded.
	if len(nested.Nested) != 0 {
		t.Errorf("cyclic group must not be re-expanded, got %d subtrees", len(nested.Nested))
	}

	users := path.Users()
	if len(users) != 2 {
		t.Fatalf("flattened users = %d, want 2", len(users))
	}
	names := map[string]bool{}
	for _, u := range users {
		names[u.FullName] = true
	}
	if !names[`CORP\jdoe`] || !names[`CORP\asmith`] {
		t.Errorf("users = %v, want jdoe and asmith", names)
	}
}

func TestTraceCycleTerminates(t *testing.T) {
	tr := newTracer(buildDirectory())

	p := principal.Principal{
		SID: "S-1-5-21-1-2-3-2001", Name: "Platform Team", Domain: "CORP",
		FullName: `CORP\Platform Team`, Kind: principal.KindGroup,
	}
	path, err := tr.Trace(context.Background(), p)
	if err != nil {
		t.Fatalf("Trace failed: %v", err)
	}
	// Platform Team -> Engineering -> (Platform Team omitted).
	if path.NestedLevel != 1 {
		t.Errorf("nested level = %d, want 1", path.NestedLevel)
	}
	if users := path.Users(); len(users) != 2 {
		t.Errorf("flattened users = %d, want 2", len(users))
	}
}

func TestTraceSystemGroupNotExpanded(t *testing.T) {
	tr := newTracer(buildDirectory())

	systems := []principal.Principal{
		{SID: "S-1-5-32-544", FullName: `BUILTIN\Administrators`, Kind: principal.KindWellKnownGroup, IsSystem: true},
		{SID: "S-1-1-0", FullName: "Everyone", Kind: principal.KindWellKnownGroup},
	}
	for _, p := range systems {
		path, err := tr.Trace(context.Background(), p)
		if err != nil {
			t.Fatalf("Trace(%s) failed: %v", p.FullName, err)
		}
		if len(path.DirectMembers) != 0 || len(path.Nested) != 0 || path.NestedLevel != 0 {
			t.Errorf("system group %s must not expand, got %+v", p.FullName, path)
		}
	}
}

func TestTraceUnknownGroup(t *testing.T) {
	tr := newTracer(buildDirectory())

	p := principal.Principal{
		SID: "S-1-5-21-9-9-9-9000", FullName: `CORP\Nope`, Kind: principal.KindGroup,
	}
	if _, err := tr.Trace(context.Background(), p); err == nil {
		t.Error("expected error for unknown group")
	}
}

func TestTraceDepthLimit(t *testing.T) {
	d := directory.NewStatic()
	// Chain of groups deeper than the limit.
	n := maxNestingDepth + 2
	for i := 0; i < n; i++ {
		d.AddAccount(directory.Account{
			SID: chainSID(i), Name: chainName(i), Domain: "CORP", Type: directory.AccountGroup,
		})
	}
	for i := 0; i < n-1; i++ {
		d.AddMember(`CORP\`+chainName(i), chainSID(i+1))
	}

	tr := newTracer(d)
	root := principal.Principal{
		SID: chainSID(0), Name: chainName(0), Domain: "CORP",
		FullName: `CORP\` + chainName(0), Kind: principal.KindGroup,
	}
	path, err := tr.Trace(context.Background(), root)
	if err != nil {
		t.Fatalf("Trace failed: %v", err)
	}
	if path.NestedLevel > maxNestingDepth {
		t.Errorf("nested level = %d exceeds depth limit %d", path.NestedLevel, maxNestingDepth)
	}
}

func chainSID(i int) string {
	return fmt.Sprintf("S-1-5-21-1-2-3-%d", 5000+i)
}

func chainName(i int) string {
	return fmt.Sprintf("Nest%02d", i)
}

func TestUserGroupsTransitive(t *testing.T) {
	// asmith is in Platform Team, which is in Engineering.
	tr := newTracer(buildDirectory())

	groups, err := tr.UserGroups(context.Background(), `CORP\asmith`)
	if err != nil {
		t.Fatalf("UserGroups failed: %v", err)
	}

	want := map[string]bool{`CORP\Platform Team`: false, `CORP\Engineering`: false}
	for _, g := range groups {
		if _, ok := want[g]; ok {
			want[g] = true
		}
	}
	for g, found := range want {
		if !found {
			t.Errorf("group %s missing from transitive membership %v", g, groups)
		}
	}
}

func TestTraceMemoizes(t *testing.T) {
	d := buildDirectory()
	tr := newTracer(d)
	ctx := context.Background()

	eng := groupPrincipal("Engineering")
	p1, err := tr.Trace(ctx, eng)
	if err != nil {
		t.Fatal(err)
	}

	// Mutate the directory; the cached trace must still be served.
	d.AddAccount(directory.Account{SID: "S-1-5-21-1-2-3-1002", Name: "newhire", Domain: "CORP", Type: directory.AccountUser})
	d.AddMember(`CORP\Engineering`, "S-1-5-21-1-2-3-1002")

	p2, err := tr.Trace(ctx, eng)
	if err != nil {
		t.Fatal(err)
	}
	if len(p2.DirectMembers) != len(p1.DirectMembers) {
		t.Error("second trace bypassed the cache")
	}

	tr.ClearCache()
	p3, err := tr.Trace(ctx, eng)
	if err != nil {
		t.Fatal(err)
	}
	if len(p3.DirectMembers) != len(p1.DirectMembers)+1 {
		t.Errorf("trace after ClearCache = %d members, want %d",
			len(p3.DirectMembers), len(p1.DirectMembers)+1)
	}
}
