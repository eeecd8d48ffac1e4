// Package groups expands security group membership.
//
// ACEs grant to groups far more often than to users, so understanding who
// can actually touch a folder means expanding nested memberships. The
// Tracer builds a membership tree per group, recursing into nested groups
// with cycle protection, and memoizes the result per group full name.
package groups

import (
	"context"
	"strings"

	"github.com/bluele/gcache"

	"github.com/shareguard/shareguard/internal/logger"
	"github.com/shareguard/shareguard/pkg/directory"
	"github.com/shareguard/shareguard/pkg/principal"
)

const (
	// tracerCacheSize bounds the per-group memoization cache.
	tracerCacheSize = 2048

	// maxNestingDepth stops runaway recursion in pathological directories.
	// AD tolerates arbitrary nesting but anything past this depth is almost
	// certainly a modeling mistake, not a real access path.
	maxNestingDepth = 10
)

// MembershipPath is the expansion of one group: its direct members and a
// subtree per nested group.
type MembershipPath struct {
	// Group is the expanded group.
	Group principal.Principal `json:"group"`

	// DirectMembers lists every direct member, users and groups alike.
	DirectMembers []principal.Principal `json:"direct_members"`

	// Nested holds one subtree per direct member that is itself a group.
	// A group already expanded higher up the same path is omitted here,
	// which is what makes traversal total on cyclic graphs.
	Nested []*MembershipPath `json:"nested,omitempty"`

	// NestedLevel is the max depth of the Nested subtrees: 0 for a leaf
	// group, 1 + max child level otherwise.
	NestedLevel int `json:"nested_level"`
}

// Users returns every user principal reachable through the path, each one
// once.
func (p *MembershipPath) Users() []principal.Principal {
	seen := map[string]struct{}{}
	var out []principal.Principal
	p.collectUsers(seen, &out)
	return out
}

func (p *MembershipPath) collectUsers(seen map[string]struct{}, out *[]principal.Principal) {
	for _, m := range p.DirectMembers {
		if m.Kind != principal.KindUser {
			continue
		}
		if _, ok := seen[m.SID]; ok {
			continue
		}
		seen[m.SID] = struct{}{}
		*out = append(*out, m)
	}
	for _, n := range p.Nested {
		n.collectUsers(seen, out)
	}
}

// Tracer expands group memberships against a directory backend.
type Tracer struct {
	dir      directory.Directory
	resolver *principal.Resolver
	cache    gcache.Cache
}

// NewTracer creates a tracer sharing the given resolver's memoization.
func NewTracer(dir directory.Directory, resolver *principal.Resolver) *Tracer {
	return &Tracer{
		dir:      dir,
		resolver: resolver,
		cache:    gcache.New(tracerCacheSize).LRU().Build(),
	}
}

// Trace expands a group-like principal into a membership tree.
//
// System principals (BUILTIN, NT AUTHORITY, Everyone) are never expanded:
// their membership is machine-local and uninteresting for access reporting,
// and on a large domain expanding Authenticated Users would pull the entire
// directory. They return an empty path.
func (t *Tracer) Trace(ctx context.Context, group principal.Principal) (*MembershipPath, error) {
	if group.IsSystem || group.FullName == "Everyone" {
		return &MembershipPath{Group: group, DirectMembers: []principal.Principal{}}, nil
	}

	key := strings.ToLower(group.FullName)
	if v, err := t.cache.Get(key); err == nil {
		return v.(*MembershipPath), nil
	}

	visited := map[string]struct{}{key: {}}
	path, err := t.expand(ctx, group, 0, visited)
	if err != nil {
		return nil, err
	}

	_ = t.cache.Set(key, path)
	return path, nil
}

// expand builds one node of the membership tree. visited keys every group
// already on the current expansion path by lowercase full name.
func (t *Tracer) expand(ctx context.Context, group principal.Principal, depth int, visited map[string]struct{}) (*MembershipPath, error) {
	path := &MembershipPath{Group: group, DirectMembers: []principal.Principal{}}

	if depth >= maxNestingDepth {
		logger.Warn("group nesting depth limit reached",
			logger.KeyPrincipal, group.FullName,
			"depth", depth)
		return path, nil
	}

	members, err := t.dir.GroupMembers(ctx, group.FullName)
	if err != nil {
		if depth == 0 {
			return nil, err
		}
		// A nested group that fails to expand degrades to a leaf rather
		// than failing the whole trace.
		logger.Warn("nested group expansion failed",
			logger.KeyPrincipal, group.FullName,
			logger.KeyError, err.Error())
		return path, nil
	}

	for _, account := range members {
		p := t.resolver.Resolve(ctx, account.SID)
		path.DirectMembers = append(path.DirectMembers, p)

		if !p.IsGroupLike() || p.IsSystem {
			continue
		}

		nestedKey := strings.ToLower(p.FullName)
		if _, ok := visited[nestedKey]; ok {
			continue // already expanded on this path
		}
		visited[nestedKey] = struct{}{}

		child, err := t.expand(ctx, p, depth+1, visited)
		if err != nil {
			return nil, err
		}
		path.Nested = append(path.Nested, child)
		if child.NestedLevel+1 > path.NestedLevel {
			path.NestedLevel = child.NestedLevel + 1
		}
	}
	return path, nil
}

// UserGroups returns the full names of every group the user belongs to,
// including groups reached through nesting. Keyed and memoized like Trace.
func (t *Tracer) UserGroups(ctx context.Context, userFullName string) ([]string, error) {
	key := "user:" + strings.ToLower(userFullName)
	if v, err := t.cache.Get(key); err == nil {
		return v.([]string), nil
	}

	direct, err := t.dir.UserGroups(ctx, userFullName)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(direct))
	var all []string
	queue := append([]string(nil), direct...)
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]

		k := strings.ToLower(g)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		all = append(all, g)

		if principal.IsSystemName(g) {
			continue
		}
		parents, err := t.dir.UserGroups(ctx, g)
		if err != nil {
			continue // groups without parents, or backends that only index users
		}
		queue = append(queue, parents...)
	}

	_ = t.cache.Set(key, all)
	return all, nil
}

// ClearCache drops all memoized traces and reverse queries.
func (t *Tracer) ClearCache() {
	t.cache.Purge()
}
