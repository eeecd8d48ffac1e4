// Package directory abstracts the account database ShareGuard resolves
// security principals against.
//
// On a domain-joined deployment the backing store is Active Directory
// (the LDAP implementation); tests and standalone demos use the in-memory
// Static implementation seeded from fixtures. The principal resolver and
// the group membership tracer consume this interface and never talk to a
// backend directly.
package directory

import (
	"context"
	"errors"
)

// AccountType classifies a directory account the way the platform reports it.
type AccountType string

const (
	// AccountUser is a regular user account.
	AccountUser AccountType = "user"
	// AccountGroup is a security group.
	AccountGroup AccountType = "group"
	// AccountWellKnownGroup is a platform-defined group (Everyone,
	// Authenticated Users, ...).
	AccountWellKnownGroup AccountType = "well_known_group"
	// AccountAlias is a local (BUILTIN) group.
	AccountAlias AccountType = "alias"
)

// Account is one directory entry as returned by a lookup.
type Account struct {
	// SID is the account's security identifier in string form.
	SID string

	// Name is the account name (sAMAccountName for AD).
	Name string

	// Domain is the NetBIOS domain or machine name. Empty for principals
	// that display without a domain component (Everyone, CREATOR OWNER).
	Domain string

	// Type classifies the account.
	Type AccountType
}

// FullName returns the display identity in "DOMAIN\name" form, or the bare
// name when the account has no domain component.
func (a Account) FullName() string {
	if a.Domain == "" {
		return a.Name
	}
	return a.Domain + "\\" + a.Name
}

// Lookup errors. Resolution failures never propagate past the principal
// resolver (it degrades to an unknown principal), but the directory layer
// still distinguishes them for logging.
var (
	// ErrNotFound is returned when no account matches the query.
	ErrNotFound = errors.New("directory: account not found")

	// ErrUnavailable is returned when the backend cannot be reached.
	ErrUnavailable = errors.New("directory: backend unavailable")
)

// Directory is the account database interface.
//
// All methods block on the backend; callers that must not stall (the
// notification processor, HTTP handlers) go through the memoizing caches
// in pkg/principal and pkg/groups instead of calling this directly.
type Directory interface {
	// LookupSID resolves a SID string to an account.
	// Returns ErrNotFound for unknown SIDs.
	LookupSID(ctx context.Context, sidStr string) (*Account, error)

	// GroupMembers returns the direct members of the group identified by
	// its full name ("DOMAIN\group"). Members of nested groups are not
	// expanded; that is the membership tracer's job.
	GroupMembers(ctx context.Context, fullName string) ([]Account, error)

	// UserGroups returns the full names of the groups the user identified
	// by fullName directly belongs to.
	UserGroups(ctx context.Context, fullName string) ([]string, error)
}
