// Package principal resolves Windows SIDs to identities.
//
// Every ACE trustee and every snapshot owner passes through the Resolver,
// which memoizes directory lookups by SID string. Resolution never fails:
// a SID the directory does not know degrades to an unknown principal so a
// scan can always complete.
package principal

import (
	"strings"

	"github.com/shareguard/shareguard/pkg/directory"
)

// Kind classifies a resolved principal.
type Kind string

const (
	KindUser           Kind = "user"
	KindGroup          Kind = "group"
	KindWellKnownGroup Kind = "well_known_group"
	KindAlias          Kind = "alias"
	KindUnknown        Kind = "unknown"
)

// Principal is a resolved SID.
type Principal struct {
	// SID is the stable identifier in string form.
	SID string `json:"sid"`

	// Name is the account name; "Unknown" for unresolvable SIDs.
	Name string `json:"name"`

	// Domain is the NetBIOS domain or machine name; may be empty.
	Domain string `json:"domain,omitempty"`

	// FullName is the display identity: "DOMAIN\name", the bare name for
	// domainless principals, or "Unknown SID: <sid>" for unresolvable ones.
	FullName string `json:"full_name"`

	// Kind classifies the principal.
	Kind Kind `json:"kind"`

	// IsSystem is true for platform-reserved principals (SYSTEM, BUILTIN
	// groups, service identities).
	IsSystem bool `json:"is_system"`
}

// IsGroupLike reports whether the principal can have members.
func (p Principal) IsGroupLike() bool {
	switch p.Kind {
	case KindGroup, KindWellKnownGroup, KindAlias:
		return true
	}
	return false
}

// systemFullNames is the exact-match half of the system classification.
var systemFullNames = map[string]struct{}{
	`NT AUTHORITY\SYSTEM`:              {},
	`NT AUTHORITY\Authenticated Users`: {},
	`BUILTIN\Administrators`:           {},
	`BUILTIN\Users`:                    {},
	`BUILTIN\Power Users`:              {},
	`CREATOR OWNER`:                    {},
}

// systemPrefixes is the prefix-match half. "NT " covers both NT AUTHORITY
// and NT SERVICE; NT SERVICE is listed anyway so the rule reads complete.
var systemPrefixes = []string{
	"NT ",
	`BUILTIN\`,
	`NT SERVICE\`,
}

// IsSystemName reports whether a full name identifies a platform-reserved
// principal.
func IsSystemName(fullName string) bool {
	if _, ok := systemFullNames[fullName]; ok {
		return true
	}
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(fullName, prefix) {
			return true
		}
	}
	return false
}

// kindFromAccountType maps the directory's account classification onto
// principal kinds.
func kindFromAccountType(t directory.AccountType) Kind {
	switch t {
	case directory.AccountUser:
		return KindUser
	case directory.AccountGroup:
		return KindGroup
	case directory.AccountWellKnownGroup:
		return KindWellKnownGroup
	case directory.AccountAlias:
		return KindAlias
	default:
		return KindUnknown
	}
}

// Unknown builds the degraded principal for an unresolvable SID.
func Unknown(sidStr string) Principal {
	return Principal{
		SID:      sidStr,
		Name:     "Unknown",
		FullName: "Unknown SID: " + sidStr,
		Kind:     KindUnknown,
	}
}
