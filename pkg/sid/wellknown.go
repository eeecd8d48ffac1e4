package sid

// Well-known SID constants for common Windows security principals.
// The scanner and the principal resolver use these to classify trustees
// without a directory round-trip.

var (
	// Everyone is the "Everyone" (World) SID: S-1-1-0.
	Everyone = MustParse("S-1-1-0")

	// CreatorOwner is the CREATOR OWNER SID: S-1-3-0.
	CreatorOwner = MustParse("S-1-3-0")

	// CreatorGroup is the CREATOR GROUP SID: S-1-3-1.
	CreatorGroup = MustParse("S-1-3-1")

	// Anonymous is the NT AUTHORITY\ANONYMOUS LOGON SID: S-1-5-7.
	Anonymous = MustParse("S-1-5-7")

	// AuthenticatedUsers is the NT AUTHORITY\Authenticated Users SID: S-1-5-11.
	AuthenticatedUsers = MustParse("S-1-5-11")

	// System is the NT AUTHORITY\SYSTEM SID: S-1-5-18.
	System = MustParse("S-1-5-18")

	// LocalService is the NT AUTHORITY\LOCAL SERVICE SID: S-1-5-19.
	LocalService = MustParse("S-1-5-19")

	// NetworkService is the NT AUTHORITY\NETWORK SERVICE SID: S-1-5-20.
	NetworkService = MustParse("S-1-5-20")

	// Administrators is the BUILTIN\Administrators SID: S-1-5-32-544.
	Administrators = MustParse("S-1-5-32-544")

	// Users is the BUILTIN\Users SID: S-1-5-32-545.
	Users = MustParse("S-1-5-32-545")

	// Guests is the BUILTIN\Guests SID: S-1-5-32-546.
	Guests = MustParse("S-1-5-32-546")

	// PowerUsers is the BUILTIN\Power Users SID: S-1-5-32-547.
	PowerUsers = MustParse("S-1-5-32-547")
)

// wellKnown maps well-known SID strings to (domain, name) pairs.
// Principals without a domain component (Everyone, CREATOR OWNER) carry an
// empty domain and display as the bare name.
var wellKnown = map[string]struct{ Domain, Name string }{
	"S-1-1-0":      {"", "Everyone"},
	"S-1-3-0":      {"", "CREATOR OWNER"},
	"S-1-3-1":      {"", "CREATOR GROUP"},
	"S-1-5-7":      {"NT AUTHORITY", "ANONYMOUS LOGON"},
	"S-1-5-11":     {"NT AUTHORITY", "Authenticated Users"},
	"S-1-5-18":     {"NT AUTHORITY", "SYSTEM"},
	"S-1-5-19":     {"NT AUTHORITY", "LOCAL SERVICE"},
	"S-1-5-20":     {"NT AUTHORITY", "NETWORK SERVICE"},
	"S-1-5-32-544": {"BUILTIN", "Administrators"},
	"S-1-5-32-545": {"BUILTIN", "Users"},
	"S-1-5-32-546": {"BUILTIN", "Guests"},
	"S-1-5-32-547": {"BUILTIN", "Power Users"},
}

// WellKnownName returns the (domain, name) pair for a well-known SID string.
// Returns ok=false for SIDs outside the table.
func WellKnownName(sidStr string) (domain, name string, ok bool) {
	entry, ok := wellKnown[sidStr]
	return entry.Domain, entry.Name, ok
}
