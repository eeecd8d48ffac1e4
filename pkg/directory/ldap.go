package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/shareguard/shareguard/pkg/sid"
)

// Active Directory sAMAccountType values, per MS-SAMR.
const (
	samUserObject       = 0x30000000
	samGroupObject      = 0x10000000
	samAliasObject      = 0x20000000
	samNonSecurityGroup = 0x10000001
)

// LDAPConfig configures the Active Directory backend.
type LDAPConfig struct {
	// URI is the LDAP endpoint, e.g. "ldaps://dc01.corp.example.com:636".
	URI string `mapstructure:"uri" yaml:"uri"`

	// BindDN and BindPassword authenticate the service account used for
	// lookups. Anonymous bind is attempted when BindDN is empty.
	BindDN       string `mapstructure:"bind_dn" yaml:"bind_dn"`
	BindPassword string `mapstructure:"bind_password" yaml:"bind_password,omitempty"`

	// BaseDN is the search base, e.g. "DC=corp,DC=example,DC=com".
	BaseDN string `mapstructure:"base_dn" yaml:"base_dn"`

	// Domain is the NetBIOS domain name used in full names ("CORP").
	Domain string `mapstructure:"domain" yaml:"domain"`

	// InsecureSkipVerify disables TLS certificate verification (lab use).
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// LDAP implements Directory against Active Directory.
//
// Each operation dials, binds, searches, and closes. Lookup volume is low
// because both consumers (resolver, tracer) memoize aggressively; a
// connection pool is not worth the reconnect-handling complexity here.
type LDAP struct {
	cfg LDAPConfig
}

// NewLDAP creates an Active Directory backed directory.
func NewLDAP(cfg LDAPConfig) (*LDAP, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("ldap: uri is required")
	}
	if cfg.BaseDN == "" {
		return nil, fmt.Errorf("ldap: base_dn is required")
	}
	return &LDAP{cfg: cfg}, nil
}

// accountAttributes are the attributes fetched for every account entry.
var accountAttributes = []string{"objectSid", "sAMAccountName", "sAMAccountType"}

// LookupSID implements Directory.
func (l *LDAP) LookupSID(ctx context.Context, sidStr string) (*Account, error) {
	conn, err := l.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// AD accepts the SID string form directly in filters.
	filter := fmt.Sprintf("(objectSid=%s)", ldap.EscapeFilter(sidStr))
	entry, err := l.searchOne(conn, l.cfg.BaseDN, ldap.ScopeWholeSubtree, filter)
	if err != nil {
		return nil, err
	}
	return l.entryToAccount(entry)
}

// GroupMembers implements Directory.
func (l *LDAP) GroupMembers(ctx context.Context, fullName string) ([]Account, error) {
	conn, err := l.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	name := accountNamePart(fullName)
	filter := fmt.Sprintf("(&(objectClass=group)(sAMAccountName=%s))", ldap.EscapeFilter(name))
	group, err := l.searchOne(conn, l.cfg.BaseDN, ldap.ScopeWholeSubtree, filter)
	if err != nil {
		return nil, err
	}

	memberDNs := group.GetAttributeValues("member")
	accounts := make([]Account, 0, len(memberDNs))
	for _, dn := range memberDNs {
		entry, err := l.searchOne(conn, dn, ldap.ScopeBaseObject, "(objectClass=*)")
		if err != nil {
			// Stale member links (tombstoned accounts) are skipped, not fatal.
			continue
		}
		a, err := l.entryToAccount(entry)
		if err != nil {
			continue
		}
		accounts = append(accounts, *a)
	}
	return accounts, nil
}

// UserGroups implements Directory.
func (l *LDAP) UserGroups(ctx context.Context, fullName string) ([]string, error) {
	conn, err := l.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	name := accountNamePart(fullName)
	filter := fmt.Sprintf("(sAMAccountName=%s)", ldap.EscapeFilter(name))
	req := ldap.NewSearchRequest(
		l.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter, []string{"memberOf"}, nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("ldap search failed: %w", err)
	}
	if len(res.Entries) == 0 {
		return nil, ErrNotFound
	}

	groupDNs := res.Entries[0].GetAttributeValues("memberOf")
	groups := make([]string, 0, len(groupDNs))
	for _, dn := range groupDNs {
		entry, err := l.searchOne(conn, dn, ldap.ScopeBaseObject, "(objectClass=group)")
		if err != nil {
			continue
		}
		if n := entry.GetAttributeValue("sAMAccountName"); n != "" {
			groups = append(groups, l.cfg.Domain+"\\"+n)
		}
	}
	return groups, nil
}

func (l *LDAP) dial(ctx context.Context) (*ldap.Conn, error) {
	opts := []ldap.DialOpt{}
	if l.cfg.InsecureSkipVerify {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}
	conn, err := ldap.DialURL(l.cfg.URI, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	}

	if l.cfg.BindDN != "" {
		err = conn.Bind(l.cfg.BindDN, l.cfg.BindPassword)
	} else {
		err = conn.UnauthenticatedBind("")
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: bind failed: %v", ErrUnavailable, err)
	}
	return conn, nil
}

// searchOne runs a search expected to yield exactly one entry.
func (l *LDAP) searchOne(conn *ldap.Conn, base string, scope int, filter string) (*ldap.Entry, error) {
	req := ldap.NewSearchRequest(
		base, scope, ldap.NeverDerefAliases, 2, 0, false,
		filter, accountAttributes, nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ldap search failed: %w", err)
	}
	if len(res.Entries) == 0 {
		return nil, ErrNotFound
	}
	return res.Entries[0], nil
}

// entryToAccount converts an LDAP entry into an Account, decoding the
// binary objectSid and classifying via sAMAccountType.
func (l *LDAP) entryToAccount(entry *ldap.Entry) (*Account, error) {
	raw := entry.GetRawAttributeValue("objectSid")
	if len(raw) == 0 {
		return nil, fmt.Errorf("entry %q has no objectSid", entry.DN)
	}
	s, _, err := sid.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("entry %q has malformed objectSid: %w", entry.DN, err)
	}

	typ := AccountUser
	if v := entry.GetAttributeValue("sAMAccountType"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			switch n {
			case samGroupObject, samNonSecurityGroup:
				typ = AccountGroup
			case samAliasObject:
				typ = AccountAlias
			case samUserObject:
				typ = AccountUser
			}
		}
	}

	return &Account{
		SID:    s.String(),
		Name:   entry.GetAttributeValue("sAMAccountName"),
		Domain: l.cfg.Domain,
		Type:   typ,
	}, nil
}

// accountNamePart strips the "DOMAIN\" prefix from a full name.
func accountNamePart(fullName string) string {
	for i := len(fullName) - 1; i >= 0; i-- {
		if fullName[i] == '\\' {
			return fullName[i+1:]
		}
	}
	return fullName
}
