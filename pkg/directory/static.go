package directory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Static is an in-memory Directory backed by a fixture. It serves two
// purposes: unit tests, and demo deployments without a domain controller.
//
// All lookups are case-insensitive on full names, matching Windows account
// name semantics.
type Static struct {
	mu       sync.RWMutex
	bySID    map[string]Account
	byName   map[string]Account   // lowercase full name -> account
	members  map[string][]string  // lowercase group full name -> member SIDs
	memberOf map[string][]string  // lowercase user full name -> group full names
}

// NewStatic creates an empty static directory.
func NewStatic() *Static {
	return &Static{
		bySID:    make(map[string]Account),
		byName:   make(map[string]Account),
		members:  make(map[string][]string),
		memberOf: make(map[string][]string),
	}
}

// AddAccount registers an account.
func (s *Static) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySID[a.SID] = a
	s.byName[strings.ToLower(a.FullName())] = a
}

// AddMember records that member (by SID) is a direct member of the group
// identified by groupFullName. The reverse user->groups index is maintained
// automatically.
func (s *Static) AddMember(groupFullName string, memberSID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(groupFullName)
	s.members[key] = append(s.members[key], memberSID)

	if m, ok := s.bySID[memberSID]; ok {
		mk := strings.ToLower(m.FullName())
		s.memberOf[mk] = append(s.memberOf[mk], groupFullName)
	}
}

// LookupSID implements Directory.
func (s *Static) LookupSID(_ context.Context, sidStr string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.bySID[sidStr]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// GroupMembers implements Directory.
func (s *Static) GroupMembers(_ context.Context, fullName string) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := strings.ToLower(fullName)
	if _, ok := s.byName[key]; !ok {
		return nil, ErrNotFound
	}

	sids := s.members[key]
	accounts := make([]Account, 0, len(sids))
	for _, m := range sids {
		if a, ok := s.bySID[m]; ok {
			accounts = append(accounts, a)
		}
	}
	return accounts, nil
}

// UserGroups implements Directory.
func (s *Static) UserGroups(_ context.Context, fullName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := strings.ToLower(fullName)
	if _, ok := s.byName[key]; !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), s.memberOf[key]...), nil
}

// fixtureFile is the YAML shape accepted by LoadStatic.
type fixtureFile struct {
	Accounts []struct {
		SID    string `yaml:"sid"`
		Name   string `yaml:"name"`
		Domain string `yaml:"domain"`
		Type   string `yaml:"type"`
	} `yaml:"accounts"`
	Memberships []struct {
		Group   string   `yaml:"group"`
		Members []string `yaml:"members"` // member SIDs
	} `yaml:"memberships"`
}

// LoadStatic reads a YAML fixture and returns a populated static directory.
//
// Fixture format:
//
//	accounts:
//	  - sid: S-1-5-21-1-2-3-1000
//	    name: jdoe
//	    domain: CORP
//	    type: user
//	memberships:
//	  - group: CORP\Engineering
//	    members: [S-1-5-21-1-2-3-1000]
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory fixture: %w", err)
	}

	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse directory fixture: %w", err)
	}

	s := NewStatic()
	for _, a := range f.Accounts {
		typ := AccountType(a.Type)
		switch typ {
		case AccountUser, AccountGroup, AccountWellKnownGroup, AccountAlias:
		default:
			return nil, fmt.Errorf("fixture account %q has invalid type %q", a.SID, a.Type)
		}
		s.AddAccount(Account{SID: a.SID, Name: a.Name, Domain: a.Domain, Type: typ})
	}
	for _, m := range f.Memberships {
		for _, member := range m.Members {
			s.AddMember(m.Group, member)
		}
	}
	return s, nil
}
