package scanner

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// Source errors. The scanner maps these onto ScanError kinds.
var (
	// ErrSourceNotFound is returned when the path does not exist.
	ErrSourceNotFound = errors.New("scanner: path not found")

	// ErrSourceDenied is returned when the security descriptor cannot be
	// read for lack of privilege.
	ErrSourceDenied = errors.New("scanner: access denied")
)

// Source is the platform seam: everything the scanner needs from the
// filesystem, expressed in terms of self-relative security descriptors.
//
// A production deployment plugs in a source backed by the platform's
// security APIs; tests and demo mode use Static.
type Source interface {
	// ReadSecurityDescriptor returns the encoded security descriptor of
	// the directory at path.
	ReadSecurityDescriptor(ctx context.Context, path string) ([]byte, error)

	// Subdirs lists the full paths of the immediate subdirectories.
	Subdirs(ctx context.Context, path string) ([]string, error)

	// ModTime returns the directory's last modification time, or a zero
	// time when the source cannot provide one.
	ModTime(ctx context.Context, path string) (time.Time, error)
}

type staticEntry struct {
	sd      []byte
	modTime time.Time
	denied  bool
}

// Static is an in-memory Source seeded with encoded descriptors. Paths are
// matched case-insensitively, like the filesystem they stand in for.
type Static struct {
	mu      sync.RWMutex
	entries map[string]*staticEntry // lowercase path -> entry
	display map[string]string       // lowercase path -> original casing
}

// NewStatic creates an empty static source.
func NewStatic() *Static {
	return &Static{
		entries: make(map[string]*staticEntry),
		display: make(map[string]string),
	}
}

// AddFolder registers a folder with the given descriptor.
func (s *Static) AddFolder(path string, d *Descriptor, modTime time.Time) error {
	data, err := d.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizePath(path)
	s.entries[key] = &staticEntry{sd: data, modTime: modTime}
	s.display[key] = strings.TrimRight(path, `\`)
	return nil
}

// DenyFolder registers a folder whose descriptor cannot be read. Used to
// exercise permission-denied handling.
func (s *Static) DenyFolder(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizePath(path)
	s.entries[key] = &staticEntry{denied: true}
	s.display[key] = strings.TrimRight(path, `\`)
}

// Touch updates a folder's modification time.
func (s *Static) Touch(path string, modTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[normalizePath(path)]; ok {
		e.modTime = modTime
	}
}

// Remove deletes a folder.
func (s *Static) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizePath(path)
	delete(s.entries, key)
	delete(s.display, key)
}

// ReadSecurityDescriptor implements Source.
func (s *Static) ReadSecurityDescriptor(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[normalizePath(path)]
	if !ok {
		return nil, ErrSourceNotFound
	}
	if e.denied {
		return nil, ErrSourceDenied
	}
	return e.sd, nil
}

// Subdirs implements Source.
func (s *Static) Subdirs(_ context.Context, path string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := normalizePath(path)
	if _, ok := s.entries[key]; !ok {
		return nil, ErrSourceNotFound
	}

	prefix := key + `\`
	var out []string
	for k, disp := range s.display {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		// Immediate children only.
		if strings.Contains(k[len(prefix):], `\`) {
			continue
		}
		out = append(out, disp)
	}
	sort.Strings(out)
	return out, nil
}

// ModTime implements Source.
func (s *Static) ModTime(_ context.Context, path string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[normalizePath(path)]
	if !ok {
		return time.Time{}, ErrSourceNotFound
	}
	return e.modTime, nil
}

// normalizePath lowercases and strips the trailing separator so lookups
// are insensitive to both, matching Windows path semantics.
func normalizePath(path string) string {
	return strings.ToLower(strings.TrimRight(path, `\`))
}
