// Package scanner turns directories into normalized permission snapshots.
//
// A scan reads the directory's security descriptor through a Source,
// resolves every trustee SID, categorizes access masks, consolidates
// duplicate ACEs, and fingerprints the result. Tree scans recurse into
// subdirectories with per-folder error isolation.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shareguard/shareguard/internal/logger"
	"github.com/shareguard/shareguard/pkg/acl"
	"github.com/shareguard/shareguard/pkg/groups"
	"github.com/shareguard/shareguard/pkg/principal"
)

// DefaultMaxDepth bounds tree recursion when the caller does not say
// otherwise.
const DefaultMaxDepth = 5

// DefaultBatchSize is how many subdirectories a tree scan processes
// between progress checkpoints.
const DefaultBatchSize = 1000

// DefaultExcludedPrefixes are the system trees never worth scanning.
var DefaultExcludedPrefixes = []string{
	`C:\Windows\`,
	`C:\Program Files\`,
	`C:\Program Files (x86)\`,
}

// ErrorKind classifies scan failures.
type ErrorKind string

const (
	ErrKindNotFound         ErrorKind = "not_found"
	ErrKindExcluded         ErrorKind = "excluded"
	ErrKindPermissionDenied ErrorKind = "permission_denied"
	ErrKindMalformed        ErrorKind = "malformed"
)

// ScanError is a scan failure bound to the path that caused it.
type ScanError struct {
	Path string    `json:"path"`
	Kind ErrorKind `json:"kind"`
	Err  error     `json:"-"`
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Stats aggregates a tree scan.
type Stats struct {
	TotalFolders     int `json:"total_folders"`
	ProcessedFolders int `json:"processed_folders"`
	ErrorCount       int `json:"error_count"`
	SystemACEs       int `json:"system_aces"`
	NonSystemACEs    int `json:"non_system_aces"`
}

// Options controls one tree scan.
type Options struct {
	// IncludeSubfolders enables recursion below the root.
	IncludeSubfolders bool

	// MaxDepth bounds recursion; 0 scans the root only. Callers wanting
	// the standard depth pass DefaultMaxDepth.
	MaxDepth int

	// AnnotatePaths fills each ACE's access_paths trace. Costs directory
	// round-trips, so it is off for monitor cycles and on for UI scans.
	AnnotatePaths bool

	// ExcludeInherited drops inherited ACEs from the returned snapshots.
	ExcludeInherited bool

	// SimplifiedSystem drops system-trustee ACEs from the returned
	// snapshots.
	SimplifiedSystem bool
}

// TreeResult is the outcome of a tree scan. Success is false only when the
// root itself could not be scanned; subfolder failures surface through
// Errors and Stats.ErrorCount.
type TreeResult struct {
	Success  bool            `json:"success"`
	Reason   string          `json:"reason,omitempty"`
	Root     *acl.Snapshot   `json:"root,omitempty"`
	Children []*acl.Snapshot `json:"children,omitempty"`
	Errors   []*ScanError    `json:"errors,omitempty"`
	Stats    Stats           `json:"stats"`
}

// Scanner builds snapshots from a Source.
type Scanner struct {
	src       Source
	resolver  *principal.Resolver
	tracer    *groups.Tracer
	excluded  []string
	batchSize int
}

// New creates a scanner. A nil excluded slice applies the default system
// tree exclusions; an explicit empty slice disables exclusion.
func New(src Source, resolver *principal.Resolver, tracer *groups.Tracer, excluded []string) *Scanner {
	if excluded == nil {
		excluded = DefaultExcludedPrefixes
	}
	return &Scanner{
		src:       src,
		resolver:  resolver,
		tracer:    tracer,
		excluded:  excluded,
		batchSize: DefaultBatchSize,
	}
}

// SetBatchSize tunes the per-listing progress checkpoint interval.
func (s *Scanner) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// Scan produces a snapshot of a single directory.
func (s *Scanner) Scan(ctx context.Context, path string) (*acl.Snapshot, *ScanError) {
	if prefix, ok := s.excludedBy(path); ok {
		return nil, &ScanError{Path: path, Kind: ErrKindExcluded,
			Err: fmt.Errorf("path under excluded prefix %s", prefix)}
	}

	data, err := s.src.ReadSecurityDescriptor(ctx, path)
	if err != nil {
		return nil, &ScanError{Path: path, Kind: sourceErrorKind(err), Err: err}
	}

	desc, err := ParseSecurityDescriptor(data)
	if err != nil {
		return nil, &ScanError{Path: path, Kind: ErrKindMalformed, Err: err}
	}

	snap := &acl.Snapshot{
		Path:               path,
		ScannedAt:          time.Now().UTC(),
		Owner:              s.resolver.Resolve(ctx, desc.OwnerSID),
		InheritanceEnabled: !desc.Protected,
		ACEs:               make([]acl.ACE, 0, len(desc.ACEs)),
	}
	if desc.GroupSID != "" {
		pg := s.resolver.Resolve(ctx, desc.GroupSID)
		snap.PrimaryGroup = &pg
	}

	for _, raw := range desc.ACEs {
		aceType := acl.Allow
		if raw.Deny {
			aceType = acl.Deny
		}
		snap.ACEs = append(snap.ACEs, acl.ACE{
			Trustee:     s.resolver.Resolve(ctx, raw.SID),
			Type:        aceType,
			Inherited:   raw.Inherited,
			Permissions: acl.DecodeAccessMask(raw.Mask),
		})
	}

	snap.ACEs = acl.Consolidate(snap.ACEs)
	snap.Fingerprint()
	return snap, nil
}

// ScanTree scans a directory and, when requested, its subdirectories.
func (s *Scanner) ScanTree(ctx context.Context, path string, opts Options) *TreeResult {
	result := &TreeResult{}
	result.Stats.TotalFolders = 1

	root, serr := s.Scan(ctx, path)
	if serr != nil {
		result.Success = false
		result.Reason = serr.Error()
		result.Errors = append(result.Errors, serr)
		result.Stats.ErrorCount = 1
		return result
	}

	result.Success = true
	result.Root = root
	s.accountSnapshot(ctx, root, &result.Stats, opts)

	if opts.IncludeSubfolders && opts.MaxDepth > 0 {
		s.scanChildren(ctx, path, 1, opts, result)
	}
	return result
}

func (s *Scanner) scanChildren(ctx context.Context, path string, depth int, opts Options, result *TreeResult) {
	subdirs, err := s.src.Subdirs(ctx, path)
	if err != nil {
		result.Errors = append(result.Errors, &ScanError{
			Path: path, Kind: sourceErrorKind(err), Err: err,
		})
		result.Stats.ErrorCount++
		return
	}

	for i, sub := range subdirs {
		if err := ctx.Err(); err != nil {
			return
		}
		if i > 0 && i%s.batchSize == 0 {
			logger.DebugCtx(ctx, "tree scan progress",
				logger.KeyPath, path,
				"processed", i,
				"listed", len(subdirs))
		}
		result.Stats.TotalFolders++

		snap, serr := s.Scan(ctx, sub)
		if serr != nil {
			// One unreadable subfolder never fails the parent scan.
			logger.DebugCtx(ctx, "subfolder scan failed",
				logger.KeyPath, sub,
				logger.KeyError, serr.Error())
			result.Errors = append(result.Errors, serr)
			result.Stats.ErrorCount++
			continue
		}

		result.Children = append(result.Children, snap)
		s.accountSnapshot(ctx, snap, &result.Stats, opts)

		if depth < opts.MaxDepth {
			s.scanChildren(ctx, sub, depth+1, opts, result)
		}
	}
}

func (s *Scanner) accountSnapshot(ctx context.Context, snap *acl.Snapshot, stats *Stats, opts Options) {
	stats.ProcessedFolders++
	system := snap.SystemACECount()
	stats.SystemACEs += system
	stats.NonSystemACEs += len(snap.ACEs) - system

	if opts.AnnotatePaths {
		s.Annotate(ctx, snap)
	}
	ApplyView(snap, opts.ExcludeInherited, opts.SimplifiedSystem)
}

// ApplyView prunes the ACE list for presentation. It runs after
// fingerprinting and stats accounting, so the checksum and the system ACE
// counts always reflect the full DACL.
func ApplyView(snap *acl.Snapshot, excludeInherited, simplifiedSystem bool) {
	if !excludeInherited && !simplifiedSystem {
		return
	}
	filtered := snap.ACEs[:0]
	for _, ace := range snap.ACEs {
		if excludeInherited && ace.Inherited {
			continue
		}
		if simplifiedSystem && ace.Trustee.IsSystem {
			continue
		}
		filtered = append(filtered, ace)
	}
	snap.ACEs = filtered
}

// Annotate fills access_paths for every ACE of the snapshot: the direct
// grant marker, plus one membership tree per ACL group a user trustee
// belongs to.
func (s *Scanner) Annotate(ctx context.Context, snap *acl.Snapshot) {
	// ACL groups by lowercase full name, for matching users' memberships.
	aclGroups := make(map[string]principal.Principal)
	for _, ace := range snap.ACEs {
		if ace.Trustee.IsGroupLike() {
			aclGroups[strings.ToLower(ace.Trustee.FullName)] = ace.Trustee
		}
	}

	for i := range snap.ACEs {
		ace := &snap.ACEs[i]
		paths := &acl.AccessPaths{Direct: true}

		switch {
		case ace.Trustee.IsGroupLike():
			mp, err := s.tracer.Trace(ctx, ace.Trustee)
			if err == nil {
				paths.GroupPaths = append(paths.GroupPaths, mp)
			}
		case ace.Trustee.Kind == principal.KindUser:
			memberships, err := s.tracer.UserGroups(ctx, ace.Trustee.FullName)
			if err == nil {
				for _, g := range memberships {
					gp, ok := aclGroups[strings.ToLower(g)]
					if !ok {
						continue
					}
					mp, err := s.tracer.Trace(ctx, gp)
					if err != nil {
						continue
					}
					paths.GroupPaths = append(paths.GroupPaths, mp)
				}
			}
		}

		for _, mp := range paths.GroupPaths {
			if mp.NestedLevel > paths.Depth {
				paths.Depth = mp.NestedLevel
			}
		}
		ace.AccessPaths = paths
	}
}

// ModTime exposes the source's modification time for store bookkeeping.
func (s *Scanner) ModTime(ctx context.Context, path string) (time.Time, error) {
	return s.src.ModTime(ctx, path)
}

func (s *Scanner) excludedBy(path string) (string, bool) {
	p := strings.ToLower(strings.TrimRight(path, `\`)) + `\`
	for _, prefix := range s.excluded {
		if strings.HasPrefix(p, strings.ToLower(prefix)) {
			return prefix, true
		}
	}
	return "", false
}

func sourceErrorKind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrSourceNotFound):
		return ErrKindNotFound
	case errors.Is(err, ErrSourceDenied):
		return ErrKindPermissionDenied
	default:
		return ErrKindMalformed
	}
}
