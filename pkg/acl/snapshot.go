package acl

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/shareguard/shareguard/pkg/principal"
)

// Snapshot is the immutable result of one scan of one path.
type Snapshot struct {
	Path      string    `json:"path"`
	ScannedAt time.Time `json:"scanned_at"`

	Owner        principal.Principal  `json:"owner"`
	PrimaryGroup *principal.Principal `json:"primary_group,omitempty"`

	// InheritanceEnabled is false when the DACL is protected from parent
	// inheritance.
	InheritanceEnabled bool `json:"inheritance_enabled"`

	// ACEs in platform order. Order matters for Deny-before-Allow
	// evaluation and for the conflicting-deny detector.
	ACEs []ACE `json:"aces"`

	// Checksum is the content fingerprint, set by Fingerprint.
	Checksum string `json:"checksum"`
}

// checksumTuple is the canonical content that contributes to the checksum.
// Timestamps, access paths, and scan statistics are deliberately excluded
// so re-scanning unchanged ACLs produces identical fingerprints.
type checksumTuple struct {
	OwnerSID           string     `json:"owner_sid"`
	InheritanceEnabled bool       `json:"inheritance_enabled"`
	ACEs               []aceTuple `json:"aces"`
}

type aceTuple struct {
	SID       string  `json:"sid"`
	Type      ACEType `json:"type"`
	Inherited bool    `json:"inherited"`
	Rights    []Right `json:"rights"`
}

// ComputeChecksum returns the SHA-256 hex fingerprint of the snapshot's
// canonical content tuple.
func ComputeChecksum(s *Snapshot) string {
	tuple := checksumTuple{
		OwnerSID:           s.Owner.SID,
		InheritanceEnabled: s.InheritanceEnabled,
		ACEs:               make([]aceTuple, 0, len(s.ACEs)),
	}
	for _, ace := range s.ACEs {
		tuple.ACEs = append(tuple.ACEs, aceTuple{
			SID:       ace.Trustee.SID,
			Type:      ace.Type,
			Inherited: ace.Inherited,
			Rights:    ace.Permissions.All(),
		})
	}

	// Struct field order is fixed, so this marshal is canonical.
	data, _ := json.Marshal(tuple)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint computes and stores the snapshot's checksum.
func (s *Snapshot) Fingerprint() {
	s.Checksum = ComputeChecksum(s)
}

// SystemACECount returns how many ACEs name system trustees.
func (s *Snapshot) SystemACECount() int {
	n := 0
	for _, ace := range s.ACEs {
		if ace.Trustee.IsSystem {
			n++
		}
	}
	return n
}
