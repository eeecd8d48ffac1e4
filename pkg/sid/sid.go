// Package sid provides Windows Security Identifier (SID) types, encoding,
// and decoding.
//
// SIDs are the stable identifiers Windows attaches to security principals
// (users, groups, computers). ShareGuard keys every cached resolution and
// every ACE comparison on the SID string form, so both the binary and the
// string representations live here.
//
// The binary format follows MS-DTYP Section 2.4.2:
//
//	Revision(1) + SubAuthorityCount(1) + IdentifierAuthority(6, big-endian)
//	+ SubAuthorities(4*N, little-endian)
//
// The string format is "S-{Revision}-{Authority}-{SubAuth1}-...-{SubAuthN}".
package sid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// SID represents a Windows Security Identifier per MS-DTYP Section 2.4.2.
type SID struct {
	// Revision is always 1.
	Revision uint8

	// SubAuthorityCount is the number of sub-authority values.
	SubAuthorityCount uint8

	// IdentifierAuthority is the top-level authority (6 bytes, big-endian).
	IdentifierAuthority [6]byte

	// SubAuthorities contains the sub-authority values.
	SubAuthorities []uint32
}

// Size returns the binary size of the SID in bytes.
func (s *SID) Size() int {
	return 8 + 4*int(s.SubAuthorityCount)
}

// Encode writes the binary SID to buf per MS-DTYP Section 2.4.2.
func Encode(buf *bytes.Buffer, s *SID) {
	buf.WriteByte(s.Revision)
	buf.WriteByte(s.SubAuthorityCount)
	buf.Write(s.IdentifierAuthority[:])
	for _, sa := range s.SubAuthorities {
		_ = binary.Write(buf, binary.LittleEndian, sa)
	}
}

// Decode parses a binary SID from data per MS-DTYP Section 2.4.2.
// Returns the parsed SID and number of bytes consumed, or an error.
func Decode(data []byte) (*SID, int, error) {
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("SID too short: %d bytes", len(data))
	}

	s := &SID{
		Revision:          data[0],
		SubAuthorityCount: data[1],
	}
	copy(s.IdentifierAuthority[:], data[2:8])

	size := 8 + 4*int(s.SubAuthorityCount)
	if len(data) < size {
		return nil, 0, fmt.Errorf("SID data too short for %d sub-authorities: have %d, need %d", s.SubAuthorityCount, len(data), size)
	}

	s.SubAuthorities = make([]uint32, s.SubAuthorityCount)
	for i := 0; i < int(s.SubAuthorityCount); i++ {
		offset := 8 + 4*i
		s.SubAuthorities[i] = binary.LittleEndian.Uint32(data[offset : offset+4])
	}

	return s, size, nil
}

// String formats the SID as "S-1-5-21-...".
func (s *SID) String() string {
	// Compute the 48-bit authority value from big-endian 6 bytes
	var authority uint64
	for i := range 6 {
		authority = (authority << 8) | uint64(s.IdentifierAuthority[i])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "S-%d-%d", s.Revision, authority)
	for _, sa := range s.SubAuthorities {
		fmt.Fprintf(&b, "-%d", sa)
	}
	return b.String()
}

// Parse parses a SID string in "S-1-5-21-..." format.
func Parse(str string) (*SID, error) {
	if !strings.HasPrefix(str, "S-") {
		return nil, fmt.Errorf("invalid SID format: must start with S-")
	}

	parts := strings.Split(str[2:], "-")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid SID format: need at least revision and authority")
	}

	revision, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid SID revision: %w", err)
	}

	authority, err := strconv.ParseUint(parts[1], 10, 48)
	if err != nil {
		return nil, fmt.Errorf("invalid SID authority: %w", err)
	}

	s := &SID{
		Revision:          uint8(revision),
		SubAuthorityCount: uint8(len(parts) - 2),
	}

	// Encode authority as big-endian 6 bytes
	for i := 5; i >= 0; i-- {
		s.IdentifierAuthority[i] = byte(authority & 0xFF)
		authority >>= 8
	}

	s.SubAuthorities = make([]uint32, s.SubAuthorityCount)
	for i := 0; i < int(s.SubAuthorityCount); i++ {
		val, err := strconv.ParseUint(parts[i+2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid SID sub-authority %d: %w", i, err)
		}
		s.SubAuthorities[i] = uint32(val)
	}

	return s, nil
}

// MustParse parses a SID string and panics on error. Used for well-known SIDs.
func MustParse(str string) *SID {
	s, err := Parse(str)
	if err != nil {
		panic(fmt.Sprintf("invalid well-known SID %q: %v", str, err))
	}
	return s
}

// IsValidString reports whether str parses as a SID string. ShareGuard uses
// this to recognize orphaned trustees whose name is a raw SID.
func IsValidString(str string) bool {
	_, err := Parse(str)
	return err == nil
}

// RID returns the final sub-authority (the relative identifier) and true,
// or (0, false) for SIDs without sub-authorities.
func (s *SID) RID() (uint32, bool) {
	if len(s.SubAuthorities) == 0 {
		return 0, false
	}
	return s.SubAuthorities[len(s.SubAuthorities)-1], true
}

// Equal reports whether two SIDs are identical.
func (s *SID) Equal(other *SID) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil {
		return false
	}
	if s.Revision != other.Revision {
		return false
	}
	if s.SubAuthorityCount != other.SubAuthorityCount {
		return false
	}
	if s.IdentifierAuthority != other.IdentifierAuthority {
		return false
	}
	if len(s.SubAuthorities) != len(other.SubAuthorities) {
		return false
	}
	for i := range s.SubAuthorities {
		if s.SubAuthorities[i] != other.SubAuthorities[i] {
			return false
		}
	}
	return true
}
