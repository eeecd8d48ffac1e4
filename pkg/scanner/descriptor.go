package scanner

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/shareguard/shareguard/pkg/sid"
)

// Security descriptor control flags (MS-DTYP 2.4.6).
const (
	seDACLPresent       = 0x0004
	seDACLAutoInherited = 0x0400
	seDACLProtected     = 0x1000
	seSelfRelative      = 0x8000
)

// ACE types and flags (MS-DTYP 2.4.4.1).
const (
	aceTypeAccessAllowed = 0x00
	aceTypeAccessDenied  = 0x01

	aceFlagInherited = 0x10
)

// Fixed header sizes for the self-relative layout.
const (
	sdHeaderSize  = 20
	aclHeaderSize = 8
	aceHeaderSize = 8 // type + flags + size + access mask
)

// RawACE is one DACL entry before principal resolution.
type RawACE struct {
	SID       string
	Deny      bool
	Inherited bool
	Mask      uint32
}

// Descriptor is the decoded form of a self-relative security descriptor,
// reduced to the fields the scanner consumes.
type Descriptor struct {
	OwnerSID string
	GroupSID string

	// DACLPresent is false for the rare "no DACL" descriptor, which grants
	// everyone full access.
	DACLPresent bool

	// Protected mirrors SE_DACL_PROTECTED: inheritance from the parent is
	// blocked.
	Protected bool

	ACEs []RawACE
}

// ParseSecurityDescriptor decodes a self-relative security descriptor.
func ParseSecurityDescriptor(data []byte) (*Descriptor, error) {
	if len(data) < sdHeaderSize {
		return nil, fmt.Errorf("security descriptor too short: %d bytes", len(data))
	}

	control := binary.LittleEndian.Uint16(data[2:4])
	offsetOwner := binary.LittleEndian.Uint32(data[4:8])
	offsetGroup := binary.LittleEndian.Uint32(data[8:12])
	offsetDACL := binary.LittleEndian.Uint32(data[16:20])

	d := &Descriptor{
		DACLPresent: control&seDACLPresent != 0,
		Protected:   control&seDACLProtected != 0,
	}

	if offsetOwner > 0 {
		if int(offsetOwner) >= len(data) {
			return nil, fmt.Errorf("owner offset %d out of range", offsetOwner)
		}
		s, _, err := sid.Decode(data[offsetOwner:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode owner SID: %w", err)
		}
		d.OwnerSID = s.String()
	}

	if offsetGroup > 0 {
		if int(offsetGroup) >= len(data) {
			return nil, fmt.Errorf("group offset %d out of range", offsetGroup)
		}
		s, _, err := sid.Decode(data[offsetGroup:])
		if err != nil {
			return nil, fmt.Errorf("failed to decode group SID: %w", err)
		}
		d.GroupSID = s.String()
	}

	if d.DACLPresent && offsetDACL > 0 {
		if int(offsetDACL)+aclHeaderSize > len(data) {
			return nil, fmt.Errorf("DACL offset %d out of range", offsetDACL)
		}
		if err := d.parseDACL(data[offsetDACL:]); err != nil {
			return nil, fmt.Errorf("failed to parse DACL: %w", err)
		}
	}

	return d, nil
}

func (d *Descriptor) parseDACL(data []byte) error {
	if len(data) < aclHeaderSize {
		return fmt.Errorf("ACL too short: %d bytes", len(data))
	}

	aceCount := binary.LittleEndian.Uint16(data[4:6])

	offset := aclHeaderSize
	for i := 0; i < int(aceCount); i++ {
		if offset+aceHeaderSize > len(data) {
			return fmt.Errorf("ACE %d header out of range", i)
		}

		aceType := data[offset]
		aceFlags := data[offset+1]
		aceSize := int(binary.LittleEndian.Uint16(data[offset+2 : offset+4]))
		accessMask := binary.LittleEndian.Uint32(data[offset+4 : offset+8])

		if aceSize < aceHeaderSize || offset+aceSize > len(data) {
			return fmt.Errorf("ACE %d size %d out of range", i, aceSize)
		}

		switch aceType {
		case aceTypeAccessAllowed, aceTypeAccessDenied:
			s, _, err := sid.Decode(data[offset+aceHeaderSize : offset+aceSize])
			if err != nil {
				return fmt.Errorf("ACE %d has malformed SID: %w", i, err)
			}
			d.ACEs = append(d.ACEs, RawACE{
				SID:       s.String(),
				Deny:      aceType == aceTypeAccessDenied,
				Inherited: aceFlags&aceFlagInherited != 0,
				Mask:      accessMask,
			})
		default:
			// Object ACEs, audit ACEs and the like carry no DACL
			// semantics we report on.
		}

		offset += aceSize
	}
	return nil
}

// Encode serializes the descriptor back to the self-relative layout.
// Fixtures and the static source use this; production descriptors come
// from the platform already encoded.
func (d *Descriptor) Encode() ([]byte, error) {
	owner, err := parseOptionalSID(d.OwnerSID)
	if err != nil {
		return nil, fmt.Errorf("invalid owner SID: %w", err)
	}
	group, err := parseOptionalSID(d.GroupSID)
	if err != nil {
		return nil, fmt.Errorf("invalid group SID: %w", err)
	}

	aceSIDs := make([]*sid.SID, len(d.ACEs))
	for i, ace := range d.ACEs {
		s, err := sid.Parse(ace.SID)
		if err != nil {
			return nil, fmt.Errorf("ACE %d has invalid SID: %w", i, err)
		}
		aceSIDs[i] = s
	}

	control := uint16(seSelfRelative)
	if d.DACLPresent {
		control |= seDACLPresent
		if d.Protected {
			control |= seDACLProtected
		} else {
			control |= seDACLAutoInherited
		}
	}

	currentOffset := uint32(sdHeaderSize)
	var ownerOffset, groupOffset, daclOffset uint32

	if owner != nil {
		ownerOffset = currentOffset
		currentOffset += uint32(owner.Size())
	}
	if group != nil {
		groupOffset = currentOffset
		currentOffset += uint32(group.Size())
	}

	var daclBuf bytes.Buffer
	if d.DACLPresent {
		daclOffset = currentOffset
		totalACLSize := aclHeaderSize
		for _, s := range aceSIDs {
			totalACLSize += aceHeaderSize + s.Size()
		}

		daclBuf.WriteByte(2) // AclRevision = ACL_REVISION
		daclBuf.WriteByte(0) // Sbz1
		_ = binary.Write(&daclBuf, binary.LittleEndian, uint16(totalACLSize))
		_ = binary.Write(&daclBuf, binary.LittleEndian, uint16(len(d.ACEs)))
		_ = binary.Write(&daclBuf, binary.LittleEndian, uint16(0)) // Sbz2

		for i, ace := range d.ACEs {
			aceType := byte(aceTypeAccessAllowed)
			if ace.Deny {
				aceType = aceTypeAccessDenied
			}
			var flags byte
			if ace.Inherited {
				flags = aceFlagInherited
			}
			aceSize := uint16(aceHeaderSize + aceSIDs[i].Size())

			daclBuf.WriteByte(aceType)
			daclBuf.WriteByte(flags)
			_ = binary.Write(&daclBuf, binary.LittleEndian, aceSize)
			_ = binary.Write(&daclBuf, binary.LittleEndian, ace.Mask)
			sid.Encode(&daclBuf, aceSIDs[i])
		}
	}

	var buf bytes.Buffer
	buf.WriteByte(1) // Revision
	buf.WriteByte(0) // Sbz1
	_ = binary.Write(&buf, binary.LittleEndian, control)
	_ = binary.Write(&buf, binary.LittleEndian, ownerOffset)
	_ = binary.Write(&buf, binary.LittleEndian, groupOffset)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0)) // SACL offset
	_ = binary.Write(&buf, binary.LittleEndian, daclOffset)

	if owner != nil {
		sid.Encode(&buf, owner)
	}
	if group != nil {
		sid.Encode(&buf, group)
	}
	buf.Write(daclBuf.Bytes())

	return buf.Bytes(), nil
}

func parseOptionalSID(s string) (*sid.SID, error) {
	if s == "" {
		return nil, nil
	}
	return sid.Parse(s)
}
