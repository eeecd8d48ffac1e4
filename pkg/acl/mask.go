package acl

// NT ACCESS_MASK bits, per MS-DTYP 2.4.3 and the file-specific rights in
// winnt.h.
const (
	// File/directory specific rights (low word).
	maskListDirectory   uint32 = 0x00000001
	maskAddFile         uint32 = 0x00000002
	maskAddSubdirectory uint32 = 0x00000004
	maskReadEA          uint32 = 0x00000008
	maskWriteEA         uint32 = 0x00000010
	maskTraverse        uint32 = 0x00000020
	maskDeleteChild     uint32 = 0x00000040
	maskReadAttributes  uint32 = 0x00000080
	maskWriteAttributes uint32 = 0x00000100

	// Standard rights.
	maskDelete      uint32 = 0x00010000
	maskReadControl uint32 = 0x00020000
	maskWriteDAC    uint32 = 0x00040000
	maskWriteOwner  uint32 = 0x00080000
	maskSynchronize uint32 = 0x00100000

	// Generic rights (mapped before categorization).
	maskGenericAll     uint32 = 0x10000000
	maskGenericExecute uint32 = 0x20000000
	maskGenericWrite   uint32 = 0x40000000
	maskGenericRead    uint32 = 0x80000000

	// Composite masks.
	maskFullControl        uint32 = 0x001F01FF
	maskFileGenericRead    uint32 = 0x00120089 // READ_CONTROL | SYNCHRONIZE | read bits
	maskFileGenericWrite   uint32 = 0x00120116 // READ_CONTROL | SYNCHRONIZE | write bits
	maskFileGenericExecute uint32 = 0x001200A0 // READ_CONTROL | SYNCHRONIZE | execute bits
)

// DecodeAccessMask categorizes a raw ACCESS_MASK into a PermissionSet.
//
// Generic bits are mapped to their file-specific equivalents first, then
// the composite basic rights are recognized, then the remaining individual
// bits fill the advanced and directory buckets. A mask covering the full
// control composite reduces to FullControl alone.
func DecodeAccessMask(mask uint32) PermissionSet {
	if mask&maskGenericAll != 0 {
		mask |= maskFullControl
	}
	if mask&maskGenericRead != 0 {
		mask |= maskFileGenericRead
	}
	if mask&maskGenericWrite != 0 {
		mask |= maskFileGenericWrite
	}
	if mask&maskGenericExecute != 0 {
		mask |= maskFileGenericExecute
	}

	if mask&maskFullControl == maskFullControl {
		return NewPermissionSet([]Right{RightFullControl}, nil, nil)
	}

	var basic, advanced, directory []Right

	if mask&maskFileGenericRead == maskFileGenericRead {
		basic = append(basic, RightRead)
	}
	if mask&maskFileGenericWrite == maskFileGenericWrite {
		basic = append(basic, RightWrite)
	}
	if mask&maskFileGenericExecute == maskFileGenericExecute {
		basic = append(basic, RightExecute)
	}

	if mask&maskDelete != 0 {
		advanced = append(advanced, RightDelete)
	}
	if mask&maskReadControl != 0 {
		advanced = append(advanced, RightReadPermissions)
	}
	if mask&maskWriteDAC != 0 {
		advanced = append(advanced, RightChangePermissions)
	}
	if mask&maskWriteOwner != 0 {
		advanced = append(advanced, RightTakeOwnership)
	}

	if mask&maskListDirectory != 0 {
		directory = append(directory, RightListFolder)
	}
	if mask&maskAddFile != 0 {
		directory = append(directory, RightCreateFiles)
	}
	if mask&maskAddSubdirectory != 0 {
		directory = append(directory, RightCreateFolders)
	}
	if mask&maskReadEA != 0 {
		directory = append(directory, RightReadEA)
	}
	if mask&maskWriteEA != 0 {
		directory = append(directory, RightWriteEA)
	}
	if mask&maskTraverse != 0 {
		directory = append(directory, RightTraverse)
	}
	if mask&maskDeleteChild != 0 {
		directory = append(directory, RightDeleteChild)
	}
	if mask&maskReadAttributes != 0 {
		directory = append(directory, RightReadAttributes)
	}
	if mask&maskWriteAttributes != 0 {
		directory = append(directory, RightWriteAttributes)
	}

	return NewPermissionSet(basic, advanced, directory)
}

// EncodeAccessMask builds the raw ACCESS_MASK that decodes back to ps.
// Used when synthesizing security descriptors for fixtures and demos.
func EncodeAccessMask(ps PermissionSet) uint32 {
	var mask uint32
	for _, r := range ps.Basic {
		switch r {
		case RightFullControl:
			return maskFullControl
		case RightRead:
			mask |= maskFileGenericRead
		case RightWrite:
			mask |= maskFileGenericWrite
		case RightExecute:
			mask |= maskFileGenericExecute
		}
	}
	for _, r := range ps.Advanced {
		switch r {
		case RightDelete:
			mask |= maskDelete
		case RightReadPermissions:
			mask |= maskReadControl
		case RightChangePermissions:
			mask |= maskWriteDAC
		case RightTakeOwnership:
			mask |= maskWriteOwner
		}
	}
	for _, r := range ps.Directory {
		switch r {
		case RightListFolder:
			mask |= maskListDirectory
		case RightCreateFiles:
			mask |= maskAddFile
		case RightCreateFolders:
			mask |= maskAddSubdirectory
		case RightReadEA:
			mask |= maskReadEA
		case RightWriteEA:
			mask |= maskWriteEA
		case RightTraverse:
			mask |= maskTraverse
		case RightDeleteChild:
			mask |= maskDeleteChild
		case RightReadAttributes:
			mask |= maskReadAttributes
		case RightWriteAttributes:
			mask |= maskWriteAttributes
		}
	}
	return mask
}
