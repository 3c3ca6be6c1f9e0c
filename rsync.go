// Package rsync holds protocol-wide constants shared by every subpackage:
// the negotiated protocol version and the file-list transmission flag bits.
// Keeping them at the module root (rather than burying them in
// internal/flist) mirrors the teacher layout, where protocol-wide constants
// referenced by both the daemon and the file-list codec live at
// github.com/gokrazy/rsync's root.
package rsync

// ProtocolVersion is the highest protocol version this implementation
// negotiates as a client or advertises as a server.
const ProtocolVersion = 32

// MinProtocolVersion is the oldest protocol version the file-list codec
// understands.
const MinProtocolVersion = 28

// File-list transmission flags (xflags), byte 0. See spec.md §4.5.1.
const (
	FlagTopDir       = 0x01
	FlagSameMode     = 0x02
	FlagSameRdevPre28 = 0x04
	FlagSameUID      = 0x08
	FlagSameGID      = 0x10
	FlagSameName     = 0x20
	FlagLongName     = 0x40
	FlagSameTime     = 0x80
)

// Byte 1, the "extended" byte. Several bits are overloaded depending on
// entry kind; see spec.md §4.5.1.
const (
	FlagExtended = 0x0400 // EXTENDED_FLAGS marker, occupies byte0's would-be continuation

	FlagSameRdevMajor  = 0x0001 << 8
	FlagNoContentDir   = 0x0001 << 8
	FlagHlinked        = 0x0002 << 8
	FlagSameDevPre30   = 0x0004 << 8
	FlagRdevMinor8Pre30 = 0x0004 << 8
	FlagUserNameFollows = 0x0008 << 8
	FlagHlinkFirst      = 0x0010 << 8
	FlagIOErrorEndlist  = 0x0010 << 8
	FlagGroupNameFollows = 0x0020 << 8
	FlagModNsec          = 0x0040 << 8
	FlagSameAtime        = 0x0080 << 8
)

// Byte 2 (varint-flag encoding only).
const (
	FlagCrtimeEqMtime = 0x01 << 16
)

// EXTENDED_FLAGS as it appears standalone on the wire in the two-byte and
// one-byte shapes (spec.md §4.5.3): it is the single-byte marker 0x04 in the
// legacy (protocol < 30) byte-0 namespace, distinct from the bit constant
// above which is scoped to the 24-bit xflags word.
const ExtendedFlagsByte = 0x04

// Legacy flist status bits (protocol 27 era). Nothing in this module
// references them; the protocol-28-32 codec in internal/flist uses the
// Flag* constants above.
const (
	FlistNameLong = 0x40
	FlistTopLevel = 0x01
)
