// Package protover implements the protocol version feature table (spec.md
// §4.2, component C2): a closed set of supported protocol versions together
// with pure predicates selecting encoding behavior.
package protover

import "fmt"

// Supported is the closed set of protocol versions this implementation
// negotiates.
var Supported = []int{28, 29, 30, 31, 32}

func IsSupported(version int) bool {
	for _, v := range Supported {
		if v == version {
			return true
		}
	}
	return false
}

// Version wraps a negotiated protocol number with the feature predicates
// from spec.md §4.2. All predicates are pure functions of the version
// number.
type Version int

func New(version int) (Version, error) {
	if !IsSupported(version) {
		return 0, fmt.Errorf("protover: unsupported protocol version %d", version)
	}
	return Version(version), nil
}

func (v Version) Int() int { return int(v) }

// SupportsExtendedFlags reports whether the 16-bit "extended" xflags byte
// is meaningful (always true for the supported range, kept as a named
// predicate for parity with spec.md's table).
func (v Version) SupportsExtendedFlags() bool { return v >= 28 }

// UsesFixedEncoding reports whether UID/GID are transmitted as fixed
// 4-byte integers (true for protocol < 30).
func (v Version) UsesFixedEncoding() bool { return v < 30 }

// VarintSizeEncoding reports whether sizes/times use the varint/varlong
// encodings (true for protocol >= 30).
func (v Version) VarintSizeEncoding() bool { return v >= 30 }

// SupportsOwnerNames reports whether user/group name strings may be
// transmitted (protocol >= 30).
func (v Version) SupportsOwnerNames() bool { return v >= 30 }

// SupportsNanoseconds reports whether MOD_NSEC is honored (protocol >= 31).
func (v Version) SupportsNanoseconds() bool { return v >= 31 }

// SpecialFilesCarryRdev reports whether FIFOs/sockets transmit a dummy rdev
// pair when devices are preserved (protocol < 31).
func (v Version) SpecialFilesCarryRdev() bool { return v < 31 }

// SafeFileListAlwaysEnabled reports whether the safe-file-list end-marker
// shape is always used regardless of negotiation (protocol >= 31).
func (v Version) SafeFileListAlwaysEnabled() bool { return v >= 31 }

// SupportsHardlinks reports whether HLINKED/HLINK_FIRST flags are
// meaningful (protocol >= 30).
func (v Version) SupportsHardlinks() bool { return v >= 30 }

// SupportsVarintFlags reports whether this version CAN negotiate the
// varint xflags shape. Actual use also depends on session negotiation
// (carried by the caller, not derived from the version alone), so this is
// a capability predicate, not a decision.
func (v Version) SupportsVarintFlags() bool { return v >= 30 }

// SupportsCrtimes reports whether crtime may be transmitted (protocol >=
// 32, and only meaningful when preserve-crtimes is requested).
func (v Version) SupportsCrtimes() bool { return v >= 32 }
