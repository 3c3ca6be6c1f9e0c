// Package metaflags decides which file attributes a transfer preserves and
// how chmod modifiers and the safe-symlink policy are applied to them.
package metaflags

import (
	"os"
	"strings"
)

// Policy holds the preservation switches spec.md §4.8 names, mirroring the
// teacher's rsyncopts.Options fields one for one.
type Policy struct {
	Perms        bool
	Times        bool
	Owner        bool
	Group        bool
	Devices      bool
	Specials     bool
	Hardlinks    bool
	ACLs         bool
	Xattrs       bool
	Atimes       bool
	Crtimes      bool
	OmitDirTimes  bool
	OmitLinkTimes bool
	NumericIDs   bool

	Chmod []ChmodRule

	SafeLinks      bool
	CopyUnsafeLinks bool
}

// Preserves reports whether a plain (non-regular) file kind should be
// carried across at all, per the corresponding switch.
func (p Policy) Preserves(mode os.FileMode) bool {
	switch {
	case mode&os.ModeSymlink != 0:
		return true // symlinks are always candidates; safety is decided separately
	case mode&(os.ModeDevice) != 0 && mode&os.ModeCharDevice == 0:
		return p.Devices
	case mode&os.ModeCharDevice != 0:
		return p.Devices
	case mode&(os.ModeNamedPipe|os.ModeSocket) != 0:
		return p.Specials
	default:
		return true
	}
}

// ApplyTimes reports whether timestamps should be applied to an entry of
// the given kind, honoring omit-dir-times / omit-link-times.
func (p Policy) ApplyTimes(isDir, isSymlink bool) bool {
	if !p.Times {
		return false
	}
	if isDir && p.OmitDirTimes {
		return false
	}
	if isSymlink && p.OmitLinkTimes {
		return false
	}
	return true
}

// ChmodKind restricts a chmod rule to files, directories, or both.
type ChmodKind int

const (
	ChmodAny ChmodKind = iota
	ChmodFile
	ChmodDir
)

// ChmodOp is one "class op perm..." modifier, e.g. "u+rwx" or "go-w".
type ChmodOp struct {
	Classes string // subset of "ugoa"
	Op      byte   // '+', '-', or '='
	Perm    string // subset of "rwxXst"
}

// ChmodRule is one comma-separated `--chmod=SPEC` entry (spec.md §4.8): an
// optional D/F kind prefix followed by one or more ';'-separated ops.
type ChmodRule struct {
	Kind ChmodKind
	Ops  []ChmodOp
}

// Apply computes the destination mode for a source mode of the given kind
// by running every matching chmod rule over it in order.
func (p Policy) Apply(mode os.FileMode, isDir bool) os.FileMode {
	perm := mode.Perm()
	for _, rule := range p.Chmod {
		if rule.Kind == ChmodFile && isDir {
			continue
		}
		if rule.Kind == ChmodDir && !isDir {
			continue
		}
		for _, op := range rule.Ops {
			perm = applyOp(perm, op, isDir)
		}
	}
	return mode&^os.ModePerm | perm
}

func applyOp(perm os.FileMode, op ChmodOp, isDir bool) os.FileMode {
	classes := op.Classes
	if classes == "" {
		classes = "ugo" // bare op with no class applies to all, like chmod(1)'s "a"
	}
	var mask os.FileMode
	for _, c := range classes {
		switch c {
		case 'u':
			mask |= 0700
		case 'g':
			mask |= 0070
		case 'o':
			mask |= 0007
		case 'a':
			mask |= 0777
		}
	}

	var bits os.FileMode
	for _, r := range op.Perm {
		switch r {
		case 'r':
			bits |= 0444 & mask
		case 'w':
			bits |= 0222 & mask
		case 'x':
			bits |= 0111 & mask
		case 'X':
			// capital X only grants execute to directories, or to files
			// that already have some execute bit set.
			if isDir || perm&0111 != 0 {
				bits |= 0111 & mask
			}
		case 's':
			if strings.ContainsRune(classes, 'u') {
				bits |= os.ModeSetuid
			}
			if strings.ContainsRune(classes, 'g') {
				bits |= os.ModeSetgid
			}
		case 't':
			bits |= os.ModeSticky
		}
	}

	switch op.Op {
	case '+':
		return perm | bits
	case '-':
		return perm &^ bits
	case '=':
		return (perm &^ mask) | bits
	default:
		return perm
	}
}
