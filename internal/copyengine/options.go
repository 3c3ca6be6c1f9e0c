// Package copyengine implements the local copy planner's execution half
// (component C11, spec.md §4.11): it walks each source, consults the
// filter evaluator, the metadata policy, the reference-directory
// resolver and the delta reconstructor, and commits every destination
// write through a destguard.Guard.
//
// Grounded on the teacher's internal/receiver package: GenerateFiles and
// RecvFiles run concurrently, joined by an errgroup.WithContext exactly
// as internal/receiver/do.go's Do does, generalized from "generate a
// remote file list, receive wire data" to "walk local sources, transfer
// local bytes".
package copyengine

import (
	"time"

	"github.com/oferchen/rsync-sub003/internal/bwlimit"
	"github.com/oferchen/rsync-sub003/internal/filter"
	"github.com/oferchen/rsync-sub003/internal/metaflags"
	"github.com/oferchen/rsync-sub003/internal/refdir"
)

// DeleteMode selects when destination-only entries are removed
// (spec.md §4.11 "Deletion").
type DeleteMode int

const (
	DeleteNone DeleteMode = iota
	DeleteBefore
	DeleteDuring
	DeleteAfter
	DeleteDelay
)

// Options is the CopyOptions record spec.md §6.1 names, trimmed to the
// fields the copy engine itself consumes (CLI parsing, help/version
// rendering and branding strings are out of scope per spec.md §1 and
// live in internal/rsyncopts instead).
type Options struct {
	DryRun bool

	Checksum       bool
	ChecksumChoice string // "md4" (default), "md5", "xxh64", "xxh3", "xxh3-128"
	ChecksumSeed   int32

	SizeOnly          bool
	IgnoreExisting    bool
	IgnoreMissingArgs bool
	Update            bool
	ModifyWindow      time.Duration

	WholeFile bool // force whole-file copy; false allows delta mode when the destination exists

	Sparse       bool
	Inplace      bool
	Append       bool
	AppendVerify bool
	Preallocate  bool

	Partial      bool
	PartialDir   string
	TempDir      string
	DelayUpdates bool

	DeleteMode     DeleteMode
	DeleteExcluded bool
	MaxDelete      int // negative means unlimited

	MinSize int64 // <= 0 means unbounded
	MaxSize int64 // <= 0 means unbounded

	Policy metaflags.Policy

	OneFileSystem  bool
	Relative       bool
	ImpliedDirs    bool
	Mkpath         bool
	PruneEmptyDirs bool

	CopyLinks       bool // dereference source symlinks and copy their target's content
	CopyDirLinks    bool // dereference source symlinks that point at directories
	KeepDirLinks    bool // a destination symlink-to-directory may stand in for a real directory

	Filter *filter.Evaluator

	RefDirs refdir.Lists

	RemoveSourceFiles bool

	Timeout        time.Duration
	ConnectTimeout time.Duration

	BWLimit *bwlimit.Limiter

	Backup    bool
	BackupDir string
	Suffix    string

	// BlockLength is the delta block size (spec.md §4.12); zero selects a
	// package default.
	BlockLength int

	// CollectEvents enables building the audit Event stream (spec.md
	// §3.4). Disabled by default since full transfers don't always need
	// it retained in memory.
	CollectEvents bool

	// DeviceOf resolves a path's filesystem device id for
	// --one-file-system; overridable in tests (spec.md §4.11: "a test
	// hook can override device-id lookup").
	DeviceOf func(path string) (uint64, error)
}

func (o *Options) blockLength() int {
	if o.BlockLength > 0 {
		return o.BlockLength
	}
	return 700
}

func (o *Options) modifyWindow() time.Duration {
	return o.ModifyWindow
}
