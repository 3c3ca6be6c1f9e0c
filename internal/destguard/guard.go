// Package destguard stages every destination write into a temporary file
// and commits it with an atomic rename (spec.md §4.9), so a transfer that
// dies mid-write never leaves a half-written file at its final name.
package destguard

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Options controls where a Guard's temp file is staged and how its
// lifecycle behaves.
type Options struct {
	// PartialDir, if set, is where temp files are staged: relative paths
	// resolve under the destination's parent directory, absolute paths are
	// used as-is. Takes priority over TempDir.
	PartialDir string
	// TempDir, if set and PartialDir is not, is an absolute staging
	// directory shared by every guard in the transfer.
	TempDir string
	// DelayUpdates defers the final rename until Flush is called on a
	// Queue, rather than committing as soon as the guard is told to.
	DelayUpdates bool
	// PreservePartial keeps the temp file on Abort instead of removing it,
	// so a later resumed transfer can pick up where this one left off.
	PreservePartial bool
	// Mode is the permission bits the temp (and eventually final) file is
	// created with.
	Mode os.FileMode
}

// Guard owns one staged write. Call Write (or use the *os.File obtained via
// File) to populate it, then Commit or Abort exactly once.
type Guard struct {
	final string
	opts  Options
	pf    *renameio.PendingFile
}

// New stages a new temp file for a future write to final.
func New(final string, opts Options) (*Guard, error) {
	dir, err := stagingDir(final, opts)
	if err != nil {
		return nil, err
	}
	pfOpts := []renameio.Option{renameio.WithTempDir(dir)}
	if opts.Mode != 0 {
		pfOpts = append(pfOpts, renameio.WithPermissions(opts.Mode))
	} else {
		pfOpts = append(pfOpts, renameio.WithExistingPermissions())
	}
	pf, err := renameio.NewPendingFile(final, pfOpts...)
	if err != nil {
		return nil, fmt.Errorf("stage temp file for %s: %w", final, err)
	}
	return &Guard{final: final, opts: opts, pf: pf}, nil
}

// stagingDir resolves the directory a guard's temp file is created in, per
// the partial-dir / temp-dir / next-to-destination priority in spec.md §4.9.
func stagingDir(final string, opts Options) (string, error) {
	destDir := filepath.Dir(final)
	switch {
	case opts.PartialDir != "":
		if filepath.IsAbs(opts.PartialDir) {
			return opts.PartialDir, nil
		}
		return filepath.Join(destDir, opts.PartialDir), nil
	case opts.TempDir != "":
		return opts.TempDir, nil
	default:
		return destDir, nil
	}
}

// File exposes the underlying *os.File for direct reads/writes (e.g. the
// delta engine's ReadAt of already-written bytes, or preallocation).
func (g *Guard) File() *os.File { return g.pf.File }

// Write appends to the staged temp file.
func (g *Guard) Write(p []byte) (int, error) { return g.pf.Write(p) }

// Commit finalizes the guard. With DelayUpdates unset, this renames the
// temp file onto final immediately. With DelayUpdates set, it only closes
// the temp file (without renaming); the caller must enqueue *Guard into a
// Queue and call Flush to perform the rename later.
func (g *Guard) Commit() error {
	if g.opts.DelayUpdates {
		if err := g.pf.File.Close(); err != nil {
			return fmt.Errorf("close staged temp file for %s: %w", g.final, err)
		}
		return nil
	}
	if err := g.pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit %s: %w", g.final, err)
	}
	return nil
}

// flush performs the deferred rename for a guard committed under
// DelayUpdates. Only called by Queue.Flush.
func (g *Guard) flush() error {
	tempName := g.pf.File.Name()
	if err := os.Rename(tempName, g.final); err != nil {
		return fmt.Errorf("flush %s: %w", g.final, err)
	}
	return nil
}

// Abort discards the staged temp file, unless PreservePartial is set, in
// which case the temp file is left on disk (see PartialPath).
func (g *Guard) Abort() error {
	if g.opts.PreservePartial {
		return nil
	}
	return g.pf.Cleanup()
}

// PartialPath returns the path of the still-staged temp file. Only
// meaningful after Abort with PreservePartial set, or before Commit.
func (g *Guard) PartialPath() string { return g.pf.File.Name() }
