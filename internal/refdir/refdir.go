// Package refdir resolves compare-dest/copy-dest/link-dest reference
// directories ahead of a copy (spec.md §4.13).
package refdir

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Kind identifies which reference-directory behavior a hit should trigger.
type Kind int

const (
	KindCompare Kind = iota
	KindCopy
	KindLink
)

// Lists holds the three ordered root lists a resolver is configured with.
// crates/engine/src/local_copy/tests.rs exercises all three configured at
// once (MultiKindReferenceChain): resolution tries compare_dests, then
// copy_dests, then link_dests, first root with any hit wins, in the order
// given within each list.
type Lists struct {
	CompareDests []string
	CopyDests    []string
	LinkDests    []string
}

// Candidate describes a source file being considered for reference-
// directory reuse.
type Candidate struct {
	RelPath      string
	Size         int64
	ModTime      time.Time
	ModifyWindow time.Duration
	Checksum     func() ([]byte, error) // nil unless --checksum is active
}

// Hit is the resolution result: the reference root and absolute path that
// matched, and which reuse strategy applies.
type Hit struct {
	Kind Kind
	Root string
	Path string
}

// Resolver is a pure config value; Resolve performs no caching so it is
// safe to share across goroutines.
type Resolver struct {
	Lists
	stat func(string) (fs.FileInfo, error)
}

// New returns a Resolver backed by os.Stat.
func New(lists Lists) *Resolver {
	return &Resolver{Lists: lists, stat: os.Stat}
}

// Resolve tries compare_dests, then copy_dests, then link_dests (in that
// order across kinds, and in list order within a kind), returning the
// first root containing a matching file for cand.
func (r *Resolver) Resolve(cand Candidate) (Hit, bool, error) {
	for _, group := range []struct {
		kind  Kind
		roots []string
	}{
		{KindCompare, r.CompareDests},
		{KindCopy, r.CopyDests},
		{KindLink, r.LinkDests},
	} {
		for _, root := range group.roots {
			path := filepath.Join(root, cand.RelPath)
			info, err := r.stat(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return Hit{}, false, err
			}
			if !matches(cand, info) {
				continue
			}
			if cand.Checksum != nil {
				ok, err := checksumMatches(path, cand)
				if err != nil {
					return Hit{}, false, err
				}
				if !ok {
					continue
				}
			}
			return Hit{Kind: group.kind, Root: root, Path: path}, true, nil
		}
	}
	return Hit{}, false, nil
}

func matches(cand Candidate, info fs.FileInfo) bool {
	if info.Size() != cand.Size {
		return false
	}
	delta := info.ModTime().Sub(cand.ModTime)
	if delta < 0 {
		delta = -delta
	}
	return delta <= cand.ModifyWindow
}

// checksumMatches compares cand.Checksum() against a fresh digest of the
// reference file contents.
var checksumMatches = func(path string, cand Candidate) (bool, error) {
	want, err := cand.Checksum()
	if err != nil {
		return false, err
	}
	got, err := fileChecksum(path)
	if err != nil {
		return false, err
	}
	return string(got) == string(want), nil
}
