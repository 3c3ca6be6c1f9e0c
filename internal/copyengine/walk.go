package copyengine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oferchen/rsync-sub003/internal/filter"
	"github.com/oferchen/rsync-sub003/internal/refdir"
)

// walkSource performs the depth-first pre-order traversal of one source
// root (spec.md §4.11 "Traversal") and streams jobs to jobs in strict
// visitation order.
func (e *Engine) walkSource(srcRoot, destBase string, jobs chan<- *job) error {
	srcRoot = strings.TrimSuffix(srcRoot, string(os.PathSeparator))

	info, err := os.Lstat(srcRoot)
	if err != nil {
		if os.IsNotExist(err) && e.opts.IgnoreMissingArgs {
			return nil
		}
		return fmt.Errorf("stat source %q: %w", srcRoot, err)
	}

	var rootDevice uint64
	if e.opts.OneFileSystem {
		rootDevice, _ = e.deviceOf(srcRoot)
	}

	return e.walkEntry(srcRoot, destBase, "", info, e.opts.Filter, rootDevice, jobs)
}

// walkEntry decides and enqueues the job for one source entry, then (for
// directories) recurses into its children.
func (e *Engine) walkEntry(srcPath, destBase, relPath string, info os.FileInfo, flt *filter.Evaluator, rootDevice uint64, jobs chan<- *job) error {
	dst := destPath(destBase, relPath)
	isDir := info.Mode().IsDir()

	if flt != nil {
		decision := flt.Evaluate(relPath, isDir, filter.SideSender)
		if decision == filter.DecisionExclude {
			return nil
		}
	}

	if isDir {
		return e.walkDir(srcPath, destBase, relPath, info, flt, rootDevice, jobs)
	}

	j, err := e.decideEntry(srcPath, dst, relPath, info)
	if err != nil {
		return err
	}
	if j != nil {
		jobs <- j
	}
	return nil
}

// walkDir enqueues a job for the directory itself (unless prune-empty-dirs
// elides it) and recurses into its children, sorted by byte order of the
// raw name (spec.md §4.11).
func (e *Engine) walkDir(srcPath, destBase, relPath string, info os.FileInfo, flt *filter.Evaluator, rootDevice uint64, jobs chan<- *job) error {
	childFlt := flt
	if flt != nil {
		var err error
		childFlt, err = flt.Descend(srcPath)
		if err != nil {
			return err
		}
		if present, err := childFlt.HasPresenceMarker(srcPath); err != nil {
			return err
		} else if present {
			return nil
		}
	}

	entries, err := os.ReadDir(srcPath)
	if err != nil {
		return fmt.Errorf("read directory %q: %w", srcPath, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	if e.opts.DeleteMode == DeleteDuring {
		if err := e.reconcileDir(srcPath, destPath(destBase, relPath), relPath, entries, childFlt, jobs); err != nil {
			return err
		}
	}

	if !(e.opts.PruneEmptyDirs && len(entries) == 0) {
		jobs <- &job{kind: jobDir, relPath: relPath, srcPath: srcPath, dstPath: destPath(destBase, relPath), info: info}
	}

	for _, ent := range entries {
		childSrc := filepath.Join(srcPath, ent.Name())
		childRel := ent.Name()
		if relPath != "" {
			childRel = relPath + "/" + ent.Name()
		}

		childInfo, err := ent.Info()
		if err != nil {
			return fmt.Errorf("stat %q: %w", childSrc, err)
		}

		if e.opts.OneFileSystem && childInfo.Mode().IsDir() {
			dev, ok := e.deviceOf(childSrc)
			if ok && dev != rootDevice {
				continue
			}
		}

		if err := e.walkEntry(childSrc, destBase, childRel, childInfo, childFlt, rootDevice, jobs); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) deviceOf(path string) (uint64, bool) {
	if e.opts.DeviceOf != nil {
		dev, err := e.opts.DeviceOf(path)
		return dev, err == nil
	}
	info, err := os.Lstat(path)
	if err != nil {
		return 0, false
	}
	return deviceIDOf(info)
}

// decideEntry runs the per-entry decision procedure (spec.md §4.11 steps
// 3-7) for a non-directory source entry and returns the job the transfer
// goroutine should execute, or nil if nothing needs to happen.
func (e *Engine) decideEntry(srcPath, dst, relPath string, info os.FileInfo) (*job, error) {
	isSymlink := info.Mode()&os.ModeSymlink != 0

	if isSymlink && e.opts.CopyLinks {
		// Dereference: treat the symlink's target as the entry to copy.
		deref, err := os.Stat(srcPath)
		if err != nil {
			return nil, fmt.Errorf("resolve symlink %q: %w", srcPath, err)
		}
		info = deref
		isSymlink = false
	}

	isRegular := info.Mode().IsRegular()
	isSpecial := !isRegular && !isSymlink

	if isSymlink {
		target, err := os.Readlink(srcPath)
		if err != nil {
			return nil, fmt.Errorf("read symlink %q: %w", srcPath, err)
		}
		if e.opts.Policy.SafeLinks && !safeSymlink(target, relPath) {
			return &job{kind: jobSkip, relPath: relPath, event: &Event{RelPath: relPath, Action: ActionSkippedUnsafeSymlink}}, nil
		}
		return &job{kind: jobSymlink, relPath: relPath, srcPath: srcPath, dstPath: dst, info: info}, nil
	}

	if isSpecial && !e.opts.Policy.Preserves(info.Mode()) {
		return &job{kind: jobSkip, relPath: relPath, event: &Event{RelPath: relPath, Action: ActionSkippedNonRegular}}, nil
	}

	dstInfo, statErr := os.Lstat(dst)
	dstExists := statErr == nil
	if statErr != nil && !os.IsNotExist(statErr) {
		return nil, fmt.Errorf("stat destination %q: %w", dst, statErr)
	}

	if dstExists {
		if e.opts.IgnoreExisting {
			return &job{kind: jobSkip, relPath: relPath, event: &Event{RelPath: relPath, Action: ActionSkippedExisting}}, nil
		}
		if e.opts.Update && dstInfo.ModTime().Sub(info.ModTime()) > e.opts.ModifyWindow {
			return &job{kind: jobSkip, relPath: relPath, event: &Event{RelPath: relPath, Action: ActionSkippedNewer}}, nil
		}
		if isRegular {
			synced, err := e.inSync(srcPath, dst, info, dstInfo)
			if err != nil {
				return nil, err
			}
			if synced {
				return nil, nil
			}
		}
	}

	kind := jobSpecial
	if isRegular {
		kind = jobRegular
	}
	j := &job{kind: kind, relPath: relPath, srcPath: srcPath, dstPath: dst, info: info}

	if isRegular && !e.opts.WholeFile {
		cand := refdir.Candidate{RelPath: relPath, Size: info.Size(), ModTime: info.ModTime(), ModifyWindow: e.opts.ModifyWindow}
		if e.opts.Checksum {
			cand.Checksum = func() ([]byte, error) { return wholeFileChecksum(srcPath) }
		}
		hit, ok, err := e.refResolver.Resolve(cand)
		if err != nil {
			return nil, err
		}
		if ok {
			j.hasRefHit = true
			j.refHit = hit
		}
	}

	return j, nil
}

// inSync implements spec.md §4.11 step 6.
func (e *Engine) inSync(srcPath, dst string, srcInfo, dstInfo os.FileInfo) (bool, error) {
	if e.opts.SizeOnly {
		return srcInfo.Size() == dstInfo.Size(), nil
	}
	if e.opts.Checksum {
		if srcInfo.Size() != dstInfo.Size() {
			return false, nil
		}
		a, err := wholeFileChecksum(srcPath)
		if err != nil {
			return false, err
		}
		b, err := wholeFileChecksum(dst)
		if err != nil {
			return false, err
		}
		return string(a) == string(b), nil
	}
	return srcInfo.Size() == dstInfo.Size() && withinWindow(srcInfo.ModTime(), dstInfo.ModTime(), e.opts.ModifyWindow), nil
}

func safeSymlink(target, relPath string) bool {
	depth := strings.Count(relPath, "/")
	return metaSafeSymlink(target, depth)
}
