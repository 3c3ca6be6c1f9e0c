package copyengine

import (
	"os"
	"path/filepath"

	"github.com/oferchen/rsync-sub003/internal/filter"
)

// reconcileDir computes the destination-only entries of one directory
// (entries present at dst but absent from srcEntries) and enqueues delete
// jobs for them, honoring --delete-excluded and protect/risk guards
// (spec.md §4.11 "Deletion"). Used directly by DeleteDuring traversal; the
// same logic backs the accumulation passes for before/after/delay modes.
func (e *Engine) reconcileDir(srcDir, dstDir, relDir string, srcEntries []os.DirEntry, flt *filter.Evaluator, jobs chan<- *job) error {
	present := make(map[string]bool, len(srcEntries))
	for _, ent := range srcEntries {
		present[ent.Name()] = true
	}

	dstEntries, err := os.ReadDir(dstDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, dent := range dstEntries {
		if present[dent.Name()] {
			continue
		}
		rel := dent.Name()
		if relDir != "" {
			rel = relDir + "/" + dent.Name()
		}

		excludedBySource := flt != nil && flt.Evaluate(rel, dent.IsDir(), filter.SideSender) == filter.DecisionExclude
		if excludedBySource && !e.opts.DeleteExcluded {
			continue
		}

		if flt != nil && flt.ProtectsFromDeletion(rel, dent.IsDir()) {
			continue
		}

		if !e.takeDeleteSlot() {
			continue
		}

		kind := jobDeleteFile
		if dent.IsDir() {
			kind = jobDeleteDir
		}
		jobs <- &job{kind: kind, relPath: rel, dstPath: filepath.Join(dstDir, dent.Name())}
	}
	return nil
}

// reconcileTreeRecursive backs the before/after/delay deletion passes: it
// recomputes the source directory listing fresh (independent of the
// transfer traversal) and descends into every subdirectory common to both
// sides, so a destination subtree whose source counterpart disappeared
// partway through is still reconciled.
func (e *Engine) reconcileTreeRecursive(srcDir, destBase, relDir string, flt *filter.Evaluator, jobs chan<- *job) error {
	dstDir := destPath(destBase, relDir)

	srcEntries, err := os.ReadDir(srcDir)
	if err != nil {
		if os.IsNotExist(err) {
			srcEntries = nil
		} else {
			return err
		}
	}

	childFlt := flt
	if flt != nil {
		childFlt, err = flt.Descend(srcDir)
		if err != nil {
			return err
		}
	}

	if err := e.reconcileDir(srcDir, dstDir, relDir, srcEntries, childFlt, jobs); err != nil {
		return err
	}

	for _, ent := range srcEntries {
		if !ent.IsDir() {
			continue
		}
		childRel := ent.Name()
		if relDir != "" {
			childRel = relDir + "/" + ent.Name()
		}
		childSrc := filepath.Join(srcDir, ent.Name())
		if _, err := os.Lstat(destPath(destBase, childRel)); err != nil {
			continue // nothing on the destination side to reconcile
		}
		if err := e.reconcileTreeRecursive(childSrc, destBase, childRel, childFlt, jobs); err != nil {
			return err
		}
	}
	return nil
}

// takeDeleteSlot reports whether another deletion is permitted under
// --max-delete; once the limit is reached it records the overage and
// stops granting further slots.
func (e *Engine) takeDeleteSlot() bool {
	if e.opts.MaxDelete < 0 {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deletesDone >= e.opts.MaxDelete {
		e.deleteSkipped++
		return false
	}
	e.deletesDone++
	return true
}
