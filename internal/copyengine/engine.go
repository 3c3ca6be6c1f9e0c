// Package copyengine implements the local copy planner's execution half
// (component C11, spec.md §4.11): it walks each source, consults the
// filter evaluator, the metadata policy, the reference-directory
// resolver and the delta reconstructor, and commits every destination
// write through a destguard.Guard.
//
// Grounded on the teacher's internal/receiver package: the traversal and
// transfer phases run concurrently, joined by an errgroup.WithContext
// exactly as internal/receiver/do.go's Do runs GenerateFiles and
// RecvFiles, generalized from "generate a remote file list, receive wire
// data" to "walk local sources, transfer local bytes". Strict ordering
// survives the split because traversal is depth-first pre-order and a
// single transfer goroutine drains the job channel in receive order, so a
// directory's job always reaches the transfer side before any of its
// children's.
package copyengine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oferchen/rsync-sub003/internal/copyplan"
	"github.com/oferchen/rsync-sub003/internal/destguard"
	"github.com/oferchen/rsync-sub003/internal/refdir"
	"github.com/oferchen/rsync-sub003/internal/rsyncerr"
	"github.com/oferchen/rsync-sub003/internal/rsyncstats"
)

// dirTimeEntry records a directory's desired final timestamps; applied
// after every descendant has been written (see Engine.Run).
type dirTimeEntry struct {
	path string
	info os.FileInfo
}

// Engine executes one Options-configured copy of a copyplan.Plan.
type Engine struct {
	opts      Options
	counters  *rsyncstats.Counters
	hardlinks *hardlinkTracker
	refResolver *refdir.Resolver
	delayQueue  *destguard.Queue

	mu            sync.Mutex
	events        []Event
	errCount      int
	deleteSkipped int
	deletesDone   int
	dirTimes      []dirTimeEntry
}

// New returns an Engine ready to run one or more plans with opts.
func New(opts Options) *Engine {
	return &Engine{
		opts:        opts,
		counters:    &rsyncstats.Counters{},
		hardlinks:   newHardlinkTracker(),
		refResolver: refdir.New(opts.RefDirs),
		delayQueue:  &destguard.Queue{},
	}
}

// Events returns every Event recorded so far (only populated when
// Options.CollectEvents is set).
func (e *Engine) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Event(nil), e.events...)
}

func (e *Engine) emit(ev Event) {
	if !e.opts.CollectEvents {
		return
	}
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *Engine) recordError() {
	e.mu.Lock()
	e.errCount++
	e.mu.Unlock()
}

func (e *Engine) recordDirTime(path string, info os.FileInfo) {
	if !e.opts.Policy.ApplyTimes(true, false) {
		return
	}
	e.mu.Lock()
	e.dirTimes = append(e.dirTimes, dirTimeEntry{path: path, info: info})
	e.mu.Unlock()
}

// Run executes plan to completion and returns a statistics snapshot.
func (e *Engine) Run(ctx context.Context, plan copyplan.Plan) (rsyncstats.TransferStats, error) {
	start := time.Now()
	destRoot := plan.Destination.Raw

	if !e.opts.DryRun && (plan.DestIsDirectory || e.opts.Mkpath || e.opts.ImpliedDirs) {
		if err := ensureDir(destRoot, 0755); err != nil {
			return e.counters.Snapshot(), rsyncerr.NewIOError("create destination directory", destRoot, err)
		}
	}

	if e.opts.DeleteMode == DeleteBefore {
		if err := e.deleteAfter(plan, destRoot); err != nil {
			return e.counters.Snapshot(), err
		}
	}

	for _, src := range plan.Sources {
		destBase := e.destBaseFor(src, destRoot, plan.DestIsDirectory)
		if err := e.runOne(ctx, src.Raw, destBase); err != nil {
			return e.counters.Snapshot(), err
		}
	}

	// Apply deferred directory timestamps deepest-first: in a DFS
	// pre-order listing every descendant of a directory appears after it
	// and before its next sibling, so walking the recorded list in
	// reverse always touches a directory's descendants before the
	// directory itself.
	if !e.opts.DryRun {
		for i := len(e.dirTimes) - 1; i >= 0; i-- {
			dt := e.dirTimes[i]
			if err := applyMeta(dt.path, dt.info, e.opts.Policy, true); err != nil {
				e.recordError()
			}
		}
		if e.delayQueue.Len() > 0 {
			if err := e.delayQueue.Flush(); err != nil {
				return e.counters.Snapshot(), rsyncerr.NewIOError("flush delayed updates", "", err)
			}
		}
	}

	if e.opts.DeleteMode == DeleteAfter || e.opts.DeleteMode == DeleteDelay {
		if err := e.deleteAfter(plan, destRoot); err != nil {
			return e.counters.Snapshot(), err
		}
	}

	e.counters.SetFileListGenerationTime(time.Since(start))
	snap := e.counters.Snapshot()

	if e.deleteSkipped > 0 {
		return snap, &rsyncerr.DeleteLimitError{Skipped: e.deleteSkipped}
	}
	if e.errCount > 0 {
		return snap, &rsyncerr.PartialTransferError{Count: e.errCount}
	}
	return snap, nil
}

// runOne walks and transfers a single source root into destBase.
func (e *Engine) runOne(ctx context.Context, srcRoot, destBase string) error {
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan *job, 64)

	g.Go(func() error {
		defer close(jobs)
		return e.walkSource(srcRoot, destBase, jobs)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case j, ok := <-jobs:
				if !ok {
					return nil
				}
				if err := e.processJob(j); err != nil {
					return err
				}
			}
		}
	})

	return g.Wait()
}

// destBaseFor computes the destination root a given source maps onto
// (spec.md §4.10).
func (e *Engine) destBaseFor(src copyplan.Spec, destRoot string, destIsDir bool) string {
	if e.opts.Relative {
		return filepath.Join(destRoot, filepath.FromSlash(src.RelativeRoot))
	}
	if src.CopyContents {
		return destRoot
	}
	if !destIsDir {
		return destRoot
	}
	return filepath.Join(destRoot, filepath.Base(strings.TrimSuffix(src.Raw, "/")))
}

// deleteAfter runs a whole-tree deletion pass, comparing the full
// destination tree against the full source tree, directory by directory.
// Run calls it before any transfer for DeleteBefore and once the entire
// source tree has been transferred for DeleteAfter/DeleteDelay.
func (e *Engine) deleteAfter(plan copyplan.Plan, destRoot string) error {
	jobs := make(chan *job, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(jobs)
		for _, src := range plan.Sources {
			destBase := e.destBaseFor(src, destRoot, plan.DestIsDirectory)
			if err := e.reconcileTreeRecursive(strings.TrimSuffix(src.Raw, string(os.PathSeparator)), destBase, "", e.opts.Filter, jobs); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	for j := range jobs {
		if err := e.processJob(j); err != nil {
			return err
		}
	}
	return <-errCh
}
