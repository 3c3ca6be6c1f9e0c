package copyengine

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/oferchen/rsync-sub003/internal/delta"
	"github.com/oferchen/rsync-sub003/internal/destguard"
	"github.com/oferchen/rsync-sub003/internal/refdir"
	"github.com/oferchen/rsync-sub003/internal/rsyncerr"
	"github.com/oferchen/rsync-sub003/internal/xsys"
)

// processJob executes one job (spec.md §4.11 steps 3-10), the transfer
// side of the generator/consumer split.
func (e *Engine) processJob(j *job) error {
	switch j.kind {
	case jobSkip:
		if j.event != nil {
			e.emit(*j.event)
		}
		return nil
	case jobDeleteFile, jobDeleteDir:
		return e.processDelete(j)
	case jobDir:
		return e.processDir(j)
	case jobSymlink:
		return e.processSymlink(j)
	case jobSpecial:
		return e.processSpecial(j)
	case jobRegular:
		return e.processRegular(j)
	default:
		return nil
	}
}

func (e *Engine) processDelete(j *job) error {
	if e.opts.DryRun {
		e.emit(Event{RelPath: j.relPath, Action: ActionDeleted})
		e.counters.AddDeletedFile()
		return nil
	}
	var err error
	if j.kind == jobDeleteDir {
		err = os.RemoveAll(j.dstPath)
	} else {
		err = os.Remove(j.dstPath)
	}
	if err != nil && !os.IsNotExist(err) {
		e.recordError()
		return rsyncerr.NewIOError("delete", j.dstPath, err)
	}
	e.counters.AddDeletedFile()
	e.emit(Event{RelPath: j.relPath, Action: ActionDeleted})
	return nil
}

func (e *Engine) processDir(j *job) error {
	e.counters.AddFile()
	if e.opts.DryRun {
		e.emit(Event{RelPath: j.relPath, Action: ActionDirectoryCreated})
		return nil
	}
	perm := j.info.Mode().Perm()
	if e.opts.Policy.Perms {
		perm = e.opts.Policy.Apply(j.info.Mode(), true).Perm()
	}
	if err := ensureDir(j.dstPath, perm); err != nil {
		e.recordError()
		return rsyncerr.NewIOError("create directory", j.dstPath, err)
	}
	if e.opts.Policy.Owner || e.opts.Policy.Group {
		if err := applyMeta(j.dstPath, j.info, e.opts.Policy, true); err != nil {
			e.recordError()
		}
	}
	e.recordDirTime(j.dstPath, j.info)
	e.emit(Event{RelPath: j.relPath, Action: ActionDirectoryCreated})
	return nil
}

func (e *Engine) processSymlink(j *job) error {
	e.counters.AddFile()
	target, err := os.Readlink(j.srcPath)
	if err != nil {
		e.recordError()
		return rsyncerr.NewIOError("read symlink", j.srcPath, err)
	}
	if e.opts.DryRun {
		e.emit(Event{RelPath: j.relPath, Action: ActionSymlinkCopied})
		return nil
	}
	if err := e.backupExisting(j.relPath, j.dstPath); err != nil {
		return err
	}
	if err := destguard.Symlink(target, j.dstPath); err != nil {
		e.recordError()
		return rsyncerr.NewIOError("create symlink", j.dstPath, err)
	}
	e.counters.AddCreatedFile()
	e.counters.AddTransferredFile()
	e.emit(Event{RelPath: j.relPath, Action: ActionSymlinkCopied})
	return nil
}

func (e *Engine) processSpecial(j *job) error {
	e.counters.AddFile()
	if e.opts.DryRun {
		e.emit(Event{RelPath: j.relPath, Action: ActionDataCopied})
		return nil
	}
	if err := e.backupExisting(j.relPath, j.dstPath); err != nil {
		return err
	}
	os.Remove(j.dstPath)

	var major, minor uint32
	if rdev, ok := xsys.StatRdev(j.info); ok {
		major, minor = xsys.RdevMajorMinor(rdev)
	}
	if err := xsys.Mknod(j.dstPath, j.info.Mode(), j.info.Mode(), major, minor); err != nil {
		e.recordError()
		return rsyncerr.NewIOError("create special file", j.dstPath, err)
	}
	if err := applyMeta(j.dstPath, j.info, e.opts.Policy, false); err != nil {
		e.recordError()
	}
	e.counters.AddCreatedFile()
	e.counters.AddTransferredFile()
	e.emit(Event{RelPath: j.relPath, Action: ActionDataCopied})
	return nil
}

// processRegular runs the transfer proper: hardlink reuse, reference-
// directory reuse, then whole-file or delta transfer (spec.md §4.11 steps
// 7-10).
func (e *Engine) processRegular(j *job) error {
	e.counters.AddFile()
	e.counters.AddTotalFileSize(j.info.Size())

	if e.opts.Policy.Hardlinks {
		if leaderPath, seen := e.hardlinks.leader(j.info, j.dstPath); seen {
			return e.linkToLeader(j, leaderPath)
		}
	}

	if j.hasRefHit {
		return e.applyRefHit(j)
	}

	if e.opts.DryRun {
		e.emit(Event{RelPath: j.relPath, Action: ActionDataCopied, Bytes: j.info.Size()})
		return nil
	}

	if err := e.backupExisting(j.relPath, j.dstPath); err != nil {
		return err
	}

	n, err := e.transferContent(j)
	if err != nil {
		e.recordError()
		return err
	}

	if err := applyMeta(j.dstPath, j.info, e.opts.Policy, false); err != nil {
		e.recordError()
	}

	e.counters.AddTransferredFile()
	e.counters.AddTotalTransferredSize(n)
	e.counters.AddCreatedFile()

	if e.opts.RemoveSourceFiles {
		os.Remove(j.srcPath)
	}

	e.emit(Event{RelPath: j.relPath, Action: ActionDataCopied, Bytes: n})
	return nil
}

func (e *Engine) linkToLeader(j *job, leaderPath string) error {
	if e.opts.DryRun {
		e.emit(Event{RelPath: j.relPath, Action: ActionHardLinkCreated})
		return nil
	}
	if err := e.backupExisting(j.relPath, j.dstPath); err != nil {
		return err
	}
	os.Remove(j.dstPath)
	if err := os.Link(leaderPath, j.dstPath); err != nil {
		e.recordError()
		return rsyncerr.NewIOError("create hard link", j.dstPath, err)
	}
	e.emit(Event{RelPath: j.relPath, Action: ActionHardLinkCreated})
	return nil
}

func (e *Engine) applyRefHit(j *job) error {
	if j.refHit.Kind == refdir.KindCompare {
		// Nothing to create; D is left untouched (spec.md §4.13).
		return nil
	}
	if e.opts.DryRun {
		e.emit(Event{RelPath: j.relPath, Action: ActionDataCopied, Bytes: j.info.Size()})
		return nil
	}
	if err := e.backupExisting(j.relPath, j.dstPath); err != nil {
		return err
	}
	if err := refdir.Apply(j.refHit, j.dstPath); err != nil {
		e.recordError()
		return rsyncerr.NewIOError("apply reference directory", j.dstPath, err)
	}
	if err := applyMeta(j.dstPath, j.info, e.opts.Policy, false); err != nil {
		e.recordError()
	}
	e.counters.AddCreatedFile()
	e.counters.AddTransferredFile()
	e.emit(Event{RelPath: j.relPath, Action: ActionDataCopied, Bytes: j.info.Size()})
	return nil
}

// backupExisting renames a surviving destination entry aside before it is
// overwritten, when --backup is configured.
func (e *Engine) backupExisting(relPath, dstPath string) error {
	if !e.opts.Backup {
		return nil
	}
	if _, err := os.Lstat(dstPath); err != nil {
		return nil
	}
	backupPath := dstPath + e.opts.Suffix
	if e.opts.BackupDir != "" {
		backupPath = filepath.Join(e.opts.BackupDir, filepath.FromSlash(relPath)) + e.opts.Suffix
		if err := ensureDir(filepath.Dir(backupPath), 0755); err != nil {
			return rsyncerr.NewIOError("create backup directory", filepath.Dir(backupPath), err)
		}
	}
	if err := os.Rename(dstPath, backupPath); err != nil {
		return rsyncerr.NewIOError("create backup", backupPath, err)
	}
	e.emit(Event{RelPath: relPath, Action: ActionBackupCreated})
	return nil
}

// transferContent moves j's bytes onto disk, choosing whole-file, delta or
// append transfer, and returns the length of the resulting destination
// content (for an append, the resume offset plus the bytes appended).
func (e *Engine) transferContent(j *job) (int64, error) {
	src, err := os.Open(j.srcPath)
	if err != nil {
		return 0, rsyncerr.NewIOError("open source", j.srcPath, err)
	}
	defer src.Close()

	mode := j.info.Mode().Perm()
	if e.opts.Policy.Perms {
		mode = e.opts.Policy.Apply(j.info.Mode(), false).Perm()
	}

	guardOpts := destguard.Options{
		PartialDir:      e.opts.PartialDir,
		TempDir:         e.opts.TempDir,
		DelayUpdates:    e.opts.DelayUpdates,
		PreservePartial: e.opts.Partial,
		Mode:            mode,
	}

	dstInfo, dstErr := os.Lstat(j.dstPath)
	destExists := dstErr == nil

	useDelta := destExists && !e.opts.WholeFile && !e.opts.Inplace
	useAppend := destExists && (e.opts.Append || e.opts.AppendVerify)

	switch {
	case useAppend:
		return e.transferAppend(j, src, guardOpts, dstInfo.Size())
	case useDelta:
		return e.transferDelta(j, src, guardOpts)
	default:
		return e.transferWhole(j, src, guardOpts)
	}
}

func (e *Engine) transferWhole(j *job, src *os.File, guardOpts destguard.Options) (int64, error) {
	g, err := destguard.New(j.dstPath, guardOpts)
	if err != nil {
		return 0, rsyncerr.NewIOError("stage temp file", j.dstPath, err)
	}
	committed := false
	defer func() {
		if !committed {
			g.Abort()
		}
	}()

	if e.opts.Preallocate {
		if _, err := g.Preallocate(j.info.Size()); err != nil {
			return 0, rsyncerr.NewIOError("preallocate", j.dstPath, err)
		}
	}

	var n int64
	if e.opts.Sparse {
		n, err = copySparse(g, src)
	} else {
		n, err = e.copyWithLimit(g, src)
	}
	if err != nil {
		return 0, rsyncerr.NewIOError("write destination", j.dstPath, err)
	}

	if err := e.commitGuard(g); err != nil {
		return 0, err
	}
	committed = true
	return n, nil
}

func (e *Engine) transferDelta(j *job, src *os.File, guardOpts destguard.Options) (int64, error) {
	oldFile, err := os.Open(j.dstPath)
	if err != nil {
		return 0, rsyncerr.NewIOError("open existing destination", j.dstPath, err)
	}
	defer oldFile.Close()

	sig, err := delta.BuildSignature(oldFile, e.opts.blockLength())
	if err != nil {
		return 0, rsyncerr.NewIOError("build block signature", j.dstPath, err)
	}

	g, err := destguard.New(j.dstPath, guardOpts)
	if err != nil {
		return 0, rsyncerr.NewIOError("stage temp file", j.dstPath, err)
	}
	committed := false
	defer func() {
		if !committed {
			g.Abort()
		}
	}()

	var out io.Writer = g
	if e.opts.BWLimit != nil {
		out = e.opts.BWLimit.Writer(context.Background(), g)
	}

	_, stats, err := delta.Reconstruct(src, sig, oldFile, out)
	if err != nil {
		return 0, rsyncerr.NewIOError("reconstruct delta", j.dstPath, err)
	}
	e.counters.AddMatchedData(stats.MatchedData)
	e.counters.AddLiteralData(stats.LiteralData)

	if err := e.commitGuard(g); err != nil {
		return 0, err
	}
	committed = true
	return stats.MatchedData + stats.LiteralData, nil
}

func (e *Engine) transferAppend(j *job, src *os.File, guardOpts destguard.Options, destLen int64) (int64, error) {
	plan := delta.AppendPlan{Verify: e.opts.AppendVerify}

	var prefixSum []byte
	if e.opts.AppendVerify {
		h, err := wholeFileChecksumReaderPrefix(src, destLen)
		if err != nil {
			return 0, rsyncerr.NewIOError("checksum source prefix", j.srcPath, err)
		}
		prefixSum = h
	}

	oldFile, err := os.Open(j.dstPath)
	if err != nil {
		return 0, rsyncerr.NewIOError("open existing destination", j.dstPath, err)
	}
	defer oldFile.Close()

	offset, err := plan.Resolve(oldFile, destLen, prefixSum)
	if err != nil {
		return 0, rsyncerr.NewIOError("resolve append offset", j.dstPath, err)
	}

	if _, err := src.Seek(offset, io.SeekStart); err != nil {
		return 0, rsyncerr.NewIOError("seek source", j.srcPath, err)
	}

	f, err := os.OpenFile(j.dstPath, os.O_WRONLY, 0)
	if err != nil {
		return 0, rsyncerr.NewIOError("open destination for append", j.dstPath, err)
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, rsyncerr.NewIOError("seek destination", j.dstPath, err)
	}

	n, err := e.copyWithLimit(f, src)
	if err != nil {
		return 0, rsyncerr.NewIOError("append destination", j.dstPath, err)
	}
	return offset + n, nil
}

func (e *Engine) commitGuard(g *destguard.Guard) error {
	if e.opts.DelayUpdates {
		if err := g.Commit(); err != nil {
			return rsyncerr.NewIOError("stage delayed update", "", err)
		}
		e.delayQueue.Add(g)
		return nil
	}
	if err := g.Commit(); err != nil {
		return rsyncerr.NewIOError("commit destination", "", err)
	}
	return nil
}

func (e *Engine) copyWithLimit(dst io.Writer, src io.Reader) (int64, error) {
	if e.opts.BWLimit != nil {
		dst = e.opts.BWLimit.Writer(context.Background(), dst)
	}
	return io.Copy(dst, src)
}

func copySparse(g *destguard.Guard, src io.Reader) (int64, error) {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			written, werr := g.WriteSparse(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
