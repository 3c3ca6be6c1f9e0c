package copyengine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/oferchen/rsync-sub003/internal/copyplan"
	"github.com/oferchen/rsync-sub003/internal/metaflags"
	"github.com/oferchen/rsync-sub003/internal/refdir"
	"github.com/oferchen/rsync-sub003/internal/rsyncerr"
)

func writeFile(t *testing.T, path string, data []byte, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func contentsPlan(srcDir, destDir string) copyplan.Plan {
	plan, err := copyplan.Resolve([]string{srcDir + string(os.PathSeparator), destDir}, false)
	if err != nil {
		panic(err)
	}
	return plan
}

// TestRunEnforcesMaxDelete exercises spec.md §8.2 Scenario C: a
// destination holding two source-absent entries under --max-delete=1
// must remove exactly one of them and report the other as skipped via
// DeleteLimitError.
func TestRunEnforcesMaxDelete(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	mtime := time.Now().Truncate(time.Second)

	writeFile(t, filepath.Join(srcDir, "keep.txt"), []byte("keep"), mtime)
	writeFile(t, filepath.Join(destDir, "keep.txt"), []byte("keep"), mtime)
	writeFile(t, filepath.Join(destDir, "extra-1.txt"), []byte("gone"), mtime)
	writeFile(t, filepath.Join(destDir, "extra-2.txt"), []byte("gone too"), mtime)

	e := New(Options{
		DeleteMode:   DeleteAfter,
		MaxDelete:    1,
		ModifyWindow: time.Second,
	})

	_, err := e.Run(context.Background(), contentsPlan(srcDir, destDir))

	var delErr *rsyncerr.DeleteLimitError
	if err == nil {
		t.Fatal("Run: expected a DeleteLimitError, got nil")
	}
	if !errors.As(err, &delErr) {
		t.Fatalf("Run error = %v (%T), want *rsyncerr.DeleteLimitError", err, err)
	}
	if delErr.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", delErr.Skipped)
	}

	remaining := 0
	for _, name := range []string{"extra-1.txt", "extra-2.txt"} {
		if _, err := os.Lstat(filepath.Join(destDir, name)); err == nil {
			remaining++
		}
	}
	if remaining != 1 {
		t.Errorf("remaining extra-* entries = %d, want 1", remaining)
	}
	if _, err := os.Lstat(filepath.Join(destDir, "keep.txt")); err != nil {
		t.Errorf("keep.txt should survive: %v", err)
	}
}

// TestRunLinkDestFallsBackOnEXDEV exercises spec.md §8.2 Scenario D: a
// link-dest hit whose hard link fails with an EXDEV-class error must fall
// back to a data copy instead of aborting the entry.
func TestRunLinkDestFallsBackOnEXDEV(t *testing.T) {
	orig := refdir.LinkFn
	defer func() { refdir.LinkFn = orig }()
	refdir.LinkFn = func(oldname, newname string) error {
		return &os.LinkError{Op: "link", Old: oldname, New: newname, Err: syscall.EXDEV}
	}

	srcDir := t.TempDir()
	refDir := t.TempDir()
	destDir := t.TempDir()
	mtime := time.Now().Truncate(time.Second)

	writeFile(t, filepath.Join(srcDir, "f.bin"), []byte("payload"), mtime)
	writeFile(t, filepath.Join(refDir, "f.bin"), []byte("payload"), mtime)

	e := New(Options{
		ModifyWindow:  time.Second,
		RefDirs:       refdir.Lists{LinkDests: []string{refDir}},
		CollectEvents: true,
	})

	stats, err := e.Run(context.Background(), contentsPlan(srcDir, destDir))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.NumCreatedFiles != 1 {
		t.Errorf("NumCreatedFiles = %d, want 1", stats.NumCreatedFiles)
	}

	got, err := os.ReadFile(filepath.Join(destDir, "f.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Errorf("dest contents = %q, want %q", got, "payload")
	}

	srcInfo, _ := os.Stat(filepath.Join(srcDir, "f.bin"))
	dstInfo, _ := os.Stat(filepath.Join(destDir, "f.bin"))
	if os.SameFile(srcInfo, dstInfo) {
		t.Error("expected a data copy, not a hard link, on EXDEV fallback")
	}

	var hardlinks, dataCopies int
	for _, ev := range e.Events() {
		switch ev.Action {
		case ActionHardLinkCreated:
			hardlinks++
		case ActionDataCopied:
			dataCopies++
		}
	}
	if hardlinks != 0 {
		t.Errorf("hard-link events = %d, want 0", hardlinks)
	}
	if dataCopies != 1 {
		t.Errorf("data-copy events = %d, want 1", dataCopies)
	}
}

// TestRunIsIdempotent exercises the copy-idempotence invariant: running
// the same plan twice against the same destination must leave the second
// run with no data-copy or hard-link work to do.
func TestRunIsIdempotent(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	writeFile(t, filepath.Join(srcDir, "a.txt"), []byte("aaa"), mtime)
	writeFile(t, filepath.Join(srcDir, "sub/b.txt"), []byte("bbb"), mtime)

	opts := Options{ModifyWindow: time.Second, Policy: metaflags.Policy{Times: true}}

	first := New(opts)
	if _, err := first.Run(context.Background(), contentsPlan(srcDir, destDir)); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	second := New(opts)
	second.opts.CollectEvents = true
	stats, err := second.Run(context.Background(), contentsPlan(srcDir, destDir))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.NumTransferredFiles != 0 {
		t.Errorf("second run NumTransferredFiles = %d, want 0", stats.NumTransferredFiles)
	}
	for _, ev := range second.Events() {
		if ev.Action == ActionDataCopied || ev.Action == ActionHardLinkCreated {
			t.Errorf("second run emitted %v for %q, want no transfer work", ev.Action, ev.RelPath)
		}
	}
}

// TestRunDryRunMakesNoChanges exercises dry-run purity: no filesystem
// mutation may occur when Options.DryRun is set, even though the event
// stream still reports what would have happened.
func TestRunDryRunMakesNoChanges(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	writeFile(t, filepath.Join(srcDir, "new.txt"), []byte("new"), mtime)

	e := New(Options{DryRun: true, ModifyWindow: time.Second, CollectEvents: true})
	if _, err := e.Run(context.Background(), contentsPlan(srcDir, destDir)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Lstat(filepath.Join(destDir, "new.txt")); !os.IsNotExist(err) {
		t.Errorf("dry run created %q on disk (err=%v)", "new.txt", err)
	}

	var sawCopy bool
	for _, ev := range e.Events() {
		if ev.Action == ActionDataCopied && ev.RelPath == "new.txt" {
			sawCopy = true
		}
	}
	if !sawCopy {
		t.Error("expected a data-copied event to be recorded even under dry run")
	}
}

// TestRunAppliesFixedPointMetadata exercises the metadata fixed-point
// invariant: once applied, a destination entry's mode and mtime match the
// source exactly, so a second application is a true no-op.
func TestRunAppliesFixedPointMetadata(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	mtime := time.Date(2020, 3, 4, 5, 6, 7, 0, time.UTC)
	srcPath := filepath.Join(srcDir, "m.txt")
	writeFile(t, srcPath, []byte("meta"), mtime)
	if err := os.Chmod(srcPath, 0o640); err != nil {
		t.Fatal(err)
	}

	opts := Options{
		ModifyWindow: time.Second,
		Policy:       metaflags.Policy{Perms: true, Times: true},
	}

	e := New(opts)
	if _, err := e.Run(context.Background(), contentsPlan(srcDir, destDir)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		t.Fatal(err)
	}
	dstInfo, err := os.Stat(filepath.Join(destDir, "m.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if dstInfo.Mode().Perm() != srcInfo.Mode().Perm() {
		t.Errorf("dst perm = %v, want %v", dstInfo.Mode().Perm(), srcInfo.Mode().Perm())
	}
	if !dstInfo.ModTime().Equal(srcInfo.ModTime()) {
		t.Errorf("dst mtime = %v, want %v", dstInfo.ModTime(), srcInfo.ModTime())
	}

	e2 := New(opts)
	e2.opts.CollectEvents = true
	if _, err := e2.Run(context.Background(), contentsPlan(srcDir, destDir)); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	for _, ev := range e2.Events() {
		if ev.Action == ActionDataCopied {
			t.Errorf("metadata fixed point did not hold: %q re-copied", ev.RelPath)
		}
	}
}
