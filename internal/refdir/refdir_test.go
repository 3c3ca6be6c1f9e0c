package refdir

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
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

func TestResolveCompareDestHit(t *testing.T) {
	root := t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	writeFile(t, filepath.Join(root, "a/b.txt"), []byte("hello"), mtime)

	r := New(Lists{CompareDests: []string{root}})
	hit, ok, err := r.Resolve(Candidate{RelPath: "a/b.txt", Size: 5, ModTime: mtime, ModifyWindow: time.Second})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit")
	}
	if hit.Kind != KindCompare {
		t.Errorf("Kind = %v, want KindCompare", hit.Kind)
	}
}

func TestResolveFallsThroughKindsInOrder(t *testing.T) {
	compareRoot := t.TempDir()
	copyRoot := t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	// Only copyRoot has the file; compareRoot is configured but misses.
	writeFile(t, filepath.Join(copyRoot, "f"), []byte("data"), mtime)

	r := New(Lists{CompareDests: []string{compareRoot}, CopyDests: []string{copyRoot}})
	hit, ok, err := r.Resolve(Candidate{RelPath: "f", Size: 4, ModTime: mtime, ModifyWindow: time.Second})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !ok || hit.Kind != KindCopy {
		t.Errorf("hit = %+v, ok=%v, want KindCopy hit", hit, ok)
	}
}

func TestResolveSizeMismatchMisses(t *testing.T) {
	root := t.TempDir()
	mtime := time.Now().Truncate(time.Second)
	writeFile(t, filepath.Join(root, "f"), []byte("data"), mtime)

	r := New(Lists{CompareDests: []string{root}})
	_, ok, err := r.Resolve(Candidate{RelPath: "f", Size: 999, ModTime: mtime, ModifyWindow: time.Second})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ok {
		t.Error("size mismatch should not produce a hit")
	}
}

func TestResolveNoRootsNoHit(t *testing.T) {
	r := New(Lists{})
	_, ok, err := r.Resolve(Candidate{RelPath: "anything"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ok {
		t.Error("expected no hit with no configured roots")
	}
}

func TestApplyCopyDest(t *testing.T) {
	root := t.TempDir()
	srcPath := filepath.Join(root, "src.txt")
	if err := os.WriteFile(srcPath, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	destPath := filepath.Join(t.TempDir(), "dst.txt")

	if err := Apply(Hit{Kind: KindCopy, Root: root, Path: srcPath}, destPath); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "content" {
		t.Errorf("dest contents = %q, want %q", got, "content")
	}
}

func TestApplyLinkDestSameFilesystem(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(srcPath, []byte("linked"), 0o644); err != nil {
		t.Fatal(err)
	}
	destPath := filepath.Join(dir, "dst.txt")

	if err := Apply(Hit{Kind: KindLink, Path: srcPath}, destPath); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	srcInfo, _ := os.Stat(srcPath)
	dstInfo, _ := os.Stat(destPath)
	if !os.SameFile(srcInfo, dstInfo) {
		t.Error("expected dst to be hard-linked to src")
	}
}

func TestApplyCompareDestIsNoOp(t *testing.T) {
	if err := Apply(Hit{Kind: KindCompare}, filepath.Join(t.TempDir(), "never-created")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

// TestApplyLinkDestFallsBackOnEXDEV simulates a link-dest hit whose
// reference root lives on a different filesystem (spec.md §8.2 Scenario
// D): LinkFn is overridden to return an EXDEV os.LinkError the way a real
// cross-device os.Link would, and Apply must fall back to a data copy
// rather than surface the error.
func TestApplyLinkDestFallsBackOnEXDEV(t *testing.T) {
	orig := LinkFn
	defer func() { LinkFn = orig }()
	LinkFn = func(oldname, newname string) error {
		return &os.LinkError{Op: "link", Old: oldname, New: newname, Err: syscall.EXDEV}
	}

	root := t.TempDir()
	srcPath := filepath.Join(root, "f.bin")
	if err := os.WriteFile(srcPath, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	destPath := filepath.Join(t.TempDir(), "f.bin")

	if err := Apply(Hit{Kind: KindLink, Root: root, Path: srcPath}, destPath); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Errorf("dest contents = %q, want %q", got, "payload")
	}
	srcInfo, _ := os.Stat(srcPath)
	dstInfo, _ := os.Stat(destPath)
	if os.SameFile(srcInfo, dstInfo) {
		t.Error("expected a data copy, not a hard link, on EXDEV fallback")
	}
}
