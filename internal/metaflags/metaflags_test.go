package metaflags

import (
	"os"
	"testing"
)

func TestApplyTimesOmitSwitches(t *testing.T) {
	p := Policy{Times: true, OmitDirTimes: true, OmitLinkTimes: true}
	if p.ApplyTimes(true, false) {
		t.Error("dir times should be omitted")
	}
	if p.ApplyTimes(false, true) {
		t.Error("symlink times should be omitted")
	}
	if !p.ApplyTimes(false, false) {
		t.Error("regular file times should still apply")
	}
}

func TestApplyTimesDisabled(t *testing.T) {
	p := Policy{Times: false}
	if p.ApplyTimes(false, false) {
		t.Error("times preservation disabled entirely")
	}
}

func TestParseChmodAndApply(t *testing.T) {
	rules, err := ParseChmod("Dg+s,ug+w,Fo-rwx")
	if err != nil {
		t.Fatalf("ParseChmod: %v", err)
	}
	p := Policy{Chmod: rules}

	dirMode := p.Apply(os.FileMode(0755)|os.ModeDir, true)
	if dirMode&os.ModeSetgid == 0 {
		t.Errorf("dir mode %v should have setgid applied", dirMode)
	}

	fileMode := p.Apply(os.FileMode(0777), false)
	if fileMode.Perm()&0007 != 0 {
		t.Errorf("file mode %v should have other rwx stripped", fileMode)
	}
}

func TestApplyCapitalXOnlyAffectsExecutableOrDir(t *testing.T) {
	rules, err := ParseChmod("a+X")
	if err != nil {
		t.Fatalf("ParseChmod: %v", err)
	}
	p := Policy{Chmod: rules}

	// A file with no execute bit at all should be unaffected by +X.
	fileMode := p.Apply(os.FileMode(0644), false)
	if fileMode.Perm()&0111 != 0 {
		t.Errorf("non-executable file should not gain execute bit from +X, got %v", fileMode)
	}

	// A directory always gains it.
	dirMode := p.Apply(os.FileMode(0644)|os.ModeDir, true)
	if dirMode.Perm()&0111 == 0 {
		t.Errorf("directory should gain execute bit from +X, got %v", dirMode)
	}
}

func TestSafeSymlinkRejectsAbsolute(t *testing.T) {
	if SafeSymlink("/etc/passwd", 0) {
		t.Error("absolute target must be unsafe")
	}
}

func TestSafeSymlinkRejectsEscape(t *testing.T) {
	if SafeSymlink("../../etc/passwd", 0) {
		t.Error("climbing above root must be unsafe")
	}
}

func TestSafeSymlinkAllowsWithinRoot(t *testing.T) {
	if !SafeSymlink("sub/file", 0) {
		t.Error("relative descent within root should be safe")
	}
	if !SafeSymlink("../sibling", 1) {
		t.Error("one '..' from one level deep should stay within root")
	}
}

func TestSafeSymlinkRejectsEmpty(t *testing.T) {
	if SafeSymlink("", 0) {
		t.Error("empty target must be unsafe")
	}
}

func TestPreservesDevicesAndSpecials(t *testing.T) {
	p := Policy{Devices: true, Specials: false}
	if !p.Preserves(os.ModeDevice) {
		t.Error("devices switch on: should preserve")
	}
	if p.Preserves(os.ModeNamedPipe) {
		t.Error("specials switch off: should not preserve")
	}
}
