package filter

import (
	"os"
	"testing"
)

func decide(t *testing.T, e *Evaluator, path string, isDir bool, side Side) Decision {
	t.Helper()
	return e.Evaluate(path, isDir, side)
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	e := NewEvaluator(
		NewRule(ActionExclude, "*.o"),
		NewRule(ActionInclude, "keep.o"),
	)
	// keep.o matches the exclude rule first since rules are evaluated in
	// declaration order; the later include never gets a chance.
	if got := decide(t, e, "keep.o", false, SideBoth); got != DecisionExclude {
		t.Errorf("keep.o = %v, want exclude (first rule wins)", got)
	}
}

func TestEvaluateNoMatchIncludes(t *testing.T) {
	e := NewEvaluator(NewRule(ActionExclude, "*.o"))
	if got := decide(t, e, "main.go", false, SideBoth); got != DecisionInclude {
		t.Errorf("main.go = %v, want include", got)
	}
}

func TestEvaluateClearDiscardsPriorRules(t *testing.T) {
	e := NewEvaluator(
		NewRule(ActionExclude, "*.o"),
		Rule{Action: ActionClear},
		NewRule(ActionExclude, "*.tmp"),
	)
	if got := decide(t, e, "build.o", false, SideBoth); got != DecisionInclude {
		t.Errorf("build.o = %v, want include (exclude *.o cleared)", got)
	}
	if got := decide(t, e, "build.tmp", false, SideBoth); got != DecisionExclude {
		t.Errorf("build.tmp = %v, want exclude", got)
	}
}

func TestEvaluateSideRestriction(t *testing.T) {
	e := NewEvaluator(NewRule(ActionHide, "secret"))
	if got := decide(t, e, "secret", false, SideSender); got != DecisionExclude {
		t.Errorf("sender: secret = %v, want exclude", got)
	}
	if got := decide(t, e, "secret", false, SideReceiver); got != DecisionInclude {
		t.Errorf("receiver: secret = %v, want include (hide is sender-only)", got)
	}
}

func TestEvaluateAnchoredVsUnanchored(t *testing.T) {
	e := NewEvaluator(NewRule(ActionExclude, "/build"))
	if got := decide(t, e, "build", false, SideBoth); got != DecisionExclude {
		t.Errorf("build = %v, want exclude", got)
	}
	if got := decide(t, e, "sub/build", false, SideBoth); got != DecisionInclude {
		t.Errorf("sub/build = %v, want include (anchored pattern doesn't match nested path)", got)
	}
}

func TestEvaluateDirOnly(t *testing.T) {
	e := NewEvaluator(NewRule(ActionExclude, "cache/"))
	if got := decide(t, e, "cache", true, SideBoth); got != DecisionExclude {
		t.Errorf("dir cache = %v, want exclude", got)
	}
	if got := decide(t, e, "cache", false, SideBoth); got != DecisionInclude {
		t.Errorf("file cache = %v, want include (dir-only rule)", got)
	}
}

func TestProtectsFromDeletionRiskOverridesProtect(t *testing.T) {
	e := NewEvaluator(
		NewRule(ActionProtect, "*.log"),
		NewRule(ActionRisk, "debug.log"),
	)
	if !e.ProtectsFromDeletion("app.log", false) {
		t.Error("app.log should be protected")
	}
	if e.ProtectsFromDeletion("debug.log", false) {
		t.Error("debug.log should not be protected: risk overrides protect")
	}
}

func TestMatchPatternStar(t *testing.T) {
	cases := []struct {
		pattern, s string
		anchored   bool
		want       bool
	}{
		{"*.go", "main.go", true, true},
		{"*.go", "sub/main.go", true, false}, // '*' doesn't cross '/'
		{"**.go", "sub/main.go", true, true}, // '**' does
		{"fo?", "foo", true, true},
		{"fo?", "fo/", true, false},
		{"[a-c]at", "bat", true, true},
		{"[a-c]at", "zat", true, false},
		{"[!a-c]at", "zat", true, true},
	}
	for _, c := range cases {
		got := matchPattern(c.pattern, c.s, c.anchored)
		if got != c.want {
			t.Errorf("matchPattern(%q, %q, anchored=%v) = %v, want %v", c.pattern, c.s, c.anchored, got, c.want)
		}
	}
}

func TestMatchPatternUnanchoredSuffix(t *testing.T) {
	if !matchPattern("*.o", "sub/dir/build.o", false) {
		t.Error("unanchored *.o should match at any path-component boundary")
	}
}

// TestFilterDeterminism checks spec.md's testable property that the
// evaluator's decision is a pure function of the rule set and the path: the
// same evaluator queried twice for the same path and side returns the same
// verdict.
func TestFilterDeterminism(t *testing.T) {
	e := NewEvaluator(
		NewRule(ActionExclude, "*.o"),
		NewRule(ActionInclude, "/keep/**"),
		NewRule(ActionProtect, "*.db"),
	)
	paths := []string{"a.o", "keep/build.o", "other/file.txt", "data.db"}
	for _, p := range paths {
		first := decide(t, e, p, false, SideBoth)
		second := decide(t, e, p, false, SideBoth)
		if first != second {
			t.Errorf("path %q: non-deterministic decision %v vs %v", p, first, second)
		}
	}
}

func TestDescendLoadsDirMergeFile(t *testing.T) {
	e := NewEvaluator()
	e.AddDirMerge(DirMergeOptions{Path: ".rsync-filter"})
	e.readDirFile = func(path string) ([]byte, error) {
		if path == "/root/.rsync-filter" {
			return []byte("- *.bak\n# comment\n\n+ keep.bak\n"), nil
		}
		return nil, os.ErrNotExist
	}
	child, err := e.Descend("/root")
	if err != nil {
		t.Fatalf("Descend: %v", err)
	}
	// keep.bak matches the exclude rule first (declared before the include),
	// same first-match-wins semantics as top-level rules.
	if got := decide(t, child, "keep.bak", false, SideBoth); got != DecisionExclude {
		t.Errorf("keep.bak = %v, want exclude", got)
	}
	if got := decide(t, child, "other.txt", false, SideBoth); got != DecisionInclude {
		t.Errorf("other.txt = %v, want include", got)
	}
	// the parent evaluator must be unaffected by the child's merged rules.
	if got := decide(t, e, "keep.bak", false, SideBoth); got != DecisionInclude {
		t.Errorf("parent keep.bak = %v, want include (dir-merge must not leak upward)", got)
	}
}

func TestDescendMissingFileIsNotAnError(t *testing.T) {
	e := NewEvaluator()
	e.AddDirMerge(DirMergeOptions{Path: ".rsync-filter"})
	e.readDirFile = func(path string) ([]byte, error) { return nil, os.ErrNotExist }
	if _, err := e.Descend("/root"); err != nil {
		t.Fatalf("Descend with missing dir-merge file should not error: %v", err)
	}
}

func TestDescendEnforcedKindOverridesVerbs(t *testing.T) {
	e := NewEvaluator()
	e.AddDirMerge(DirMergeOptions{Path: ".cvsignore", EnforcedKind: ActionExclude, NoSplit: true})
	e.readDirFile = func(path string) ([]byte, error) {
		return []byte("*.tmp\n*.bak\n"), nil
	}
	child, err := e.Descend("/root")
	if err != nil {
		t.Fatalf("Descend: %v", err)
	}
	if got := decide(t, child, "a.tmp", false, SideBoth); got != DecisionExclude {
		t.Errorf("a.tmp = %v, want exclude (enforced kind)", got)
	}
}
