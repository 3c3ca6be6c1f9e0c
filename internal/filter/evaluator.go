package filter

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/oferchen/rsync-sub003/internal/rsyncerr"
)

// DirMergeOptions controls how a dir-merge file's rules are parsed and
// scoped (spec.md §4.7).
type DirMergeOptions struct {
	Path string

	NoInherit     bool // ":n" modifier: this merge is not re-applied in subdirectories
	CommentsOff   bool // '#'-prefixed lines are NOT treated as comments
	NoSplit       bool // don't tokenize on whitespace; the whole line is one pattern
	Side          Side // restrict every rule loaded from the file to this side
	EnforcedKind  Action // when set to ActionInclude or ActionExclude, overrides every rule's action
	ExcludeMarker bool // the dir-merge file itself is also excluded from transfer
}

// marker, for exclude-if-present rules.
type presenceMarker struct {
	fileName string
}

// Evaluator holds the declaration-ordered rule stack plus any pending
// dir-merge / exclude-if-present directives, and evaluates candidate paths
// against it.
type Evaluator struct {
	rules       []Rule
	dirMerges   []DirMergeOptions
	presence    []presenceMarker
	readDirFile func(path string) ([]byte, error)
}

// NewEvaluator returns an evaluator seeded with rules, evaluated in the
// given order (spec.md §4.7: "rules are evaluated in declaration order").
func NewEvaluator(rules ...Rule) *Evaluator {
	e := &Evaluator{readDirFile: os.ReadFile}
	e.AddRules(rules...)
	return e
}

// AddRules appends rules, honoring ActionClear by discarding everything
// accumulated so far.
func (e *Evaluator) AddRules(rules ...Rule) {
	for _, r := range rules {
		if r.Action == ActionClear {
			e.rules = e.rules[:0]
			continue
		}
		e.rules = append(e.rules, r)
	}
}

// AddDirMerge registers a dir-merge directive to be resolved whenever the
// evaluator descends into a directory (see Descend).
func (e *Evaluator) AddDirMerge(opts DirMergeOptions) {
	e.dirMerges = append(e.dirMerges, opts)
}

// AddExcludeIfPresent registers an exclude-if-present(marker) directive.
func (e *Evaluator) AddExcludeIfPresent(markerFile string) {
	e.presence = append(e.presence, presenceMarker{fileName: markerFile})
}

// Decision is the verdict for one candidate path on one side.
type Decision int

const (
	DecisionInclude Decision = iota
	DecisionExclude
)

// Evaluate returns whether relPath (slash-separated, relative to a
// transfer root) is included for side. The first rule (in declaration
// order) whose pattern matches and which applies to side determines the
// outcome; a path with no matching rule is included (spec.md §4.7).
func (e *Evaluator) Evaluate(relPath string, isDir bool, side Side) Decision {
	for _, r := range e.rules {
		if !r.appliesToSide(side) {
			continue
		}
		if r.DirOnly && !isDir {
			continue
		}
		if matchPattern(r.Pattern, relPath, r.Anchored) {
			if r.includes() {
				return DecisionInclude
			}
			return DecisionExclude
		}
	}
	return DecisionInclude
}

// ProtectsFromDeletion reports whether relPath is guarded against deletion
// by a matching protect rule not overridden by a later risk rule
// (spec.md §4.9's deletion policy: "risk overrides a protect").
func (e *Evaluator) ProtectsFromDeletion(relPath string, isDir bool) bool {
	protected := false
	for _, r := range e.rules {
		if r.Action != ActionProtect && r.Action != ActionRisk {
			continue
		}
		if r.DirOnly && !isDir {
			continue
		}
		if matchPattern(r.Pattern, relPath, r.Anchored) {
			protected = r.Action == ActionProtect
		}
	}
	return protected
}

// HasPresenceMarker reports whether any registered exclude-if-present
// marker file exists directly inside dirPath, meaning the directory (and
// everything under it) is excluded.
func (e *Evaluator) HasPresenceMarker(dirPath string) (bool, error) {
	for _, p := range e.presence {
		_, err := os.Stat(dirPath + string(os.PathSeparator) + p.fileName)
		if err == nil {
			return true, nil
		}
		if !os.IsNotExist(err) {
			return false, rsyncerr.NewIOError("stat exclude-if-present marker", dirPath, err)
		}
	}
	return false, nil
}

// Descend returns a new Evaluator scoped to a subdirectory: the current
// rule stack plus, for every registered dir-merge directive, any rules
// loaded from <dirPath>/<dirMerge.Path>. The caller uses the returned
// evaluator while visiting dirPath's children and discards it on ascent
// (the "push on descend, pop on ascend" mechanics of spec.md §4.7 fall out
// naturally from each directory getting its own Evaluator value rather
// than a mutated shared stack).
func (e *Evaluator) Descend(dirPath string) (*Evaluator, error) {
	child := &Evaluator{
		rules:       append([]Rule(nil), e.rules...),
		presence:    append([]presenceMarker(nil), e.presence...),
		readDirFile: e.readDirFile,
	}
	for _, dm := range e.dirMerges {
		// A non-inheriting dir-merge only applies to this directory's own
		// children, not to further descendants, so it doesn't get carried
		// into child.dirMerges.
		if !dm.NoInherit {
			child.dirMerges = append(child.dirMerges, dm)
		}

		full := dirPath + string(os.PathSeparator) + dm.Path
		data, err := child.readDirFile(full)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, rsyncerr.NewIOError("read dir-merge file", full, err)
		}
		rules, err := parseDirMergeRules(data, dm)
		if err != nil {
			return nil, err
		}
		child.AddRules(rules...)
		if dm.ExcludeMarker {
			child.AddRules(Rule{Action: ActionExclude, Pattern: dm.Path, Anchored: true})
		}
	}
	return child, nil
}

func parseDirMergeRules(data []byte, opts DirMergeOptions) ([]Rule, error) {
	var rules []Rule
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !opts.CommentsOff && strings.HasPrefix(line, "#") {
			continue
		}

		action, pattern, ok := splitDirective(line)
		if !ok {
			if opts.EnforcedKind != ActionInclude && opts.EnforcedKind != ActionExclude {
				return nil, &rsyncerr.FilterParseError{
					Location: fmt.Sprintf("%s:%d", opts.Path, lineNo),
					Reason:   "rule has no verb and no enforced kind is configured",
				}
			}
			action = opts.EnforcedKind
			pattern = line
		}

		if opts.EnforcedKind == ActionInclude || opts.EnforcedKind == ActionExclude {
			action = opts.EnforcedKind
		}

		// A plain pattern line under an enforced kind (e.g. a cvs-ignore
		// style merge file) holds one pattern per whitespace-separated
		// word unless NoSplit keeps the whole line as a single pattern.
		patterns := []string{pattern}
		if !ok && !opts.NoSplit {
			patterns = strings.Fields(pattern)
		}
		for _, p := range patterns {
			r := NewRule(action, p)
			if opts.Side != SideBoth {
				r.Side = opts.Side
			}
			rules = append(rules, r)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, rsyncerr.NewIOError("scan dir-merge file", opts.Path, err)
	}
	return rules, nil
}

// splitDirective recognizes the long ("include ") and short ("+ ") verb
// forms. ok is false when the line is a bare pattern with no verb.
func splitDirective(line string) (action Action, pattern string, ok bool) {
	verbs := map[string]Action{
		"+": ActionInclude, "include": ActionInclude,
		"-": ActionExclude, "exclude": ActionExclude,
		"P": ActionProtect, "protect": ActionProtect,
		"R": ActionRisk, "risk": ActionRisk,
		"H": ActionHide, "hide": ActionHide,
		"S": ActionShow, "show": ActionShow,
		"!": ActionClear, "clear": ActionClear,
	}
	fields := strings.SplitN(line, " ", 2)
	if len(fields) == 2 {
		if a, found := verbs[fields[0]]; found {
			return a, strings.TrimSpace(fields[1]), true
		}
	}
	if a, found := verbs[line]; found {
		return a, "", true
	}
	return 0, "", false
}
