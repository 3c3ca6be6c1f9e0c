// Package copyplan classifies transfer operands into local or remote
// specs and resolves source/destination roles (spec.md §4.10).
package copyplan

import (
	"fmt"
	"runtime"
	"strings"
)

// Spec is one resolved operand.
type Spec struct {
	Raw string
	// RelativeRoot is the path segment the --relative marker (/./) carved
	// out, or the operand's last component when no marker is present.
	RelativeRoot string
	// CopyContents is true when the raw operand ends with the native path
	// separator: copy the directory's contents rather than the directory
	// itself.
	CopyContents bool
}

// classifyError reports spec.md §4.10's classification failures (empty
// or remote operand, too few operands); the caller must turn it into an
// rsyncerr error. It carries detail strings, not sentinel values, since
// the planner only needs to report which operand failed and why.
type classifyError struct {
	operand string
	reason  string
}

func (e *classifyError) Error() string {
	return fmt.Sprintf("operand %q: %s", e.operand, e.reason)
}

// IsRemote reports whether raw names a remote source/destination this
// planner refuses to handle (spec.md §4.10): "::" module syntax,
// "rsync://" URLs, or (on non-Windows) a "host:/path" shorthand.
func IsRemote(raw string) bool {
	if strings.Contains(raw, "::") {
		return true
	}
	if strings.HasPrefix(raw, "rsync://") {
		return true
	}
	if runtime.GOOS != "windows" {
		if i := strings.IndexByte(raw, ':'); i > 0 && !looksLikeWindowsDrive(raw) {
			// a single ':' before the first '/' is the classic host:path
			// shorthand; a path containing '/' before any ':' is local.
			if slash := strings.IndexByte(raw, '/'); slash < 0 || slash > i {
				return true
			}
		}
	}
	return false
}

func looksLikeWindowsDrive(raw string) bool {
	return len(raw) >= 2 && raw[1] == ':' && ((raw[0] >= 'a' && raw[0] <= 'z') || (raw[0] >= 'A' && raw[0] <= 'Z'))
}

// Classify resolves one raw operand to a local Spec, or returns an error
// if it is empty or remote (the caller is expected to have already routed
// remote operands to the network transfer path before calling this).
func Classify(raw string) (Spec, error) {
	if raw == "" {
		return Spec{}, &classifyError{operand: raw, reason: "empty operand"}
	}
	if IsRemote(raw) {
		return Spec{}, &classifyError{operand: raw, reason: "remote operand requires the network transfer path"}
	}
	return Spec{
		Raw:          raw,
		RelativeRoot: relativeRoot(raw, false),
		CopyContents: strings.HasSuffix(raw, "/"),
	}, nil
}

// Plan is a fully resolved transfer: the sources to read and the single
// destination to write.
type Plan struct {
	Sources     []Spec
	Destination Spec
	// DestIsDirectory records whether Destination must be treated as an
	// existing directory (required whenever there is more than one source
	// or --relative is set).
	DestIsDirectory bool
}

// Resolve classifies every operand and assigns the last as the
// destination. relativeMode enables --relative's /./ marker-based
// relative-root computation for every source.
func Resolve(operands []string, relativeMode bool) (Plan, error) {
	if len(operands) < 2 {
		return Plan{}, &classifyError{operand: strings.Join(operands, " "), reason: "at least one source and exactly one destination are required"}
	}

	destRaw := operands[len(operands)-1]
	dest, err := Classify(destRaw)
	if err != nil {
		return Plan{}, err
	}

	sources := make([]Spec, 0, len(operands)-1)
	for _, raw := range operands[:len(operands)-1] {
		s, err := Classify(raw)
		if err != nil {
			return Plan{}, err
		}
		if relativeMode {
			s.RelativeRoot = relativeRoot(raw, true)
		}
		sources = append(sources, s)
	}

	return Plan{
		Sources:         sources,
		Destination:     dest,
		DestIsDirectory: relativeMode || len(sources) > 1,
	}, nil
}

// relativeRoot computes a source's relative root. Under --relative, a
// "/./" marker in the raw operand splits off everything after it as the
// relative path; otherwise (or without --relative) the operand's last
// path component is used.
func relativeRoot(raw string, relativeMode bool) string {
	if relativeMode {
		if i := strings.Index(raw, "/./"); i >= 0 {
			return raw[i+len("/./"):]
		}
	}
	if i := strings.LastIndexByte(strings.TrimSuffix(raw, "/"), '/'); i >= 0 {
		return strings.TrimSuffix(raw, "/")[i+1:]
	}
	return strings.TrimSuffix(raw, "/")
}
