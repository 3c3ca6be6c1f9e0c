package rsyncopts

import (
	"fmt"
	"strconv"
	"strings"
)

// argInfo mirrors the handful of popt(3) POPT_ARG_* kinds the long-option
// table in rsyncopts.go actually uses.
type argInfo int

const (
	POPT_ARG_NONE argInfo = iota
	POPT_ARG_VAL
	POPT_ARG_STRING
	POPT_ARG_INT
	POPT_BIT_SET
)

// poptOption is one table row: a long name, an optional single-character
// short name, the argument kind, the field it writes to (a *int or
// *string, or nil when the option only makes sense as a returned code),
// and the value POPT_ARG_VAL/POPT_BIT_SET stores or the code returned to
// the caller's switch when non-zero.
type poptOption struct {
	longName  string
	shortName string
	argInfo   argInfo
	arg       interface{}
	val       int
}

// PoptError reports a command-line parse failure: an unknown option, a
// missing required argument, or a malformed integer argument.
type PoptError struct {
	Option     string
	Reason     string
	DaemonMode bool
}

func (e *PoptError) Error() string {
	return fmt.Sprintf("option %s: %s", e.Option, e.Reason)
}

// Context drives one parse over args against table, tracking the
// operands (non-option arguments) it encounters along the way.
type Context struct {
	Options *Options

	table []poptOption
	args  []string

	pos           int
	pendingShorts []rune

	optArg        string
	RemainingArgs []string
}

// poptGetOptArg returns the string argument most recently consumed by
// poptGetNextOpt, for special-cased options (OPT_INFO, OPT_DEBUG, ...)
// that need the raw text rather than a typed field.
func (pc *Context) poptGetOptArg() string {
	return pc.optArg
}

func findLong(table []poptOption, name string) (poptOption, bool) {
	for _, opt := range table {
		if opt.longName == name {
			return opt, true
		}
	}
	return poptOption{}, false
}

func findShort(table []poptOption, name string) (poptOption, bool) {
	for _, opt := range table {
		if opt.shortName == name {
			return opt, true
		}
	}
	return poptOption{}, false
}

// poptGetNextOpt returns the next option code (the table row's val, when
// non-zero), -1 when args is exhausted, or an error. Options whose val is
// zero are applied to their target field and skipped over without being
// surfaced to the caller, matching the real popt convention that a zero
// val means "no special handling needed".
func (pc *Context) poptGetNextOpt() (int, error) {
	for {
		code, err := pc.nextRawOpt()
		if err != nil || code != 0 {
			return code, err
		}
	}
}

// nextRawOpt applies the next option and returns its code, which is 0 for
// an option that needs no special handling.
func (pc *Context) nextRawOpt() (int, error) {
	for {
		if len(pc.pendingShorts) > 0 {
			r := pc.pendingShorts[0]
			rest := pc.pendingShorts[1:]
			opt, ok := findShort(pc.table, string(r))
			if !ok {
				return 0, &PoptError{Option: "-" + string(r), Reason: "unknown option"}
			}
			if opt.argInfo == POPT_ARG_STRING || opt.argInfo == POPT_ARG_INT {
				pc.pendingShorts = nil
				if len(rest) > 0 {
					return pc.apply(opt, string(rest))
				}
				return pc.applyFromNextArg(opt)
			}
			pc.pendingShorts = rest
			code, err := pc.apply(opt, "")
			if err != nil {
				return 0, err
			}
			if code != 0 {
				return code, nil
			}
			continue
		}

		if pc.pos >= len(pc.args) {
			return -1, nil
		}
		arg := pc.args[pc.pos]
		pc.pos++

		if arg == "--" {
			pc.RemainingArgs = append(pc.RemainingArgs, pc.args[pc.pos:]...)
			pc.pos = len(pc.args)
			return -1, nil
		}
		if arg == "-" || !strings.HasPrefix(arg, "-") {
			pc.RemainingArgs = append(pc.RemainingArgs, arg)
			continue
		}

		if strings.HasPrefix(arg, "--") {
			name := arg[2:]
			var inlineVal string
			hasInline := false
			if i := strings.Index(name, "="); i >= 0 {
				inlineVal, name = name[i+1:], name[:i]
				hasInline = true
			}
			opt, ok := findLong(pc.table, name)
			if !ok {
				return 0, &PoptError{Option: arg, Reason: "unknown option"}
			}
			if hasInline {
				return pc.apply(opt, inlineVal)
			}
			if opt.argInfo == POPT_ARG_STRING || opt.argInfo == POPT_ARG_INT {
				return pc.applyFromNextArg(opt)
			}
			code, err := pc.apply(opt, "")
			if err != nil {
				return 0, err
			}
			if code != 0 {
				return code, nil
			}
			continue
		}

		pc.pendingShorts = []rune(arg[1:])
	}
}

func (pc *Context) applyFromNextArg(opt poptOption) (int, error) {
	if pc.pos >= len(pc.args) {
		return 0, &PoptError{Option: "--" + opt.longName, Reason: "argument required"}
	}
	val := pc.args[pc.pos]
	pc.pos++
	return pc.apply(opt, val)
}

// apply stores argVal (when the option takes one) into opt.arg and
// returns opt.val as the option code. POPT_ARG_VAL and POPT_BIT_SET rows
// return 0, since their val is the value stored rather than a code.
func (pc *Context) apply(opt poptOption, argVal string) (int, error) {
	switch opt.argInfo {
	case POPT_ARG_NONE:
		if p, ok := opt.arg.(*int); ok && p != nil {
			*p = 1
		}
	case POPT_ARG_VAL:
		if p, ok := opt.arg.(*int); ok && p != nil {
			*p = opt.val
		}
	case POPT_ARG_STRING:
		pc.optArg = argVal
		if p, ok := opt.arg.(*string); ok && p != nil {
			*p = argVal
		}
	case POPT_ARG_INT:
		pc.optArg = argVal
		n, err := strconv.Atoi(argVal)
		if err != nil {
			name := opt.longName
			if name == "" {
				name = opt.shortName
			}
			return 0, &PoptError{Option: name, Reason: fmt.Sprintf("invalid integer %q", argVal)}
		}
		if p, ok := opt.arg.(*int); ok && p != nil {
			*p = n
		}
	case POPT_BIT_SET:
		if p, ok := opt.arg.(*int); ok && p != nil {
			*p |= opt.val
		}
	}

	if opt.argInfo == POPT_ARG_VAL || opt.argInfo == POPT_BIT_SET {
		return 0, nil
	}
	return opt.val, nil
}
