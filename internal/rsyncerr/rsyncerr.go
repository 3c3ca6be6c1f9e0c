// Package rsyncerr gives each error kind from spec.md §7 a distinct
// sentinel so callers can use errors.Is/errors.As instead of string
// matching, mirroring the teacher's habit of small purpose-built error
// types (e.g. rsyncopts.PoptError).
package rsyncerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind sentinels. Wrap one of these with fmt.Errorf("...: %w", Kind) to
// build a concrete error that still satisfies errors.Is(err, Kind).
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrIO                = errors.New("i/o failure")
	ErrTimeout           = errors.New("timeout")
	ErrDeleteLimit       = errors.New("delete limit exceeded")
	ErrFilterParse       = errors.New("filter rule parse error")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrFeatureUnavailable = errors.New("feature unavailable")
	ErrPartialTransfer   = errors.New("partial transfer")
)

// ExitCode maps an error to the exit code table in spec.md §6.2 by the
// first sentinel it matches, checked in the order below. Errors not
// matching any sentinel map to 1.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrProtocolViolation):
		return 2
	case errors.Is(err, ErrDeleteLimit):
		return 25
	case errors.Is(err, ErrPartialTransfer):
		return 23
	case errors.Is(err, ErrIO):
		return 10
	default:
		return 1
	}
}

// IOError wraps a filesystem/system failure with the short verb phrase
// spec.md §7 requires ("create parent directory", "stage temporary file",
// "set timestamps", ...) so diagnostics stay actionable.
type IOError struct {
	Action string
	Path   string
	Err    error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %q: %v", e.Action, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Action, e.Err)
}

func (e *IOError) Unwrap() error { return errors.Join(ErrIO, e.Err) }

func NewIOError(action, path string, err error) *IOError {
	return &IOError{Action: action, Path: path, Err: err}
}

// TimeoutError carries the elapsed duration of an aborted operation.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s", e.Elapsed)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// DeleteLimitError reports deletions suppressed by --max-delete.
type DeleteLimitError struct {
	Skipped int
}

func (e *DeleteLimitError) Error() string {
	return fmt.Sprintf("--max-delete limit exceeded: %d deletion(s) skipped", e.Skipped)
}

func (e *DeleteLimitError) Unwrap() error { return ErrDeleteLimit }

// FilterParseError reports a malformed filter rule.
type FilterParseError struct {
	Location string
	Reason   string
}

func (e *FilterParseError) Error() string {
	return fmt.Sprintf("filter rule at %s: %s", e.Location, e.Reason)
}

func (e *FilterParseError) Unwrap() error { return ErrFilterParse }

// ProtocolViolationError reports a file-list decode or handshake rejection.
type ProtocolViolationError struct {
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}

func (e *ProtocolViolationError) Unwrap() error { return ErrProtocolViolation }

// FeatureUnavailableError reports a missing credential, disabled fallback,
// or unsupported remote operand.
type FeatureUnavailableError struct {
	What string
}

func (e *FeatureUnavailableError) Error() string {
	return fmt.Sprintf("feature unavailable: %s", e.What)
}

func (e *FeatureUnavailableError) Unwrap() error { return ErrFeatureUnavailable }

// PartialTransferError reports that the run completed but recorded one or
// more per-entry errors along the way.
type PartialTransferError struct {
	Count int
}

func (e *PartialTransferError) Error() string {
	return fmt.Sprintf("partial transfer: %d error(s)", e.Count)
}

func (e *PartialTransferError) Unwrap() error { return ErrPartialTransfer }

// InvalidArgumentError reports a malformed operand or incompatible option
// combination.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }
