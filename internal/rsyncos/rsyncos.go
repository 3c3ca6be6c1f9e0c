// Package rsyncos abstracts the process-level environment (standard
// streams, sandboxing switches, diagnostic logging) so the CLI entry
// points and the daemon can be driven from tests without touching the
// real process.
package rsyncos

import (
	"fmt"
	"io"
)

// Std bundles the three standard streams a command-line invocation reads
// and writes through.
type Std struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Env extends Std with the switch cmd/gokr-rsync's daemon mode consults to
// decide whether to sandbox the process, and with Logf for diagnostics.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// DontRestrict disables internal/restrict's landlock sandboxing, for
	// environments (containers, tests) where it would be redundant or
	// unsupported.
	DontRestrict bool
}

// Restrict reports whether process-level sandboxing should be applied.
func (e *Env) Restrict() bool { return !e.DontRestrict }

// Logf writes a formatted diagnostic line to Stderr.
func (e *Env) Logf(format string, v ...interface{}) {
	if e.Stderr == nil {
		return
	}
	fmt.Fprintf(e.Stderr, format+"\n", v...)
}

// Std returns the Std view of e's standard streams.
func (e *Env) Std() Std {
	return Std{Stdin: e.Stdin, Stdout: e.Stdout, Stderr: e.Stderr}
}
