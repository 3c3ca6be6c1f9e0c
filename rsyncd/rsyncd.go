// Package rsyncd implements the daemon side of the module-list protocol
// (spec.md §4.15): a listener that negotiates the @RSYNCD greeting,
// enumerates configured modules to a connecting client, and enforces
// per-module ACLs. Transfer sessions (a client requesting an actual
// module sync) are out of scope for this core and are rejected with a
// diagnostic rather than serviced.
package rsyncd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/oferchen/rsync-sub003/internal/log"
	"github.com/oferchen/rsync-sub003/internal/protover"
	"github.com/oferchen/rsync-sub003/internal/rsyncerr"
	"github.com/oferchen/rsync-sub003/internal/rsyncos"
)

// Module describes one daemon-exported module: a name clients request by,
// the local directory it maps to, an optional comment shown in listings,
// and the ACL rules and writability governing access to it.
type Module struct {
	Name     string   `toml:"name"`
	Path     string   `toml:"path"`
	Comment  string   `toml:"comment"`
	ACL      []string `toml:"acl"`
	Writable bool     `toml:"writable"`
}

// Option specifies the server options.
type Option interface {
	applyServer(*Server)
}

type serverOptionFunc func(server *Server)

func (f serverOptionFunc) applyServer(s *Server) {
	f(s)
}

// WithLogger specifies the logger to use for the server.
// It also sets the global logger used by the rsync package.
func WithLogger(logger log.Logger) Option {
	return serverOptionFunc(func(s *Server) {
		s.logger = logger
		log.SetLogger(logger)
	})
}

func WithStderr(stderr io.Writer) Option {
	return serverOptionFunc(func(s *Server) {
		s.stderr = stderr
	})
}

func NewServer(modules []Module, opts ...Option) (*Server, error) {
	for _, mod := range modules {
		if err := validateModule(mod); err != nil {
			return nil, err
		}
	}

	server := &Server{
		modules: modules,
	}

	for _, opt := range opts {
		opt.applyServer(server)
	}

	// Default to os.Stderr if no stderr was specified.
	// Explicitly use io.Discard if you do not want stderr.
	if server.stderr == nil {
		server.stderr = os.Stderr
	}

	if server.logger == nil {
		server.logger = log.New(server.stderr)
	}

	return server, nil
}

type Server struct {
	stderr io.Writer
	logger log.Logger

	modules []Module
}

func (s *Server) getModule(requestedModule string) (Module, error) {
	for _, mod := range s.modules {
		if mod.Name == requestedModule {
			return mod, nil
		}
	}

	return Module{}, fmt.Errorf("no such module: %s", requestedModule)
}

// formatModuleList renders the module listing sent in response to
// "#list", one module per line, LF-terminated. A module with a comment is
// rendered "name\tcomment"; one without is rendered as the bare name
// (spec.md §4.15: "Any other line is a module entry: split at the first
// tab; first field is the module name, second (optional) is the
// comment.").
func (s *Server) formatModuleList() string {
	var list strings.Builder
	for _, mod := range s.modules {
		if mod.Comment != "" {
			fmt.Fprintf(&list, "%s\t%s\n", mod.Name, mod.Comment)
		} else {
			fmt.Fprintf(&list, "%s\n", mod.Name)
		}
	}
	return list.String()
}

func checkACL(acls []string, remoteAddr net.Addr) error {
	if len(acls) == 0 {
		return nil
	}
	host, _, err := net.SplitHostPort(remoteAddr.String())
	if err != nil {
		return fmt.Errorf("BUG: invalid remote address %q", remoteAddr.String())
	}
	remoteIP := net.ParseIP(host)
	if remoteIP == nil {
		return fmt.Errorf("BUG: invalid remote host %q", host)
	}
	for _, acl := range acls {
		i := strings.Index(acl, " ")
		if i < 0 {
			return fmt.Errorf("invalid acl: %q (no space found)", acl)
		}
		action, who := acl[:i], acl[i+len(" "):]
		if action != "allow" && action != "deny" {
			return fmt.Errorf("invalid acl: %q (syntax: allow|deny <all|ipnet>)", acl)
		}
		if who == "all" {
			// The all keyword matches any remote IP address
		} else {
			_, cidr, err := net.ParseCIDR(who)
			if err != nil {
				return fmt.Errorf("invalid acl: %q (syntax: allow|deny <all|ipnet>)", acl)
			}
			if !cidr.Contains(remoteIP) {
				// Skip this instruction, the remote IP does not match
				continue
			}
		}
		switch action {
		case "allow":
			return nil
		case "deny":
			return fmt.Errorf("access denied (acl %q)", acl)
		default:
			return fmt.Errorf("invalid acl: %q (syntax: allow|deny <all|ipnet>)", acl)
		}
	}
	return nil
}

// greetingChecksums lists the checksum names advertised in the daemon
// greeting line. This core negotiates md4 block signatures only (see
// internal/delta), so that is the sole entry.
const greetingChecksums = "md4"

// daemonProtocolVersion is the protocol major version advertised in the
// @RSYNCD greeting: the newest one this core negotiates.
var daemonProtocolVersion = protover.Supported[len(protover.Supported)-1]

// HandleDaemonConn drives one module-list session (spec.md §4.15): it
// sends the greeting, reads the client's, lists modules on "#list", and
// rejects a named-module request since transfer sessions are not
// implemented by this daemon core.
func (s *Server) HandleDaemonConn(ctx context.Context, osenv rsyncos.Std, conn io.ReadWriter, remoteAddr net.Addr) error {
	rd := bufio.NewReader(conn)

	if _, err := fmt.Fprintf(conn, "@RSYNCD: %d.0 %s\n", daemonProtocolVersion, greetingChecksums); err != nil {
		return rsyncerr.NewIOError("send daemon greeting", "", err)
	}

	clientGreeting, err := readLine(rd)
	if err != nil {
		return rsyncerr.NewIOError("read client greeting", "", err)
	}
	if !strings.HasPrefix(clientGreeting, "@RSYNCD: ") {
		return &rsyncerr.ProtocolViolationError{Reason: fmt.Sprintf("invalid client greeting %q", clientGreeting)}
	}

	requestedModule, err := readLine(rd)
	if err != nil {
		return rsyncerr.NewIOError("read requested module", "", err)
	}

	if requestedModule == "" || requestedModule == "#list" {
		s.logger.Printf("client %v requested module listing", remoteAddr)
		if _, err := io.WriteString(conn, s.formatModuleList()); err != nil {
			return rsyncerr.NewIOError("send module listing", "", err)
		}
		if _, err := io.WriteString(conn, "@RSYNCD: EXIT\n"); err != nil {
			return rsyncerr.NewIOError("send module listing", "", err)
		}
		return nil
	}

	s.logger.Printf("client %v requested module %q", remoteAddr, requestedModule)
	module, err := s.getModule(requestedModule)
	if err != nil {
		fmt.Fprintf(conn, "@ERROR: Unknown module %q\n", requestedModule)
		return &rsyncerr.ProtocolViolationError{Reason: fmt.Sprintf("unknown module %q", requestedModule)}
	}

	if err := checkACL(module.ACL, remoteAddr); err != nil {
		fmt.Fprintf(conn, "@RSYNCD: DENIED %v\n", err)
		return &rsyncerr.FeatureUnavailableError{What: fmt.Sprintf("denied access to module %q: %v", module.Name, err)}
	}

	if _, err := io.WriteString(conn, "@RSYNCD: OK\n"); err != nil {
		return rsyncerr.NewIOError("send OK", "", err)
	}

	// The client now sends its request flags, terminated by a blank line,
	// the way a transfer session would continue. This core doesn't
	// implement transfer sessions, so the lines are drained and discarded
	// before reporting the rejection.
	for {
		line, err := readLine(rd)
		if err != nil {
			return rsyncerr.NewIOError("read request flags", "", err)
		}
		if line == "" {
			break
		}
	}

	fmt.Fprintf(conn, "@ERROR: module %q: transfer not implemented by this daemon\n", module.Name)
	return &rsyncerr.FeatureUnavailableError{What: fmt.Sprintf("transfer for module %q", module.Name)}
}

// readLine reads one LF-terminated line, stripping a trailing CR (spec.md
// §4.16: "Lines are LF-terminated; CR before LF is stripped on read.").
func readLine(rd *bufio.Reader) (string, error) {
	line, err := rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	osenv := rsyncos.Std{
		Stdin:  nil,
		Stdout: nil,
		Stderr: s.stderr,
	}

	go func() {
		<-ctx.Done()
		ln.Close() // unblocks Accept()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil // ignore expected 'use of closed network connection' error on context cancel
			default:
				return err
			}
		}
		remoteAddr := conn.RemoteAddr()
		s.logger.Printf("remote connection from %s", remoteAddr)
		go func() {
			defer conn.Close()
			if err := s.HandleDaemonConn(ctx, osenv, conn, remoteAddr); err != nil {
				s.logger.Printf("[%s] handle: %v", remoteAddr, err)
			}
		}()
	}
}

func validateModule(mod Module) error {
	if mod.Name == "" {
		return errors.New("module has no name")
	}
	if mod.Path == "" {
		return fmt.Errorf("module %q has empty path", mod.Name)
	}

	return nil
}
