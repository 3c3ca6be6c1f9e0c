package daemonclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os/exec"

	"github.com/google/shlex"

	"github.com/oferchen/rsync-sub003/internal/proxytunnel"
	"github.com/oferchen/rsync-sub003/internal/rsyncerr"
)

// AddressFamily restricts DNS resolution to one address family, or leaves
// it unrestricted.
type AddressFamily int

const (
	AnyFamily AddressFamily = iota
	IPv4Only
	IPv6Only
)

// Target is a resolved daemon address: host (possibly an IPv6 zone-scoped
// literal), port, and the family restriction that produced it.
type Target struct {
	Host   string
	Port   string
	Family AddressFamily
}

// ParseHostSpec splits a "host[:port]" or URL-form daemon reference,
// percent-decoding the host and, for IPv6 literals, any zone suffix. A
// truncated percent-escape is a FeatureUnavailable error.
func ParseHostSpec(spec string, defaultPort string) (Target, error) {
	host, port := spec, defaultPort
	if h, p, err := net.SplitHostPort(spec); err == nil {
		host, port = h, p
	}

	decoded, err := url.PathUnescape(host)
	if err != nil {
		return Target{}, &rsyncerr.FeatureUnavailableError{What: fmt.Sprintf("malformed percent-escape in host %q: %v", host, err)}
	}

	return Target{Host: decoded, Port: port}, nil
}

// Resolve looks up target.Host under the network implied by
// target.Family, returning the first matching address. Resolving an
// IPv4-only host with IPv6 required (or vice versa) surfaces as a
// ProtocolViolationError, matching the "SocketIO error" spec.md assigns
// to an address-family mismatch.
func Resolve(ctx context.Context, target Target) (string, error) {
	network := "ip"
	switch target.Family {
	case IPv4Only:
		network = "ip4"
	case IPv6Only:
		network = "ip6"
	}

	resolver := net.DefaultResolver
	addrs, err := resolver.LookupIP(ctx, network, target.Host)
	if err != nil {
		return "", &rsyncerr.ProtocolViolationError{Reason: fmt.Sprintf("resolving %q under %s: %v", target.Host, network, err)}
	}
	if len(addrs) == 0 {
		return "", &rsyncerr.ProtocolViolationError{Reason: fmt.Sprintf("no %s addresses for %q", network, target.Host)}
	}
	return addrs[0].String(), nil
}

// DialOptions selects how Dial reaches the daemon: a direct TCP
// connection, an HTTP CONNECT tunnel through a forward proxy, or a
// connect-program whose stdio is wired to the session in place of a
// socket.
type DialOptions struct {
	Proxy          *proxytunnel.Proxy
	ConnectProgram string
}

// Conn is a bidirectional daemon session, whether backed by a net.Conn or
// a connect-program's stdio pipes.
type Conn interface {
	io.ReadWriteCloser
}

// Dial establishes a session with the daemon at target, honoring
// opts.ConnectProgram (taking priority over a direct/proxied TCP dial)
// and opts.Proxy (an HTTP CONNECT tunnel wrapping the direct dial).
func Dial(ctx context.Context, target Target, opts DialOptions) (Conn, error) {
	if opts.ConnectProgram != "" {
		return dialConnectProgram(ctx, opts.ConnectProgram, target)
	}

	dialAddr := target.Host
	if opts.Proxy != nil {
		dialAddr = opts.Proxy.Addr()
	}

	var d net.Dialer
	network := "tcp"
	switch target.Family {
	case IPv4Only:
		network = "tcp4"
	case IPv6Only:
		network = "tcp6"
	}

	conn, err := d.DialContext(ctx, network, net.JoinHostPort(dialAddr, pickPort(opts, target)))
	if err != nil {
		return nil, rsyncerr.NewIOError("dial daemon", dialAddr, err)
	}

	if opts.Proxy != nil {
		authority := formatAuthority(target.Host, target.Port)
		if err := proxytunnel.Negotiate(conn, authority, opts.Proxy); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return conn, nil
}

func pickPort(opts DialOptions, target Target) string {
	if opts.Proxy != nil {
		return opts.Proxy.Port
	}
	return target.Port
}

// formatAuthority renders host:port for a CONNECT request authority,
// never bracketing an IPv6 literal even when it carries a zone suffix
// (spec.md §8.2 Scenario F).
func formatAuthority(host, port string) string {
	return host + ":" + port
}

func dialConnectProgram(ctx context.Context, tmpl string, target Target) (Conn, error) {
	expanded := proxytunnel.SubstituteConnectProgram(tmpl, target.Host, target.Port)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, &rsyncerr.InvalidArgumentError{Reason: fmt.Sprintf("connect-program command: %v", err)}
	}
	if len(fields) == 0 {
		return nil, &rsyncerr.InvalidArgumentError{Reason: "empty connect-program command"}
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, rsyncerr.NewIOError("open connect-program stdin", fields[0], err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, rsyncerr.NewIOError("open connect-program stdout", fields[0], err)
	}
	if err := cmd.Start(); err != nil {
		return nil, rsyncerr.NewIOError("start connect-program", fields[0], err)
	}

	return &pipeConn{stdin: stdin, stdout: stdout, cmd: cmd}, nil
}

type pipeConn struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
	cmd    *exec.Cmd
}

func (p *pipeConn) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *pipeConn) Write(b []byte) (int, error) { return p.stdin.Write(b) }
func (p *pipeConn) Close() error {
	p.stdin.Close()
	return p.cmd.Wait()
}
