// Package rsyncclient is the embeddable client side of the module-list
// protocol: parse a daemon reference, dial it (directly, through an
// RSYNC_PROXY tunnel, or via a connect-program), and enumerate the
// modules it advertises. Actual transfer sessions are out of scope (see
// rsyncd's package doc) so this client's one operation is listing.
package rsyncclient

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/oferchen/rsync-sub003/internal/daemonclient"
	"github.com/oferchen/rsync-sub003/internal/protover"
	"github.com/oferchen/rsync-sub003/internal/proxytunnel"
	"github.com/oferchen/rsync-sub003/internal/rsyncerr"
)

// Reference names a daemon and, optionally, a module to request. An empty
// Module means "#list".
type Reference struct {
	Host   string
	Port   string
	Module string
	User   string
}

const defaultDaemonPort = "873"

// ParseReference accepts "rsync://[user@]host[:port]/module" or
// "host::module" (bare "host::" lists modules) and returns the
// Reference it names. Any other form is not a daemon reference.
func ParseReference(raw string) (Reference, bool, error) {
	if strings.HasPrefix(raw, "rsync://") {
		u, err := url.Parse(raw)
		if err != nil {
			return Reference{}, true, &rsyncerr.InvalidArgumentError{Reason: fmt.Sprintf("malformed rsync:// URL %q: %v", raw, err)}
		}
		ref := Reference{Host: u.Hostname(), Port: u.Port(), Module: strings.TrimPrefix(u.Path, "/")}
		if u.User != nil {
			ref.User = u.User.Username()
		}
		if ref.Port == "" {
			ref.Port = defaultDaemonPort
		}
		return ref, true, nil
	}

	if i := strings.Index(raw, "::"); i >= 0 {
		hostPart, module := raw[:i], raw[i+2:]
		user := ""
		if j := strings.IndexByte(hostPart, '@'); j >= 0 {
			user, hostPart = hostPart[:j], hostPart[j+1:]
		}
		target, err := daemonclient.ParseHostSpec(hostPart, defaultDaemonPort)
		if err != nil {
			return Reference{}, true, err
		}
		return Reference{Host: target.Host, Port: target.Port, Module: module, User: user}, true, nil
	}

	return Reference{}, false, nil
}

// Client lists modules on one daemon reference.
type Client struct {
	ref  Reference
	opts daemonclient.Options
}

// New builds a Client for ref. username/password authenticate an
// AUTHREQD challenge; password, if empty, is resolved from the
// environment or a secrets file when a challenge actually arrives.
func New(ref Reference, password string) *Client {
	return &Client{
		ref: ref,
		opts: daemonclient.Options{
			ClientVersion: protover.Supported[len(protover.Supported)-1],
			Module:        ref.Module,
			Username:      ref.User,
			Password:      password,
		},
	}
}

// List dials the daemon and returns its module listing (or, when
// ref.Module is set, the handshake result up to the point the daemon
// rejects the transfer request — named-module transfer is not
// implemented by this core).
func (c *Client) List(ctx context.Context) (*daemonclient.ModuleList, error) {
	target := daemonclient.Target{Host: c.ref.Host, Port: c.ref.Port}

	dialOpts := daemonclient.DialOptions{}
	if connectProg := os.Getenv("RSYNC_CONNECT_PROG"); connectProg != "" {
		dialOpts.ConnectProgram = connectProg
	} else if proxyEnv := os.Getenv("RSYNC_PROXY"); proxyEnv != "" {
		proxy, err := proxytunnel.ParseProxy(proxyEnv)
		if err != nil {
			return nil, err
		}
		dialOpts.Proxy = proxy
	}

	conn, err := daemonclient.Dial(ctx, target, dialOpts)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return daemonclient.FetchModuleList(conn, c.opts)
}
