// Package proxytunnel negotiates an HTTP CONNECT tunnel to a daemon
// through an RSYNC_PROXY-style forward proxy (spec.md §4.15 "Transport"),
// and parses the RSYNC_PROXY environment value that names the proxy.
package proxytunnel

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/oferchen/rsync-sub003/internal/rsyncerr"
)

// Proxy describes a forward proxy parsed from RSYNC_PROXY: an optional
// scheme (only "http"/"https" permitted), optional basic-auth credentials,
// and the proxy's own host:port. Path components are rejected.
type Proxy struct {
	Scheme   string
	User     string
	Password string
	Host     string
	Port     string
}

// ParseProxy parses an RSYNC_PROXY value of the form
// "[scheme://][user:pass@]host:port". The scheme, when present, must be
// http or https; any path component is rejected.
func ParseProxy(raw string) (*Proxy, error) {
	s := raw
	scheme := ""
	if i := strings.Index(s, "://"); i >= 0 {
		scheme = strings.ToLower(s[:i])
		if scheme != "http" && scheme != "https" {
			return nil, &rsyncerr.FeatureUnavailableError{What: fmt.Sprintf("proxy scheme %q (only http/https permitted)", scheme)}
		}
		s = s[i+3:]
	}

	var user, pass string
	if i := strings.LastIndex(s, "@"); i >= 0 {
		cred := s[:i]
		s = s[i+1:]
		if j := strings.Index(cred, ":"); j >= 0 {
			user, pass = cred[:j], cred[j+1:]
		} else {
			user = cred
		}
	}

	if i := strings.Index(s, "/"); i >= 0 {
		return nil, &rsyncerr.FeatureUnavailableError{What: fmt.Sprintf("proxy address %q: path components forbidden", raw)}
	}

	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return nil, &rsyncerr.FeatureUnavailableError{What: fmt.Sprintf("proxy address %q: %v", raw, err)}
	}

	return &Proxy{Scheme: scheme, User: user, Password: pass, Host: host, Port: port}, nil
}

// Addr returns the proxy's dial address (host:port).
func (p *Proxy) Addr() string {
	return net.JoinHostPort(p.Host, p.Port)
}

// basicAuthHeader returns the "Proxy-Authorization: Basic ..." header
// line, or "" when no credentials were supplied.
func (p *Proxy) basicAuthHeader() string {
	if p.User == "" && p.Password == "" {
		return ""
	}
	token := base64.StdEncoding.EncodeToString([]byte(p.User + ":" + p.Password))
	return "Proxy-Authorization: Basic " + token + "\r\n"
}

// Negotiate writes a CONNECT request for authority (an unbracketed
// "host:port", even when host is an IPv6 literal — spec.md §8.2 Scenario F
// requires exactly "CONNECT fe80::1%eth0:873 HTTP/1.0\r\n", no brackets)
// over rw, then reads and validates the proxy's response. Any "HTTP/*"
// status line whose reason phrase case-insensitively contains "200" in
// the status code position is accepted; anything else is a protocol
// violation.
func Negotiate(rw io.ReadWriter, authority string, proxy *Proxy) error {
	var req strings.Builder
	fmt.Fprintf(&req, "CONNECT %s HTTP/1.0\r\n", authority)
	if proxy != nil {
		if h := proxy.basicAuthHeader(); h != "" {
			req.WriteString(h)
		}
	}
	req.WriteString("\r\n")
	if _, err := io.WriteString(rw, req.String()); err != nil {
		return rsyncerr.NewIOError("send proxy CONNECT request", "", err)
	}

	rd := bufio.NewReader(rw)
	status, err := rd.ReadString('\n')
	if err != nil {
		return rsyncerr.NewIOError("read proxy CONNECT response", "", err)
	}
	status = strings.TrimRight(status, "\r\n")
	if !isEstablished(status) {
		return &rsyncerr.ProtocolViolationError{Reason: fmt.Sprintf("proxy CONNECT rejected: %q", status)}
	}

	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return rsyncerr.NewIOError("read proxy CONNECT headers", "", err)
		}
		if strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}
	return nil
}

// isEstablished reports whether statusLine is an "HTTP/*" line carrying a
// 200 status code, accepted case-insensitively (spec.md §4.15: "Proxy
// responses accept any HTTP/* '200 ...' status line").
func isEstablished(statusLine string) bool {
	if !strings.HasPrefix(strings.ToUpper(statusLine), "HTTP/") {
		return false
	}
	fields := strings.Fields(statusLine)
	if len(fields) < 2 {
		return false
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return false
	}
	return code == 200
}

// SubstituteConnectProgram expands %H (host), %P (port), and %% (literal
// percent) in tmpl, the connect-program override for replacing a direct
// TCP dial with the output of an executed command.
func SubstituteConnectProgram(tmpl, host, port string) string {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '%' || i == len(tmpl)-1 {
			b.WriteByte(tmpl[i])
			continue
		}
		switch tmpl[i+1] {
		case 'H':
			b.WriteString(host)
		case 'P':
			b.WriteString(port)
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte(tmpl[i])
			b.WriteByte(tmpl[i+1])
		}
		i++
	}
	return b.String()
}
