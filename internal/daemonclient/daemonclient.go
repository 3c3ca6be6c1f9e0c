// Package daemonclient implements the client side of the module-list
// protocol (spec.md §4.15, component C15): handshake negotiation, the
// MOTD/CAP/WARNING/AUTHREQD/AUTHFAILED/DENIED/EXIT message set, module
// enumeration, and the password resolution chain AUTHREQD triggers. Dial
// strategies (direct TCP, HTTP CONNECT proxy, connect-program) live here
// too since composing them is part of establishing the connection this
// package then speaks the protocol over.
package daemonclient

import (
	"bufio"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oferchen/rsync-sub003/internal/rsyncerr"
	"github.com/oferchen/rsync-sub003/internal/xsys"
)

// ModuleEntry is one line of a module listing: a name and an optional
// comment (absent when the daemon sent a bare name with no tab).
type ModuleEntry struct {
	Name    string
	Comment string
	HasComment bool
}

// ModuleList is the result of a "#list" session.
type ModuleList struct {
	MOTDLines    []string
	Capabilities []string
	Warnings     []string
	Entries      []ModuleEntry
}

// Options configures one module-list session.
type Options struct {
	// ClientVersion is the protocol major version this client offers in
	// its greeting line.
	ClientVersion int
	// Module is the request sent after OK: "" or "#list" to enumerate
	// modules, any other value names a module (whose transfer this
	// package does not implement past the handshake).
	Module string
	// SuppressMOTD drops MOTD lines instead of collecting them.
	SuppressMOTD bool
	// Username/Password authenticate an AUTHREQD challenge. Password, if
	// empty, is resolved via ResolvePassword when a challenge arrives.
	Username string
	Password string
}

// FetchModuleList drives one handshake+listing session over conn,
// returning the accumulated MOTD/CAP/warning lines and module entries
// (spec.md §8.2 Scenario E).
func FetchModuleList(conn io.ReadWriter, opts Options) (*ModuleList, error) {
	rd := bufio.NewReader(conn)

	greeting, err := readLine(rd)
	if err != nil {
		return nil, rsyncerr.NewIOError("read daemon greeting", "", err)
	}
	if !strings.HasPrefix(greeting, "@RSYNCD: ") {
		return nil, &rsyncerr.ProtocolViolationError{Reason: fmt.Sprintf("invalid daemon greeting %q", greeting)}
	}

	if _, err := fmt.Fprintf(conn, "@RSYNCD: %d.0\n", opts.ClientVersion); err != nil {
		return nil, rsyncerr.NewIOError("send client greeting", "", err)
	}

	list := &ModuleList{}
	requested := false
	var pendingChallenge string
	awaitingChallenge := false

	for {
		line, err := readLine(rd)
		if err != nil {
			return nil, rsyncerr.NewIOError("read daemon message", "", err)
		}

		switch {
		case strings.HasPrefix(line, "@RSYNCD: MOTD: "):
			if !opts.SuppressMOTD {
				list.MOTDLines = append(list.MOTDLines, strings.TrimPrefix(line, "@RSYNCD: MOTD: "))
			}
		case strings.HasPrefix(line, "@RSYNCD: MOTD "):
			if !opts.SuppressMOTD {
				list.MOTDLines = append(list.MOTDLines, strings.TrimPrefix(line, "@RSYNCD: MOTD "))
			}
		case strings.HasPrefix(line, "@RSYNCD: CAP "):
			tokens := strings.Fields(strings.TrimPrefix(line, "@RSYNCD: CAP "))
			list.Capabilities = append(list.Capabilities, tokens...)
		case strings.HasPrefix(line, "@WARNING: "):
			list.Warnings = append(list.Warnings, strings.TrimPrefix(line, "@WARNING: "))
		case isErrorLine(line):
			return nil, fmt.Errorf("%s: %w", stripErrorPrefix(line), rsyncerr.ErrPartialTransfer)
		case strings.HasPrefix(line, "@RSYNCD: DENIED "):
			reason := strings.TrimPrefix(line, "@RSYNCD: DENIED ")
			return nil, fmt.Errorf("denied access to module: %s: %w", reason, rsyncerr.ErrPartialTransfer)
		case line == "@RSYNCD: AUTHREQD" || strings.HasPrefix(line, "@RSYNCD: AUTHREQD "):
			challenge := strings.TrimPrefix(strings.TrimPrefix(line, "@RSYNCD: AUTHREQD"), " ")
			if challenge == "" {
				awaitingChallenge = true
				continue
			}
			if err := respondToChallenge(conn, opts, challenge); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, "@RSYNCD: AUTH "):
			pendingChallenge = strings.TrimPrefix(line, "@RSYNCD: AUTH ")
			if awaitingChallenge {
				if err := respondToChallenge(conn, opts, pendingChallenge); err != nil {
					return nil, err
				}
				awaitingChallenge = false
			}
		case strings.HasPrefix(line, "@RSYNCD: AUTHFAILED"):
			return nil, &rsyncerr.FeatureUnavailableError{What: "rejected provided credentials"}
		case line == "@RSYNCD: OK":
			if !requested {
				req := opts.Module
				if req == "" {
					req = "#list"
				}
				if _, err := fmt.Fprintf(conn, "%s\n", req); err != nil {
					return nil, rsyncerr.NewIOError("send module request", "", err)
				}
				requested = true
			}
		case line == "@RSYNCD: EXIT":
			return list, nil
		default:
			entry := ModuleEntry{}
			if i := strings.IndexByte(line, '\t'); i >= 0 {
				entry.Name, entry.Comment, entry.HasComment = line[:i], line[i+1:], true
			} else {
				entry.Name = line
			}
			list.Entries = append(list.Entries, entry)
		}
	}
}

func isErrorLine(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "@error: ") || strings.HasPrefix(lower, "@error ")
}

// stripErrorPrefix removes the "@ERROR:"/"@ERROR " lead-in (matched
// case-insensitively) to recover the message text an @ERROR line carries.
func stripErrorPrefix(line string) string {
	lower := strings.ToLower(line)
	switch {
	case strings.HasPrefix(lower, "@error: "):
		return line[len("@error: "):]
	case strings.HasPrefix(lower, "@error "):
		return line[len("@error "):]
	default:
		return line
	}
}

func respondToChallenge(conn io.Writer, opts Options, challenge string) error {
	password := opts.Password
	if password == "" {
		resolved, err := ResolvePassword("")
		if err != nil {
			return err
		}
		password = resolved
	}
	response := authResponse(password, challenge)
	_, err := fmt.Fprintf(conn, "%s %s\n", opts.Username, response)
	if err != nil {
		return rsyncerr.NewIOError("send auth response", "", err)
	}
	return nil
}

// authResponse computes base64 (no padding) of MD5(secret||challenge), the
// response rsyncd's AUTHREQD challenge expects.
func authResponse(secret, challenge string) string {
	sum := md5.Sum([]byte(secret + challenge))
	return base64.RawStdEncoding.EncodeToString(sum[:])
}

// ResolvePassword implements spec.md §4.15's password resolution chain:
// an explicit override, then a branded environment variable, then the
// legacy RSYNC_PASSWORD variable, then a secrets file named by
// RSYNC_PASSWORD_FILE (which must be owned by the caller and not
// accessible by group or others on Unix). Missing password is a FeatureUnavailable error mentioning
// RSYNC_PASSWORD.
func ResolvePassword(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if v := os.Getenv("RSYNC_SUB003_PASSWORD"); v != "" {
		return v, nil
	}
	if v := os.Getenv("RSYNC_PASSWORD"); v != "" {
		return v, nil
	}
	if path := os.Getenv("RSYNC_PASSWORD_FILE"); path != "" {
		return readSecretsFile(path)
	}
	return "", &rsyncerr.FeatureUnavailableError{What: "no password available; set RSYNC_PASSWORD"}
}

func readSecretsFile(path string) (string, error) {
	if err := checkSecretsFilePermissions(path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", rsyncerr.NewIOError("read secrets file", path, err)
	}
	line := strings.TrimRight(string(data), "\n")
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return line, nil
}

// checkSecretsFilePermissions rejects a password file that is not owned
// by the calling user or is accessible by anyone other than its owner,
// mirroring rsync's refusal to trust a world- or group-readable secrets
// file.
func checkSecretsFilePermissions(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return rsyncerr.NewIOError("stat secrets file", path, err)
	}
	if uid, _, ok := xsys.StatOwner(fi); ok && int(uid) != os.Getuid() {
		return &rsyncerr.FeatureUnavailableError{What: fmt.Sprintf("secrets file %s must be owned by the current user", path)}
	}
	if fi.Mode().Perm()&0o077 != 0 {
		return &rsyncerr.FeatureUnavailableError{What: fmt.Sprintf("secrets file %s must not be accessible by group or others (mode %04o)", path, fi.Mode().Perm())}
	}
	return nil
}

func readLine(rd *bufio.Reader) (string, error) {
	line, err := rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}
