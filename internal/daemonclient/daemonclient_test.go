package daemonclient

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

// fakeConn pairs a fixed read side (the daemon's scripted replies) with a
// buffer capturing what the client wrote, so assertions can check both
// the parsed result and the exact bytes sent.
type fakeConn struct {
	r io.Reader
	w bytes.Buffer
}

func (f *fakeConn) Read(p []byte) (int, error)  { return f.r.Read(p) }
func (f *fakeConn) Write(p []byte) (int, error) { return f.w.Write(p) }

func TestFetchModuleListPlainListing(t *testing.T) {
	script := "@RSYNCD: 32.0 md4\n" +
		"@RSYNCD: OK\n" +
		"archive\tbackup tree\n" +
		"scratch\n" +
		"@RSYNCD: EXIT\n"
	conn := &fakeConn{r: strings.NewReader(script)}

	list, err := FetchModuleList(conn, Options{ClientVersion: 32})
	if err != nil {
		t.Fatalf("FetchModuleList: %v", err)
	}
	if len(list.Entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(list.Entries), list.Entries)
	}
	if list.Entries[0].Name != "archive" || list.Entries[0].Comment != "backup tree" {
		t.Errorf("entry 0 = %+v", list.Entries[0])
	}
	if list.Entries[1].Name != "scratch" || list.Entries[1].HasComment {
		t.Errorf("entry 1 = %+v", list.Entries[1])
	}

	if got := conn.w.String(); got != "@RSYNCD: 32.0\n#list\n" {
		t.Errorf("client wrote %q, want greeting+request", got)
	}
}

func TestFetchModuleListMOTDAndCapabilities(t *testing.T) {
	script := "@RSYNCD: 31.0 md5\n" +
		"@RSYNCD: MOTD: welcome\n" +
		"@RSYNCD: CAP codecs=zstd xattrs\n" +
		"@RSYNCD: OK\n" +
		"@RSYNCD: EXIT\n"
	conn := &fakeConn{r: strings.NewReader(script)}

	list, err := FetchModuleList(conn, Options{ClientVersion: 31})
	if err != nil {
		t.Fatalf("FetchModuleList: %v", err)
	}
	if len(list.MOTDLines) != 1 || list.MOTDLines[0] != "welcome" {
		t.Errorf("MOTDLines = %v", list.MOTDLines)
	}
	if len(list.Capabilities) != 2 || list.Capabilities[0] != "codecs=zstd" {
		t.Errorf("Capabilities = %v", list.Capabilities)
	}
}

func TestFetchModuleListSuppressMOTD(t *testing.T) {
	script := "@RSYNCD: 31.0 md5\n" +
		"@RSYNCD: MOTD: welcome\n" +
		"@RSYNCD: OK\n" +
		"@RSYNCD: EXIT\n"
	conn := &fakeConn{r: strings.NewReader(script)}

	list, err := FetchModuleList(conn, Options{ClientVersion: 31, SuppressMOTD: true})
	if err != nil {
		t.Fatalf("FetchModuleList: %v", err)
	}
	if len(list.MOTDLines) != 0 {
		t.Errorf("MOTDLines = %v, want none", list.MOTDLines)
	}
}

func TestFetchModuleListInlineAuthChallenge(t *testing.T) {
	script := "@RSYNCD: 32.0 md4\n" +
		"@RSYNCD: AUTHREQD deadbeef\n" +
		"@RSYNCD: OK\n" +
		"@RSYNCD: EXIT\n"
	conn := &fakeConn{r: strings.NewReader(script)}

	_, err := FetchModuleList(conn, Options{ClientVersion: 32, Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("FetchModuleList: %v", err)
	}

	want := "@RSYNCD: 32.0\n" + "alice " + authResponse("secret", "deadbeef") + "\n#list\n"
	if got := conn.w.String(); got != want {
		t.Errorf("client wrote %q, want %q", got, want)
	}
}

func TestFetchModuleListTwoLineAuthChallenge(t *testing.T) {
	script := "@RSYNCD: 32.0 md4\n" +
		"@RSYNCD: AUTHREQD\n" +
		"@RSYNCD: AUTH cafebabe\n" +
		"@RSYNCD: OK\n" +
		"@RSYNCD: EXIT\n"
	conn := &fakeConn{r: strings.NewReader(script)}

	_, err := FetchModuleList(conn, Options{ClientVersion: 32, Username: "bob", Password: "hunter2"})
	if err != nil {
		t.Fatalf("FetchModuleList: %v", err)
	}
	wantResponse := "bob " + authResponse("hunter2", "cafebabe")
	if !strings.Contains(conn.w.String(), wantResponse) {
		t.Errorf("client wrote %q, want it to contain %q", conn.w.String(), wantResponse)
	}
}

func TestFetchModuleListAuthFailed(t *testing.T) {
	script := "@RSYNCD: 32.0 md4\n" +
		"@RSYNCD: AUTHREQD deadbeef\n" +
		"@RSYNCD: AUTHFAILED\n"
	conn := &fakeConn{r: strings.NewReader(script)}

	_, err := FetchModuleList(conn, Options{ClientVersion: 32, Username: "alice", Password: "wrong"})
	if err == nil {
		t.Fatal("expected an error for AUTHFAILED")
	}
}

func TestFetchModuleListDenied(t *testing.T) {
	script := "@RSYNCD: 32.0 md4\n" +
		"@RSYNCD: DENIED restricted to admins\n"
	conn := &fakeConn{r: strings.NewReader(script)}

	_, err := FetchModuleList(conn, Options{ClientVersion: 32})
	if err == nil {
		t.Fatal("expected an error for DENIED")
	}
}

func TestFetchModuleListRejectsBadGreeting(t *testing.T) {
	conn := &fakeConn{r: strings.NewReader("not a greeting\n")}
	if _, err := FetchModuleList(conn, Options{ClientVersion: 32}); err == nil {
		t.Fatal("expected an error for malformed greeting")
	}
}

func TestAuthResponseDeterministic(t *testing.T) {
	a := authResponse("secret", "challenge")
	b := authResponse("secret", "challenge")
	if a != b {
		t.Fatalf("authResponse not deterministic: %q vs %q", a, b)
	}
	if strings.ContainsAny(a, "=") {
		t.Errorf("authResponse %q should have no base64 padding", a)
	}
}

func TestResolvePasswordExplicitOverride(t *testing.T) {
	got, err := ResolvePassword("explicit-secret")
	if err != nil {
		t.Fatalf("ResolvePassword: %v", err)
	}
	if got != "explicit-secret" {
		t.Errorf("ResolvePassword() = %q, want explicit-secret", got)
	}
}

func TestResolvePasswordMissingIsFeatureUnavailable(t *testing.T) {
	t.Setenv("RSYNC_SUB003_PASSWORD", "")
	t.Setenv("RSYNC_PASSWORD", "")
	t.Setenv("RSYNC_PASSWORD_FILE", "")
	if _, err := ResolvePassword(""); err == nil {
		t.Fatal("expected an error when no password source is configured")
	}
}

func TestResolvePasswordLegacyEnvVar(t *testing.T) {
	t.Setenv("RSYNC_SUB003_PASSWORD", "")
	t.Setenv("RSYNC_PASSWORD", "legacy-secret")
	got, err := ResolvePassword("")
	if err != nil {
		t.Fatalf("ResolvePassword: %v", err)
	}
	if got != "legacy-secret" {
		t.Errorf("ResolvePassword() = %q, want legacy-secret", got)
	}
}
