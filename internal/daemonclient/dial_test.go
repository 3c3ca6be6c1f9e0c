package daemonclient

import (
	"bufio"
	"context"
	"runtime"
	"testing"
)

// TestDialConnectProgramHonorsQuoting exercises the shlex-based tokenizer
// dialConnectProgram uses: a single-quoted script argument containing
// spaces must reach the shell as one argument, not be split on its
// internal whitespace the way strings.Fields would split it.
func TestDialConnectProgramHonorsQuoting(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("connect-program exec uses /bin/sh")
	}

	conn, err := dialConnectProgram(context.Background(), `/bin/sh -c 'echo one two'`, Target{Host: "example.com", Port: "873"})
	if err != nil {
		t.Fatalf("dialConnectProgram: %v", err)
	}
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "one two\n" {
		t.Errorf("output = %q, want %q", line, "one two\n")
	}
}

func TestDialConnectProgramRejectsEmptyCommand(t *testing.T) {
	_, err := dialConnectProgram(context.Background(), "   ", Target{Host: "example.com", Port: "873"})
	if err == nil {
		t.Fatal("expected an error for an empty connect-program command")
	}
}
