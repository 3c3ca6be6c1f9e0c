package bwlimit

import (
	"bytes"
	"context"
	"testing"
)

func TestUnlimitedPassthrough(t *testing.T) {
	var buf bytes.Buffer
	w := Unlimited().Writer(context.Background(), &buf)
	if _, err := w.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.String() != "hello world" {
		t.Errorf("buf = %q, want %q", buf.String(), "hello world")
	}
}

func TestReadSizeCapsAtHalfBurst(t *testing.T) {
	l := New(1000, 100)
	if got := l.ReadSize(1000); got != 50 {
		t.Errorf("ReadSize(1000) = %d, want 50 (half of burst 100)", got)
	}
	if got := l.ReadSize(10); got != 10 {
		t.Errorf("ReadSize(10) = %d, want 10 (under the cap)", got)
	}
}

func TestZeroRateIsUnlimited(t *testing.T) {
	l := New(0, 0)
	if got := l.ReadSize(999999); got != 999999 {
		t.Errorf("zero-rate limiter should not cap ReadSize, got %d", got)
	}
}

func TestLimitedWriteDeliversAllBytes(t *testing.T) {
	l := New(1 << 20, 1<<16) // generous rate so the test doesn't actually sleep
	var buf bytes.Buffer
	w := l.Writer(context.Background(), &buf)
	payload := bytes.Repeat([]byte("x"), 1<<15)
	n, err := w.Write(payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(payload) {
		t.Errorf("n = %d, want %d", n, len(payload))
	}
	if buf.Len() != len(payload) {
		t.Errorf("buf.Len() = %d, want %d", buf.Len(), len(payload))
	}
}

func TestWaitRespectsCancellation(t *testing.T) {
	l := New(1, 1) // 1 byte/sec, so asking for many bytes blocks a long time
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx, 1000); err == nil {
		t.Error("expected Wait to report the cancelled context")
	}
}
