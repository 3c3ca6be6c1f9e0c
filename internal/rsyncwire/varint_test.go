package rsyncwire

import (
	"bytes"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	values := []int64{0, 1, 127, 128, 200, 1 << 16, 1<<32 - 1, 1 << 40, 1<<63 - 1}
	for _, v := range values {
		var buf bytes.Buffer
		if err := WriteVarint(&buf, v); err != nil {
			t.Fatalf("WriteVarint(%d): %v", v, err)
		}
		got, err := ReadVarint(&buf)
		if err != nil {
			t.Fatalf("ReadVarint(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestVarintSmallIsOneByte(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVarint(&buf, 42); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 1 {
		t.Errorf("expected 1 byte for small value, got %d", buf.Len())
	}
}

func TestVarint30Fallback(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVarint30(&buf, 1000, 29); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 4 {
		t.Errorf("protocol<30 should use fixed 4 bytes, got %d", buf.Len())
	}
	got, err := ReadVarint30(&buf, 29)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1000 {
		t.Errorf("got %d, want 1000", got)
	}
}

func TestLongintRoundTrip(t *testing.T) {
	values := []int64{0, 1, 0x7FFFFFFF, 0x80000000, 1 << 40}
	for _, v := range values {
		var buf bytes.Buffer
		if err := WriteLongint(&buf, v); err != nil {
			t.Fatal(err)
		}
		got, err := ReadLongint(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
		wantLen := 4
		if v > 0x7FFFFFFF {
			wantLen = 9
		}
		if buf.Len() != 0 {
			t.Errorf("buffer not fully consumed for %d", v)
		}
		_ = wantLen
	}
}

func TestVarlongRoundTrip(t *testing.T) {
	for _, minBytes := range []int{3, 4} {
		for _, v := range []int64{0, 1, 1 << 20, 1 << 40, 1<<48 - 1} {
			var buf bytes.Buffer
			if err := WriteVarlong(&buf, v, minBytes); err != nil {
				t.Fatal(err)
			}
			got, err := ReadVarlong(&buf, minBytes)
			if err != nil {
				t.Fatal(err)
			}
			if got != v {
				t.Errorf("minBytes=%d round trip %d: got %d", minBytes, v, got)
			}
		}
	}
}

func TestMultiplexRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := &MultiplexWriter{Writer: &buf}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteMsg(MsgError, []byte("oops")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("world")); err != nil {
		t.Fatal(err)
	}

	var gotErrors [][]byte
	r := &MultiplexReader{
		Reader: &buf,
		Sink: func(tag byte, payload []byte) {
			if tag == MsgError {
				gotErrors = append(gotErrors, payload)
			}
		},
	}
	out := make([]byte, 10)
	n, err := r.Read(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(out[:n]) != "hello" {
		t.Errorf("got %q, want hello", out[:n])
	}
	n, err = r.Read(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(out[:n]) != "world" {
		t.Errorf("got %q, want world", out[:n])
	}
	if len(gotErrors) != 1 || string(gotErrors[0]) != "oops" {
		t.Errorf("got errors %q", gotErrors)
	}
}
