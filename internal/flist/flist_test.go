package flist

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func roundTrip(t *testing.T, opts Options, entries []*Entry) []*Entry {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, opts)
	for _, e := range entries {
		if err := w.WriteEntry(e); err != nil {
			t.Fatalf("WriteEntry(%q): %v", e.Name, err)
		}
	}
	if err := w.WriteEnd(0); err != nil {
		t.Fatalf("WriteEnd: %v", err)
	}

	r := NewReader(&buf, opts)
	var got []*Entry
	for {
		e, err := r.ReadEntry()
		if err != nil {
			if end, ok := err.(*ErrEndOfList); ok {
				if end.ErrorCode != 0 {
					t.Fatalf("unexpected end error code %d", end.ErrorCode)
				}
				break
			}
			t.Fatalf("ReadEntry: %v", err)
		}
		got = append(got, e)
	}
	return got
}

func u32(v uint32) *uint32 { return &v }
func i64(v int64) *int64   { return &v }

func TestRoundTripAcrossProtocols(t *testing.T) {
	for _, proto := range []int{28, 29, 30, 31, 32} {
		t.Run("", func(t *testing.T) {
			a := NewRegular([]byte("aaa/one"), 1234, 0100644, 1700000000)
			a.UID = u32(1000)
			a.GID = u32(1000)

			b := NewDirectory([]byte("aaa/two"), 040755, 1700000001, true)
			b.UID = u32(1000)
			b.GID = u32(1000)

			opts := Options{Protocol: proto, PreserveUID: true, PreserveGID: true, ChecksumLength: 16}
			got := roundTrip(t, opts, []*Entry{a, b})
			if len(got) != 2 {
				t.Fatalf("got %d entries, want 2", len(got))
			}
			if !got[0].Equal(a) {
				t.Errorf("entry 0 mismatch (-got +want):\n%s", cmp.Diff(got[0], a))
			}
			if !got[1].Equal(b) {
				t.Errorf("entry 1 mismatch (-got +want):\n%s", cmp.Diff(got[1], b))
			}
		})
	}
}

func TestRoundTripSymlinkAndDevice(t *testing.T) {
	sym := NewSymlink([]byte("link"), []byte("target/path"), 0120777, 1700000002)
	dev, err := NewDevice([]byte("dev0"), KindBlockDevice, 8, 1, 060600, 1700000003)
	if err != nil {
		t.Fatal(err)
	}

	opts := Options{Protocol: 32, PreserveDevices: true, ChecksumLength: 16}
	got := roundTrip(t, opts, []*Entry{sym, dev})
	if !got[0].Equal(sym) {
		t.Errorf("symlink mismatch (-got +want):\n%s", cmp.Diff(got[0], sym))
	}
	if !got[1].Equal(dev) {
		t.Errorf("device mismatch (-got +want):\n%s", cmp.Diff(got[1], dev))
	}
}

func TestRoundTripAtimeCrtimeNsec(t *testing.T) {
	e := NewRegular([]byte("f"), 42, 0100644, 1700000000)
	e.MtimeNsec = 123456789
	e.Atime = i64(1699999999)
	e.Crtime = i64(1700000000) // equals Mtime: exercises CRTIME_EQ_MTIME

	opts := Options{Protocol: 32, PreserveCrtimes: true, PreserveAtimes: true, ChecksumLength: 16}
	got := roundTrip(t, opts, []*Entry{e})
	if !got[0].Equal(e) {
		t.Errorf("entry mismatch (-got +want):\n%s", cmp.Diff(got[0], e))
	}
}

// Scenario A (spec.md §8.2): prefix-shared names compress; the second
// entry's wire encoding must be strictly shorter than a from-scratch
// encoding of the same name would be.
func TestScenarioA_NamePrefixCompression(t *testing.T) {
	one := NewRegular([]byte("aaa/one"), 10, 0100644, 1700000000)
	two := NewRegular([]byte("aaa/two"), 10, 0100644, 1700000000)

	var bufTogether bytes.Buffer
	w := NewWriter(&bufTogether, Options{Protocol: 32})
	if err := w.WriteEntry(one); err != nil {
		t.Fatal(err)
	}
	lenAfterFirst := bufTogether.Len()
	if err := w.WriteEntry(two); err != nil {
		t.Fatal(err)
	}
	secondLen := bufTogether.Len() - lenAfterFirst

	var bufAlone bytes.Buffer
	wAlone := NewWriter(&bufAlone, Options{Protocol: 32})
	if err := wAlone.WriteEntry(two); err != nil {
		t.Fatal(err)
	}
	aloneLen := bufAlone.Len()

	if secondLen >= aloneLen {
		t.Errorf("expected prefix-compressed encoding (%d bytes) to be shorter than standalone (%d bytes)", secondLen, aloneLen)
	}

	got := roundTrip(t, Options{Protocol: 32}, []*Entry{one, two})
	if !got[0].Equal(one) || !got[1].Equal(two) {
		t.Fatalf("round trip mismatch: got %+v, %+v", got[0], got[1])
	}
}

// Scenario B (spec.md §8.2): hardlink leader/follower encoding at protocol
// 30. Followers decode with HardlinkIdx pointing at the leader and Size 0
// (the caller is expected to fill follower metadata from the leader).
func TestScenarioB_HardlinkLeaderFollower(t *testing.T) {
	leader := NewRegular([]byte("a"), 99, 0100644, 1700000000)
	sentinel := uint32(HardlinkSentinel)
	leader.HardlinkIdx = &sentinel

	followerB := &Entry{Name: []byte("b")}
	idx0 := uint32(0)
	followerB.HardlinkIdx = &idx0

	followerC := &Entry{Name: []byte("c")}
	followerC.HardlinkIdx = &idx0

	opts := Options{Protocol: 30, PreserveHardlinks: true}
	got := roundTrip(t, opts, []*Entry{leader, followerB, followerC})
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if !got[0].IsHardlinkLeader() {
		t.Errorf("entry 0 should be the hardlink leader")
	}
	if !got[0].Equal(leader) {
		t.Errorf("leader mismatch: got %+v want %+v", got[0], leader)
	}
	for i, f := range got[1:] {
		if !f.IsHardlinkFollower() {
			t.Errorf("entry %d should be a hardlink follower", i+1)
		}
		if *f.HardlinkIdx != 0 {
			t.Errorf("entry %d HardlinkIdx = %d, want 0", i+1, *f.HardlinkIdx)
		}
		if f.Size != 0 {
			t.Errorf("entry %d Size = %d, want 0", i+1, f.Size)
		}
	}
}

func TestEndMarkerCarriesErrorCode(t *testing.T) {
	for _, opts := range []Options{
		{Protocol: 32},
		{Protocol: 31},
		{Protocol: 30},
		{Protocol: 29, SafeFileList: true},
		{Protocol: 29, VarintFlags: true},
	} {
		var buf bytes.Buffer
		w := NewWriter(&buf, opts)
		if err := w.WriteEntry(NewRegular([]byte("x"), 1, 0100644, 1700000000)); err != nil {
			t.Fatal(err)
		}
		if err := w.WriteEnd(23); err != nil {
			t.Fatal(err)
		}

		r := NewReader(&buf, opts)
		if _, err := r.ReadEntry(); err != nil {
			t.Fatalf("unexpected error reading entry: %v", err)
		}
		_, err := r.ReadEntry()
		end, ok := err.(*ErrEndOfList)
		if !ok {
			t.Fatalf("expected *ErrEndOfList, got %v", err)
		}
		if end.ErrorCode != 23 {
			t.Errorf("protocol %d: ErrorCode = %d, want 23", opts.Protocol, end.ErrorCode)
		}
	}
}

func TestDirectoryWithZeroFlagsDoesNotCollideWithEndMarker(t *testing.T) {
	// The first directory shares no name prefix, mode or mtime with the
	// zero-value compression state, so its flags are all zero: the edge case
	// that must not be mistaken for the end marker.
	first := NewDirectory([]byte("zzz"), 040755, 1700000000, true)
	second := NewDirectory([]byte("yyy"), 040755, 1700000000, true)

	for _, proto := range []int{28, 29, 30, 31, 32} {
		opts := Options{Protocol: proto}
		got := roundTrip(t, opts, []*Entry{first, second})
		if len(got) != 2 {
			t.Fatalf("protocol %d: got %d entries, want 2", proto, len(got))
		}
		if !got[1].Equal(second) {
			t.Errorf("protocol %d: second directory mismatch: got %+v want %+v", proto, got[1], second)
		}
	}
}
