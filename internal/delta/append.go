package delta

import (
	"bytes"
	"io"
)

// AppendPlan resolves how --append / --append-verify should treat an
// existing destination of length destLen (spec.md §4.12): with plain
// append, only bytes beyond destLen are ever read from src; with
// append-verify, the existing prefix is checksum-confirmed first and, on
// mismatch, treated as if nothing existed (a full rewrite).
type AppendPlan struct {
	Verify bool
}

// Resolve reports the byte offset transfer should resume from. With
// Verify unset this is always destLen. With Verify set, oldFile's first
// destLen bytes are hashed and compared against the corresponding prefix
// hash the caller computed from the source (srcPrefixSum); a mismatch
// resets the offset to 0, forcing a full retransfer.
func (p AppendPlan) Resolve(oldFile io.ReaderAt, destLen int64, srcPrefixSum []byte) (int64, error) {
	if destLen <= 0 {
		return 0, nil
	}
	if !p.Verify {
		return destLen, nil
	}
	got, err := prefixChecksum(oldFile, destLen)
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(got, srcPrefixSum) {
		return 0, nil
	}
	return destLen, nil
}

func prefixChecksum(r io.ReaderAt, n int64) ([]byte, error) {
	h := newStrongHasher()
	buf := make([]byte, 1<<16)
	var offset int64
	for offset < n {
		want := int64(len(buf))
		if remain := n - offset; remain < want {
			want = remain
		}
		chunk := buf[:want]
		if _, err := r.ReadAt(chunk, offset); err != nil && err != io.EOF {
			return nil, err
		}
		h.Write(chunk)
		offset += want
	}
	return h.Sum(nil), nil
}
