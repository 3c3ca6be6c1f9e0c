package destguard

import (
	"io"

	"github.com/google/renameio/v2"
)

// SparseBlockSize is the minimum run of zero bytes (spec.md §4.11: "≥ 4
// KiB") that --sparse writes as a hole via Seek instead of as literal
// zero bytes.
const SparseBlockSize = 4096

// isZero reports whether every byte in p is zero.
func isZero(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}

// WriteSparse writes p to g's staged file, turning each all-zero
// SparseBlockSize block of p (blocks counted from the start of p) into a
// hole (seeking past it) rather than writing it out literally. A hole that
// ends p still extends the file to its full length.
func (g *Guard) WriteSparse(p []byte) (int, error) {
	f := g.File()
	total := 0
	for len(p) > 0 {
		n := SparseBlockSize
		if n > len(p) {
			n = len(p)
		}
		chunk := p[:n]
		if len(chunk) == SparseBlockSize && isZero(chunk) {
			run := n
			for run+SparseBlockSize <= len(p) && isZero(p[run:run+SparseBlockSize]) {
				run += SparseBlockSize
			}
			if _, err := f.Seek(int64(run), io.SeekCurrent); err != nil {
				return total, err
			}
			total += run
			p = p[run:]
			if len(p) == 0 {
				// Seeking alone does not grow the file over a trailing hole.
				off, err := f.Seek(0, io.SeekCurrent)
				if err != nil {
					return total, err
				}
				if fi, err := f.Stat(); err != nil {
					return total, err
				} else if fi.Size() < off {
					if err := f.Truncate(off); err != nil {
						return total, err
					}
				}
			}
			continue
		}
		written, err := f.Write(chunk)
		total += written
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}

// Symlink atomically creates a symlink at newname pointing to oldname,
// replacing any existing entry there.
func Symlink(oldname, newname string) error {
	return renameio.Symlink(oldname, newname)
}
