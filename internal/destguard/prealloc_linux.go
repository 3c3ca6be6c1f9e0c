//go:build linux

package destguard

import "golang.org/x/sys/unix"

// Preallocate reserves size bytes for g's staged file using fallocate(2),
// so the filesystem can lay out contiguous blocks before the transfer
// writes them (spec.md §4.9).
func (g *Guard) Preallocate(size int64) (int64, error) {
	if size <= 0 {
		return 0, nil
	}
	f := g.File()
	if err := unix.Fallocate(int(f.Fd()), 0, 0, size); err != nil {
		return 0, err
	}
	return size, nil
}
