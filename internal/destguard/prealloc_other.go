//go:build !linux

package destguard

// Preallocate falls back to a plain truncate on platforms without a
// sparse-friendly fallocate facility; it still reserves the length, just
// without the guaranteed-contiguous-blocks benefit fallocate(2) gives on
// Linux.
func (g *Guard) Preallocate(size int64) (int64, error) {
	if size <= 0 {
		return 0, nil
	}
	if err := g.File().Truncate(size); err != nil {
		return 0, err
	}
	return size, nil
}
