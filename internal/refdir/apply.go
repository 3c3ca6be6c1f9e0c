package refdir

import (
	"errors"
	"io"
	"os"
	"syscall"
)

// LinkFn performs the hard link Apply attempts for a link-dest hit;
// overridable in tests to simulate an EXDEV-class failure without two
// real filesystems.
var LinkFn = os.Link

// Apply performs the reuse strategy a Hit names against destPath:
//   - compare-dest: no-op, the caller must skip the transfer entirely.
//   - copy-dest: stream the reference file's bytes into destPath.
//   - link-dest: hard link destPath to the reference file; on an EXDEV-class
//     failure (crossing a filesystem boundary), fall back to a copy-dest
//     style data copy instead of failing the entry (spec.md §4.13).
func Apply(hit Hit, destPath string) error {
	switch hit.Kind {
	case KindCompare:
		return nil
	case KindCopy:
		return copyFile(hit.Path, destPath)
	case KindLink:
		err := LinkFn(hit.Path, destPath)
		if err == nil {
			return nil
		}
		if isCrossDevice(err) {
			return copyFile(hit.Path, destPath)
		}
		return err
	default:
		return nil
	}
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return errors.Is(linkErr.Err, syscall.EXDEV)
	}
	return errors.Is(err, syscall.EXDEV)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return nil
}
