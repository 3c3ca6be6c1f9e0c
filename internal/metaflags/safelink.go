package metaflags

import (
	"path"
	"strings"
)

// SafeSymlink reports whether target, found at a symlink located dirDepth
// path components below the destination root, stays within the
// destination when resolved (spec.md §4.8): it must not be absolute, and
// no prefix of its normalized form may climb above the destination root.
//
// dirDepth is the number of path components between the destination root
// and the symlink's containing directory (0 for a symlink directly under
// the root).
func SafeSymlink(target string, dirDepth int) bool {
	if target == "" {
		return false
	}
	if strings.HasPrefix(target, "/") {
		return false
	}

	depth := dirDepth
	for _, component := range strings.Split(path.Clean(target), "/") {
		switch component {
		case "", ".":
			continue
		case "..":
			depth--
			if depth < 0 {
				return false
			}
		default:
			depth++
		}
	}
	return true
}
