package copyengine

import (
	"os"
	"path/filepath"
	"time"

	"github.com/oferchen/rsync-sub003/internal/metaflags"
	"github.com/oferchen/rsync-sub003/internal/xsys"
)

func ownerOf(fi os.FileInfo) (uid, gid int, ok bool) {
	u, g, found := xsys.StatOwner(fi)
	return int(u), int(g), found
}

func accessTimeOf(fi os.FileInfo) (time.Time, bool) {
	return xsys.StatAtime(fi)
}

func deviceIDOf(fi os.FileInfo) (uint64, bool) {
	dev, _, ok := xsys.StatDevIno(fi)
	return dev, ok
}

func metaSafeSymlink(target string, dirDepth int) bool {
	return metaflags.SafeSymlink(target, dirDepth)
}

// destPath maps a source-relative path onto the destination root.
func destPath(root, rel string) string {
	if rel == "" {
		return root
	}
	return filepath.Join(root, filepath.FromSlash(rel))
}

// withinWindow reports whether a and b differ by no more than window
// (spec.md §4.11 step 6's modify-window comparison).
func withinWindow(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

// ensureDir creates dir and any missing parents; an already existing
// directory is left as it is.
func ensureDir(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm|0700)
}

// applyMeta applies the metadata policy to path after its content is in
// place (spec.md §4.11 step 9): permissions, then ownership, then times
// (mtime must be set last, since chmod/chown on some platforms bumps it).
func applyMeta(path string, srcInfo os.FileInfo, policy metaflags.Policy, isDir bool) error {
	if policy.Perms {
		mode := policy.Apply(srcInfo.Mode(), isDir)
		if err := os.Chmod(path, mode.Perm()); err != nil {
			return err
		}
	}
	if policy.Owner || policy.Group {
		uid, gid, ok := ownerOf(srcInfo)
		if ok {
			wantUID, wantGID := -1, -1
			if policy.Owner && amRoot {
				wantUID = uid
			}
			if policy.Group && (amRoot || inGroup[uint32(gid)]) {
				wantGID = gid
			}
			if wantUID != -1 || wantGID != -1 {
				if err := os.Chown(path, wantUID, wantGID); err != nil {
					return err
				}
			}
		}
	}
	if policy.ApplyTimes(isDir, false) {
		atime := time.Now()
		if policy.Atimes {
			if at, ok := accessTimeOf(srcInfo); ok {
				atime = at
			}
		}
		if err := os.Chtimes(path, atime, srcInfo.ModTime()); err != nil {
			return err
		}
	}
	return nil
}
