package copyengine

import (
	"os"
	"sync"

	"github.com/oferchen/rsync-sub003/internal/xsys"
)

// hardlinkKey identifies a source inode shared by multiple entries.
type hardlinkKey struct {
	dev, ino uint64
}

// hardlinkTracker records, for each source inode seen so far under
// --hard-links, the destination path its leader entry was written to, so
// later followers can be hard-linked to it instead of re-transferred
// (spec.md §3.1's hardlink_idx leader/follower pairing, generalized to a
// purely local copy with no wire file list).
type hardlinkTracker struct {
	mu   sync.Mutex
	seen map[hardlinkKey]string
}

func newHardlinkTracker() *hardlinkTracker {
	return &hardlinkTracker{seen: make(map[hardlinkKey]string)}
}

// leader returns the destination path already recorded for fi's inode, and
// records destPath as that inode's leader if none existed yet. The second
// return reports whether fi's inode had already been seen.
func (t *hardlinkTracker) leader(fi os.FileInfo, destPath string) (string, bool) {
	dev, ino, ok := xsys.StatDevIno(fi)
	if !ok {
		return "", false
	}
	key := hardlinkKey{dev, ino}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, found := t.seen[key]; found {
		return existing, true
	}
	t.seen[key] = destPath
	return "", false
}
