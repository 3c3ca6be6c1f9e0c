package copyengine

import (
	"os"

	"github.com/oferchen/rsync-sub003/internal/refdir"
)

// jobKind tags the action a job asks the transfer goroutine to perform.
type jobKind int

const (
	jobDir jobKind = iota
	jobSymlink
	jobSpecial
	jobRegular
	jobSkip       // no-op, only carries an event to emit
	jobDeleteFile // destination-only entry to remove
	jobDeleteDir
)

// job is one unit of work handed from the traversal (generator) goroutine
// to the transfer (consumer) goroutine, in strict traversal order
// (spec.md §5: "no reordering is allowed"). Directories are always
// enqueued before their children since traversal is depth-first pre-order.
type job struct {
	kind jobKind

	relPath string
	srcPath string
	dstPath string

	info os.FileInfo // source FileInfo; nil for delete jobs

	hasRefHit bool
	refHit    refdir.Hit

	// event, when non-nil, is emitted verbatim by the consumer instead of
	// being derived from the job's outcome (used for skip jobs, whose
	// verdict was already decided by the generator).
	event *Event
}
