package destguard

// Queue collects guards committed under DelayUpdates and flushes their
// deferred renames together at the end of a transfer (spec.md §4.9:
// "flush renames every queued temp file into its final name in order,
// stopping on the first failure but preserving the remainder for a later
// retry").
type Queue struct {
	pending []*Guard
}

// Add enqueues a guard whose Commit only closed its temp file.
func (q *Queue) Add(g *Guard) { q.pending = append(q.pending, g) }

// Len reports how many guards are still queued.
func (q *Queue) Len() int { return len(q.pending) }

// Flush renames queued guards in enqueue order. On the first failure it
// stops and returns that error; guards not yet flushed (including the one
// that failed) remain in the queue for a subsequent Flush call.
func (q *Queue) Flush() error {
	i := 0
	for ; i < len(q.pending); i++ {
		if err := q.pending[i].flush(); err != nil {
			q.pending = q.pending[i:]
			return err
		}
	}
	q.pending = nil
	return nil
}
