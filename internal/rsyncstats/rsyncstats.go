// Package rsyncstats aggregates the transfer counters spec.md §3.5 and
// §4.16 (component C16) name. Counters is safe for concurrent use (the
// local copy engine's generator and transfer goroutines both update the
// same instance, mirroring the teacher's internal/receiver.Do generator/
// receiver split); Snapshot hands callers (internal/statsformat, the
// wire-level end-of-session report) an immutable copy.
package rsyncstats

import (
	"sync/atomic"
	"time"
)

// TransferStats is an immutable snapshot of every counter spec.md §3.5
// names, plus the three wire-transmitted totals (Read/Written/Size) the
// teacher's end-of-session report exchanges.
type TransferStats struct {
	NumFiles               int64
	NumTransferredFiles    int64
	TotalFileSize          int64
	TotalTransferredSize   int64
	LiteralData            int64
	MatchedData            int64
	FileListSize           int64
	FileListGenerationTime time.Duration
	FileListTransferTime   time.Duration
	TotalBytesSent         int64
	TotalBytesReceived     int64
	NumCreatedFiles        int64
	NumDeletedFiles        int64

	// Read/Written/Size are the three totals the wire-level end-of-session
	// report carries (kept from the teacher's internal/receiver.report):
	// bytes read from / written to the network connection, and the total
	// size of files in the transfer. A purely local transfer leaves these
	// at zero.
	Read    int64
	Written int64
	Size    int64
}

// Speedup is total_size / (bytes_sent+bytes_received), spec.md §9's
// stats-formatter note: 0.00 when there was nothing to divide by.
func (s TransferStats) Speedup() float64 {
	denom := s.TotalBytesSent + s.TotalBytesReceived
	if denom == 0 {
		return 0
	}
	return float64(s.TotalFileSize) / float64(denom)
}

// Counters accumulates a TransferStats concurrently. The zero value is
// ready to use.
type Counters struct {
	numFiles, numTransferredFiles       int64
	totalFileSize, totalTransferredSize int64
	literalData, matchedData            int64
	fileListSize                        int64
	fileListGenerationTimeNanos         int64
	fileListTransferTimeNanos           int64
	totalBytesSent, totalBytesReceived  int64
	numCreatedFiles, numDeletedFiles    int64
	read, written, size                 int64
}

func (c *Counters) AddFile()                        { atomic.AddInt64(&c.numFiles, 1) }
func (c *Counters) AddTransferredFile()              { atomic.AddInt64(&c.numTransferredFiles, 1) }
func (c *Counters) AddTotalFileSize(n int64)         { atomic.AddInt64(&c.totalFileSize, n) }
func (c *Counters) AddTotalTransferredSize(n int64)  { atomic.AddInt64(&c.totalTransferredSize, n) }
func (c *Counters) AddLiteralData(n int64)           { atomic.AddInt64(&c.literalData, n) }
func (c *Counters) AddMatchedData(n int64)           { atomic.AddInt64(&c.matchedData, n) }
func (c *Counters) SetFileListSize(n int64)          { atomic.StoreInt64(&c.fileListSize, n) }
func (c *Counters) SetFileListGenerationTime(d time.Duration) {
	atomic.StoreInt64(&c.fileListGenerationTimeNanos, int64(d))
}
func (c *Counters) SetFileListTransferTime(d time.Duration) {
	atomic.StoreInt64(&c.fileListTransferTimeNanos, int64(d))
}
func (c *Counters) AddBytesSent(n int64)     { atomic.AddInt64(&c.totalBytesSent, n) }
func (c *Counters) AddBytesReceived(n int64) { atomic.AddInt64(&c.totalBytesReceived, n) }
func (c *Counters) AddCreatedFile()          { atomic.AddInt64(&c.numCreatedFiles, 1) }
func (c *Counters) AddDeletedFile()          { atomic.AddInt64(&c.numDeletedFiles, 1) }
func (c *Counters) AddRead(n int64)          { atomic.AddInt64(&c.read, n) }
func (c *Counters) AddWritten(n int64)       { atomic.AddInt64(&c.written, n) }
func (c *Counters) AddSize(n int64)          { atomic.AddInt64(&c.size, n) }

// Snapshot reads every counter into an immutable TransferStats.
func (c *Counters) Snapshot() TransferStats {
	return TransferStats{
		NumFiles:               atomic.LoadInt64(&c.numFiles),
		NumTransferredFiles:    atomic.LoadInt64(&c.numTransferredFiles),
		TotalFileSize:          atomic.LoadInt64(&c.totalFileSize),
		TotalTransferredSize:   atomic.LoadInt64(&c.totalTransferredSize),
		LiteralData:            atomic.LoadInt64(&c.literalData),
		MatchedData:            atomic.LoadInt64(&c.matchedData),
		FileListSize:           atomic.LoadInt64(&c.fileListSize),
		FileListGenerationTime: time.Duration(atomic.LoadInt64(&c.fileListGenerationTimeNanos)),
		FileListTransferTime:   time.Duration(atomic.LoadInt64(&c.fileListTransferTimeNanos)),
		TotalBytesSent:         atomic.LoadInt64(&c.totalBytesSent),
		TotalBytesReceived:     atomic.LoadInt64(&c.totalBytesReceived),
		NumCreatedFiles:        atomic.LoadInt64(&c.numCreatedFiles),
		NumDeletedFiles:        atomic.LoadInt64(&c.numDeletedFiles),
		Read:                   atomic.LoadInt64(&c.read),
		Written:                atomic.LoadInt64(&c.written),
		Size:                   atomic.LoadInt64(&c.size),
	}
}
