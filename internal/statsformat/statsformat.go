// Package statsformat renders an rsyncstats.TransferStats snapshot as the
// multi-line "--stats" report, matching upstream rsync's text layout
// (thousands-grouped counts, a sent/received summary line, and a
// "total size is ... speedup is ..." trailer).
package statsformat

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oferchen/rsync-sub003/internal/rsyncstats"
)

// Format renders stats as upstream rsync's --stats block, without a
// trailing newline after the speedup line.
func Format(stats rsyncstats.TransferStats) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Number of files: %s\n", formatNumber(uint64(stats.NumFiles)))
	fmt.Fprintf(&b, "Number of created files: %s\n", formatNumber(uint64(stats.NumCreatedFiles)))
	fmt.Fprintf(&b, "Number of deleted files: %s\n", formatNumber(uint64(stats.NumDeletedFiles)))
	fmt.Fprintf(&b, "Number of regular files transferred: %s\n", formatNumber(uint64(stats.NumTransferredFiles)))
	fmt.Fprintf(&b, "Total file size: %s bytes\n", formatNumber(uint64(stats.TotalFileSize)))
	fmt.Fprintf(&b, "Total transferred file size: %s bytes\n", formatNumber(uint64(stats.TotalTransferredSize)))
	fmt.Fprintf(&b, "Literal data: %s bytes\n", formatNumber(uint64(stats.LiteralData)))
	fmt.Fprintf(&b, "Matched data: %s bytes\n", formatNumber(uint64(stats.MatchedData)))
	fmt.Fprintf(&b, "File list size: %s\n", formatNumber(uint64(stats.FileListSize)))
	fmt.Fprintf(&b, "File list generation time: %.3f seconds\n", stats.FileListGenerationTime.Seconds())
	fmt.Fprintf(&b, "File list transfer time: %.3f seconds\n", stats.FileListTransferTime.Seconds())
	fmt.Fprintf(&b, "Total bytes sent: %s\n", formatNumber(uint64(stats.TotalBytesSent)))
	fmt.Fprintf(&b, "Total bytes received: %s\n", formatNumber(uint64(stats.TotalBytesReceived)))
	b.WriteByte('\n')

	elapsed := stats.FileListGenerationTime + stats.FileListTransferTime
	speed := transferSpeed(stats.TotalBytesSent, stats.TotalBytesReceived, elapsed)
	fmt.Fprintf(&b, "sent %s bytes  received %s bytes  %s bytes/sec\n",
		formatNumber(uint64(stats.TotalBytesSent)),
		formatNumber(uint64(stats.TotalBytesReceived)),
		formatDecimal(speed))

	fmt.Fprintf(&b, "total size is %s  speedup is %s",
		formatNumber(uint64(stats.TotalFileSize)),
		formatDecimal(stats.Speedup()))

	return b.String()
}

// transferSpeed is bytes moved per second of file-list generation plus
// transfer time; zero (rather than +Inf) when elapsed is non-positive.
func transferSpeed(sent, received int64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(sent+received) / secs
}

// formatNumber renders n with comma thousands separators.
func formatNumber(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// formatDecimal renders a non-negative ratio/rate with two fractional
// digits and comma-grouped integer part; negative inputs clamp to 0.00.
func formatDecimal(v float64) string {
	if v < 0 {
		v = 0
	}
	scaled := uint64(v*100 + 0.5)
	whole := scaled / 100
	frac := scaled % 100
	return fmt.Sprintf("%s.%02d", formatNumber(whole), frac)
}
