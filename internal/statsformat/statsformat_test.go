package statsformat

import (
	"strings"
	"testing"
	"time"

	"github.com/oferchen/rsync-sub003/internal/rsyncstats"
)

func TestFormatZeroValues(t *testing.T) {
	out := Format(rsyncstats.TransferStats{})
	for _, want := range []string{
		"Number of files: 0",
		"Number of created files: 0",
		"Number of deleted files: 0",
		"Total file size: 0 bytes",
		"speedup is 0.00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatLargeNumbers(t *testing.T) {
	stats := rsyncstats.TransferStats{
		NumFiles:               999_999_999,
		NumCreatedFiles:        222_222_222,
		NumDeletedFiles:        111_111_111,
		NumTransferredFiles:    888_888_888,
		TotalFileSize:          9_999_999_999,
		TotalTransferredSize:   8_888_888_888,
		LiteralData:            7_777_777_777,
		MatchedData:            6_666_666_666,
		FileListSize:           5_555_555,
		FileListGenerationTime: 123456 * time.Millisecond,
		FileListTransferTime:   78901 * time.Millisecond,
		TotalBytesSent:         4_444_444_444,
		TotalBytesReceived:     3_333_333_333,
	}
	out := Format(stats)
	for _, want := range []string{
		"Number of files: 999,999,999",
		"Number of created files: 222,222,222",
		"Number of deleted files: 111,111,111",
		"Total file size: 9,999,999,999 bytes",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatSpeedupAndSummaryLines(t *testing.T) {
	stats := rsyncstats.TransferStats{
		TotalFileSize:          1_234_567,
		TotalBytesSent:         12_345,
		TotalBytesReceived:     67_890,
		FileListGenerationTime: time.Second,
		FileListTransferTime:   2 * time.Second,
	}
	out := Format(stats)
	if !strings.Contains(out, "sent 12,345 bytes  received 67,890 bytes") {
		t.Errorf("Format() missing summary line in:\n%s", out)
	}
	if !strings.Contains(out, "total size is 1,234,567  speedup is") {
		t.Errorf("Format() missing speedup line in:\n%s", out)
	}
}

func TestFormatNumberGrouping(t *testing.T) {
	cases := map[uint64]string{
		0:          "0",
		999:        "999",
		1000:       "1,000",
		1234567:    "1,234,567",
		9999999999: "9,999,999,999",
	}
	for n, want := range cases {
		if got := formatNumber(n); got != want {
			t.Errorf("formatNumber(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFormatDecimalNegativeClampsToZero(t *testing.T) {
	if got := formatDecimal(-5); got != "0.00" {
		t.Errorf("formatDecimal(-5) = %q, want %q", got, "0.00")
	}
}
