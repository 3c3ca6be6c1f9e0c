package delta

import (
	"bytes"
	"strings"
	"testing"
)

func TestBuildSignatureBlockCount(t *testing.T) {
	data := strings.Repeat("a", 10) // 10 bytes, block length 4 -> 3 blocks (4,4,2)
	sig, err := BuildSignature(strings.NewReader(data), 4)
	if err != nil {
		t.Fatalf("BuildSignature: %v", err)
	}
	if len(sig.Blocks) != 3 {
		t.Fatalf("len(Blocks) = %d, want 3", len(sig.Blocks))
	}
	if sig.FileLength != 10 {
		t.Errorf("FileLength = %d, want 10", sig.FileLength)
	}
}

func TestReconstructIdenticalFilesAllMatch(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, again and again")
	sig, err := BuildSignature(bytes.NewReader(data), 8)
	if err != nil {
		t.Fatalf("BuildSignature: %v", err)
	}

	var out bytes.Buffer
	ops, stats, err := Reconstruct(bytes.NewReader(data), sig, bytes.NewReader(data), &out)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("reconstructed = %q, want %q", out.Bytes(), data)
	}
	if stats.LiteralData != 0 {
		t.Errorf("identical files should produce zero literal bytes, got %d", stats.LiteralData)
	}
	if stats.MatchedData != int64(len(data)) {
		t.Errorf("MatchedData = %d, want %d", stats.MatchedData, len(data))
	}
	for _, op := range ops {
		if op.Kind != OpMatch {
			t.Errorf("expected every op to be a match, found %v", op.Kind)
		}
	}
}

func TestReconstructInsertedBytes(t *testing.T) {
	old := []byte("AAAABBBBCCCCDDDD")
	sig, err := BuildSignature(bytes.NewReader(old), 4)
	if err != nil {
		t.Fatalf("BuildSignature: %v", err)
	}

	newData := []byte("AAAAXXXXBBBBCCCCDDDD") // four extra bytes inserted after block 0
	var out bytes.Buffer
	_, stats, err := Reconstruct(bytes.NewReader(newData), sig, bytes.NewReader(old), &out)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(out.Bytes(), newData) {
		t.Fatalf("reconstructed = %q, want %q", out.Bytes(), newData)
	}
	if stats.LiteralData == 0 {
		t.Error("expected some literal bytes for the inserted region")
	}
	if stats.MatchedData == 0 {
		t.Error("expected some matched bytes from the unchanged blocks")
	}
}

func TestReconstructCompletelyDifferentIsAllLiteral(t *testing.T) {
	old := []byte("0000000000000000")
	sig, err := BuildSignature(bytes.NewReader(old), 4)
	if err != nil {
		t.Fatalf("BuildSignature: %v", err)
	}
	newData := []byte("completely different content!!!")
	var out bytes.Buffer
	_, stats, err := Reconstruct(bytes.NewReader(newData), sig, bytes.NewReader(old), &out)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if !bytes.Equal(out.Bytes(), newData) {
		t.Fatalf("reconstructed = %q, want %q", out.Bytes(), newData)
	}
	if stats.MatchedData != 0 {
		t.Errorf("expected no matches for unrelated content, got %d matched bytes", stats.MatchedData)
	}
}

func TestAppendPlanNoVerifyResumesAtDestLen(t *testing.T) {
	p := AppendPlan{Verify: false}
	offset, err := p.Resolve(bytes.NewReader(nil), 100, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if offset != 100 {
		t.Errorf("offset = %d, want 100", offset)
	}
}

func TestAppendPlanVerifyMismatchResetsToZero(t *testing.T) {
	old := []byte("prefix-data")
	p := AppendPlan{Verify: true}
	offset, err := p.Resolve(bytes.NewReader(old), int64(len(old)), []byte("not-the-real-checksum"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if offset != 0 {
		t.Errorf("mismatched prefix checksum should reset offset to 0, got %d", offset)
	}
}

func TestAppendPlanVerifyMatchResumes(t *testing.T) {
	old := []byte("prefix-data")
	want := strongChecksum(old)
	p := AppendPlan{Verify: true}
	offset, err := p.Resolve(bytes.NewReader(old), int64(len(old)), want)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if offset != int64(len(old)) {
		t.Errorf("offset = %d, want %d", offset, len(old))
	}
}
