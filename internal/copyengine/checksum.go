package copyengine

import (
	"io"
	"os"

	"golang.org/x/crypto/md4"
)

// wholeFileChecksum hashes path's entire contents for the --checksum
// comparison (spec.md §4.11 step 6) and for refdir.Candidate.Checksum.
// It deliberately uses golang.org/x/crypto/md4 rather than the delta
// package's mmcloughlin/md4: this is a whole-file digest taken once per
// entry, not the block-level rolling comparison delta.BuildSignature
// performs, so it doesn't need that package's streaming block API.
func wholeFileChecksum(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := md4.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// wholeFileChecksumReaderPrefix hashes the first n bytes read from r,
// leaving r positioned just past them. Used by --append-verify to confirm
// the source prefix matches what is already at the destination.
func wholeFileChecksumReaderPrefix(r io.Reader, n int64) ([]byte, error) {
	h := md4.New()
	if _, err := io.CopyN(h, r, n); err != nil && err != io.EOF {
		return nil, err
	}
	return h.Sum(nil), nil
}
