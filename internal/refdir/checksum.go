package refdir

import (
	"io"
	"os"

	"github.com/mmcloughlin/md4"
)

// fileChecksum computes the whole-file strong checksum used to confirm a
// reference-directory candidate under --checksum, using the same MD4
// primitive the delta engine verifies block checksums with.
func fileChecksum(path string) ([]byte, error) {
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
