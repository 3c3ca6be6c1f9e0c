package delta

import (
	"bufio"
	"io"
)

// OpKind tags a reconstruction operation.
type OpKind int

const (
	OpLiteral OpKind = iota
	OpMatch
)

// Op is one emitted instruction: either a literal byte run transmitted
// from the source, or a reference to an already-present destination
// block.
type Op struct {
	Kind       OpKind
	Literal    []byte
	BlockIndex int
}

// Stats accumulates the byte totals spec.md §4.12 wants fed into the
// transfer statistics.
type Stats struct {
	MatchedData int64
	LiteralData int64
}

// Reconstruct scans src against sig using a one-byte-at-a-time sliding
// window (spec.md §4.12). Matched blocks are read from oldFile (the
// existing destination contents that sig was built from) and literal runs
// are copied straight from src; both are written to dst in order. The
// emitted Op sequence is returned alongside Stats for callers that want
// to audit or replay it.
func Reconstruct(src io.Reader, sig *Signature, oldFile io.ReaderAt, dst io.Writer) ([]Op, Stats, error) {
	var ops []Op
	var stats Stats
	blockLen := sig.BlockLength

	br := bufio.NewReaderSize(src, blockLen*4+64)
	window := make([]byte, 0, blockLen)
	var literal []byte

	flushLiteral := func() error {
		if len(literal) == 0 {
			return nil
		}
		if _, err := dst.Write(literal); err != nil {
			return err
		}
		ops = append(ops, Op{Kind: OpLiteral, Literal: literal})
		stats.LiteralData += int64(len(literal))
		literal = nil
		return nil
	}

	emitMatch := func(idx int) error {
		length := blockLen
		if idx == len(sig.Blocks)-1 {
			length = int(sig.FileLength) - idx*blockLen
		}
		buf := make([]byte, length)
		if _, err := oldFile.ReadAt(buf, int64(idx)*int64(blockLen)); err != nil && err != io.EOF {
			return err
		}
		if err := flushLiteral(); err != nil {
			return err
		}
		if _, err := dst.Write(buf); err != nil {
			return err
		}
		ops = append(ops, Op{Kind: OpMatch, BlockIndex: idx})
		stats.MatchedData += int64(length)
		return nil
	}

	var weak uint32
	haveWeak := false

	refill := func() error {
		for len(window) < blockLen {
			b, err := br.ReadByte()
			if err != nil {
				return err
			}
			window = append(window, b)
		}
		return nil
	}

	for {
		if len(window) < blockLen {
			if err := refill(); err != nil {
				if err == io.EOF {
					// A short tail can still match the final (short) block.
					if len(window) > 0 {
						if idx := sig.lookup(rollingChecksum(window), window); idx == len(sig.Blocks)-1 {
							if err := emitMatch(idx); err != nil {
								return nil, stats, err
							}
							window = nil
							break
						}
					}
					literal = append(literal, window...)
					window = nil
					break
				}
				return nil, stats, err
			}
			weak = rollingChecksum(window)
			haveWeak = true
		}

		if haveWeak {
			if idx := sig.lookup(weak, window); idx >= 0 {
				if err := emitMatch(idx); err != nil {
					return nil, stats, err
				}
				window = window[:0]
				haveWeak = false
				continue
			}
		}

		// No match: the front byte of the window becomes literal, and the
		// window slides forward by reading one more byte.
		oldByte := window[0]
		literal = append(literal, oldByte)
		newByte, err := br.ReadByte()
		if err != nil {
			// No more input: the remainder of the window (minus the byte
			// already moved to literal) is also literal.
			literal = append(literal, window[1:]...)
			window = nil
			break
		}
		window = append(window[1:], newByte)
		weak = rollOut(weak, blockLen, oldByte, newByte)
	}

	if err := flushLiteral(); err != nil {
		return nil, stats, err
	}
	return ops, stats, nil
}
