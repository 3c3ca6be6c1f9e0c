// Package rsyncwire implements the low-level framing primitives shared by
// every higher-level protocol component: fixed-width integer read/write
// helpers, the multiplex framing used for server-to-client output, and byte
// counters used for statistics.
package rsyncwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Conn wraps a Reader/Writer pair with the fixed-width integer helpers the
// rsync wire protocol uses outside of the file-list codec (which has its
// own variable-length encodings, see the varint.go file in this package).
type Conn struct {
	Reader io.Reader
	Writer io.Writer
}

func (c *Conn) WriteByte(b byte) error {
	_, err := c.Writer.Write([]byte{b})
	return err
}

func (c *Conn) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (c *Conn) WriteInt32(v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := c.Writer.Write(buf[:])
	return err
}

func (c *Conn) ReadInt32() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

// WriteInt64 uses rsync's "long" encoding: a 32-bit value when it fits,
// otherwise -1 followed by a full 64-bit value.
func (c *Conn) WriteInt64(v int64) error {
	if v <= 0x7FFFFFFF && v >= 0 {
		return c.WriteInt32(int32(v))
	}
	if err := c.WriteInt32(-1); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, err := c.Writer.Write(buf[:])
	return err
}

func (c *Conn) ReadInt64() (int64, error) {
	v, err := c.ReadInt32()
	if err != nil {
		return 0, err
	}
	if v != -1 {
		return int64(v), nil
	}
	var buf [8]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func (c *Conn) WriteString(s string) error {
	_, err := io.WriteString(c.Writer, s)
	return err
}

// CountingReader wraps a reader, tallying bytes read.
type CountingReader struct {
	R       io.Reader
	Counter int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.Counter += int64(n)
	return n, err
}

// CountingWriter wraps a writer, tallying bytes written.
type CountingWriter struct {
	W       io.Writer
	Counter int64
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.Counter += int64(n)
	return n, err
}

// CounterPair wraps a connection's reader and writer halves with byte
// counters used to populate statistics (total_bytes_sent/received).
func CounterPair(r io.Reader, w io.Writer) (*CountingReader, *CountingWriter) {
	return &CountingReader{R: r}, &CountingWriter{W: w}
}

// Multiplex message tags, as sent in the high byte of the 4-byte frame
// header used for all server-to-client output once the session switches to
// multiplexed mode.
const (
	MsgData  = 0
	MsgError = 1
	MsgInfo  = 2
	MsgLog   = 5
	MsgDone  = 6
)

// MultiplexWriter frames every Write call behind a 4-byte header: the top
// byte is the tag (always MsgData for Write; WriteMsg takes the tag as an
// argument), the low 3 bytes the payload length.
type MultiplexWriter struct {
	Writer io.Writer
	Tag    byte // not consulted by Write or WriteMsg
}

func (w *MultiplexWriter) Write(p []byte) (int, error) {
	return len(p), w.WriteMsg(MsgData, p)
}

func (w *MultiplexWriter) WriteMsg(tag byte, p []byte) error {
	if len(p) >= 1<<24 {
		return fmt.Errorf("multiplex payload too large: %d bytes", len(p))
	}
	header := uint32(tag)<<24 | uint32(len(p))
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], header)
	if _, err := w.Writer.Write(buf[:]); err != nil {
		return err
	}
	_, err := w.Writer.Write(p)
	return err
}

// MultiplexReader de-frames multiplexed input, returning only MsgData
// payloads to its caller; other tags are logged via Sink (if set) and
// skipped.
type MultiplexReader struct {
	Reader io.Reader
	Sink   func(tag byte, payload []byte)

	remaining int
}

func (r *MultiplexReader) Read(p []byte) (int, error) {
	for r.remaining == 0 {
		var hdr [4]byte
		if _, err := io.ReadFull(r.Reader, hdr[:]); err != nil {
			return 0, err
		}
		header := binary.LittleEndian.Uint32(hdr[:])
		tag := byte(header >> 24)
		length := int(header & 0x00FFFFFF)
		if tag == MsgData {
			r.remaining = length
			continue
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r.Reader, payload); err != nil {
			return 0, err
		}
		if r.Sink != nil {
			r.Sink(tag, payload)
		}
	}
	n := len(p)
	if n > r.remaining {
		n = r.remaining
	}
	n, err := r.Reader.Read(p[:n])
	r.remaining -= n
	return n, err
}
