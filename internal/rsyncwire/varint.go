package rsyncwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// This file implements the variable-length integer encodings defined in
// spec.md §4.1 (component C1): varint, varint30, longint and varlong(min).
//
// varint: values in [0,128) are written as a single byte with the top bit
// clear. Larger values are written as a header byte with the top bit set
// (0x80) and the low 7 bits holding the count of little-endian payload
// bytes that follow (minimal: trailing zero bytes are dropped).
func WriteVarint(w io.Writer, v int64) error {
	if v < 0 {
		return fmt.Errorf("rsyncwire: varint cannot encode negative value %d", v)
	}
	if v < 0x80 {
		_, err := w.Write([]byte{byte(v)})
		return err
	}
	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], uint64(v))
	n := 8
	for n > 1 && payload[n-1] == 0 {
		n--
	}
	if n > 0x7F {
		return fmt.Errorf("rsyncwire: varint value %d too large", v)
	}
	out := make([]byte, 0, 1+n)
	out = append(out, 0x80|byte(n))
	out = append(out, payload[:n]...)
	_, err := w.Write(out)
	return err
}

func ReadVarint(r io.Reader) (int64, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	if b[0] < 0x80 {
		return int64(b[0]), nil
	}
	n := int(b[0] &^ 0x80)
	if n > 8 {
		return 0, fmt.Errorf("rsyncwire: invalid varint length byte %#x", b[0])
	}
	var payload [8]byte
	if _, err := io.ReadFull(r, payload[:n]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(payload[:])), nil
}

// WriteVarint30 is varint on protocol >= 30, and a fixed 4-byte
// little-endian integer on protocol < 30.
func WriteVarint30(w io.Writer, v int32, protocol int) error {
	if protocol >= 30 {
		return WriteVarint(w, int64(v))
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

func ReadVarint30(r io.Reader, protocol int) (int32, error) {
	if protocol >= 30 {
		v, err := ReadVarint(r)
		return int32(v), err
	}
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

// WriteLongint writes a 4-byte little-endian integer when v fits in 31
// bits, otherwise a 0xFF escape byte followed by a full 8-byte
// little-endian value. Used for legacy (protocol < 30) sizes and hardlink
// dev/ino.
func WriteLongint(w io.Writer, v int64) error {
	if v >= 0 && v <= 0x7FFFFFFF {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		_, err := w.Write(buf[:])
		return err
	}
	if _, err := w.Write([]byte{0xFF}); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

func ReadLongint(r io.Reader) (int64, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(buf[:])
	if v != 0xFFFFFFFF {
		return int64(int32(v)), nil
	}
	var buf8 [8]byte
	if _, err := io.ReadFull(r, buf8[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf8[:])), nil
}

// WriteVarlong writes v using the parameterized varlong(min) encoding: a
// one-byte "extra" count followed by (min+extra) little-endian payload
// bytes, where extra is the minimal number of additional bytes (beyond
// min) needed to hold the value (0 when it fits in min bytes).
func WriteVarlong(w io.Writer, v int64, minBytes int) error {
	if v < 0 {
		return fmt.Errorf("rsyncwire: varlong cannot encode negative value %d", v)
	}
	if minBytes < 1 || minBytes > 8 {
		return fmt.Errorf("rsyncwire: invalid varlong minBytes %d", minBytes)
	}
	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], uint64(v))
	n := 8
	for n > minBytes && payload[n-1] == 0 {
		n--
	}
	extra := n - minBytes
	out := make([]byte, 0, 1+n)
	out = append(out, byte(extra))
	out = append(out, payload[:n]...)
	_, err := w.Write(out)
	return err
}

func ReadVarlong(r io.Reader, minBytes int) (int64, error) {
	if minBytes < 1 || minBytes > 8 {
		return 0, fmt.Errorf("rsyncwire: invalid varlong minBytes %d", minBytes)
	}
	var hdr [1]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	extra := int(hdr[0])
	total := minBytes + extra
	if total > 8 {
		return 0, fmt.Errorf("rsyncwire: varlong extra count %d too large for min=%d", extra, minBytes)
	}
	var payload [8]byte
	if _, err := io.ReadFull(r, payload[:total]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(payload[:])), nil
}
