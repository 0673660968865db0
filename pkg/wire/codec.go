// Package wire implements the size-control integer encoding and the typed
// readers/writers used to build and parse packet bodies, per spec §4.1.
// All multi-byte integers are big-endian.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/raskfs/rask/pkg/tick"
)

// ErrPrematureEOF is returned when a read consumes more bytes than remain
// in the packet body.
var ErrPrematureEOF = errors.New("wire: premature end of packet")

// Reader parses typed values from a packet body, tracking how many bytes
// remain so a caller can discard any unread trailing bytes (spec §4.2 step
// 5) without hand-rolling an offset everywhere.
type Reader struct {
	buf []byte
	off int
}

// NewReader binds a Reader to a packet-local byte view. The view is not
// copied; callers must not mutate buf while the Reader is in use.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes in the body.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Bytes returns and consumes the next n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrPrematureEOF
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Byte reads a single byte.
func (r *Reader) Byte() (byte, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a big-endian 16-bit integer.
func (r *Reader) Uint16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// Uint32 reads a big-endian 32-bit integer.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Int64 reads a big-endian signed 64-bit integer.
func (r *Reader) Int64() (int64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// Uint64 reads a big-endian unsigned 64-bit integer.
func (r *Reader) Uint64() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Tick reads a (time int64, server u32) tick per spec §3.
func (r *Reader) Tick() (tick.Tick, error) {
	t, err := r.Int64()
	if err != nil {
		return tick.Tick{}, err
	}
	s, err := r.Uint32()
	if err != nil {
		return tick.Tick{}, err
	}
	return tick.Tick{Time: t, Server: s}, nil
}

// Size reads a size-control value.
func (r *Reader) Size() (int, error) {
	n, consumed, err := DecodeSize(r.buf[r.off:])
	if err != nil {
		return 0, err
	}
	r.off += consumed
	return n, nil
}

// String reads a size-control length prefix followed by that many raw
// UTF-8 bytes.
func (r *Reader) String() (string, error) {
	n, err := r.Size()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Discard consumes and returns any bytes not yet read, matching the
// defensive "discard trailing bytes" step of spec §4.2.
func (r *Reader) Discard() []byte {
	rest := r.buf[r.off:]
	r.off = len(r.buf)
	return rest
}

// Writer builds a packet body by appending typed values.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated body.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Raw appends a byte block with no length prefix; callers must emit a
// size-control length themselves when the length is not fixed by context
// (spec §4.1: "writing a raw byte block writes no length prefix").
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Byte appends a single byte.
func (w *Writer) Byte(b byte) {
	w.buf = append(w.buf, b)
}

// Uint16 appends a big-endian 16-bit integer.
func (w *Writer) Uint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Uint32 appends a big-endian 32-bit integer.
func (w *Writer) Uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Int64 appends a big-endian signed 64-bit integer.
func (w *Writer) Int64(v int64) {
	w.Uint64(uint64(v))
}

// Uint64 appends a big-endian unsigned 64-bit integer.
func (w *Writer) Uint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// Tick appends a (time, server) tick.
func (w *Writer) Tick(t tick.Tick) {
	w.Int64(t.Time)
	w.Uint32(t.Server)
}

// Size appends a size-control encoding of n.
func (w *Writer) Size(n int) error {
	b, err := EncodeSize(w.buf, n)
	if err != nil {
		return err
	}
	w.buf = b
	return nil
}

// String appends a size-control byte-length prefix followed by s's bytes.
func (w *Writer) String(s string) error {
	if err := w.Size(len(s)); err != nil {
		return err
	}
	w.buf = append(w.buf, s...)
	return nil
}
