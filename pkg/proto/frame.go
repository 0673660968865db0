package proto

import (
	"bufio"
	"fmt"
	"io"

	"github.com/raskfs/rask/pkg/wire"
)

// MaxBodySize bounds a single packet's body length to what a size-control
// value can encode (spec design notes: "an implementer should ... document
// the maximum single-packet body size").
const MaxBodySize = wire.MaxSizeControlValue

// Frame is one decoded packet: an opcode and its body, matching spec
// §4.2's outer frame `<size-control body-length><opcode><body>`.
type Frame struct {
	Opcode Opcode
	Body   []byte
}

// WriteFrame writes the outer frame for (op, body) to w: a size-control
// body length (the opcode is not counted in it), the opcode byte, then
// the body.
func WriteFrame(w io.Writer, op Opcode, body []byte) error {
	if len(body) > MaxBodySize {
		return fmt.Errorf("proto: body too large: %d > %d", len(body), MaxBodySize)
	}
	header, err := wire.EncodeSize(nil, len(body))
	if err != nil {
		return err
	}
	header = append(header, byte(op))
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err = w.Write(body)
	return err
}

// Encode returns the wire bytes for (op, body) without writing them
// anywhere; used by packet-builder closures in pkg/queue that must
// produce deterministic bytes on the sending task.
func Encode(op Opcode, body []byte) ([]byte, error) {
	var buf []byte
	header, err := wire.EncodeSize(nil, len(body))
	if err != nil {
		return nil, err
	}
	buf = append(buf, header...)
	buf = append(buf, byte(op))
	buf = append(buf, body...)
	return buf, nil
}

// ReadFrame decodes one outer frame from r: a size-control body length,
// one opcode byte, then exactly that many body bytes (spec §4.2 steps
// 1-3). It performs no dispatch; callers own steps 4-5.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	first, err := r.ReadByte()
	if err != nil {
		return Frame{}, err
	}

	var sizeBuf []byte
	switch {
	case first <= 0x7F:
		sizeBuf = []byte{first}
	case first == 0xF9:
		sizeBuf = make([]byte, 2)
	case first == 0xFA:
		sizeBuf = make([]byte, 3)
	case first == 0xFB:
		sizeBuf = make([]byte, 4)
	default:
		return Frame{}, wire.ErrInvalidSizeByte
	}
	sizeBuf[0] = first
	if len(sizeBuf) > 1 {
		if _, err := io.ReadFull(r, sizeBuf[1:]); err != nil {
			return Frame{}, wrapEOF(err)
		}
	}
	bodyLen, _, err := wire.DecodeSize(sizeBuf)
	if err != nil {
		return Frame{}, err
	}
	if bodyLen > MaxBodySize {
		return Frame{}, fmt.Errorf("proto: declared body length %d exceeds max %d", bodyLen, MaxBodySize)
	}

	opByte, err := r.ReadByte()
	if err != nil {
		return Frame{}, wrapEOF(err)
	}

	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return Frame{}, wrapEOF(err)
		}
	}
	return Frame{Opcode: Opcode(opByte), Body: body}, nil
}

func wrapEOF(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return wire.ErrPrematureEOF
	}
	return err
}
