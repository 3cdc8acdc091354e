// Package codec encodes messages into the compact wire format carried by
// CAN frames.
//
// A message is encoded as protobuf fields: 1 = version (varint), 2 = ack
// number (varint), and the payload as a length-delimited field numbered by
// its kind. Zero header fields are omitted. The encoding is deterministic.
//
// Frames carry the message size-prefixed: a varint length (one byte for any
// message that fits a frame) followed by the message. Bytes after the
// declared length are frame padding and are ignored.
package codec

import (
	"math"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/orb.go/pkg/mcu/msgs"
)

// MaxEncodedSize bounds the encoding of any valid message: a 64-byte CAN-FD
// frame minus the size prefix.
const MaxEncodedSize = 63

const (
	fieldVersion   = 1
	fieldAckNumber = 2

	wireVarint = 0
	wireBytes  = 2

	maxVarintLen = 10
)

func key(field uint64, wire uint64) uint64 {
	return field<<3 | wire
}

// Marshal returns the encoding of m.
func Marshal(m *msgs.Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, &EncodeError{Reason: ErrSchemaViolation, Kind: m.Kind(), Err: err}
	}
	buf := proto.NewBuffer(make([]byte, 0, MaxEncodedSize))
	if m.Version != 0 {
		buf.EncodeVarint(key(fieldVersion, wireVarint))
		buf.EncodeVarint(uint64(m.Version))
	}
	if m.AckNumber != 0 {
		buf.EncodeVarint(key(fieldAckNumber, wireVarint))
		buf.EncodeVarint(uint64(m.AckNumber))
	}
	buf.EncodeVarint(key(uint64(m.Kind()), wireBytes))
	if err := buf.EncodeMessage(m.Payload); err != nil {
		return nil, &EncodeError{Reason: ErrSchemaViolation, Kind: m.Kind(), Err: err}
	}
	if n := len(buf.Bytes()); n > MaxEncodedSize {
		return nil, &EncodeError{Reason: ErrSchemaViolation, Kind: m.Kind(), Need: n}
	}
	return buf.Bytes(), nil
}

// Size returns the encoded size of m without the size prefix.
func Size(m *msgs.Message) (int, error) {
	b, err := Marshal(m)
	return len(b), err
}

// Encode serializes m into out and returns the number of bytes written.
func Encode(m *msgs.Message, out []byte) (int, error) {
	b, err := Marshal(m)
	if err != nil {
		return 0, err
	}
	if len(b) > len(out) {
		return 0, &EncodeError{Reason: ErrBufferTooSmall, Kind: m.Kind(), Need: len(b)}
	}
	return copy(out, b), nil
}

// EncodeDelimited serializes m into out prefixed by its length.
func EncodeDelimited(m *msgs.Message, out []byte) (int, error) {
	b, err := Marshal(m)
	if err != nil {
		return 0, err
	}
	framed := AppendDelimited(nil, b)
	if len(framed) > len(out) {
		return 0, &EncodeError{Reason: ErrBufferTooSmall, Kind: m.Kind(), Need: len(framed)}
	}
	return copy(out, framed), nil
}

// AppendDelimited appends the size prefix and an encoded message to dst.
func AppendDelimited(dst, encoded []byte) []byte {
	dst = append(dst, proto.EncodeVarint(uint64(len(encoded)))...)
	return append(dst, encoded...)
}

// Decode parses a complete message occupying all of data.
func Decode(data []byte) (*msgs.Message, error) {
	m := &msgs.Message{}
	for off := 0; off < len(data); {
		k, n, err := decodeVarint(data, off)
		if err != nil {
			return nil, err
		}
		field, wire := k>>3, k&7
		start := off
		off += n
		switch field {
		case fieldVersion, fieldAckNumber:
			if wire != wireVarint {
				return nil, &DecodeError{Reason: ErrMalformed, Offset: start, Tag: field}
			}
			v, n, err := decodeVarint(data, off)
			if err != nil {
				return nil, err
			}
			if v > math.MaxUint32 {
				return nil, &DecodeError{Reason: ErrMalformed, Offset: off, Tag: field}
			}
			off += n
			if field == fieldVersion {
				m.Version = msgs.Version(v)
			} else {
				m.AckNumber = uint32(v)
			}
			continue
		}

		kind := msgs.Kind(field)
		if !kind.IsKnown() {
			return nil, &DecodeError{Reason: ErrUnknownTag, Offset: start, Tag: field}
		}
		if wire != wireBytes || m.Payload != nil {
			return nil, &DecodeError{Reason: ErrMalformed, Offset: start, Tag: field}
		}
		size, n, err := decodeVarint(data, off)
		if err != nil {
			return nil, err
		}
		off += n
		if size > uint64(len(data)-off) {
			return nil, &DecodeError{Reason: ErrTruncated, Offset: off}
		}
		payload, _ := msgs.NewPayload(kind)
		if err := proto.Unmarshal(data[off:off+int(size)], payload); err != nil {
			return nil, &DecodeError{Reason: ErrMalformed, Offset: off, Tag: field, Err: err}
		}
		off += int(size)
		m.Payload = payload
	}
	if m.Payload == nil {
		return nil, &DecodeError{Reason: ErrTruncated, Offset: len(data), Err: msgs.ErrNoPayload}
	}
	return m, nil
}

// DecodeDelimited parses a size-prefixed message from a frame payload.
// It never reads past the declared length.
func DecodeDelimited(data []byte) (*msgs.Message, error) {
	size, n, err := decodeVarint(data, 0)
	if err != nil {
		return nil, err
	}
	if size > uint64(len(data)-n) {
		return nil, &DecodeError{Reason: ErrTruncated, Offset: n}
	}
	return Decode(data[n : n+int(size)])
}

func decodeVarint(data []byte, off int) (uint64, int, error) {
	v, n := proto.DecodeVarint(data[off:])
	if n > 0 {
		return v, n, nil
	}
	if len(data)-off >= maxVarintLen {
		return 0, 0, &DecodeError{Reason: ErrMalformed, Offset: off}
	}
	return 0, 0, &DecodeError{Reason: ErrTruncated, Offset: off}
}
