// Package codec implements the binary wire primitives shared by every
// descriptor and IQ serialiser: bool, int32, int64, float64, length-prefixed
// string/bytes, UUID and small enum tags, plus optional-wrappers around all
// of the above.
//
// Two framing variants exist. "Compact" writes nothing before the caller's
// own bytes. "Padded" writes a fixed 4-byte leading marker first, for
// transports that still expect the legacy framing. Both variants share the
// same primitive encoding: int32/int64 are fixed-width
// big-endian, strings/bytes are int32-length-prefixed UTF-8/raw bytes, UUIDs
// are 16 raw bytes in network order, enums are a single byte.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ErrTruncated is returned when a Decoder runs out of bytes mid-read.
var ErrTruncated = errors.New("codec: truncated frame")

// paddingMarker is the fixed leading byte sequence written by the padded
// framing variant, matching the legacy transport's expectation of a
// constant-width prefix before the envelope.
var paddingMarker = [4]byte{0x00, 0x00, 0x00, 0x00}

const (
	optionalAbsent byte = 0
	optionalPresent byte = 1
)

// Encoder writes primitives to an in-memory buffer using one framing variant.
type Encoder struct {
	buf []byte
	padded bool
}

// NewEncoder returns an Encoder. padded selects the legacy leading-padding
// framing variant; compact encoders pass padded=false.
func NewEncoder(padded bool) *Encoder {
	e := &Encoder{padded: padded}
	if padded {
 e.buf = append(e.buf, paddingMarker[:]...)
	}
	return e
}

// Bytes returns the accumulated wire bytes.
func (e *Encoder) Bytes() []byte { return e.buf }

// Padded reports which framing variant this encoder was constructed with.
func (e *Encoder) Padded() bool { return e.padded }

func (e *Encoder) WriteBool(v bool) {
	if v {
 e.buf = append(e.buf, 1)
	} else {
 e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) WriteInt(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteLong(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteDouble(v float64) {
	e.WriteLong(int64(math.Float64bits(v)))
}

func (e *Encoder) WriteString(v string) {
	e.WriteBytes([]byte(v))
}

func (e *Encoder) WriteBytes(v []byte) {
	e.WriteInt(int32(len(v)))
	e.buf = append(e.buf, v...)
}

func (e *Encoder) WriteUUID(v uuid.UUID) {
	e.buf = append(e.buf, v[:]...)
}

// WriteEnum writes a small non-negative discriminator as a single byte.
func (e *Encoder) WriteEnum(v int) {
	e.buf = append(e.buf, byte(v))
}

// WriteZero writes the "absent" optional tag, for fields the caller knows
// are unset without materialising an Optional wrapper.
func (e *Encoder) WriteZero() {
	e.buf = append(e.buf, optionalAbsent)
}

func (e *Encoder) WriteOptionalString(v *string) {
	if v == nil {
 e.WriteZero()
 return
	}
	e.buf = append(e.buf, optionalPresent)
	e.WriteString(*v)
}

func (e *Encoder) WriteOptionalLong(v *int64) {
	if v == nil {
 e.WriteZero()
 return
	}
	e.buf = append(e.buf, optionalPresent)
	e.WriteLong(*v)
}

func (e *Encoder) WriteOptionalInt(v *int32) {
	if v == nil {
 e.WriteZero()
 return
	}
	e.buf = append(e.buf, optionalPresent)
	e.WriteInt(*v)
}

func (e *Encoder) WriteOptionalUUID(v *uuid.UUID) {
	if v == nil {
 e.WriteZero()
 return
	}
	e.buf = append(e.buf, optionalPresent)
	e.WriteUUID(*v)
}

func (e *Encoder) WriteOptionalBytes(v []byte) {
	if v == nil {
 e.WriteZero()
 return
	}
	e.buf = append(e.buf, optionalPresent)
	e.WriteBytes(v)
}

// Decoder reads primitives back off a wire buffer.
type Decoder struct {
	buf []byte
	pos int
	padded bool
}

// NewDecoder wraps buf for reading. If padded, the leading marker is
// consumed (and validated for length only) before the caller reads the
// envelope.
func NewDecoder(buf []byte, padded bool) (*Decoder, error) {
	d := &Decoder{buf: buf, padded: padded}
	if padded {
 if len(buf) < len(paddingMarker) {
 return nil, ErrTruncated
 }
 d.pos = len(paddingMarker)
	}
	return d, nil
}

func (d *Decoder) need(n int) error {
	if len(d.buf)-d.pos < n {
 return ErrTruncated
	}
	return nil
}

func (d *Decoder) ReadBool() (bool, error) {
	if err := d.need(1); err != nil {
 return false, err
	}
	v := d.buf[d.pos] != 0
	d.pos++
	return v, nil
}

func (d *Decoder) ReadInt() (int32, error) {
	if err := d.need(4); err != nil {
 return 0, err
	}
	v := int32(binary.BigEndian.Uint32(d.buf[d.pos:]))
	d.pos += 4
	return v, nil
}

func (d *Decoder) ReadLong() (int64, error) {
	if err := d.need(8); err != nil {
 return 0, err
	}
	v := int64(binary.BigEndian.Uint64(d.buf[d.pos:]))
	d.pos += 8
	return v, nil
}

func (d *Decoder) ReadDouble() (float64, error) {
	v, err := d.ReadLong()
	if err != nil {
 return 0, err
	}
	return math.Float64frombits(uint64(v)), nil
}

func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadInt()
	if err != nil {
 return nil, err
	}
	if n < 0 {
 return nil, fmt.Errorf("codec: negative length %d", n)
	}
	if err := d.need(int(n)); err != nil {
 return nil, err
	}
	v := make([]byte, n)
	copy(v, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return v, nil
}

func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
 return "", err
	}
	return string(b), nil
}

func (d *Decoder) ReadUUID() (uuid.UUID, error) {
	if err := d.need(16); err != nil {
 return uuid.Nil, err
	}
	var u uuid.UUID
	copy(u[:], d.buf[d.pos:d.pos+16])
	d.pos += 16
	return u, nil
}

func (d *Decoder) ReadEnum() (int, error) {
	if err := d.need(1); err != nil {
 return 0, err
	}
	v := int(d.buf[d.pos])
	d.pos++
	return v, nil
}

func (d *Decoder) readOptionalTag() (bool, error) {
	tag, err := d.ReadEnum()
	if err != nil {
 return false, err
	}
	switch byte(tag) {
	case optionalAbsent:
 return false, nil
	case optionalPresent:
 return true, nil
	default:
 return false, fmt.Errorf("codec: unexpected optional tag %d", tag)
	}
}

func (d *Decoder) ReadOptionalString() (*string, error) {
	present, err := d.readOptionalTag()
	if err != nil || !present {
 return nil, err
	}
	v, err := d.ReadString()
	if err != nil {
 return nil, err
	}
	return &v, nil
}

func (d *Decoder) ReadOptionalLong() (*int64, error) {
	present, err := d.readOptionalTag()
	if err != nil || !present {
 return nil, err
	}
	v, err := d.ReadLong()
	if err != nil {
 return nil, err
	}
	return &v, nil
}

func (d *Decoder) ReadOptionalInt() (*int32, error) {
	present, err := d.readOptionalTag()
	if err != nil || !present {
 return nil, err
	}
	v, err := d.ReadInt()
	if err != nil {
 return nil, err
	}
	return &v, nil
}

func (d *Decoder) ReadOptionalUUID() (*uuid.UUID, error) {
	present, err := d.readOptionalTag()
	if err != nil || !present {
 return nil, err
	}
	v, err := d.ReadUUID()
	if err != nil {
 return nil, err
	}
	return &v, nil
}

func (d *Decoder) ReadOptionalBytes() ([]byte, error) {
	present, err := d.readOptionalTag()
	if err != nil || !present {
 return nil, err
	}
	return d.ReadBytes()
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }
