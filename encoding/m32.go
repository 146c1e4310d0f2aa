package encoding

import (
	"math"

	"github.com/arloliu/gridstore/errs"
)

// M32 coding packs signed 32-bit integers into 1 to 5 bytes. Residual
// streams produced by the predictive transforms are strongly biased toward
// small magnitudes, so the single-byte form dominates.
//
// Code layout (first byte interpreted as int8):
//
//	-125..+125  the value itself
//	+126        followed by a little-endian int16
//	+127        followed by a little-endian int32
//	-126        the null (fill-value) sentinel
//	-127, -128  reserved; a decode error
//
// The encoder always emits the shortest applicable form, so every integer
// has exactly one canonical encoding.
const (
	m32SingleMin = -125
	m32SingleMax = 125
	m32CodeInt16 = 126
	m32CodeInt32 = 127
	m32CodeNull  = -126
)

// M32Encoder accumulates M32 codes into a byte buffer.
type M32Encoder struct {
	buf []byte
}

// NewM32Encoder creates an encoder with capacity for n single-byte codes.
func NewM32Encoder(n int) *M32Encoder {
	return &M32Encoder{buf: make([]byte, 0, n)}
}

// Append encodes a signed 32-bit value in its canonical form.
func (e *M32Encoder) Append(v int32) {
	switch {
	case v >= m32SingleMin && v <= m32SingleMax:
		e.buf = append(e.buf, byte(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		e.buf = append(e.buf, byte(int8(m32CodeInt16)), byte(v), byte(v>>8))
	default:
		e.buf = append(e.buf, byte(int8(m32CodeInt32)),
			byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
}

// AppendNull encodes the fill-value sentinel.
func (e *M32Encoder) AppendNull() {
	code := int8(m32CodeNull)
	e.buf = append(e.buf, byte(code))
}

// Bytes returns the encoded stream.
func (e *M32Encoder) Bytes() []byte {
	return e.buf
}

// EncodedLength returns the number of bytes written.
func (e *M32Encoder) EncodedLength() int {
	return len(e.buf)
}

// Reset clears the encoder for reuse.
func (e *M32Encoder) Reset() {
	e.buf = e.buf[:0]
}

// M32Decoder consumes M32 codes from a caller-supplied byte buffer,
// advancing an internal position with each decoded value.
type M32Decoder struct {
	data []byte
	pos  int
}

// NewM32Decoder creates a decoder over the full byte slice.
func NewM32Decoder(data []byte) *M32Decoder {
	return &M32Decoder{data: data}
}

// NewM32DecoderSlice creates a decoder over data[offset : offset+length].
func NewM32DecoderSlice(data []byte, offset, length int) *M32Decoder {
	return &M32Decoder{data: data[offset : offset+length]}
}

// Next decodes the next value. The boolean result reports the null
// sentinel; when it is true the value is zero.
func (d *M32Decoder) Next() (int32, bool, error) {
	if d.pos >= len(d.data) {
		return 0, false, errs.ErrInvalidM32Code
	}

	code := int8(d.data[d.pos])
	d.pos++

	switch {
	case code >= m32SingleMin && code <= m32SingleMax:
		return int32(code), false, nil
	case code == m32CodeNull:
		return 0, true, nil
	case code == m32CodeInt16:
		if d.pos+2 > len(d.data) {
			return 0, false, errs.ErrInvalidM32Code
		}
		v := int16(uint16(d.data[d.pos]) | uint16(d.data[d.pos+1])<<8)
		d.pos += 2

		return int32(v), false, nil
	case code == m32CodeInt32:
		if d.pos+4 > len(d.data) {
			return 0, false, errs.ErrInvalidM32Code
		}
		v := int32(uint32(d.data[d.pos]) | uint32(d.data[d.pos+1])<<8 |
			uint32(d.data[d.pos+2])<<16 | uint32(d.data[d.pos+3])<<24)
		d.pos += 4

		return v, false, nil
	default:
		return 0, false, errs.ErrInvalidM32Code
	}
}

// Position returns the byte offset of the next code.
func (d *M32Decoder) Position() int {
	return d.pos
}

// Remaining returns the number of unread bytes.
func (d *M32Decoder) Remaining() int {
	return len(d.data) - d.pos
}
