package codec

import (
	"math"

	"github.com/arloliu/gridstore/compress"
	"github.com/arloliu/gridstore/encoding"
	"github.com/arloliu/gridstore/endian"
	"github.com/arloliu/gridstore/errs"
)

// FloatCodec is the lossless float codec. It splits each value's IEEE-754
// bits into planes, compresses each plane with Deflate, and concatenates:
//
//	[0]  codec index
//	[1]  reserved predictor flag, zero
//	then five planes, each prefixed by its compressed length as int32 LE:
//	  sign bits, packed 8 per byte
//	  exponent, bits 23..30, one byte per value
//	  mantissa bits 16..22, one byte per value, row-delta transformed
//	  mantissa bits 8..15, row-delta transformed
//	  mantissa bits 0..7, row-delta transformed
//
// Separating the planes groups bytes of like statistics, which Deflate
// rewards heavily on smooth geophysical fields.
type FloatCodec struct {
	deflate compress.DeflateCompressor
}

var _ TileCodec = FloatCodec{}

// NewFloatCodec creates the float tile codec.
func NewFloatCodec() FloatCodec {
	return FloatCodec{deflate: compress.NewDeflateCompressor()}
}

func (FloatCodec) ID() string { return IDFloat }

func (FloatCodec) ImplementsInteger() bool { return false }

func (FloatCodec) ImplementsFloat() bool { return true }

func (FloatCodec) EncodeInt(uint8, int, int, []int32) ([]byte, error) {
	return nil, nil
}

func (FloatCodec) DecodeInt([]byte, int, int) ([]int32, error) {
	return nil, errs.ErrNotEncodable
}

// EncodeFloat compresses the plane split of the tile.
func (c FloatCodec) EncodeFloat(index uint8, nRows, nCols int, values []float32) ([]byte, error) {
	n := nRows * nCols
	engine := endian.GetLittleEndianEngine()

	signs := make([]byte, (n+7)/8)
	exponents := make([]byte, n)
	mantHigh := make([]byte, n)
	mantMid := make([]byte, n)
	mantLow := make([]byte, n)

	for i, v := range values {
		bits := math.Float32bits(v)
		if bits>>31 != 0 {
			signs[i>>3] |= 1 << (i & 7)
		}
		exponents[i] = byte(bits >> 23)
		mantHigh[i] = byte(bits>>16) & 0x7F
		mantMid[i] = byte(bits >> 8)
		mantLow[i] = byte(bits)
	}

	encoding.EncodeRowDeltas(nRows, nCols, mantHigh)
	encoding.EncodeRowDeltas(nRows, nCols, mantMid)
	encoding.EncodeRowDeltas(nRows, nCols, mantLow)

	packing := []byte{index, 0}
	for _, plane := range [][]byte{signs, exponents, mantHigh, mantMid, mantLow} {
		compressed, err := c.deflate.Compress(plane)
		if err != nil {
			return nil, err
		}
		packing = engine.AppendUint32(packing, uint32(len(compressed)))
		packing = append(packing, compressed...)
	}

	return packing, nil
}

// DecodeFloat reverses EncodeFloat bit-exactly.
func (c FloatCodec) DecodeFloat(packing []byte, nRows, nCols int) ([]float32, error) {
	n := nRows * nCols

	planes, err := c.decodePlanes(packing, nRows, nCols)
	if err != nil {
		return nil, err
	}
	signs, exponents, mantHigh, mantMid, mantLow := planes[0], planes[1], planes[2], planes[3], planes[4]

	values := make([]float32, n)
	for i := range values {
		var bits uint32
		if signs[i>>3]>>(i&7)&1 != 0 {
			bits = 1 << 31
		}
		bits |= uint32(exponents[i]) << 23
		bits |= uint32(mantHigh[i]&0x7F) << 16
		bits |= uint32(mantMid[i]) << 8
		bits |= uint32(mantLow[i])
		values[i] = math.Float32frombits(bits)
	}

	return values, nil
}

// Analyze tabulates the decoded plane bytes; the per-plane length prefixes
// and lead bytes count as overhead.
func (c FloatCodec) Analyze(packing []byte, nRows, nCols int, stats *Stats) error {
	planes, err := c.decodePlanes(packing, nRows, nCols)
	if err != nil {
		return err
	}

	symbols := make([]byte, 0, len(planes[1])*4+len(planes[0]))
	for _, plane := range planes {
		symbols = append(symbols, plane...)
	}
	stats.Tabulate(symbols, len(packing), (2+5*4)*8)

	return nil
}

func (c FloatCodec) decodePlanes(packing []byte, nRows, nCols int) ([5][]byte, error) {
	var planes [5][]byte
	n := nRows * nCols
	engine := endian.GetLittleEndianEngine()

	if len(packing) < 2 {
		return planes, errs.ErrInvalidRecordSize
	}

	wantLens := [5]int{(n + 7) / 8, n, n, n, n}
	pos := 2
	for i := range planes {
		if pos+4 > len(packing) {
			return planes, errs.ErrInvalidRecordSize
		}
		compressedLen := int(int32(engine.Uint32(packing[pos : pos+4])))
		pos += 4
		if compressedLen < 0 || pos+compressedLen > len(packing) {
			return planes, errs.ErrInvalidRecordSize
		}

		plane, err := c.deflate.Decompress(packing[pos : pos+compressedLen])
		if err != nil {
			return planes, err
		}
		if len(plane) != wantLens[i] {
			return planes, errs.ErrInvalidRecordSize
		}
		planes[i] = plane
		pos += compressedLen
	}

	encoding.DecodeRowDeltas(nRows, nCols, planes[2])
	encoding.DecodeRowDeltas(nRows, nCols, planes[3])
	encoding.DecodeRowDeltas(nRows, nCols, planes[4])

	return planes, nil
}
