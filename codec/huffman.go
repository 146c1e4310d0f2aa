package codec

import (
	"github.com/arloliu/gridstore/encoding"
	"github.com/arloliu/gridstore/errs"
)

// HuffmanCodec is the integer codec whose entropy stage is the byte-symbol
// Huffman coder.
//
// Packing layout, written through a bit store (LSB-first), so that the
// first byte of the packing equals the codec index:
//
//	8 bits   codec index
//	8 bits   predictor type
//	32 bits  seed
//	32 bits  M32 byte count
//	...      serialized Huffman tree followed by the coded M32 bytes
type HuffmanCodec struct{}

var _ TileCodec = HuffmanCodec{}

// NewHuffmanCodec creates the huffman tile codec.
func NewHuffmanCodec() HuffmanCodec {
	return HuffmanCodec{}
}

func (HuffmanCodec) ID() string { return IDHuffman }

func (HuffmanCodec) ImplementsInteger() bool { return true }

func (HuffmanCodec) ImplementsFloat() bool { return false }

// EncodeInt evaluates each applicable predictor and keeps the smallest
// complete packing. An all-null plane is declined.
func (HuffmanCodec) EncodeInt(index uint8, nRows, nCols int, values []int32) ([]byte, error) {
	var best []byte
	for _, p := range candidatePredictors(values) {
		enc, seed, err := runPredictor(p, nRows, nCols, values)
		if err != nil {
			return nil, err
		}
		if enc == nil {
			continue
		}

		m32 := enc.Bytes()
		if len(m32) == 0 {
			// Single-cell planes carry the seed alone; the byte-oriented
			// codecs handle that case.
			continue
		}
		w := encoding.NewBitWriter()
		_ = w.AppendBits(8, uint32(index))
		_ = w.AppendBits(8, uint32(p.Type()))
		_ = w.AppendBits(32, uint32(seed))
		_ = w.AppendBits(32, uint32(len(m32)))

		if err := (encoding.HuffmanEncoder{}).Encode(m32, w); err != nil {
			return nil, err
		}

		if best == nil || w.EncodedLengthInBytes() < len(best) {
			best = append([]byte(nil), w.EncodedText()...)
		}
	}

	return best, nil
}

// DecodeInt parses the fixed header, Huffman-decodes the M32 stream, and
// runs the predictor's inverse.
func (HuffmanCodec) DecodeInt(packing []byte, nRows, nCols int) ([]int32, error) {
	_, predictorCode, seed, m32, _, err := decodeHuffmanPacking(packing)
	if err != nil {
		return nil, err
	}

	return decodePredicted(predictorCode, seed, m32, nRows, nCols)
}

func (HuffmanCodec) EncodeFloat(uint8, int, int, []float32) ([]byte, error) {
	return nil, nil
}

func (HuffmanCodec) DecodeFloat([]byte, int, int) ([]float32, error) {
	return nil, errs.ErrNotEncodable
}

// Analyze decodes the packing's symbol stream and records the tree bits as
// overhead.
func (HuffmanCodec) Analyze(packing []byte, nRows, nCols int, stats *Stats) error {
	_, _, _, m32, treeBits, err := decodeHuffmanPacking(packing)
	if err != nil {
		return err
	}
	stats.Tabulate(m32, len(packing), treeBits)

	return nil
}

func decodeHuffmanPacking(packing []byte) (index, predictorCode uint8, seed int32, m32 []byte, treeBits int, err error) {
	r := encoding.NewBitReader(packing)

	v, err := r.GetBits(8)
	if err != nil {
		return 0, 0, 0, nil, 0, err
	}
	index = uint8(v)

	v, err = r.GetBits(8)
	if err != nil {
		return 0, 0, 0, nil, 0, err
	}
	predictorCode = uint8(v)

	v, err = r.GetBits(32)
	if err != nil {
		return 0, 0, 0, nil, 0, err
	}
	seed = int32(v)

	v, err = r.GetBits(32)
	if err != nil {
		return 0, 0, 0, nil, 0, err
	}
	nM32 := int(int32(v))
	if nM32 < 0 {
		return 0, 0, 0, nil, 0, errs.ErrInvalidRecordSize
	}

	d := encoding.NewHuffmanDecoder()
	if err := d.DecodeTree(r); err != nil {
		return 0, 0, 0, nil, 0, err
	}

	m32, err = d.DecodeBlock(r, nM32)
	if err != nil {
		return 0, 0, 0, nil, 0, err
	}

	return index, predictorCode, seed, m32, d.TreeBitCount(), nil
}
