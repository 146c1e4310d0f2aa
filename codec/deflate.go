package codec

import (
	"github.com/arloliu/gridstore/compress"
	"github.com/arloliu/gridstore/endian"
	"github.com/arloliu/gridstore/errs"
)

// byteEntropyCodec is the integer codec shared by the Deflate, Zstd, and
// LZ4 entropy stages. The packing is byte-oriented:
//
//	[0]     codec index
//	[1]     predictor type
//	[2:6]   seed, int32 LE
//	[6:10]  M32 byte count, int32 LE
//	[10:]   entropy-compressed M32 stream
//
// The M32 byte count lets the decoder size its output buffer before
// decompressing.
type byteEntropyCodec struct {
	id      string
	entropy compress.Codec
}

var _ TileCodec = (*byteEntropyCodec)(nil)

// NewDeflateCodec creates the deflate tile codec.
func NewDeflateCodec() TileCodec {
	return &byteEntropyCodec{id: IDDeflate, entropy: compress.NewDeflateCompressor()}
}

// NewZstdCodec creates the zstd extension tile codec.
func NewZstdCodec() TileCodec {
	return &byteEntropyCodec{id: IDZstd, entropy: compress.NewZstdCompressor()}
}

// NewLZ4Codec creates the lz4 extension tile codec.
func NewLZ4Codec() TileCodec {
	return &byteEntropyCodec{id: IDLZ4, entropy: compress.NewLZ4Compressor()}
}

func (c *byteEntropyCodec) ID() string { return c.id }

func (c *byteEntropyCodec) ImplementsInteger() bool { return true }

func (c *byteEntropyCodec) ImplementsFloat() bool { return false }

func (c *byteEntropyCodec) EncodeInt(index uint8, nRows, nCols int, values []int32) ([]byte, error) {
	engine := endian.GetLittleEndianEngine()

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
		compressed, err := c.entropy.Compress(m32)
		if err != nil {
			return nil, err
		}

		packing := make([]byte, 2, intHeaderSize+len(compressed))
		packing[0] = index
		packing[1] = uint8(p.Type())
		packing = engine.AppendUint32(packing, uint32(seed))
		packing = engine.AppendUint32(packing, uint32(len(m32)))
		packing = append(packing, compressed...)

		if best == nil || len(packing) < len(best) {
			best = packing
		}
	}

	return best, nil
}

func (c *byteEntropyCodec) DecodeInt(packing []byte, nRows, nCols int) ([]int32, error) {
	_, predictorCode, seed, m32, err := c.decodePacking(packing)
	if err != nil {
		return nil, err
	}

	return decodePredicted(predictorCode, seed, m32, nRows, nCols)
}

func (c *byteEntropyCodec) EncodeFloat(uint8, int, int, []float32) ([]byte, error) {
	return nil, nil
}

func (c *byteEntropyCodec) DecodeFloat([]byte, int, int) ([]float32, error) {
	return nil, errs.ErrNotEncodable
}

// Analyze tabulates the decompressed M32 stream; the fixed header counts
// as overhead.
func (c *byteEntropyCodec) Analyze(packing []byte, nRows, nCols int, stats *Stats) error {
	_, _, _, m32, err := c.decodePacking(packing)
	if err != nil {
		return err
	}
	stats.Tabulate(m32, len(packing), intHeaderSize*8)

	return nil
}

func (c *byteEntropyCodec) decodePacking(packing []byte) (index, predictorCode uint8, seed int32, m32 []byte, err error) {
	if len(packing) < intHeaderSize {
		return 0, 0, 0, nil, errs.ErrInvalidRecordSize
	}
	engine := endian.GetLittleEndianEngine()

	index = packing[0]
	predictorCode = packing[1]
	seed = int32(engine.Uint32(packing[2:6]))
	nM32 := int(int32(engine.Uint32(packing[6:10])))
	if nM32 < 0 {
		return 0, 0, 0, nil, errs.ErrInvalidRecordSize
	}

	m32, err = c.entropy.Decompress(packing[intHeaderSize:])
	if err != nil {
		return 0, 0, 0, nil, err
	}
	if len(m32) != nM32 {
		return 0, 0, 0, nil, errs.ErrInvalidRecordSize
	}

	return index, predictorCode, seed, m32, nil
}
