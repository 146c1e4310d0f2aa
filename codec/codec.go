// Package codec implements the tile compression codecs and the registry
// that selects among them.
//
// A tile codec turns the integer coding of a tile (or a float plane) into a
// self-describing packing whose first byte is the codec's registry index.
// On encode the registry runs every candidate codec and keeps the smallest
// packing; on decode it dispatches on the index byte. Codecs that cannot
// represent a tile - all-null content, residuals overflowing 32 bits -
// decline by returning a nil packing, and the store falls back to
// uncompressed storage.
package codec

import (
	"math"

	"github.com/arloliu/gridstore/errs"
)

// MaxCodecs is the capacity of the registry's one-byte index namespace.
const MaxCodecs = 255

// Codec ids for the built-in registry.
const (
	IDHuffman = "huffman"
	IDDeflate = "deflate"
	IDFloat   = "float"
	IDZstd    = "zstd"
	IDLZ4     = "lz4"
)

// TileCodec compresses and decompresses a single element plane of a tile.
//
// Integer methods operate on the plane's integer coding; float methods on
// the raw float values. EncodeInt and EncodeFloat return a nil packing,
// with a nil error, when the codec declines the plane.
type TileCodec interface {
	// ID returns the codec's persistent ASCII identifier, at most 16
	// characters.
	ID() string

	// ImplementsInteger reports whether the codec participates in
	// integer encoding.
	ImplementsInteger() bool

	// ImplementsFloat reports whether the codec participates in float
	// encoding.
	ImplementsFloat() bool

	// EncodeInt produces a packing whose first byte is index, or nil if
	// the codec declines the plane.
	EncodeInt(index uint8, nRows, nCols int, values []int32) ([]byte, error)

	// DecodeInt reverses EncodeInt.
	DecodeInt(packing []byte, nRows, nCols int) ([]int32, error)

	// EncodeFloat produces a packing whose first byte is index, or nil
	// if the codec declines the plane.
	EncodeFloat(index uint8, nRows, nCols int, values []float32) ([]byte, error)

	// DecodeFloat reverses EncodeFloat.
	DecodeFloat(packing []byte, nRows, nCols int) ([]float32, error)

	// Analyze inspects a packing and accumulates symbol statistics.
	Analyze(packing []byte, nRows, nCols int, stats *Stats) error
}

// Stats accumulates per-codec compression statistics across the tiles
// visited by the analysis path.
type Stats struct {
	CodecID      string
	TileCount    int64
	PackingBytes int64
	SymbolCount  int64
	OverheadBits int64
	Counts       [256]int64
}

// Tabulate records one packing's symbol stream and overhead.
func (s *Stats) Tabulate(symbols []byte, packingBytes, overheadBits int) {
	s.TileCount++
	s.PackingBytes += int64(packingBytes)
	s.OverheadBits += int64(overheadBits)
	s.SymbolCount += int64(len(symbols))
	for _, sym := range symbols {
		s.Counts[sym]++
	}
}

// Entropy returns the zeroth-order entropy of the observed symbol stream
// in bits per symbol.
func (s *Stats) Entropy() float64 {
	if s.SymbolCount == 0 {
		return 0
	}

	var entropy float64
	total := float64(s.SymbolCount)
	for _, count := range s.Counts {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// BitsPerSymbol returns the achieved packing cost in bits per symbol,
// including tree and header overhead.
func (s *Stats) BitsPerSymbol() float64 {
	if s.SymbolCount == 0 {
		return 0
	}

	return float64(s.PackingBytes*8) / float64(s.SymbolCount)
}

// packingIndex returns the codec index byte of a packing.
func packingIndex(packing []byte) (uint8, error) {
	if len(packing) == 0 {
		return 0, errs.ErrUnknownCodec
	}

	return packing[0], nil
}
