package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/gridstore/errs"
	"github.com/arloliu/gridstore/format"
)

func smoothPlane(nRows, nCols int) []int32 {
	values := make([]int32, nRows*nCols)
	for r := 0; r < nRows; r++ {
		for c := 0; c < nCols; c++ {
			values[r*nCols+c] = int32(5000 + 2*r + c)
		}
	}

	return values
}

func TestIntegerCodecRoundTrips(t *testing.T) {
	codecs := []TileCodec{
		NewHuffmanCodec(),
		NewDeflateCodec(),
		NewZstdCodec(),
		NewLZ4Codec(),
	}

	planes := map[string][]int32{
		"smooth": smoothPlane(12, 12),
		"with nulls": {
			format.NullInt32, 10, 11, 12,
			20, 21, format.NullInt32, 23,
			30, 31, 32, 33,
		},
		"constant": {7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7},
	}

	for _, c := range codecs {
		require.True(t, c.ImplementsInteger())
		require.False(t, c.ImplementsFloat())

		for name, values := range planes {
			nCols := 12
			nRows := len(values) / nCols
			if len(values) == 12 {
				nRows, nCols = 3, 4
			}

			packing, err := c.EncodeInt(3, nRows, nCols, values)
			require.NoError(t, err, "%s/%s", c.ID(), name)
			require.NotNil(t, packing, "%s/%s", c.ID(), name)
			require.Equal(t, uint8(3), packing[0], "codec index must lead the packing")

			decoded, err := c.DecodeInt(packing, nRows, nCols)
			require.NoError(t, err)
			require.Equal(t, values, decoded, "%s/%s", c.ID(), name)
		}
	}
}

func TestIntegerCodecDeclinesAllNull(t *testing.T) {
	values := []int32{format.NullInt32, format.NullInt32, format.NullInt32, format.NullInt32}

	for _, c := range []TileCodec{NewHuffmanCodec(), NewDeflateCodec()} {
		packing, err := c.EncodeInt(0, 2, 2, values)
		require.NoError(t, err)
		require.Nil(t, packing)
	}
}

func TestIntegerCodecDeclinesOverflow(t *testing.T) {
	values := []int32{math.MaxInt32, math.MinInt32 + 1, math.MaxInt32, math.MinInt32 + 1}

	for _, c := range []TileCodec{NewHuffmanCodec(), NewDeflateCodec()} {
		packing, err := c.EncodeInt(0, 2, 2, values)
		require.NoError(t, err)
		require.Nil(t, packing, "%s must decline overflowing residuals", c.ID())
	}
}

func TestFloatCodecRoundTrip(t *testing.T) {
	c := NewFloatCodec()
	require.True(t, c.ImplementsFloat())
	require.False(t, c.ImplementsInteger())

	values := make([]float32, 64)
	for i := range values {
		values[i] = 101.25 + float32(i)*0.125
	}

	packing, err := c.EncodeFloat(2, 8, 8, values)
	require.NoError(t, err)
	require.Equal(t, uint8(2), packing[0])

	decoded, err := c.DecodeFloat(packing, 8, 8)
	require.NoError(t, err)
	require.Equal(t, values, decoded)
}

func TestFloatCodecPlaneSplit(t *testing.T) {
	// Signs, exponents and mantissas all survive bit-exactly, NaN included.
	values := []float32{1.0, -1.0, 0.0, float32(math.NaN())}

	c := NewFloatCodec()
	packing, err := c.EncodeFloat(0, 2, 2, values)
	require.NoError(t, err)

	decoded, err := c.DecodeFloat(packing, 2, 2)
	require.NoError(t, err)

	for i, want := range values {
		require.Equal(t, math.Float32bits(want), math.Float32bits(decoded[i]), "cell %d", i)
	}

	planes, err := c.decodePlanes(packing, 2, 2)
	require.NoError(t, err)
	require.Equal(t, byte(0x02), planes[0][0]&0x02, "sign plane marks the negative cell")
	require.Equal(t, byte(0x7F), planes[1][0], "exponent byte of 1.0")
	require.Equal(t, byte(0x7F), planes[1][1], "exponent byte of -1.0")
	require.Equal(t, byte(0x00), planes[1][2], "exponent byte of 0.0")
}

func TestFloatCodecSubnormalsAndInfinities(t *testing.T) {
	c := NewFloatCodec()
	values := []float32{
		float32(math.Inf(1)), float32(math.Inf(-1)),
		math.SmallestNonzeroFloat32, -math.SmallestNonzeroFloat32,
		math.MaxFloat32, -math.MaxFloat32,
	}

	packing, err := c.EncodeFloat(0, 2, 3, values)
	require.NoError(t, err)

	decoded, err := c.DecodeFloat(packing, 2, 3)
	require.NoError(t, err)
	for i := range values {
		require.Equal(t, math.Float32bits(values[i]), math.Float32bits(decoded[i]))
	}
}

func TestRegistryDefaultOrder(t *testing.T) {
	r := NewDefaultRegistry()
	require.Equal(t, []string{IDHuffman, IDDeflate, IDFloat}, r.IDs())
	require.True(t, r.ImplementsFloat())
}

func TestRegistryEncodePicksSmallest(t *testing.T) {
	r := NewDefaultRegistry()
	values := smoothPlane(16, 16)

	packing, err := r.EncodeInt(16, 16, values)
	require.NoError(t, err)
	require.NotNil(t, packing)

	// The winning codec's own packing must not be larger than any other
	// candidate's.
	for i, c := range []TileCodec{NewHuffmanCodec(), NewDeflateCodec()} {
		candidate, err := c.EncodeInt(uint8(i), 16, 16, values)
		require.NoError(t, err)
		require.LessOrEqual(t, len(packing), len(candidate))
	}

	decoded, err := r.DecodeInt(packing, 16, 16)
	require.NoError(t, err)
	require.Equal(t, values, decoded)
}

func TestRegistryDecodeDispatch(t *testing.T) {
	r := NewDefaultRegistry()

	// Force a deflate packing (index 1) and decode through the registry.
	deflate, err := NewDeflateCodec().EncodeInt(1, 3, 4, smoothPlane(3, 4))
	require.NoError(t, err)

	decoded, err := r.DecodeInt(deflate, 3, 4)
	require.NoError(t, err)
	require.Equal(t, smoothPlane(3, 4), decoded)
}

func TestRegistryRejectsBadIDs(t *testing.T) {
	require.NoError(t, ValidateCodecID("huffman"))
	require.Error(t, ValidateCodecID(""))
	require.Error(t, ValidateCodecID("a-very-long-codec-id"))
	require.Error(t, ValidateCodecID("has space"))
	require.Error(t, ValidateCodecID("nul\x00"))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewDefaultRegistry()
	err := r.Register(NewHuffmanCodec())
	require.ErrorIs(t, err, errs.ErrDuplicateCodec)
}

func TestRegistryUnknownIndex(t *testing.T) {
	r := NewDefaultRegistry()

	_, err := r.DecodeInt([]byte{200, 0, 0}, 2, 2)
	require.ErrorIs(t, err, errs.ErrUnknownCodec)

	_, err = r.DecodeInt(nil, 2, 2)
	require.ErrorIs(t, err, errs.ErrUnknownCodec)
}

func TestRegistryExtensionCodecs(t *testing.T) {
	r := NewDefaultRegistry()
	require.NoError(t, r.Register(NewZstdCodec()))
	require.NoError(t, r.Register(NewLZ4Codec()))
	require.Equal(t, []string{IDHuffman, IDDeflate, IDFloat, IDZstd, IDLZ4}, r.IDs())

	values := smoothPlane(10, 10)
	packing, err := r.EncodeInt(10, 10, values)
	require.NoError(t, err)

	decoded, err := r.DecodeInt(packing, 10, 10)
	require.NoError(t, err)
	require.Equal(t, values, decoded)
}

func TestAnalyzeAccumulatesStats(t *testing.T) {
	r := NewDefaultRegistry()
	stats := r.NewStats()

	values := smoothPlane(8, 8)
	huffman, err := NewHuffmanCodec().EncodeInt(0, 8, 8, values)
	require.NoError(t, err)
	deflate, err := NewDeflateCodec().EncodeInt(1, 8, 8, values)
	require.NoError(t, err)

	require.NoError(t, r.Analyze(huffman, 8, 8, stats))
	require.NoError(t, r.Analyze(huffman, 8, 8, stats))
	require.NoError(t, r.Analyze(deflate, 8, 8, stats))

	require.Equal(t, int64(2), stats[0].TileCount)
	require.Equal(t, int64(1), stats[1].TileCount)
	require.Positive(t, stats[0].SymbolCount)
	require.Positive(t, stats[0].OverheadBits)
	require.Positive(t, stats[0].Entropy())
	require.Positive(t, stats[0].BitsPerSymbol())
	require.Zero(t, stats[2].TileCount)
}
