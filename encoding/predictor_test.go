package encoding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/gridstore/errs"
	"github.com/arloliu/gridstore/format"
)

func predictorRoundTrip(t *testing.T, p Predictor, nRows, nCols int, values []int32) {
	t.Helper()

	enc := NewM32Encoder(len(values))
	seed, err := p.Encode(nRows, nCols, values, enc)
	require.NoError(t, err)

	decoded := make([]int32, len(values))
	dec := NewM32Decoder(enc.Bytes())
	require.NoError(t, p.Decode(nRows, nCols, seed, dec, decoded))
	require.Equal(t, values, decoded)
	require.Equal(t, 0, dec.Remaining())
}

func gradientTile(nRows, nCols int) []int32 {
	values := make([]int32, nRows*nCols)
	for r := 0; r < nRows; r++ {
		for c := 0; c < nCols; c++ {
			values[r*nCols+c] = int32(1000 + 3*r + 2*c)
		}
	}

	return values
}

func noisyTile(nRows, nCols int) []int32 {
	values := make([]int32, nRows*nCols)
	state := uint32(12345)
	for i := range values {
		state = state*1664525 + 1013904223
		values[i] = int32(state % 5000)
	}

	return values
}

func TestPredictorRoundTrips(t *testing.T) {
	shapes := []struct{ nRows, nCols int }{
		{1, 1}, {1, 8}, {8, 1}, {4, 4}, {7, 5}, {16, 16},
	}

	for _, p := range []Predictor{ConstantPredictor{}, LinearPredictor{}, TrianglePredictor{}} {
		for _, s := range shapes {
			predictorRoundTrip(t, p, s.nRows, s.nCols, gradientTile(s.nRows, s.nCols))
			predictorRoundTrip(t, p, s.nRows, s.nCols, noisyTile(s.nRows, s.nCols))
		}
	}
}

func TestPredictorTypesAndNullSupport(t *testing.T) {
	require.Equal(t, format.PredictorConstant, ConstantPredictor{}.Type())
	require.Equal(t, format.PredictorLinear, LinearPredictor{}.Type())
	require.Equal(t, format.PredictorTriangle, TrianglePredictor{}.Type())
	require.Equal(t, format.PredictorConstantNulls, ConstantNullsPredictor{}.Type())

	require.False(t, ConstantPredictor{}.AcceptsNulls())
	require.False(t, LinearPredictor{}.AcceptsNulls())
	require.False(t, TrianglePredictor{}.AcceptsNulls())
	require.True(t, ConstantNullsPredictor{}.AcceptsNulls())
}

func TestConstantPredictorResiduals(t *testing.T) {
	// Flat gradient rows produce constant small residuals.
	values := []int32{
		10, 11, 12,
		20, 21, 22,
	}
	enc := NewM32Encoder(len(values))
	seed, err := ConstantPredictor{}.Encode(2, 3, values, enc)
	require.NoError(t, err)
	require.Equal(t, int32(10), seed)
	// Row 0: 1, 1. Row 1: 10 (vs v[0,0]), 1, 1. All single-byte codes.
	require.Equal(t, 5, enc.EncodedLength())
}

func TestLinearPredictorSecondDifference(t *testing.T) {
	// A perfectly linear ramp yields zero second differences.
	values := []int32{100, 110, 120, 130, 140, 150, 160, 170}
	enc := NewM32Encoder(len(values))
	_, err := LinearPredictor{}.Encode(1, 8, values, enc)
	require.NoError(t, err)

	dec := NewM32Decoder(enc.Bytes())
	first, _, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, int32(10), first)
	for i := 0; i < 6; i++ {
		d, _, err := dec.Next()
		require.NoError(t, err)
		require.Equal(t, int32(0), d, "second difference %d", i)
	}
}

func TestTrianglePredictorPlanarSurface(t *testing.T) {
	// A planar surface predicts interior cells exactly.
	values := gradientTile(6, 6)
	enc := NewM32Encoder(len(values))
	_, err := TrianglePredictor{}.Encode(6, 6, values, enc)
	require.NoError(t, err)

	dec := NewM32Decoder(enc.Bytes())
	// Skip row 0 and column 0 residuals; interior residuals are all zero.
	for i := 0; i < 35; i++ {
		d, _, err := dec.Next()
		require.NoError(t, err)
		row, col := (i+1)/6, (i+1)%6
		if row > 0 && col > 0 {
			require.Equal(t, int32(0), d, "interior cell %d,%d", row, col)
		}
	}
}

func TestConstantNullsPredictorRoundTrip(t *testing.T) {
	null := format.NullInt32
	tiles := [][]int32{
		{
			null, 12, 13, null,
			21, 22, null, 24,
			null, null, 33, 34,
		},
		{
			11, 12,
			21, 22,
		},
		{
			null, null,
			null, 40,
		},
		{
			40, null,
			null, null,
		},
	}

	for _, values := range tiles {
		nCols := len(values) / 3
		nRows := 3
		if len(values) == 4 {
			nRows, nCols = 2, 2
		}
		predictorRoundTrip(t, ConstantNullsPredictor{}, nRows, nCols, values)
	}
}

func TestConstantNullsPredictorAllNull(t *testing.T) {
	values := []int32{format.NullInt32, format.NullInt32, format.NullInt32, format.NullInt32}
	enc := NewM32Encoder(len(values))
	_, err := ConstantNullsPredictor{}.Encode(2, 2, values, enc)
	require.ErrorIs(t, err, errs.ErrNotEncodable)
}

func TestPredictorOverflow(t *testing.T) {
	values := []int32{math.MaxInt32, math.MinInt32, math.MaxInt32, math.MinInt32}

	for _, p := range []Predictor{ConstantPredictor{}, LinearPredictor{}, TrianglePredictor{}} {
		enc := NewM32Encoder(len(values))
		_, err := p.Encode(2, 2, values, enc)
		require.ErrorIs(t, err, errs.ErrResidualOverflow, "predictor %s", p.Type())
	}
}

func TestPredictorForType(t *testing.T) {
	for _, want := range []format.PredictorType{
		format.PredictorConstant,
		format.PredictorLinear,
		format.PredictorTriangle,
		format.PredictorConstantNulls,
	} {
		p, err := PredictorForType(want)
		require.NoError(t, err)
		require.Equal(t, want, p.Type())
	}

	_, err := PredictorForType(format.PredictorType(99))
	require.ErrorIs(t, err, errs.ErrUnknownPredictor)
}

func TestNullValueHelpers(t *testing.T) {
	require.False(t, HasNullValues([]int32{1, 2, 3}))
	require.True(t, HasNullValues([]int32{1, format.NullInt32}))
	require.True(t, AllNullValues([]int32{format.NullInt32, format.NullInt32}))
	require.False(t, AllNullValues([]int32{format.NullInt32, 5}))
}
