package encoding

import (
	"math"

	"github.com/arloliu/gridstore/errs"
	"github.com/arloliu/gridstore/format"
)

// Predictor is a reversible transform that rewrites a tile's values into a
// stream of small signed residuals suited to M32 coding.
//
// Encode emits the residual stream for a row-major nRows x nCols tile and
// returns the 32-bit seed that Decode needs to reconstruct it. Residuals
// are computed in 64-bit arithmetic; a residual outside the signed 32-bit
// range fails the transform with errs.ErrResidualOverflow and the caller
// falls back to another codec or uncompressed storage.
type Predictor interface {
	// Type returns the predictor's on-disk type code.
	Type() format.PredictorType

	// AcceptsNulls reports whether the predictor tolerates fill-value
	// cells. Tiles with nulls may only use null-tolerant predictors, and
	// fully populated tiles only null-free ones.
	AcceptsNulls() bool

	// Encode transforms values into enc and returns the seed.
	Encode(nRows, nCols int, values []int32, enc *M32Encoder) (int32, error)

	// Decode reconstructs values from dec using the seed.
	Decode(nRows, nCols int, seed int32, dec *M32Decoder, values []int32) error
}

// Predictors returns the fixed candidate order the integer codecs evaluate:
// Constant, Linear, Triangle, ConstantWithNulls.
func Predictors() []Predictor {
	return []Predictor{
		ConstantPredictor{},
		LinearPredictor{},
		TrianglePredictor{},
		ConstantNullsPredictor{},
	}
}

// PredictorForType returns the predictor matching an on-disk type code.
func PredictorForType(t format.PredictorType) (Predictor, error) {
	switch t {
	case format.PredictorConstant:
		return ConstantPredictor{}, nil
	case format.PredictorLinear:
		return LinearPredictor{}, nil
	case format.PredictorTriangle:
		return TrianglePredictor{}, nil
	case format.PredictorConstantNulls:
		return ConstantNullsPredictor{}, nil
	default:
		return nil, errs.ErrUnknownPredictor
	}
}

func residual32(delta int64) (int32, error) {
	if delta < math.MinInt32 || delta > math.MaxInt32 {
		return 0, errs.ErrResidualOverflow
	}

	return int32(delta), nil
}

// ConstantPredictor predicts each value equals its left neighbor. The first
// column of each row is predicted from column 0 of the previous row; the
// seed carries v[0,0]. The stream holds one residual per cell except cell
// (0,0).
type ConstantPredictor struct{}

func (ConstantPredictor) Type() format.PredictorType { return format.PredictorConstant }

func (ConstantPredictor) AcceptsNulls() bool { return false }

func (ConstantPredictor) Encode(nRows, nCols int, values []int32, enc *M32Encoder) (int32, error) {
	seed := values[0]
	prior := int64(seed)

	for c := 1; c < nCols; c++ {
		v := int64(values[c])
		r, err := residual32(v - prior)
		if err != nil {
			return 0, err
		}
		enc.Append(r)
		prior = v
	}

	for row := 1; row < nRows; row++ {
		idx := row * nCols
		prior = int64(values[idx-nCols]) // column 0 of the previous row
		for c := 0; c < nCols; c++ {
			v := int64(values[idx+c])
			r, err := residual32(v - prior)
			if err != nil {
				return 0, err
			}
			enc.Append(r)
			prior = v
		}
	}

	return seed, nil
}

func (ConstantPredictor) Decode(nRows, nCols int, seed int32, dec *M32Decoder, values []int32) error {
	values[0] = seed
	prior := seed

	for c := 1; c < nCols; c++ {
		d, null, err := dec.Next()
		if err != nil {
			return err
		}
		if null {
			return errs.ErrInvalidM32Code
		}
		prior += d
		values[c] = prior
	}

	for row := 1; row < nRows; row++ {
		idx := row * nCols
		prior = values[idx-nCols]
		for c := 0; c < nCols; c++ {
			d, null, err := dec.Next()
			if err != nil {
				return err
			}
			if null {
				return errs.ErrInvalidM32Code
			}
			prior += d
			values[idx+c] = prior
		}
	}

	return nil
}

// LinearPredictor emits second differences: in each row, columns 0 and 1
// carry the constant-predictor residual and columns c >= 2 carry
// v[r,c] - 2*v[r,c-1] + v[r,c-2]. Row seeding is identical to the constant
// predictor.
type LinearPredictor struct{}

func (LinearPredictor) Type() format.PredictorType { return format.PredictorLinear }

func (LinearPredictor) AcceptsNulls() bool { return false }

func (LinearPredictor) Encode(nRows, nCols int, values []int32, enc *M32Encoder) (int32, error) {
	seed := values[0]

	for row := 0; row < nRows; row++ {
		idx := row * nCols
		var prior int64
		if row == 0 {
			prior = int64(seed)
		} else {
			prior = int64(values[idx-nCols])
		}

		for c := 0; c < nCols; c++ {
			if row == 0 && c == 0 {
				continue
			}
			v := int64(values[idx+c])

			var predicted int64
			if c < 2 {
				predicted = prior
			} else {
				predicted = 2*int64(values[idx+c-1]) - int64(values[idx+c-2])
			}

			r, err := residual32(v - predicted)
			if err != nil {
				return 0, err
			}
			enc.Append(r)
			prior = v
		}
	}

	return seed, nil
}

func (LinearPredictor) Decode(nRows, nCols int, seed int32, dec *M32Decoder, values []int32) error {
	for row := 0; row < nRows; row++ {
		idx := row * nCols
		var prior int64
		if row == 0 {
			prior = int64(seed)
		} else {
			prior = int64(values[idx-nCols])
		}

		for c := 0; c < nCols; c++ {
			if row == 0 && c == 0 {
				values[0] = seed
				prior = int64(seed)
				continue
			}

			d, null, err := dec.Next()
			if err != nil {
				return err
			}
			if null {
				return errs.ErrInvalidM32Code
			}

			var predicted int64
			if c < 2 {
				predicted = prior
			} else {
				predicted = 2*int64(values[idx+c-1]) - int64(values[idx+c-2])
			}

			v := predicted + int64(d)
			values[idx+c] = int32(v)
			prior = v
		}
	}

	return nil
}

// TrianglePredictor applies the planar predictor
// v[r-1,c] + v[r,c-1] - v[r-1,c-1] to interior cells; row 0 and column 0
// use the constant predictor.
type TrianglePredictor struct{}

func (TrianglePredictor) Type() format.PredictorType { return format.PredictorTriangle }

func (TrianglePredictor) AcceptsNulls() bool { return false }

func (TrianglePredictor) Encode(nRows, nCols int, values []int32, enc *M32Encoder) (int32, error) {
	seed := values[0]
	prior := int64(seed)

	for c := 1; c < nCols; c++ {
		v := int64(values[c])
		r, err := residual32(v - prior)
		if err != nil {
			return 0, err
		}
		enc.Append(r)
		prior = v
	}

	for row := 1; row < nRows; row++ {
		idx := row * nCols

		r0, err := residual32(int64(values[idx]) - int64(values[idx-nCols]))
		if err != nil {
			return 0, err
		}
		enc.Append(r0)

		for c := 1; c < nCols; c++ {
			predicted := int64(values[idx+c-nCols]) + int64(values[idx+c-1]) -
				int64(values[idx+c-nCols-1])
			r, err := residual32(int64(values[idx+c]) - predicted)
			if err != nil {
				return 0, err
			}
			enc.Append(r)
		}
	}

	return seed, nil
}

func (TrianglePredictor) Decode(nRows, nCols int, seed int32, dec *M32Decoder, values []int32) error {
	values[0] = seed
	prior := seed

	for c := 1; c < nCols; c++ {
		d, null, err := dec.Next()
		if err != nil {
			return err
		}
		if null {
			return errs.ErrInvalidM32Code
		}
		prior += d
		values[c] = prior
	}

	for row := 1; row < nRows; row++ {
		idx := row * nCols

		d, null, err := dec.Next()
		if err != nil {
			return err
		}
		if null {
			return errs.ErrInvalidM32Code
		}
		values[idx] = values[idx-nCols] + d

		for c := 1; c < nCols; c++ {
			d, null, err := dec.Next()
			if err != nil {
				return err
			}
			if null {
				return errs.ErrInvalidM32Code
			}
			predicted := int64(values[idx+c-nCols]) + int64(values[idx+c-1]) -
				int64(values[idx+c-nCols-1])
			values[idx+c] = int32(predicted + int64(d))
		}
	}

	return nil
}

// ConstantNullsPredictor is the constant predictor variant that tolerates
// fill-value cells. Null cells are emitted as the M32 null sentinel. A
// non-null cell is predicted from its left neighbor when that neighbor is
// non-null, from column 0 of the previous row at the start of a row, and
// otherwise from the seed, re-seeding the predictor at every null-to-value
// transition. The seed is the rounded mean of the cells that fall back to
// it, so that run starts encode near zero.
//
// The stream carries one symbol per cell, including cell (0,0).
type ConstantNullsPredictor struct{}

func (ConstantNullsPredictor) Type() format.PredictorType { return format.PredictorConstantNulls }

func (ConstantNullsPredictor) AcceptsNulls() bool { return true }

// nullsPredictorCell computes the predictor for cell (row,c) given the
// null pattern; ok is false when the cell falls back to the seed.
func nullsPredictorCell(nCols, row, c int, values []int32, isNull func(int) bool) (int32, bool) {
	idx := row*nCols + c
	if c > 0 && !isNull(idx-1) {
		return values[idx-1], true
	}
	if c == 0 && row > 0 && !isNull(idx-nCols) {
		return values[idx-nCols], true
	}

	return 0, false
}

func (ConstantNullsPredictor) Encode(nRows, nCols int, values []int32, enc *M32Encoder) (int32, error) {
	isNull := func(i int) bool { return values[i] == format.NullInt32 }

	// First pass: the seed is the mean of the values whose predictor has
	// no usable neighbor. The fallback set depends only on the null
	// pattern, which the decoder recovers in stream order.
	var sum, n int64
	for row := 0; row < nRows; row++ {
		for c := 0; c < nCols; c++ {
			idx := row*nCols + c
			if isNull(idx) {
				continue
			}
			if _, ok := nullsPredictorCell(nCols, row, c, values, isNull); !ok {
				sum += int64(values[idx])
				n++
			}
		}
	}
	if n == 0 {
		return 0, errs.ErrNotEncodable
	}
	mean := sum / n
	if rem := sum % n; 2*rem >= n {
		mean++
	} else if 2*rem <= -n {
		mean--
	}
	seed := int32(mean)

	for row := 0; row < nRows; row++ {
		for c := 0; c < nCols; c++ {
			idx := row*nCols + c
			if isNull(idx) {
				enc.AppendNull()
				continue
			}
			predicted, ok := nullsPredictorCell(nCols, row, c, values, isNull)
			if !ok {
				predicted = seed
			}
			r, err := residual32(int64(values[idx]) - int64(predicted))
			if err != nil {
				return 0, err
			}
			enc.Append(r)
		}
	}

	return seed, nil
}

func (ConstantNullsPredictor) Decode(nRows, nCols int, seed int32, dec *M32Decoder, values []int32) error {
	isNull := func(i int) bool { return values[i] == format.NullInt32 }

	for row := 0; row < nRows; row++ {
		for c := 0; c < nCols; c++ {
			idx := row*nCols + c
			d, null, err := dec.Next()
			if err != nil {
				return err
			}
			if null {
				values[idx] = format.NullInt32
				continue
			}
			predicted, ok := nullsPredictorCell(nCols, row, c, values, isNull)
			if !ok {
				predicted = seed
			}
			values[idx] = predicted + d
		}
	}

	return nil
}

// HasNullValues reports whether any cell holds the integer fill sentinel.
func HasNullValues(values []int32) bool {
	for _, v := range values {
		if v == format.NullInt32 {
			return true
		}
	}

	return false
}

// AllNullValues reports whether every cell holds the integer fill sentinel.
func AllNullValues(values []int32) bool {
	for _, v := range values {
		if v != format.NullInt32 {
			return false
		}
	}

	return true
}
