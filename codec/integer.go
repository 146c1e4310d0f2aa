package codec

import (
	"errors"

	"github.com/arloliu/gridstore/encoding"
	"github.com/arloliu/gridstore/errs"
	"github.com/arloliu/gridstore/format"
)

// The integer codecs share one structure: run each predictor that matches
// the plane's null pattern, M32-code the residuals, entropy-code the M32
// stream, and keep the smallest result. They differ only in the entropy
// stage and the packing layout around it.

// intHeaderSize is the fixed header of the byte-oriented integer codecs:
// codec index, predictor type, 32-bit seed, 32-bit M32 byte count.
const intHeaderSize = 10

// candidatePredictors returns the predictors applicable to a plane, or nil
// when the plane is all null and no codec applies.
func candidatePredictors(values []int32) []encoding.Predictor {
	if encoding.AllNullValues(values) {
		return nil
	}
	hasNulls := encoding.HasNullValues(values)

	var candidates []encoding.Predictor
	for _, p := range encoding.Predictors() {
		if p.AcceptsNulls() == hasNulls {
			candidates = append(candidates, p)
		}
	}

	return candidates
}

// runPredictor produces the M32 stream and seed for one predictor, mapping
// recoverable failures (overflow, unencodable content) to a nil encoder.
func runPredictor(p encoding.Predictor, nRows, nCols int, values []int32) (*encoding.M32Encoder, int32, error) {
	enc := encoding.NewM32Encoder(nRows * nCols)
	seed, err := p.Encode(nRows, nCols, values, enc)
	if err != nil {
		if errors.Is(err, errs.ErrResidualOverflow) || errors.Is(err, errs.ErrNotEncodable) {
			return nil, 0, nil
		}

		return nil, 0, err
	}

	return enc, seed, nil
}

// decodePredicted reverses the predictor stage shared by the integer
// codecs.
func decodePredicted(predictorCode uint8, seed int32, m32 []byte, nRows, nCols int) ([]int32, error) {
	p, err := encoding.PredictorForType(format.PredictorType(predictorCode))
	if err != nil {
		return nil, err
	}

	values := make([]int32, nRows*nCols)
	dec := encoding.NewM32Decoder(m32)
	if err := p.Decode(nRows, nCols, seed, dec, values); err != nil {
		return nil, err
	}

	return values, nil
}
