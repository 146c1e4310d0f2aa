package codec

import (
	"fmt"

	"github.com/arloliu/gridstore/errs"
)

// Registry owns the ordered list of codecs available to a file. A codec's
// position in the list is its one-byte index, which appears as the first
// byte of every packing and drives dispatch on decode.
//
// The codec id namespace of a file is closed at creation time: the ids are
// persisted to the file header in registry order, and opening a file whose
// header names an unregistered id is an error.
type Registry struct {
	codecs []TileCodec
	byID   map[string]uint8
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]uint8)}
}

// NewDefaultRegistry creates a registry holding the built-in codecs in
// their standard order: huffman, deflate, float.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	// The built-in ids are well formed; Register cannot fail here.
	_ = r.Register(NewHuffmanCodec())
	_ = r.Register(NewDeflateCodec())
	_ = r.Register(NewFloatCodec())

	return r
}

// ValidateCodecID checks that an id is non-empty printable ASCII without
// spaces, of at most 16 characters.
func ValidateCodecID(id string) error {
	if len(id) == 0 || len(id) > 16 {
		return errs.ErrInvalidCodecID
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7E {
			return errs.ErrInvalidCodecID
		}
	}

	return nil
}

// Register appends a codec to the list, assigning it the next index.
func (r *Registry) Register(c TileCodec) error {
	if err := ValidateCodecID(c.ID()); err != nil {
		return err
	}
	if _, exists := r.byID[c.ID()]; exists {
		return fmt.Errorf("%w: %s", errs.ErrDuplicateCodec, c.ID())
	}
	if len(r.codecs) >= MaxCodecs {
		return fmt.Errorf("%w: registry full", errs.ErrInvalidCodecID)
	}

	r.byID[c.ID()] = uint8(len(r.codecs))
	r.codecs = append(r.codecs, c)

	return nil
}

// Len returns the number of registered codecs.
func (r *Registry) Len() int {
	return len(r.codecs)
}

// IDs returns the codec ids in registry order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.codecs))
	for i, c := range r.codecs {
		ids[i] = c.ID()
	}

	return ids
}

// CodecForIndex returns the codec at a one-byte index.
func (r *Registry) CodecForIndex(index uint8) (TileCodec, error) {
	if int(index) >= len(r.codecs) {
		return nil, errs.ErrUnknownCodec
	}

	return r.codecs[index], nil
}

// ImplementsFloat reports whether at least one codec supports float
// encoding.
func (r *Registry) ImplementsFloat() bool {
	for _, c := range r.codecs {
		if c.ImplementsFloat() {
			return true
		}
	}

	return false
}

// EncodeInt runs every integer-capable codec over the plane and returns
// the smallest non-nil packing, or nil when every codec declines. Ties go
// to the earlier codec in registry order.
func (r *Registry) EncodeInt(nRows, nCols int, values []int32) ([]byte, error) {
	var best []byte
	for i, c := range r.codecs {
		if !c.ImplementsInteger() {
			continue
		}
		packing, err := c.EncodeInt(uint8(i), nRows, nCols, values)
		if err != nil {
			return nil, err
		}
		if packing != nil && (best == nil || len(packing) < len(best)) {
			best = packing
		}
	}

	return best, nil
}

// DecodeInt dispatches on the packing's index byte.
func (r *Registry) DecodeInt(packing []byte, nRows, nCols int) ([]int32, error) {
	index, err := packingIndex(packing)
	if err != nil {
		return nil, err
	}
	c, err := r.CodecForIndex(index)
	if err != nil {
		return nil, err
	}

	return c.DecodeInt(packing, nRows, nCols)
}

// EncodeFloat runs every float-capable codec over the plane and returns
// the smallest non-nil packing, or nil when every codec declines.
func (r *Registry) EncodeFloat(nRows, nCols int, values []float32) ([]byte, error) {
	var best []byte
	for i, c := range r.codecs {
		if !c.ImplementsFloat() {
			continue
		}
		packing, err := c.EncodeFloat(uint8(i), nRows, nCols, values)
		if err != nil {
			return nil, err
		}
		if packing != nil && (best == nil || len(packing) < len(best)) {
			best = packing
		}
	}

	return best, nil
}

// DecodeFloat dispatches on the packing's index byte.
func (r *Registry) DecodeFloat(packing []byte, nRows, nCols int) ([]float32, error) {
	index, err := packingIndex(packing)
	if err != nil {
		return nil, err
	}
	c, err := r.CodecForIndex(index)
	if err != nil {
		return nil, err
	}

	return c.DecodeFloat(packing, nRows, nCols)
}

// Analyze routes a packing to its codec's statistics collector. The stats
// slice is indexed in registry order and must hold a slot for the
// packing's codec, as NewStats provides; a missing slot is ErrUnknownCodec.
func (r *Registry) Analyze(packing []byte, nRows, nCols int, stats []*Stats) error {
	index, err := packingIndex(packing)
	if err != nil {
		return err
	}
	c, err := r.CodecForIndex(index)
	if err != nil {
		return err
	}
	if int(index) >= len(stats) || stats[index] == nil {
		return errs.ErrUnknownCodec
	}

	return c.Analyze(packing, nRows, nCols, stats[index])
}

// NewStats allocates one Stats slot per registered codec, in registry
// order.
func (r *Registry) NewStats() []*Stats {
	stats := make([]*Stats, len(r.codecs))
	for i, c := range r.codecs {
		stats[i] = &Stats{CodecID: c.ID()}
	}

	return stats
}
