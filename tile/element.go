// Package tile provides the in-memory representation of raster tiles: one
// dense plane per element, dirty tracking, integer coding snapshots for
// the codecs, and the raw and compressed serializations used by the store.
package tile

import (
	"math"

	"github.com/arloliu/gridstore/endian"
	"github.com/arloliu/gridstore/format"
)

// ElementDef carries the per-element parameters a tile needs: storage
// type, the affine scale/offset mapping between the float and integer
// views, and the fill values. The file specification owns the full
// element metadata; this is the slice of it that reaches the tile layer.
type ElementDef struct {
	Name      string
	Type      format.ElementType
	Scale     float32
	Offset    float32
	FillInt   int32
	FillFloat float32
}

// Plane is one element's dense row-major cell array within a tile.
//
// Every plane exposes both an integer and a float view of its cells; the
// conversion between them applies the element's scale and offset. The
// integer view reports fill cells as the element's integer fill value
// (format.NullInt32 on Float32 planes) and the float view as its float
// fill value; IntCoding maps them to format.NullInt32.
type Plane interface {
	// Type returns the element storage type.
	Type() format.ElementType

	// ValueInt returns the integer view of a cell.
	ValueInt(index int) int32

	// SetInt stores a cell through the integer view.
	SetInt(index int, v int32)

	// ValueFloat returns the float view of a cell.
	ValueFloat(index int) float32

	// SetFloat stores a cell through the float view.
	SetFloat(index int, v float32)

	// IntCoding produces the plane's integer coding for the integer
	// codecs: storage values with fill mapped to format.NullInt32.
	IntCoding() []int32

	// SetIntCoding overwrites the plane from an integer coding.
	SetIntCoding(values []int32)

	// FloatValues returns the raw float cells for float-capable planes,
	// or nil when the plane stores integers.
	FloatValues() []float32

	// HasNull reports whether any cell holds the fill value.
	HasNull() bool

	// HasValidData reports whether any cell holds a non-fill value.
	HasValidData() bool

	// Fill sets every cell to the fill value.
	Fill()

	// BytesPerCell returns the on-disk width of one cell.
	BytesPerCell() int

	// AppendRaw appends the plane's cells in row-major little-endian
	// binary.
	AppendRaw(engine endian.EndianEngine, dst []byte) []byte

	// ReadRaw overwrites the plane from its row-major binary form and
	// returns the number of bytes consumed.
	ReadRaw(engine endian.EndianEngine, src []byte) (int, error)
}

// NewPlane materializes a filled plane for an element.
func NewPlane(def ElementDef, nCells int) Plane {
	switch def.Type {
	case format.TypeInt16:
		p := &shortPlane{def: def, cells: make([]int16, nCells)}
		p.Fill()
		return p
	case format.TypeFloat32:
		p := &floatPlane{def: def, cells: make([]float32, nCells)}
		p.Fill()
		return p
	default:
		// TypeInt32 and TypeIntCodedFloat32 share int32 storage.
		p := &intPlane{def: def, cells: make([]int32, nCells)}
		p.Fill()
		return p
	}
}

// intPlane backs Int32 and IntCodedFloat32 elements.
type intPlane struct {
	def   ElementDef
	cells []int32
}

func (p *intPlane) Type() format.ElementType { return p.def.Type }

func (p *intPlane) ValueInt(index int) int32 { return p.cells[index] }

func (p *intPlane) SetInt(index int, v int32) { p.cells[index] = v }

func (p *intPlane) ValueFloat(index int) float32 {
	v := p.cells[index]
	if v == p.def.FillInt {
		return p.def.FillFloat
	}

	return float32(v)/p.def.Scale + p.def.Offset
}

func (p *intPlane) SetFloat(index int, v float32) {
	if math.IsNaN(float64(v)) {
		p.cells[index] = p.def.FillInt
		return
	}
	p.cells[index] = int32(math.Round(float64((v - p.def.Offset) * p.def.Scale)))
}

func (p *intPlane) IntCoding() []int32 {
	coding := make([]int32, len(p.cells))
	for i, v := range p.cells {
		if v == p.def.FillInt {
			coding[i] = format.NullInt32
		} else {
			coding[i] = v
		}
	}

	return coding
}

func (p *intPlane) SetIntCoding(values []int32) {
	for i, v := range values {
		if v == format.NullInt32 {
			p.cells[i] = p.def.FillInt
		} else {
			p.cells[i] = v
		}
	}
}

func (p *intPlane) FloatValues() []float32 { return nil }

func (p *intPlane) HasNull() bool {
	for _, v := range p.cells {
		if v == p.def.FillInt {
			return true
		}
	}

	return false
}

func (p *intPlane) HasValidData() bool {
	for _, v := range p.cells {
		if v != p.def.FillInt {
			return true
		}
	}

	return false
}

func (p *intPlane) Fill() {
	for i := range p.cells {
		p.cells[i] = p.def.FillInt
	}
}

func (p *intPlane) BytesPerCell() int { return 4 }

func (p *intPlane) AppendRaw(engine endian.EndianEngine, dst []byte) []byte {
	for _, v := range p.cells {
		dst = engine.AppendUint32(dst, uint32(v))
	}

	return dst
}

func (p *intPlane) ReadRaw(engine endian.EndianEngine, src []byte) (int, error) {
	n := len(p.cells) * 4
	if len(src) < n {
		return 0, errShortPlane
	}
	for i := range p.cells {
		p.cells[i] = int32(engine.Uint32(src[i*4:]))
	}

	return n, nil
}

// shortPlane backs Int16 elements; it behaves like Int32 at the API but
// packs narrower on disk.
type shortPlane struct {
	def   ElementDef
	cells []int16
}

func (p *shortPlane) Type() format.ElementType { return p.def.Type }

func (p *shortPlane) fill16() int16 { return int16(p.def.FillInt) }

func (p *shortPlane) ValueInt(index int) int32 {
	v := p.cells[index]
	if v == p.fill16() {
		return p.def.FillInt
	}

	return int32(v)
}

func (p *shortPlane) SetInt(index int, v int32) {
	p.cells[index] = int16(v)
}

func (p *shortPlane) ValueFloat(index int) float32 {
	v := p.cells[index]
	if v == p.fill16() {
		return p.def.FillFloat
	}

	return float32(v)/p.def.Scale + p.def.Offset
}

func (p *shortPlane) SetFloat(index int, v float32) {
	if math.IsNaN(float64(v)) {
		p.cells[index] = p.fill16()
		return
	}
	p.cells[index] = int16(math.Round(float64((v - p.def.Offset) * p.def.Scale)))
}

func (p *shortPlane) IntCoding() []int32 {
	coding := make([]int32, len(p.cells))
	fill := p.fill16()
	for i, v := range p.cells {
		if v == fill {
			coding[i] = format.NullInt32
		} else {
			coding[i] = int32(v)
		}
	}

	return coding
}

func (p *shortPlane) SetIntCoding(values []int32) {
	fill := p.fill16()
	for i, v := range values {
		if v == format.NullInt32 {
			p.cells[i] = fill
		} else {
			p.cells[i] = int16(v)
		}
	}
}

func (p *shortPlane) FloatValues() []float32 { return nil }

func (p *shortPlane) HasNull() bool {
	fill := p.fill16()
	for _, v := range p.cells {
		if v == fill {
			return true
		}
	}

	return false
}

func (p *shortPlane) HasValidData() bool {
	fill := p.fill16()
	for _, v := range p.cells {
		if v != fill {
			return true
		}
	}

	return false
}

func (p *shortPlane) Fill() {
	fill := p.fill16()
	for i := range p.cells {
		p.cells[i] = fill
	}
}

func (p *shortPlane) BytesPerCell() int { return 2 }

func (p *shortPlane) AppendRaw(engine endian.EndianEngine, dst []byte) []byte {
	for _, v := range p.cells {
		dst = engine.AppendUint16(dst, uint16(v))
	}

	return dst
}

func (p *shortPlane) ReadRaw(engine endian.EndianEngine, src []byte) (int, error) {
	n := len(p.cells) * 2
	if len(src) < n {
		return 0, errShortPlane
	}
	for i := range p.cells {
		p.cells[i] = int16(engine.Uint16(src[i*2:]))
	}

	return n, nil
}

// floatPlane backs Float32 elements.
type floatPlane struct {
	def   ElementDef
	cells []float32
}

func (p *floatPlane) Type() format.ElementType { return p.def.Type }

func (p *floatPlane) isFill(v float32) bool {
	if math.IsNaN(float64(p.def.FillFloat)) {
		return math.IsNaN(float64(v))
	}

	return v == p.def.FillFloat
}

func (p *floatPlane) ValueInt(index int) int32 {
	v := p.cells[index]
	if p.isFill(v) || math.IsNaN(float64(v)) {
		return format.NullInt32
	}

	return int32(math.Round(float64((v - p.def.Offset) * p.def.Scale)))
}

func (p *floatPlane) SetInt(index int, v int32) {
	if v == format.NullInt32 {
		p.cells[index] = p.def.FillFloat
		return
	}
	p.cells[index] = float32(v)/p.def.Scale + p.def.Offset
}

func (p *floatPlane) ValueFloat(index int) float32 { return p.cells[index] }

func (p *floatPlane) SetFloat(index int, v float32) { p.cells[index] = v }

func (p *floatPlane) IntCoding() []int32 {
	coding := make([]int32, len(p.cells))
	for i := range p.cells {
		coding[i] = p.ValueInt(i)
	}

	return coding
}

func (p *floatPlane) SetIntCoding(values []int32) {
	for i, v := range values {
		p.SetInt(i, v)
	}
}

func (p *floatPlane) FloatValues() []float32 { return p.cells }

func (p *floatPlane) HasNull() bool {
	for _, v := range p.cells {
		if p.isFill(v) {
			return true
		}
	}

	return false
}

func (p *floatPlane) HasValidData() bool {
	for _, v := range p.cells {
		if !p.isFill(v) {
			return true
		}
	}

	return false
}

func (p *floatPlane) Fill() {
	for i := range p.cells {
		p.cells[i] = p.def.FillFloat
	}
}

func (p *floatPlane) BytesPerCell() int { return 4 }

func (p *floatPlane) AppendRaw(engine endian.EndianEngine, dst []byte) []byte {
	for _, v := range p.cells {
		dst = engine.AppendUint32(dst, math.Float32bits(v))
	}

	return dst
}

func (p *floatPlane) ReadRaw(engine endian.EndianEngine, src []byte) (int, error) {
	n := len(p.cells) * 4
	if len(src) < n {
		return 0, errShortPlane
	}
	for i := range p.cells {
		p.cells[i] = math.Float32frombits(engine.Uint32(src[i*4:]))
	}

	return n, nil
}
