package tile

import (
	"errors"
	"fmt"

	"github.com/arloliu/gridstore/codec"
	"github.com/arloliu/gridstore/endian"
	"github.com/arloliu/gridstore/errs"
)

var errShortPlane = errors.New("tile plane data truncated")

// Tile is the in-memory form of one fixed-size rectangular block of the
// raster: a dense row-major plane per element plus dirty tracking. The
// cache owns tile lifetimes; the tile itself is plain data.
type Tile struct {
	index   int
	tileRow int
	tileCol int
	nRows   int
	nCols   int
	planes  []Plane
	defs    []ElementDef

	writingRequired bool
}

// New materializes a tile with every cell at its element's fill value.
func New(index, tileRow, tileCol, nRows, nCols int, defs []ElementDef) *Tile {
	t := &Tile{
		index:   index,
		tileRow: tileRow,
		tileCol: tileCol,
		nRows:   nRows,
		nCols:   nCols,
		defs:    defs,
		planes:  make([]Plane, len(defs)),
	}
	for i, def := range defs {
		t.planes[i] = NewPlane(def, nRows*nCols)
	}

	return t
}

// Index returns the tile's index within the raster's tile grid.
func (t *Tile) Index() int { return t.index }

// Row returns the tile's row within the tile grid.
func (t *Tile) Row() int { return t.tileRow }

// Col returns the tile's column within the tile grid.
func (t *Tile) Col() int { return t.tileCol }

// NRows returns the number of cell rows in the tile.
func (t *Tile) NRows() int { return t.nRows }

// NCols returns the number of cell columns in the tile.
func (t *Tile) NCols() int { return t.nCols }

// NeedsWrite reports whether the tile holds unpersisted changes.
func (t *Tile) NeedsWrite() bool { return t.writingRequired }

// MarkDirty flags the tile for write-back.
func (t *Tile) MarkDirty() { t.writingRequired = true }

// ClearDirty clears the write-back flag after a successful store.
func (t *Tile) ClearDirty() { t.writingRequired = false }

// Plane returns the plane of one element.
func (t *Tile) Plane(element int) Plane { return t.planes[element] }

// ElementCount returns the number of element planes.
func (t *Tile) ElementCount() int { return len(t.planes) }

func (t *Tile) cellIndex(row, col int) int { return row*t.nCols + col }

// ValueInt reads a cell through the integer view of an element.
func (t *Tile) ValueInt(element, row, col int) int32 {
	return t.planes[element].ValueInt(t.cellIndex(row, col))
}

// SetValueInt writes a cell through the integer view and marks the tile
// dirty.
func (t *Tile) SetValueInt(element, row, col int, v int32) {
	t.planes[element].SetInt(t.cellIndex(row, col), v)
	t.writingRequired = true
}

// ValueFloat reads a cell through the float view of an element.
func (t *Tile) ValueFloat(element, row, col int) float32 {
	return t.planes[element].ValueFloat(t.cellIndex(row, col))
}

// SetValueFloat writes a cell through the float view and marks the tile
// dirty.
func (t *Tile) SetValueFloat(element, row, col int, v float32) {
	t.planes[element].SetFloat(t.cellIndex(row, col), v)
	t.writingRequired = true
}

// ReadBlockFloat copies a rectangle of the tile into dst, which uses
// blockCols as its row stride. The rectangle must lie inside the tile.
func (t *Tile) ReadBlockFloat(element, row0, col0, nRows, nCols int, dst []float32, dstRow0, dstCol0, blockCols int) {
	p := t.planes[element]
	for r := 0; r < nRows; r++ {
		src := t.cellIndex(row0+r, col0)
		dstIdx := (dstRow0+r)*blockCols + dstCol0
		for c := 0; c < nCols; c++ {
			dst[dstIdx+c] = p.ValueFloat(src + c)
		}
	}
}

// WriteBlockFloat copies a rectangle from src into the tile and marks it
// dirty.
func (t *Tile) WriteBlockFloat(element, row0, col0, nRows, nCols int, src []float32, srcRow0, srcCol0, blockCols int) {
	p := t.planes[element]
	for r := 0; r < nRows; r++ {
		dst := t.cellIndex(row0+r, col0)
		srcIdx := (srcRow0+r)*blockCols + srcCol0
		for c := 0; c < nCols; c++ {
			p.SetFloat(dst+c, src[srcIdx+c])
		}
	}
	t.writingRequired = true
}

// ReadBlockInt copies a rectangle of the integer view into dst.
func (t *Tile) ReadBlockInt(element, row0, col0, nRows, nCols int, dst []int32, dstRow0, dstCol0, blockCols int) {
	p := t.planes[element]
	for r := 0; r < nRows; r++ {
		src := t.cellIndex(row0+r, col0)
		dstIdx := (dstRow0+r)*blockCols + dstCol0
		for c := 0; c < nCols; c++ {
			dst[dstIdx+c] = p.ValueInt(src + c)
		}
	}
}

// WriteBlockInt copies a rectangle from src into the integer view and
// marks the tile dirty.
func (t *Tile) WriteBlockInt(element, row0, col0, nRows, nCols int, src []int32, srcRow0, srcCol0, blockCols int) {
	p := t.planes[element]
	for r := 0; r < nRows; r++ {
		dst := t.cellIndex(row0+r, col0)
		srcIdx := (srcRow0+r)*blockCols + srcCol0
		for c := 0; c < nCols; c++ {
			p.SetInt(dst+c, src[srcIdx+c])
		}
	}
	t.writingRequired = true
}

// HasNullDataValues reports whether any plane holds a fill cell.
func (t *Tile) HasNullDataValues() bool {
	for _, p := range t.planes {
		if p.HasNull() {
			return true
		}
	}

	return false
}

// HasValidData reports whether any plane holds a non-fill cell.
func (t *Tile) HasValidData() bool {
	for _, p := range t.planes {
		if p.HasValidData() {
			return true
		}
	}

	return false
}

// SetToNullState resets every cell to its element's fill value.
func (t *Tile) SetToNullState() {
	for _, p := range t.planes {
		p.Fill()
	}
	t.writingRequired = true
}

// IntCoding produces the per-element integer coding snapshot consumed by
// the integer codecs.
func (t *Tile) IntCoding() [][]int32 {
	coding := make([][]int32, len(t.planes))
	for i, p := range t.planes {
		coding[i] = p.IntCoding()
	}

	return coding
}

// StandardSizeInBytes returns the uncompressed payload size of the tile.
func (t *Tile) StandardSizeInBytes() int {
	size := 0
	for _, p := range t.planes {
		size += p.BytesPerCell() * t.nRows * t.nCols
	}

	return size
}

// CompressedPacking compresses each element plane independently and
// concatenates the results, each prefixed with its length as int32 LE.
// Float planes go to the float codecs; integer planes to the integer
// codecs. A nil result means at least one plane declined and the tile
// must be stored uncompressed.
func (t *Tile) CompressedPacking(registry *codec.Registry) ([]byte, error) {
	engine := endian.GetLittleEndianEngine()

	var packing []byte
	for _, p := range t.planes {
		var planePacking []byte
		var err error

		if floats := p.FloatValues(); floats != nil && registry.ImplementsFloat() {
			planePacking, err = registry.EncodeFloat(t.nRows, t.nCols, floats)
		} else if p.FloatValues() == nil {
			planePacking, err = registry.EncodeInt(t.nRows, t.nCols, p.IntCoding())
		}
		if err != nil {
			return nil, err
		}
		if planePacking == nil {
			return nil, nil
		}

		packing = engine.AppendUint32(packing, uint32(len(planePacking)))
		packing = append(packing, planePacking...)
	}

	return packing, nil
}

// DecodeCompressed overwrites the tile's planes from a compressed payload
// produced by CompressedPacking.
func (t *Tile) DecodeCompressed(registry *codec.Registry, payload []byte) error {
	engine := endian.GetLittleEndianEngine()

	pos := 0
	for i, p := range t.planes {
		if pos+4 > len(payload) {
			return fmt.Errorf("%w: plane %d", errs.ErrInvalidRecordSize, i)
		}
		planeLen := int(int32(engine.Uint32(payload[pos:])))
		pos += 4
		if planeLen < 0 || pos+planeLen > len(payload) {
			return fmt.Errorf("%w: plane %d", errs.ErrInvalidRecordSize, i)
		}
		planePacking := payload[pos : pos+planeLen]
		pos += planeLen

		if p.FloatValues() != nil {
			floats, err := registry.DecodeFloat(planePacking, t.nRows, t.nCols)
			if err != nil {
				return err
			}
			copy(p.FloatValues(), floats)
		} else {
			coding, err := registry.DecodeInt(planePacking, t.nRows, t.nCols)
			if err != nil {
				return err
			}
			p.SetIntCoding(coding)
		}
	}

	return nil
}

// AppendUncompressed appends every plane in row-major little-endian
// binary, in element-declaration order.
func (t *Tile) AppendUncompressed(dst []byte) []byte {
	engine := endian.GetLittleEndianEngine()
	for _, p := range t.planes {
		dst = p.AppendRaw(engine, dst)
	}

	return dst
}

// ReadUncompressed overwrites the tile's planes from their row-major
// binary form.
func (t *Tile) ReadUncompressed(payload []byte) error {
	engine := endian.GetLittleEndianEngine()
	pos := 0
	for i, p := range t.planes {
		n, err := p.ReadRaw(engine, payload[pos:])
		if err != nil {
			return fmt.Errorf("%w: plane %d", errs.ErrInvalidRecordSize, i)
		}
		pos += n
	}

	return nil
}

// Defs reports the element definitions the tile was built with.
func (t *Tile) Defs() []ElementDef { return t.defs }
