package gridstore

import (
	"github.com/arloliu/gridstore/errs"
)

// Element is the per-element access handle returned by File.GetElement.
// It reads and writes cells through the owning file's tile cache; a tile
// not present on disk reads as the element's fill value, and the first
// write to such a tile materializes it.
type Element struct {
	file  *File
	index int
	spec  ElementSpec
}

// Name returns the element name.
func (e *Element) Name() string { return e.spec.Name }

// Spec returns the element declaration.
func (e *Element) Spec() ElementSpec { return e.spec }

// ReadValueInt reads a cell through the integer view.
func (e *Element) ReadValueInt(row, col int) (int32, error) {
	f := e.file
	if f.closed {
		return 0, errs.ErrFileClosed
	}
	if err := f.checkCell(row, col); err != nil {
		return 0, err
	}

	t, err := f.cache.GetTile(f.tileIndexFor(row, col))
	if err != nil {
		return 0, err
	}
	if t == nil {
		return e.spec.FillInt, nil
	}

	return t.ValueInt(e.index, row%f.spec.NRowsInTile, col%f.spec.NColsInTile), nil
}

// WriteValueInt writes a cell through the integer view, materializing the
// owning tile if needed and marking it dirty.
func (e *Element) WriteValueInt(row, col int, v int32) error {
	f := e.file
	if f.closed {
		return errs.ErrFileClosed
	}
	if f.readOnly {
		return errs.ErrReadOnly
	}
	if err := f.checkCell(row, col); err != nil {
		return err
	}

	t, err := f.cache.GetOrAllocate(f.tileIndexFor(row, col), f.defs, f.spec.NRowsInTile, f.spec.NColsInTile)
	if err != nil {
		return err
	}
	t.SetValueInt(e.index, row%f.spec.NRowsInTile, col%f.spec.NColsInTile, v)

	return nil
}

// ReadValue reads a cell through the float view, applying the element's
// scale and offset for integer-coded elements.
func (e *Element) ReadValue(row, col int) (float32, error) {
	f := e.file
	if f.closed {
		return 0, errs.ErrFileClosed
	}
	if err := f.checkCell(row, col); err != nil {
		return 0, err
	}

	t, err := f.cache.GetTile(f.tileIndexFor(row, col))
	if err != nil {
		return 0, err
	}
	if t == nil {
		return e.spec.FillFloat, nil
	}

	return t.ValueFloat(e.index, row%f.spec.NRowsInTile, col%f.spec.NColsInTile), nil
}

// WriteValue writes a cell through the float view.
func (e *Element) WriteValue(row, col int, v float32) error {
	f := e.file
	if f.closed {
		return errs.ErrFileClosed
	}
	if f.readOnly {
		return errs.ErrReadOnly
	}
	if err := f.checkCell(row, col); err != nil {
		return err
	}

	t, err := f.cache.GetOrAllocate(f.tileIndexFor(row, col), f.defs, f.spec.NRowsInTile, f.spec.NColsInTile)
	if err != nil {
		return err
	}
	t.SetValueFloat(e.index, row%f.spec.NRowsInTile, col%f.spec.NColsInTile, v)

	return nil
}

// blockExtent validates a block request against the raster bounds.
func (e *Element) blockExtent(row0, col0, nRows, nCols int) error {
	f := e.file
	if nRows < 1 || nCols < 1 {
		return errs.ErrCoordinateOutOfRange
	}
	if err := f.checkCell(row0, col0); err != nil {
		return err
	}

	return f.checkCell(row0+nRows-1, col0+nCols-1)
}

// forEachTileInBlock walks the tiles covering a block and hands each
// visitor the tile-local and block-local rectangles.
func (e *Element) forEachTileInBlock(row0, col0, nRows, nCols int, visit func(tileIndex, tRow0, tCol0, bRow0, bCol0, span0, span1 int) error) error {
	f := e.file
	tileRows := f.spec.NRowsInTile
	tileCols := f.spec.NColsInTile

	for r := row0; r < row0+nRows; {
		rowsHere := min(tileRows-r%tileRows, row0+nRows-r)
		for c := col0; c < col0+nCols; {
			colsHere := min(tileCols-c%tileCols, col0+nCols-c)
			if err := visit(f.tileIndexFor(r, c), r%tileRows, c%tileCols, r-row0, c-col0, rowsHere, colsHere); err != nil {
				return err
			}
			c += colsHere
		}
		r += rowsHere
	}

	return nil
}

// ReadBlock reads a rectangular subgrid through the float view into a
// row-major slice of nRows x nCols values. Cells in tiles absent from
// disk read as the fill value.
func (e *Element) ReadBlock(row0, col0, nRows, nCols int) ([]float32, error) {
	if e.file.closed {
		return nil, errs.ErrFileClosed
	}
	if err := e.blockExtent(row0, col0, nRows, nCols); err != nil {
		return nil, err
	}

	block := make([]float32, nRows*nCols)
	for i := range block {
		block[i] = e.spec.FillFloat
	}

	err := e.forEachTileInBlock(row0, col0, nRows, nCols, func(tileIndex, tRow0, tCol0, bRow0, bCol0, rowsHere, colsHere int) error {
		t, err := e.file.cache.GetTile(tileIndex)
		if err != nil {
			return err
		}
		if t == nil {
			return nil
		}
		t.ReadBlockFloat(e.index, tRow0, tCol0, rowsHere, colsHere, block, bRow0, bCol0, nCols)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return block, nil
}

// WriteBlock writes a rectangular subgrid through the float view from a
// row-major slice of nRows x nCols values.
func (e *Element) WriteBlock(row0, col0, nRows, nCols int, values []float32) error {
	f := e.file
	if f.closed {
		return errs.ErrFileClosed
	}
	if f.readOnly {
		return errs.ErrReadOnly
	}
	if err := e.blockExtent(row0, col0, nRows, nCols); err != nil {
		return err
	}
	if len(values) != nRows*nCols {
		return errs.ErrCoordinateOutOfRange
	}

	return e.forEachTileInBlock(row0, col0, nRows, nCols, func(tileIndex, tRow0, tCol0, bRow0, bCol0, rowsHere, colsHere int) error {
		t, err := f.cache.GetOrAllocate(tileIndex, f.defs, f.spec.NRowsInTile, f.spec.NColsInTile)
		if err != nil {
			return err
		}
		t.WriteBlockFloat(e.index, tRow0, tCol0, rowsHere, colsHere, values, bRow0, bCol0, nCols)

		return nil
	})
}

// ReadBlockInt reads a rectangular subgrid through the integer view.
func (e *Element) ReadBlockInt(row0, col0, nRows, nCols int) ([]int32, error) {
	if e.file.closed {
		return nil, errs.ErrFileClosed
	}
	if err := e.blockExtent(row0, col0, nRows, nCols); err != nil {
		return nil, err
	}

	block := make([]int32, nRows*nCols)
	for i := range block {
		block[i] = e.spec.FillInt
	}

	err := e.forEachTileInBlock(row0, col0, nRows, nCols, func(tileIndex, tRow0, tCol0, bRow0, bCol0, rowsHere, colsHere int) error {
		t, err := e.file.cache.GetTile(tileIndex)
		if err != nil {
			return err
		}
		if t == nil {
			return nil
		}
		t.ReadBlockInt(e.index, tRow0, tCol0, rowsHere, colsHere, block, bRow0, bCol0, nCols)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return block, nil
}

// WriteBlockInt writes a rectangular subgrid through the integer view.
func (e *Element) WriteBlockInt(row0, col0, nRows, nCols int, values []int32) error {
	f := e.file
	if f.closed {
		return errs.ErrFileClosed
	}
	if f.readOnly {
		return errs.ErrReadOnly
	}
	if err := e.blockExtent(row0, col0, nRows, nCols); err != nil {
		return err
	}
	if len(values) != nRows*nCols {
		return errs.ErrCoordinateOutOfRange
	}

	return e.forEachTileInBlock(row0, col0, nRows, nCols, func(tileIndex, tRow0, tCol0, bRow0, bCol0, rowsHere, colsHere int) error {
		t, err := f.cache.GetOrAllocate(tileIndex, f.defs, f.spec.NRowsInTile, f.spec.NColsInTile)
		if err != nil {
			return err
		}
		t.WriteBlockInt(e.index, tRow0, tCol0, rowsHere, colsHere, values, bRow0, bCol0, nCols)

		return nil
	})
}
