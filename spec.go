package gridstore

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/arloliu/gridstore/codec"
	"github.com/arloliu/gridstore/endian"
	"github.com/arloliu/gridstore/errs"
	"github.com/arloliu/gridstore/format"
	"github.com/arloliu/gridstore/internal/options"
	"github.com/arloliu/gridstore/tile"
)

// Maximum lengths for the length-prefixed strings in the serialized
// specification.
const (
	maxIdentificationBytes = 64
	maxElementNameBytes    = 32
	maxElementLabelBytes   = 64
	maxElementDescBytes    = 128
	maxElementUnitBytes    = 16
	codecIDFieldSize       = 16
)

// ElementSpec declares one element of a raster file: its storage type,
// the affine scale/offset mapping for fixed-point float coding, the fill
// value, the permitted value range, and descriptive metadata.
type ElementSpec struct {
	Name        string
	Type        format.ElementType
	Scale       float32
	Offset      float32
	FillInt     int32
	FillFloat   float32
	MinValue    float32
	MaxValue    float32
	Label       string
	Description string
	Unit        string
}

// NewInt32Element declares a signed 32-bit integer element with the
// conventional fill value.
func NewInt32Element(name string) ElementSpec {
	return ElementSpec{
		Name:      name,
		Type:      format.TypeInt32,
		Scale:     1,
		Offset:    0,
		FillInt:   format.NullInt32,
		FillFloat: float32(math.NaN()),
		MinValue:  float32(math.Inf(-1)),
		MaxValue:  float32(math.Inf(1)),
	}
}

// NewInt16Element declares a 16-bit integer element; it behaves like
// Int32 at the API but packs narrower on disk.
func NewInt16Element(name string) ElementSpec {
	e := NewInt32Element(name)
	e.Type = format.TypeInt16
	e.FillInt = int32(format.NullInt16)

	return e
}

// NewFloat32Element declares an IEEE-754 binary32 element with NaN fill.
func NewFloat32Element(name string) ElementSpec {
	e := NewInt32Element(name)
	e.Type = format.TypeFloat32

	return e
}

// NewIntCodedFloat32Element declares a logical float stored as a scaled
// 32-bit integer: encoded = round((value - offset) * scale).
func NewIntCodedFloat32Element(name string, scale, offset float32) ElementSpec {
	e := NewInt32Element(name)
	e.Type = format.TypeIntCodedFloat32
	e.Scale = scale
	e.Offset = offset

	return e
}

func (e ElementSpec) validate() error {
	if len(e.Name) == 0 || len(e.Name) > maxElementNameBytes {
		return fmt.Errorf("%w: name %q", errs.ErrInvalidElement, e.Name)
	}
	for i := 0; i < len(e.Name); i++ {
		if e.Name[i] < 0x21 || e.Name[i] > 0x7E {
			return fmt.Errorf("%w: name %q is not printable ASCII", errs.ErrInvalidElement, e.Name)
		}
	}
	switch e.Type {
	case format.TypeInt32, format.TypeInt16, format.TypeFloat32, format.TypeIntCodedFloat32:
	default:
		return fmt.Errorf("%w: unknown type %d", errs.ErrInvalidElement, e.Type)
	}
	if e.Type == format.TypeIntCodedFloat32 && (e.Scale == 0 || math.IsNaN(float64(e.Scale))) {
		return fmt.Errorf("%w: zero scale", errs.ErrInvalidElement)
	}
	if len(e.Label) > maxElementLabelBytes || len(e.Description) > maxElementDescBytes || len(e.Unit) > maxElementUnitBytes {
		return fmt.Errorf("%w: metadata string too long", errs.ErrInvalidElement)
	}

	return nil
}

// def projects the element spec into the slice the tile layer needs.
func (e ElementSpec) def() tile.ElementDef {
	return tile.ElementDef{
		Name:      e.Name,
		Type:      e.Type,
		Scale:     e.Scale,
		Offset:    e.Offset,
		FillInt:   e.FillInt,
		FillFloat: e.FillFloat,
	}
}

// codecEntry pairs a persisted codec id with its constructor.
type codecEntry struct {
	id      string
	factory func() codec.TileCodec
}

// RasterSpec is the complete specification of a gridstore file: grid and
// tile dimensions, element declarations, model coordinate mapping, and
// the codec registry persisted to the header.
type RasterSpec struct {
	NRowsInRaster int
	NColsInRaster int
	NRowsInTile   int
	NColsInTile   int

	UUID           uuid.UUID
	Identification string

	Elements []ElementSpec

	GeometryType     format.GeometryType
	CoordinateSystem format.CoordinateSystemType
	X0, Y0, X1, Y1   float64

	ExtendedFileSize   bool
	ChecksumsEnabled   bool
	CompressionEnabled bool

	codecs []codecEntry
}

// RasterSpecOption is a functional option for configuring a RasterSpec at
// construction time.
type RasterSpecOption = options.Option[*RasterSpec]

// WithCompressionEnabled routes tile writes through the codec registry,
// storing each tile compressed whenever a codec beats the uncompressed
// form.
func WithCompressionEnabled(enabled bool) RasterSpecOption {
	return options.NoError(func(s *RasterSpec) {
		s.CompressionEnabled = enabled
	})
}

// WithChecksums appends an xxhash64 trailer to every record, verified on
// read.
func WithChecksums(enabled bool) RasterSpecOption {
	return options.NoError(func(s *RasterSpec) {
		s.ChecksumsEnabled = enabled
	})
}

// WithExtendedFileSize stores tile file positions as 8 bytes in the
// companion index, lifting the 32 GB data-file limit of the 4-byte form.
func WithExtendedFileSize(enabled bool) RasterSpecOption {
	return options.NoError(func(s *RasterSpec) {
		s.ExtendedFileSize = enabled
	})
}

// WithIdentification sets the 64-byte identification string persisted in
// the file header.
func WithIdentification(id string) RasterSpecOption {
	return options.New(func(s *RasterSpec) error {
		return s.SetIdentification(id)
	})
}

// NewRasterSpec creates a specification for a raster of nRows x nCols
// cells tiled in tileRows x tileCols blocks, carrying the default codecs
// with compression initially disabled unless an option enables it.
func NewRasterSpec(nRows, nCols, tileRows, tileCols int, opts ...RasterSpecOption) (*RasterSpec, error) {
	if nRows < 1 || nCols < 1 {
		return nil, fmt.Errorf("%w: raster %dx%d", errs.ErrInvalidSpec, nRows, nCols)
	}
	if tileRows < 1 || tileCols < 1 || tileRows > nRows || tileCols > nCols {
		return nil, fmt.Errorf("%w: tile %dx%d for raster %dx%d", errs.ErrInvalidSpec, tileRows, tileCols, nRows, nCols)
	}

	nRowsOfTiles := (nRows + tileRows - 1) / tileRows
	nColsOfTiles := (nCols + tileCols - 1) / tileCols
	if int64(nRowsOfTiles)*int64(nColsOfTiles) > math.MaxInt32 {
		return nil, fmt.Errorf("%w: tile count overflows int32", errs.ErrInvalidSpec)
	}

	s := &RasterSpec{
		NRowsInRaster: nRows,
		NColsInRaster: nCols,
		NRowsInTile:   tileRows,
		NColsInTile:   tileCols,
		UUID:          uuid.New(),
	}
	for _, id := range []string{codec.IDHuffman, codec.IDDeflate, codec.IDFloat} {
		factory, _ := lookupCodecFactory(id)
		s.codecs = append(s.codecs, codecEntry{id: id, factory: factory})
	}

	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	return s, nil
}

// AddElement appends an element declaration.
func (s *RasterSpec) AddElement(e ElementSpec) error {
	if err := e.validate(); err != nil {
		return err
	}
	for _, existing := range s.Elements {
		if existing.Name == e.Name {
			return fmt.Errorf("%w: duplicate element %q", errs.ErrInvalidElement, e.Name)
		}
	}
	s.Elements = append(s.Elements, e)

	return nil
}

// SetIdentification sets the 64-byte identification string.
func (s *RasterSpec) SetIdentification(id string) error {
	if !utf8.ValidString(id) || len(id) > maxIdentificationBytes {
		return fmt.Errorf("%w: identification overflows %d bytes", errs.ErrInvalidSpec, maxIdentificationBytes)
	}
	s.Identification = id

	return nil
}

// SetCartesianCoordinates binds the raster to a Cartesian model
// coordinate system with the given bounds.
func (s *RasterSpec) SetCartesianCoordinates(x0, y0, x1, y1 float64) {
	s.CoordinateSystem = format.CoordinateSystemCartesian
	s.X0 = x0
	s.Y0 = y0
	s.X1 = x1
	s.Y1 = y1
}

// SetGeographicCoordinates binds the raster to a geographic coordinate
// system; x is longitude in degrees and wraps at 360.
func (s *RasterSpec) SetGeographicCoordinates(lat0, lon0, lat1, lon1 float64) {
	s.CoordinateSystem = format.CoordinateSystemGeographic
	s.X0 = lon0
	s.Y0 = lat0
	s.X1 = lon1
	s.Y1 = lat1
}

// AddCompressionCodec appends a codec to the file's persisted registry.
// The id must be well formed and unique. A nil factory is looked up among
// those installed with RegisterCodecFactory; a non-nil factory is used as
// given.
func (s *RasterSpec) AddCompressionCodec(id string, factory func() codec.TileCodec) error {
	if err := codec.ValidateCodecID(id); err != nil {
		return err
	}
	for _, entry := range s.codecs {
		if entry.id == id {
			return fmt.Errorf("%w: %s", errs.ErrDuplicateCodec, id)
		}
	}
	if len(s.codecs) >= codec.MaxCodecs {
		return fmt.Errorf("%w: registry full", errs.ErrInvalidCodecID)
	}
	if factory == nil {
		var ok bool
		factory, ok = lookupCodecFactory(id)
		if !ok {
			return fmt.Errorf("%w: no factory for %s", errs.ErrUnknownCodec, id)
		}
	}
	s.codecs = append(s.codecs, codecEntry{id: id, factory: factory})

	return nil
}

// CodecIDs returns the persisted codec ids in registry order.
func (s *RasterSpec) CodecIDs() []string {
	ids := make([]string, len(s.codecs))
	for i, entry := range s.codecs {
		ids[i] = entry.id
	}

	return ids
}

// NRowsOfTiles returns the number of tile rows.
func (s *RasterSpec) NRowsOfTiles() int {
	return (s.NRowsInRaster + s.NRowsInTile - 1) / s.NRowsInTile
}

// NColsOfTiles returns the number of tile columns.
func (s *RasterSpec) NColsOfTiles() int {
	return (s.NColsInRaster + s.NColsInTile - 1) / s.NColsInTile
}

// CellsInTile returns the cell count of one tile.
func (s *RasterSpec) CellsInTile() int {
	return s.NRowsInTile * s.NColsInTile
}

// StandardTileSizeInBytes returns the uncompressed payload size of one
// tile across all elements.
func (s *RasterSpec) StandardTileSizeInBytes() int {
	size := 0
	for _, e := range s.Elements {
		size += e.Type.BytesPerCell() * s.CellsInTile()
	}

	return size
}

func (s *RasterSpec) cellSizeX() float64 {
	if s.NColsInRaster < 2 {
		return 1
	}

	return (s.X1 - s.X0) / float64(s.NColsInRaster-1)
}

func (s *RasterSpec) cellSizeY() float64 {
	if s.NRowsInRaster < 2 {
		return 1
	}

	return (s.Y1 - s.Y0) / float64(s.NRowsInRaster-1)
}

// MapModelToGrid maps model coordinates to fractional grid coordinates.
// For geographic systems the longitude offset wraps into [0, 360).
func (s *RasterSpec) MapModelToGrid(x, y float64) (row, col float64) {
	dx := x - s.X0
	if s.CoordinateSystem == format.CoordinateSystemGeographic {
		dx = math.Mod(dx, 360)
		if dx < 0 {
			dx += 360
		}
	}

	return (y - s.Y0) / s.cellSizeY(), dx / s.cellSizeX()
}

// MapGridToModel maps fractional grid coordinates to model coordinates.
func (s *RasterSpec) MapGridToModel(row, col float64) (x, y float64) {
	return s.X0 + col*s.cellSizeX(), s.Y0 + row*s.cellSizeY()
}

// buildRegistry materializes the codec registry from the spec's entries.
func (s *RasterSpec) buildRegistry() (*codec.Registry, error) {
	r := codec.NewRegistry()
	for _, entry := range s.codecs {
		if entry.factory == nil {
			return nil, fmt.Errorf("%w: %s", errs.ErrUnknownCodec, entry.id)
		}
		c := entry.factory()
		if c.ID() != entry.id {
			return nil, fmt.Errorf("%w: factory for %s built %s", errs.ErrUnknownCodec, entry.id, c.ID())
		}
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// elementDefs projects the element specs into tile definitions.
func (s *RasterSpec) elementDefs() []tile.ElementDef {
	defs := make([]tile.ElementDef, len(s.Elements))
	for i, e := range s.Elements {
		defs[i] = e.def()
	}

	return defs
}

func appendVarString(dst []byte, v string, limit int) []byte {
	if len(v) > limit {
		v = v[:limit]
	}
	dst = append(dst, byte(len(v)))

	return append(dst, v...)
}

func parseVarString(src []byte, pos int) (string, int, error) {
	if pos >= len(src) {
		return "", 0, errs.ErrInvalidHeaderSize
	}
	n := int(src[pos])
	pos++
	if pos+n > len(src) {
		return "", 0, errs.ErrInvalidHeaderSize
	}

	return string(src[pos : pos+n]), pos + n, nil
}

// appendTo serializes the specification for the file header.
func (s *RasterSpec) appendTo(dst []byte) []byte {
	engine := endian.GetLittleEndianEngine()

	dst = append(dst, s.UUID[:]...)

	var ident [maxIdentificationBytes]byte
	copy(ident[:], s.Identification)
	dst = append(dst, ident[:]...)

	dst = engine.AppendUint32(dst, uint32(s.NRowsInRaster))
	dst = engine.AppendUint32(dst, uint32(s.NColsInRaster))
	dst = engine.AppendUint32(dst, uint32(s.NRowsInTile))
	dst = engine.AppendUint32(dst, uint32(s.NColsInTile))

	dst = engine.AppendUint32(dst, uint32(len(s.Elements)))
	for _, e := range s.Elements {
		dst = append(dst, byte(e.Type), 0, 0, 0)
		dst = engine.AppendUint32(dst, math.Float32bits(e.Scale))
		dst = engine.AppendUint32(dst, math.Float32bits(e.Offset))
		if e.Type == format.TypeFloat32 {
			dst = engine.AppendUint32(dst, math.Float32bits(e.FillFloat))
		} else {
			dst = engine.AppendUint32(dst, uint32(e.FillInt))
		}
		dst = engine.AppendUint32(dst, math.Float32bits(e.MinValue))
		dst = engine.AppendUint32(dst, math.Float32bits(e.MaxValue))
		dst = appendVarString(dst, e.Name, maxElementNameBytes)
		dst = appendVarString(dst, e.Description, maxElementDescBytes)
		dst = appendVarString(dst, e.Unit, maxElementUnitBytes)
		dst = appendVarString(dst, e.Label, maxElementLabelBytes)
	}

	flags := []byte{0, byte(s.GeometryType), byte(s.CoordinateSystem), 0}
	if s.ExtendedFileSize {
		flags[0] = 1
	}
	dst = append(dst, flags...)

	for _, bound := range []float64{s.X0, s.Y0, s.X1, s.Y1} {
		dst = engine.AppendUint64(dst, math.Float64bits(bound))
	}

	dst = engine.AppendUint32(dst, uint32(len(s.codecs)))
	for _, entry := range s.codecs {
		var id [codecIDFieldSize]byte
		copy(id[:], entry.id)
		dst = append(dst, id[:]...)
	}

	var checksums, compression byte
	if s.ChecksumsEnabled {
		checksums = 1
	}
	if s.CompressionEnabled {
		compression = 1
	}

	return append(dst, checksums, compression)
}

// parseRasterSpec decodes a serialized specification, resolving its codec
// ids against the installed factories.
func parseRasterSpec(src []byte) (*RasterSpec, error) {
	engine := endian.GetLittleEndianEngine()

	need := func(pos, n int) error {
		if pos+n > len(src) {
			return errs.ErrInvalidHeaderSize
		}
		return nil
	}

	s := &RasterSpec{}
	pos := 0

	if err := need(pos, 16+maxIdentificationBytes+16+4); err != nil {
		return nil, err
	}
	copy(s.UUID[:], src[pos:pos+16])
	pos += 16

	s.Identification = trimZero(string(src[pos : pos+maxIdentificationBytes]))
	pos += maxIdentificationBytes

	s.NRowsInRaster = int(int32(engine.Uint32(src[pos:])))
	s.NColsInRaster = int(int32(engine.Uint32(src[pos+4:])))
	s.NRowsInTile = int(int32(engine.Uint32(src[pos+8:])))
	s.NColsInTile = int(int32(engine.Uint32(src[pos+12:])))
	pos += 16

	if s.NRowsInRaster < 1 || s.NColsInRaster < 1 ||
		s.NRowsInTile < 1 || s.NColsInTile < 1 ||
		s.NRowsInTile > s.NRowsInRaster || s.NColsInTile > s.NColsInRaster {
		return nil, errs.ErrInvalidSpec
	}

	elementCount := int(int32(engine.Uint32(src[pos:])))
	pos += 4
	if elementCount < 1 {
		return nil, errs.ErrInvalidSpec
	}

	for i := 0; i < elementCount; i++ {
		if err := need(pos, 24); err != nil {
			return nil, err
		}
		e := ElementSpec{Type: format.ElementType(src[pos])}
		pos += 4
		e.Scale = math.Float32frombits(engine.Uint32(src[pos:]))
		e.Offset = math.Float32frombits(engine.Uint32(src[pos+4:]))
		fillBits := engine.Uint32(src[pos+8:])
		e.MinValue = math.Float32frombits(engine.Uint32(src[pos+12:]))
		e.MaxValue = math.Float32frombits(engine.Uint32(src[pos+16:]))
		pos += 20

		if e.Type == format.TypeFloat32 {
			e.FillFloat = math.Float32frombits(fillBits)
			e.FillInt = format.NullInt32
		} else {
			e.FillInt = int32(fillBits)
			e.FillFloat = float32(math.NaN())
		}

		var err error
		if e.Name, pos, err = parseVarString(src, pos); err != nil {
			return nil, err
		}
		if e.Description, pos, err = parseVarString(src, pos); err != nil {
			return nil, err
		}
		if e.Unit, pos, err = parseVarString(src, pos); err != nil {
			return nil, err
		}
		if e.Label, pos, err = parseVarString(src, pos); err != nil {
			return nil, err
		}
		if err := e.validate(); err != nil {
			return nil, err
		}
		s.Elements = append(s.Elements, e)
	}

	if err := need(pos, 4+32+4); err != nil {
		return nil, err
	}
	s.ExtendedFileSize = src[pos] != 0
	s.GeometryType = format.GeometryType(src[pos+1])
	s.CoordinateSystem = format.CoordinateSystemType(src[pos+2])
	pos += 4

	s.X0 = math.Float64frombits(engine.Uint64(src[pos:]))
	s.Y0 = math.Float64frombits(engine.Uint64(src[pos+8:]))
	s.X1 = math.Float64frombits(engine.Uint64(src[pos+16:]))
	s.Y1 = math.Float64frombits(engine.Uint64(src[pos+24:]))
	pos += 32

	codecCount := int(int32(engine.Uint32(src[pos:])))
	pos += 4
	if codecCount < 0 || codecCount > codec.MaxCodecs {
		return nil, errs.ErrInvalidSpec
	}
	for i := 0; i < codecCount; i++ {
		if err := need(pos, codecIDFieldSize); err != nil {
			return nil, err
		}
		id := trimZero(string(src[pos : pos+codecIDFieldSize]))
		pos += codecIDFieldSize

		factory, ok := lookupCodecFactory(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", errs.ErrUnknownCodec, id)
		}
		s.codecs = append(s.codecs, codecEntry{id: id, factory: factory})
	}

	if err := need(pos, 2); err != nil {
		return nil, err
	}
	s.ChecksumsEnabled = src[pos] != 0
	s.CompressionEnabled = src[pos+1] != 0

	return s, nil
}

func trimZero(v string) string {
	for i := 0; i < len(v); i++ {
		if v[i] == 0 {
			return v[:i]
		}
	}

	return v
}
