package gridstore

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/gridstore/cache"
	"github.com/arloliu/gridstore/codec"
	"github.com/arloliu/gridstore/endian"
	"github.com/arloliu/gridstore/errs"
	"github.com/arloliu/gridstore/store"
	"github.com/arloliu/gridstore/tile"
)

// File header framing: an 8-byte identifier, a version triple with one
// reserved byte, and the length-prefixed serialized specification, padded
// so the tile region starts on a multiple of 8.
var fileMagic = [8]byte{'g', 'r', 'i', 'd', 's', 't', 'o', 'r'}

const (
	versionMajor = 1
	versionMinor = 0
	versionSub   = 0

	fileHeaderFixedSize = 8 + 4 + 4 // magic, version, spec length
)

// File is a gridstore raster file: per-cell and block access to a tiled
// grid through a bounded tile cache, backed by the record store.
//
// A File is owned by a single goroutine; see SetMultiThreadingEnabled for
// the one concession to parallelism.
type File struct {
	path     string
	file     *os.File
	readOnly bool
	closed   bool

	spec     *RasterSpec
	registry *codec.Registry
	store    *store.TileStore
	cache    *cache.TileCache
	defs     []tile.ElementDef

	multiThreading bool
	cacheCapacity  int
}

// Create builds a new raster file from a specification. The file must
// not already exist in a usable state; any existing content is
// truncated.
func Create(path string, spec *RasterSpec) (*File, error) {
	if spec == nil || len(spec.Elements) == 0 {
		return nil, fmt.Errorf("%w: no elements declared", errs.ErrInvalidSpec)
	}

	osFile, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	engine := endian.GetLittleEndianEngine()
	specBytes := spec.appendTo(nil)

	header := append([]byte(nil), fileMagic[:]...)
	header = append(header, versionMajor, versionMinor, versionSub, 0)
	header = engine.AppendUint32(header, uint32(len(specBytes)))
	header = append(header, specBytes...)
	if pad := (8 - len(header)%8) % 8; pad > 0 {
		header = append(header, make([]byte, pad)...)
	}

	if _, err := osFile.Write(header); err != nil {
		osFile.Close()
		return nil, fmt.Errorf("write file header: %w", err)
	}

	f, err := newFile(path, osFile, false, spec, int64(len(header)))
	if err != nil {
		osFile.Close()
		return nil, err
	}

	return f, nil
}

// Open opens an existing raster file for reading and writing.
func Open(path string) (*File, error) {
	return openFile(path, false)
}

// OpenReadOnly opens an existing raster file for reading.
func OpenReadOnly(path string) (*File, error) {
	return openFile(path, true)
}

func openFile(path string, readOnly bool) (*File, error) {
	mode := os.O_RDWR
	if readOnly {
		mode = os.O_RDONLY
	}
	osFile, err := os.OpenFile(path, mode, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	spec, contentOffset, err := readFileHeader(osFile)
	if err != nil {
		osFile.Close()
		return nil, err
	}

	f, err := newFile(path, osFile, readOnly, spec, contentOffset)
	if err != nil {
		osFile.Close()
		return nil, err
	}

	// Prefer the companion index; fall back to scanning the tile region.
	info, err := osFile.Stat()
	if err != nil {
		f.file.Close()
		return nil, err
	}
	loaded, err := f.store.LoadIndex(path, info.ModTime())
	if err != nil {
		f.file.Close()
		return nil, err
	}
	if !loaded {
		if err := f.store.Scan(); err != nil {
			f.file.Close()
			return nil, err
		}
	}

	return f, nil
}

func readFileHeader(osFile *os.File) (*RasterSpec, int64, error) {
	engine := endian.GetLittleEndianEngine()

	fixed := make([]byte, fileHeaderFixedSize)
	if _, err := osFile.ReadAt(fixed, 0); err != nil {
		return nil, 0, fmt.Errorf("read file header: %w", err)
	}
	if [8]byte(fixed[0:8]) != fileMagic {
		return nil, 0, errs.ErrBadMagic
	}
	if fixed[8] != versionMajor {
		return nil, 0, fmt.Errorf("%w: %d.%d.%d", errs.ErrVersionMismatch, fixed[8], fixed[9], fixed[10])
	}

	specLen := int(int32(engine.Uint32(fixed[12:16])))
	if specLen <= 0 {
		return nil, 0, errs.ErrInvalidHeaderSize
	}

	specBytes := make([]byte, specLen)
	if _, err := osFile.ReadAt(specBytes, fileHeaderFixedSize); err != nil {
		return nil, 0, fmt.Errorf("read specification: %w", err)
	}

	spec, err := parseRasterSpec(specBytes)
	if err != nil {
		return nil, 0, err
	}

	contentOffset := int64(fileHeaderFixedSize + specLen)
	contentOffset = (contentOffset + 7) &^ 7

	return spec, contentOffset, nil
}

func newFile(path string, osFile *os.File, readOnly bool, spec *RasterSpec, contentOffset int64) (*File, error) {
	registry, err := spec.buildRegistry()
	if err != nil {
		return nil, err
	}

	defs := spec.elementDefs()
	shape := store.Shape{
		NRowsOfTiles: spec.NRowsOfTiles(),
		NColsOfTiles: spec.NColsOfTiles(),
		TileRows:     spec.NRowsInTile,
		TileCols:     spec.NColsInTile,
	}
	tileStore, err := store.NewTileStore(osFile, readOnly, contentOffset, shape, defs, registry, store.Options{
		CompressionEnabled: spec.CompressionEnabled,
		ChecksumsEnabled:   spec.ChecksumsEnabled,
	})
	if err != nil {
		return nil, err
	}

	f := &File{
		path:          path,
		file:          osFile,
		readOnly:      readOnly,
		spec:          spec,
		registry:      registry,
		store:         tileStore,
		defs:          defs,
		cacheCapacity: cache.DefaultCapacity,
	}
	f.cache = cache.New(tileStore, f.cacheCapacity, shape.NColsOfTiles)

	return f, nil
}

// Spec returns the file's specification.
func (f *File) Spec() *RasterSpec { return f.spec }

// GetElement returns the handle for a named element.
func (f *File) GetElement(name string) (*Element, error) {
	for i, e := range f.spec.Elements {
		if e.Name == name {
			return &Element{file: f, index: i, spec: e}, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", errs.ErrElementNotFound, name)
}

// Elements returns handles for every element in declaration order.
func (f *File) Elements() []*Element {
	out := make([]*Element, len(f.spec.Elements))
	for i, e := range f.spec.Elements {
		out[i] = &Element{file: f, index: i, spec: e}
	}

	return out
}

// SetTileCacheSize resizes the tile cache. Presets cache.SizeSmall,
// cache.SizeMedium and cache.SizeLarge are the usual choices; any
// positive count works. Resizing flushes the current cache.
func (f *File) SetTileCacheSize(capacity int) error {
	if f.closed {
		return errs.ErrFileClosed
	}
	if err := f.flushTiles(); err != nil {
		return err
	}

	f.cacheCapacity = capacity
	f.cache = cache.New(f.store, capacity, f.spec.NColsOfTiles())

	return nil
}

// SetMultiThreadingEnabled lets Flush compress independent dirty tiles on
// a worker pool. The hint affects codec work only; every file mutation
// stays serialized on the calling goroutine.
func (f *File) SetMultiThreadingEnabled(enabled bool) {
	f.multiThreading = enabled
}

// WriteMetadata stores a named binary metadata record. Large payloads are
// stored compressed when that wins space.
func (f *File) WriteMetadata(name string, recordID int32, payload []byte) error {
	if f.closed {
		return errs.ErrFileClosed
	}

	return f.store.StoreVLR(store.VLR{UserID: name, RecordID: recordID}, payload, len(payload) >= 512)
}

// WriteMetadataText stores a named text metadata record.
func (f *File) WriteMetadataText(name string, recordID int32, text string) error {
	if f.closed {
		return errs.ErrFileClosed
	}

	return f.store.StoreVLR(store.VLR{UserID: name, RecordID: recordID, IsText: true}, []byte(text), len(text) >= 512)
}

// ReadMetadata loads a metadata record's payload.
func (f *File) ReadMetadata(name string, recordID int32) ([]byte, error) {
	if f.closed {
		return nil, errs.ErrFileClosed
	}
	vlr, ok := f.store.FindVLR(name, recordID)
	if !ok {
		return nil, fmt.Errorf("%w: %s#%d", errs.ErrMetadataNotFound, name, recordID)
	}

	return f.store.ReadVLRPayload(vlr)
}

// ReadMetadataText loads a text metadata record.
func (f *File) ReadMetadataText(name string, recordID int32) (string, error) {
	payload, err := f.ReadMetadata(name, recordID)
	if err != nil {
		return "", err
	}

	return string(payload), nil
}

// ListMetadata returns the file's metadata records in file order.
func (f *File) ListMetadata() []store.VLR {
	return f.store.VLRs()
}

// flushTiles writes back every dirty tile. With multi-threading enabled
// the compressed packings are produced on a worker pool; the file writes
// themselves stay serialized.
func (f *File) flushTiles() error {
	if !f.multiThreading || !f.spec.CompressionEnabled {
		return f.cache.Flush()
	}

	dirty := f.cache.DirtyTiles()
	if len(dirty) == 0 {
		return nil
	}

	packings := make([][]byte, len(dirty))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, t := range dirty {
		i, t := i, t
		g.Go(func() error {
			packing, err := t.CompressedPacking(f.registry)
			if err != nil {
				return err
			}
			packings[i] = packing

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, t := range dirty {
		if err := f.store.StoreTilePacked(t, packings[i]); err != nil {
			return err
		}
	}

	return nil
}

// Flush writes back dirty tiles, persists the companion index, and syncs
// the underlying file.
func (f *File) Flush() error {
	if f.closed {
		return errs.ErrFileClosed
	}
	if f.readOnly {
		return nil
	}

	if err := f.flushTiles(); err != nil {
		return err
	}
	if err := f.store.WriteIndex(f.path, f.spec.ExtendedFileSize); err != nil {
		return err
	}

	return f.file.Sync()
}

// Close flushes and releases the file. The handle is unusable
// afterwards.
func (f *File) Close() error {
	if f.closed {
		return nil
	}

	if !f.readOnly {
		if err := f.flushTiles(); err != nil {
			f.file.Close()
			f.closed = true
			return err
		}
		if err := f.store.Truncate(); err != nil {
			f.file.Close()
			f.closed = true
			return err
		}
		if err := f.store.WriteIndex(f.path, f.spec.ExtendedFileSize); err != nil {
			f.file.Close()
			f.closed = true
			return err
		}
		if err := f.file.Sync(); err != nil {
			f.file.Close()
			f.closed = true
			return err
		}
	}

	f.closed = true

	return f.file.Close()
}

// tileIndexFor maps a cell to its owning tile.
func (f *File) tileIndexFor(row, col int) int {
	return (row/f.spec.NRowsInTile)*f.spec.NColsOfTiles() + col/f.spec.NColsInTile
}

func (f *File) checkCell(row, col int) error {
	if row < 0 || row >= f.spec.NRowsInRaster || col < 0 || col >= f.spec.NColsInRaster {
		return fmt.Errorf("%w: (%d, %d)", errs.ErrCoordinateOutOfRange, row, col)
	}

	return nil
}
