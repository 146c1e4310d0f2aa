package store

import (
	"fmt"
	"os"

	"github.com/arloliu/gridstore/codec"
	"github.com/arloliu/gridstore/errs"
	"github.com/arloliu/gridstore/tile"
)

// Shape carries the tiling geometry the store needs to frame records.
type Shape struct {
	NRowsOfTiles int
	NColsOfTiles int
	TileRows     int
	TileCols     int
}

// TileCount returns the number of tiles in the grid.
func (s Shape) TileCount() int { return s.NRowsOfTiles * s.NColsOfTiles }

// Options configure a TileStore.
type Options struct {
	// CompressionEnabled routes tile writes through the codec registry.
	CompressionEnabled bool
	// ChecksumsEnabled appends an xxhash64 trailer to every record.
	ChecksumsEnabled bool
}

// Counters accumulate store activity for diagnostics.
type Counters struct {
	TilesWritten      int64
	TilesRead         int64
	CompressedWrites  int64
	CompressedBytes   int64
	UncompressedBytes int64
	VLRsWritten       int64
}

// TileStore manages the tile region of a gridstore file: the record
// layout, the free-space allocator, the tile position table, and the
// variable-length records.
//
// A store is owned by a single file handle and is not safe for
// concurrent use.
type TileStore struct {
	file          *os.File
	readOnly      bool
	contentOffset int64
	fileSize      int64

	shape    Shape
	defs     []tile.ElementDef
	registry *codec.Registry
	opts     Options

	// positions holds the file position of each tile's record, or zero
	// when the tile has never been stored.
	positions []int64
	freeList  freeList
	vlrs      []VLR

	counters Counters
}

// NewTileStore creates a store over an open file whose tile region starts
// at contentOffset. For a newly created file the region is empty; for an
// existing file the caller follows up with LoadIndex or Scan.
//
// contentOffset must be positive: a position of zero in the tile table
// marks a tile that was never stored.
func NewTileStore(file *os.File, readOnly bool, contentOffset int64, shape Shape, defs []tile.ElementDef, registry *codec.Registry, opts Options) (*TileStore, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat tile store: %w", err)
	}
	fileSize := info.Size()
	if fileSize < contentOffset {
		fileSize = contentOffset
	}

	return &TileStore{
		file:          file,
		readOnly:      readOnly,
		contentOffset: contentOffset,
		fileSize:      fileSize,
		shape:         shape,
		defs:          defs,
		registry:      registry,
		opts:          opts,
		positions:     make([]int64, shape.TileCount()),
	}, nil
}

// Counters returns a snapshot of the store's activity counters.
func (s *TileStore) Counters() Counters { return s.counters }

// FileSize returns the store's logical file size.
func (s *TileStore) FileSize() int64 { return s.fileSize }

// ContentOffset returns the file position where the tile region starts.
func (s *TileStore) ContentOffset() int64 { return s.contentOffset }

// FreeBlocks returns the free list as (position, size) pairs in file
// order, for diagnostics and the index file.
func (s *TileStore) FreeBlocks() [][2]int64 { return s.freeList.blocks() }

// FreeBytes returns the total free space inside the tile region.
func (s *TileStore) FreeBytes() int64 { return s.freeList.totalFree() }

// TileCountStored returns the number of tiles present on disk.
func (s *TileStore) TileCountStored() int {
	n := 0
	for _, pos := range s.positions {
		if pos != 0 {
			n++
		}
	}

	return n
}

// TileExists reports whether a tile has ever been stored.
func (s *TileStore) TileExists(index int) bool {
	return index >= 0 && index < len(s.positions) && s.positions[index] != 0
}

func (s *TileStore) checkIndex(index int) error {
	if index < 0 || index >= len(s.positions) {
		return fmt.Errorf("%w: %d", errs.ErrTileIndexOutOfRange, index)
	}

	return nil
}

// alloc finds or creates file space for a record of the given size.
func (s *TileStore) alloc(size int32) (int64, error) {
	a, ok := s.freeList.alloc(size)
	if !ok {
		pos := s.fileSize
		s.fileSize += int64(size)

		return pos, nil
	}

	if a.remainderSize > 0 {
		if err := writeFreeBlockHeader(s.file, a.remainderPos, a.remainderSize); err != nil {
			return 0, err
		}
	}

	return a.pos, nil
}

// dealloc releases the record at pos back to the free list, coalescing
// with adjacent neighbors and rewriting the surviving block's header.
func (s *TileStore) dealloc(pos int64) error {
	size, err := readRecordSize(s.file, pos)
	if err != nil {
		return err
	}
	if size <= 0 {
		return fmt.Errorf("%w: dealloc at %d reads size %d", errs.ErrInvalidRecordSize, pos, size)
	}

	mergedPos, mergedSize := s.freeList.insert(pos, size)

	return writeFreeBlockHeader(s.file, mergedPos, mergedSize)
}

// writeRecord allocates space for a fully assembled record and writes it.
func (s *TileStore) writeRecord(record []byte) (int64, error) {
	pos, err := s.alloc(int32(len(record)))
	if err != nil {
		return 0, err
	}
	if _, err := s.file.WriteAt(record, pos); err != nil {
		return 0, fmt.Errorf("write record at %d: %w", pos, err)
	}

	return pos, nil
}

// StoreTile persists a tile, compressing it when compression is enabled
// and the packing is smaller than the padded uncompressed form. A tile
// that already occupies a slot is deallocated first, unconditionally.
func (s *TileStore) StoreTile(t *tile.Tile) error {
	return s.storeTile(t, nil, false)
}

// StoreTilePacked persists a tile whose compressed packing was computed
// ahead of time, typically by a worker pool. A nil packing means the
// codecs declined the tile and it stores uncompressed.
func (s *TileStore) StoreTilePacked(t *tile.Tile, packing []byte) error {
	return s.storeTile(t, packing, true)
}

func (s *TileStore) storeTile(t *tile.Tile, precomputed []byte, havePacking bool) error {
	if s.readOnly {
		return errs.ErrReadOnly
	}
	if err := s.checkIndex(t.Index()); err != nil {
		return err
	}

	var payload []byte
	var flags uint32

	if s.opts.CompressionEnabled {
		packing := precomputed
		if !havePacking {
			var err error
			packing, err = t.CompressedPacking(s.registry)
			if err != nil {
				return err
			}
		}
		if packing != nil {
			padded := multipleOf8(RecordHeaderSize + len(packing))
			uncompressed := multipleOf8(RecordHeaderSize + t.StandardSizeInBytes())
			if padded < uncompressed {
				payload = packing
				flags = flagCompressed
			}
		}
	}
	if payload == nil {
		payload = t.AppendUncompressed(nil)
	}

	if old := s.positions[t.Index()]; old != 0 {
		if err := s.dealloc(old); err != nil {
			return err
		}
		s.positions[t.Index()] = 0
	}

	record := buildRecord(int32(t.Index()), flags, payload, s.opts.ChecksumsEnabled)
	pos, err := s.writeRecord(record)
	if err != nil {
		return err
	}

	s.positions[t.Index()] = pos
	s.counters.TilesWritten++
	if flags&flagCompressed != 0 {
		s.counters.CompressedWrites++
		s.counters.CompressedBytes += int64(len(payload))
	} else {
		s.counters.UncompressedBytes += int64(len(payload))
	}
	t.ClearDirty()

	return nil
}

// ReadTile materializes a tile from disk. The caller must have verified
// TileExists; reading an absent tile is an error.
func (s *TileStore) ReadTile(index, tileRow, tileCol int) (*tile.Tile, error) {
	if err := s.checkIndex(index); err != nil {
		return nil, err
	}
	pos := s.positions[index]
	if pos == 0 {
		return nil, fmt.Errorf("%w: tile %d not on disk", errs.ErrTileIndexOutOfRange, index)
	}

	header, body, err := readRecord(s.file, pos, s.fileSize)
	if err != nil {
		return nil, err
	}
	if header.indexField != int32(index) {
		return nil, fmt.Errorf("%w: expected %d, found %d", errs.ErrTileIndexMismatch, index, header.indexField)
	}

	t := tile.New(index, tileRow, tileCol, s.shape.TileRows, s.shape.TileCols, s.defs)
	if header.compressed() {
		if err := t.DecodeCompressed(s.registry, body); err != nil {
			return nil, err
		}
	} else {
		if err := t.ReadUncompressed(body); err != nil {
			return nil, err
		}
	}

	s.counters.TilesRead++

	return t, nil
}

// StoreVLR writes a variable-length record. An existing record with the
// same user id and record id is replaced. Large payloads may be stored
// S2-compressed by setting compressPayload.
func (s *TileStore) StoreVLR(v VLR, payload []byte, compressPayload bool) error {
	if s.readOnly {
		return errs.ErrReadOnly
	}

	stored := payload
	v.compression = vlrPayloadRaw
	if compressPayload {
		compressed, err := compressS2(payload)
		if err != nil {
			return err
		}
		if len(compressed) < len(payload) {
			stored = compressed
			v.compression = vlrPayloadS2
		}
	}

	body, err := encodeVLRBody(v, stored)
	if err != nil {
		return err
	}

	// Replace any prior record under the same key.
	for i := range s.vlrs {
		if s.vlrs[i].vlrKey() == v.vlrKey() {
			if err := s.dealloc(s.vlrs[i].filePos); err != nil {
				return err
			}
			s.vlrs = append(s.vlrs[:i], s.vlrs[i+1:]...)
			break
		}
	}

	record := buildRecord(vlrTypeField, 0, body, s.opts.ChecksumsEnabled)
	pos, err := s.writeRecord(record)
	if err != nil {
		return err
	}

	v.filePos = pos
	v.payloadSize = int32(len(stored))
	s.vlrs = append(s.vlrs, v)
	s.counters.VLRsWritten++

	return nil
}

// VLRs lists the variable-length records in file order.
func (s *TileStore) VLRs() []VLR {
	out := make([]VLR, len(s.vlrs))
	copy(out, s.vlrs)

	return out
}

// FindVLR looks up a record by user id and record id.
func (s *TileStore) FindVLR(userID string, recordID int32) (VLR, bool) {
	for _, v := range s.vlrs {
		if v.UserID == userID && v.RecordID == recordID {
			return v, true
		}
	}

	return VLR{}, false
}

// ReadVLRPayload loads and decodes a record's payload.
func (s *TileStore) ReadVLRPayload(v VLR) ([]byte, error) {
	_, body, err := readRecord(s.file, v.filePos, s.fileSize)
	if err != nil {
		return nil, err
	}
	parsed, err := parseVLRBody(body, v.filePos)
	if err != nil {
		return nil, err
	}

	return decodeVLRPayload(parsed, body[VLRHeaderSize:VLRHeaderSize+int(parsed.payloadSize)])
}

// AnalyzeTiles walks every stored tile and routes compressed plane
// packings through the codec registry's statistics collectors. It
// returns the number of compressed and uncompressed tiles visited.
func (s *TileStore) AnalyzeTiles(stats []*codec.Stats) (compressed, uncompressed int, err error) {
	engine := endianEngine()

	for index, pos := range s.positions {
		if pos == 0 {
			continue
		}
		header, body, err := readRecord(s.file, pos, s.fileSize)
		if err != nil {
			return compressed, uncompressed, err
		}
		if !header.compressed() {
			uncompressed++
			continue
		}
		compressed++

		at := 0
		for plane := 0; plane < len(s.defs); plane++ {
			if at+4 > len(body) {
				return compressed, uncompressed, fmt.Errorf("%w: tile %d plane %d", errs.ErrInvalidRecordSize, index, plane)
			}
			planeLen := int(int32(engine.Uint32(body[at:])))
			at += 4
			if planeLen < 0 || at+planeLen > len(body) {
				return compressed, uncompressed, fmt.Errorf("%w: tile %d plane %d", errs.ErrInvalidRecordSize, index, plane)
			}
			if err := s.registry.Analyze(body[at:at+planeLen], s.shape.TileRows, s.shape.TileCols, stats); err != nil {
				return compressed, uncompressed, err
			}
			at += planeLen
		}
	}

	return compressed, uncompressed, nil
}

// Truncate trims the physical file to the logical size; called before
// close so that trailing allocations match the record accounting.
func (s *TileStore) Truncate() error {
	if s.readOnly {
		return nil
	}

	return s.file.Truncate(s.fileSize)
}
