package store

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/gridstore/codec"
	"github.com/arloliu/gridstore/errs"
	"github.com/arloliu/gridstore/format"
	"github.com/arloliu/gridstore/tile"
)

func testDefs() []tile.ElementDef {
	return []tile.ElementDef{{
		Name:      "z",
		Type:      format.TypeInt32,
		Scale:     1,
		Offset:    0,
		FillInt:   format.NullInt32,
		FillFloat: float32(math.NaN()),
	}}
}

func newTestStore(t *testing.T, shape Shape, opts Options) (*TileStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tiles.gvs")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	s, err := NewTileStore(f, false, 0, shape, testDefs(), codec.NewDefaultRegistry(), opts)
	require.NoError(t, err)

	return s, path
}

func reopenStore(t *testing.T, path string, shape Shape, opts Options) *TileStore {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	s, err := NewTileStore(f, false, 0, shape, testDefs(), codec.NewDefaultRegistry(), opts)
	require.NoError(t, err)

	return s
}

func gradientTestTile(index, nRows, nCols int) *tile.Tile {
	tl := tile.New(index, 0, index, nRows, nCols, testDefs())
	for r := 0; r < nRows; r++ {
		for c := 0; c < nCols; c++ {
			tl.SetValueInt(0, r, c, int32(100+r+c))
		}
	}

	return tl
}

func incompressibleTestTile(index, nRows, nCols int) *tile.Tile {
	tl := tile.New(index, 0, index, nRows, nCols, testDefs())
	for r := 0; r < nRows; r++ {
		for c := 0; c < nCols; c++ {
			if (r+c)%2 == 0 {
				tl.SetValueInt(0, r, c, math.MaxInt32)
			} else {
				tl.SetValueInt(0, r, c, math.MinInt32+1)
			}
		}
	}

	return tl
}

// recordAccounting checks the invariant that the file size equals the sum
// of live record sizes, free block sizes, and the content offset.
func recordAccounting(t *testing.T, s *TileStore) {
	t.Helper()

	var total int64
	for _, pos := range s.positions {
		if pos == 0 {
			continue
		}
		size, err := readRecordSize(s.file, pos)
		require.NoError(t, err)
		require.Positive(t, size)
		total += int64(size)
	}
	for _, v := range s.vlrs {
		size, err := readRecordSize(s.file, v.filePos)
		require.NoError(t, err)
		require.Positive(t, size)
		total += int64(size)
	}
	total += s.FreeBytes()

	require.Equal(t, s.FileSize(), s.ContentOffset()+total)
}

func TestStoreAndReadTileUncompressed(t *testing.T) {
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 4, TileRows: 4, TileCols: 4}
	s, _ := newTestStore(t, shape, Options{})

	tl := gradientTestTile(2, 4, 4)
	require.NoError(t, s.StoreTile(tl))
	require.False(t, tl.NeedsWrite())
	require.True(t, s.TileExists(2))
	require.False(t, s.TileExists(0))
	require.Equal(t, 1, s.TileCountStored())

	got, err := s.ReadTile(2, 0, 2)
	require.NoError(t, err)
	require.Equal(t, int32(100), got.ValueInt(0, 0, 0))
	require.Equal(t, int32(106), got.ValueInt(0, 3, 3))

	recordAccounting(t, s)
}

func TestStoreTileCompressed(t *testing.T) {
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 2, TileRows: 16, TileCols: 16}
	s, _ := newTestStore(t, shape, Options{CompressionEnabled: true})

	require.NoError(t, s.StoreTile(gradientTestTile(0, 16, 16)))
	require.Equal(t, int64(1), s.Counters().CompressedWrites)

	got, err := s.ReadTile(0, 0, 0)
	require.NoError(t, err)
	for r := 0; r < 16; r++ {
		for c := 0; c < 16; c++ {
			require.Equal(t, int32(100+r+c), got.ValueInt(0, r, c))
		}
	}
}

func TestStoreTileCompressionFallsBackOnOverflow(t *testing.T) {
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 2, TileRows: 8, TileCols: 8}
	s, _ := newTestStore(t, shape, Options{CompressionEnabled: true})

	require.NoError(t, s.StoreTile(incompressibleTestTile(0, 8, 8)))
	require.Zero(t, s.Counters().CompressedWrites)

	got, err := s.ReadTile(0, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int32(math.MaxInt32), got.ValueInt(0, 0, 0))
	require.Equal(t, int32(math.MinInt32+1), got.ValueInt(0, 0, 1))
}

func TestStoreTileChecksums(t *testing.T) {
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 1, TileRows: 4, TileCols: 4}
	s, _ := newTestStore(t, shape, Options{ChecksumsEnabled: true})

	require.NoError(t, s.StoreTile(gradientTestTile(0, 4, 4)))

	got, err := s.ReadTile(0, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int32(100), got.ValueInt(0, 0, 0))

	// Corrupt one payload byte; the checksum must catch it.
	pos := s.positions[0]
	_, err = s.file.WriteAt([]byte{0xFF}, pos+RecordHeaderSize+5)
	require.NoError(t, err)

	_, err = s.ReadTile(0, 0, 0)
	require.ErrorIs(t, err, errs.ErrChecksumMismatch)
}

func TestStoreTileIndexMismatch(t *testing.T) {
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 2, TileRows: 2, TileCols: 2}
	s, _ := newTestStore(t, shape, Options{})

	require.NoError(t, s.StoreTile(gradientTestTile(0, 2, 2)))

	// Point tile 1's position at tile 0's record.
	s.positions[1] = s.positions[0]
	_, err := s.ReadTile(1, 0, 1)
	require.ErrorIs(t, err, errs.ErrTileIndexMismatch)
}

func TestStoreTileRangeChecks(t *testing.T) {
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 1, TileRows: 2, TileCols: 2}
	s, _ := newTestStore(t, shape, Options{})

	require.ErrorIs(t, s.StoreTile(gradientTestTile(5, 2, 2)), errs.ErrTileIndexOutOfRange)

	_, err := s.ReadTile(0, 0, 0)
	require.Error(t, err, "reading a never-stored tile fails")
}

func TestOverwriteCoalescesFreedSlots(t *testing.T) {
	// Three adjacent tiles A, B, C. Rewriting B smaller frees B's slot;
	// rewriting A larger frees A's slot, which must merge with B's into
	// one region with no adjacent free blocks remaining.
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 3, TileRows: 16, TileCols: 16}
	s, _ := newTestStore(t, shape, Options{CompressionEnabled: true})

	for i := 0; i < 3; i++ {
		require.NoError(t, s.StoreTile(incompressibleTestTile(i, 16, 16)))
	}
	require.Empty(t, s.FreeBlocks())

	recordSize := int64(multipleOf8(RecordHeaderSize + 16*16*4))
	posA, posB := s.positions[0], s.positions[1]
	require.Equal(t, posA+recordSize, posB)

	// B shrinks: its record moves, leaving B's old slot free.
	require.NoError(t, s.StoreTile(gradientTestTile(1, 16, 16)))
	require.Equal(t, int64(1), s.Counters().CompressedWrites)
	require.Len(t, s.FreeBlocks(), 1)

	// A rewritten (still incompressible): its freed slot coalesces with
	// B's old slot into one region, and the allocator may then split the
	// merged block to place the new record.
	require.NoError(t, s.StoreTile(incompressibleTestTile(0, 16, 16)))

	blocks := s.FreeBlocks()
	require.Len(t, blocks, 1, "adjacent free slots must coalesce")
	for i := 1; i < len(blocks); i++ {
		require.Greater(t, blocks[i][0], blocks[i-1][0]+blocks[i-1][1])
	}

	recordAccounting(t, s)
}

func TestScanRebuildsState(t *testing.T) {
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 4, TileRows: 8, TileCols: 8}
	s, path := newTestStore(t, shape, Options{CompressionEnabled: true})

	require.NoError(t, s.StoreTile(gradientTestTile(0, 8, 8)))
	require.NoError(t, s.StoreTile(gradientTestTile(3, 8, 8)))
	require.NoError(t, s.StoreVLR(VLR{UserID: "gridstore", RecordID: 7, IsText: true}, []byte("hello"), false))

	// Rewrite tile 0 larger so the file carries a free block.
	require.NoError(t, s.StoreTile(incompressibleTestTile(0, 8, 8)))
	require.NotEmpty(t, s.FreeBlocks())

	s2 := reopenStore(t, path, shape, Options{CompressionEnabled: true})
	require.NoError(t, s2.Scan())

	require.Equal(t, s.positions, s2.positions)
	require.Equal(t, s.FreeBlocks(), s2.FreeBlocks())

	vlr, ok := s2.FindVLR("gridstore", 7)
	require.True(t, ok)
	payload, err := s2.ReadVLRPayload(vlr)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), payload)

	got, err := s2.ReadTile(3, 0, 3)
	require.NoError(t, err)
	require.Equal(t, int32(100), got.ValueInt(0, 0, 0))
}

func TestScanStopsAtTornTail(t *testing.T) {
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 2, TileRows: 4, TileCols: 4}
	s, path := newTestStore(t, shape, Options{})

	require.NoError(t, s.StoreTile(gradientTestTile(0, 4, 4)))
	goodSize := s.FileSize()

	// Append a torn record: a plausible header whose size overruns the file.
	header := recordHeader{size: 4096, indexField: 1, flags: 0}
	_, err := s.file.WriteAt(header.appendTo(nil), goodSize)
	require.NoError(t, err)

	s2 := reopenStore(t, path, shape, Options{})
	require.NoError(t, s2.Scan())
	require.Equal(t, goodSize, s2.FileSize(), "scan stops at the last coherent record")
	require.True(t, s2.TileExists(0))
	require.False(t, s2.TileExists(1))
}

func TestScanRejectsUnknownRecordType(t *testing.T) {
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 1, TileRows: 2, TileCols: 2}
	s, path := newTestStore(t, shape, Options{})

	record := buildRecord(-5, 0, []byte{1, 2, 3}, false)
	_, err := s.writeRecord(record)
	require.NoError(t, err)

	s2 := reopenStore(t, path, shape, Options{})
	require.ErrorIs(t, s2.Scan(), errs.ErrUnknownRecordType)
}

func TestVLRReplaceAndCompression(t *testing.T) {
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 1, TileRows: 2, TileCols: 2}
	s, _ := newTestStore(t, shape, Options{})

	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i % 7)
	}

	require.NoError(t, s.StoreVLR(VLR{UserID: "app", RecordID: 1}, []byte("v1"), false))
	require.NoError(t, s.StoreVLR(VLR{UserID: "app", RecordID: 1}, big, true))
	require.Len(t, s.VLRs(), 1, "same key replaces the prior record")

	vlr, ok := s.FindVLR("app", 1)
	require.True(t, ok)
	require.Equal(t, vlrPayloadS2, vlr.compression, "large redundant payload stores compressed")

	payload, err := s.ReadVLRPayload(vlr)
	require.NoError(t, err)
	require.Equal(t, big, payload)

	recordAccounting(t, s)
}

func TestVLRValidation(t *testing.T) {
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 1, TileRows: 2, TileCols: 2}
	s, _ := newTestStore(t, shape, Options{})

	err := s.StoreVLR(VLR{UserID: ""}, nil, false)
	require.Error(t, err)

	err = s.StoreVLR(VLR{UserID: "way-too-long-user-id!"}, nil, false)
	require.Error(t, err)

	err = s.StoreVLR(VLR{UserID: "app", Description: string(make([]byte, 40))}, nil, false)
	require.Error(t, err)
}

func TestIndexFileRoundTrip(t *testing.T) {
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 4, TileRows: 8, TileCols: 8}
	s, path := newTestStore(t, shape, Options{CompressionEnabled: true})

	require.NoError(t, s.StoreTile(gradientTestTile(1, 8, 8)))
	require.NoError(t, s.StoreVLR(VLR{UserID: "app", RecordID: 2}, []byte("payload"), false))
	require.NoError(t, s.StoreTile(incompressibleTestTile(1, 8, 8))) // leaves a free block

	require.NoError(t, s.WriteIndex(path, false))

	s2 := reopenStore(t, path, shape, Options{CompressionEnabled: true})
	loaded, err := s2.LoadIndex(path, time.Time{})
	require.NoError(t, err)
	require.True(t, loaded)

	require.Equal(t, s.positions, s2.positions)
	require.Equal(t, s.FreeBlocks(), s2.FreeBlocks())
	require.Equal(t, s.FileSize(), s2.FileSize())

	vlr, ok := s2.FindVLR("app", 2)
	require.True(t, ok)
	payload, err := s2.ReadVLRPayload(vlr)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), payload)
}

func TestIndexFileStaleFallsBack(t *testing.T) {
	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 1, TileRows: 2, TileCols: 2}
	s, path := newTestStore(t, shape, Options{})
	require.NoError(t, s.WriteIndex(path, false))

	s2 := reopenStore(t, path, shape, Options{})
	loaded, err := s2.LoadIndex(path, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.False(t, loaded, "an index older than the data file is ignored")
}

func TestReadOnlyStoreRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.gvs")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()

	shape := Shape{NRowsOfTiles: 1, NColsOfTiles: 1, TileRows: 2, TileCols: 2}
	s, err := NewTileStore(f, true, 0, shape, testDefs(), codec.NewDefaultRegistry(), Options{})
	require.NoError(t, err)

	require.ErrorIs(t, s.StoreTile(gradientTestTile(0, 2, 2)), errs.ErrReadOnly)
	require.ErrorIs(t, s.StoreVLR(VLR{UserID: "app"}, nil, false), errs.ErrReadOnly)
}
