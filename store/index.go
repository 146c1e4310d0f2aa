package store

import (
	"fmt"
	"os"
	"time"

	"github.com/google/renameio"

	"github.com/arloliu/gridstore/endian"
	"github.com/arloliu/gridstore/errs"
)

// The companion index file persists what a scan would rebuild: the tile
// position table, the free list, and the VLR offsets. Positions are
// stored divided by 8; with the extended-size flag clear they fit in four
// bytes, which caps the data file at 32 GB.
//
// Layout, little-endian:
//
//	magic "gsx1" (4 bytes), format version (1), extended flag (1),
//	2 reserved bytes, nRowsOfTiles (int32), nColsOfTiles (int32),
//	file size (int64), tile position table (pos/8 each),
//	free block count (int32) + (pos/8, size) pairs,
//	VLR count (int32) + record offsets (pos/8 each)
var indexMagic = [4]byte{'g', 's', 'x', '1'}

const indexVersion = 1

// IndexPath returns the sibling index path for a data file.
func IndexPath(dataPath string) string {
	return dataPath + ".gsx"
}

func (s *TileStore) appendScaledPos(dst []byte, pos int64, extended bool) []byte {
	engine := endian.GetLittleEndianEngine()
	if extended {
		return engine.AppendUint64(dst, uint64(pos/8))
	}

	return engine.AppendUint32(dst, uint32(pos/8))
}

// WriteIndex atomically persists the index next to the data file.
func (s *TileStore) WriteIndex(dataPath string, extended bool) error {
	engine := endian.GetLittleEndianEngine()

	buf := append([]byte(nil), indexMagic[:]...)
	buf = append(buf, indexVersion)
	if extended {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, 0, 0)
	buf = engine.AppendUint32(buf, uint32(s.shape.NRowsOfTiles))
	buf = engine.AppendUint32(buf, uint32(s.shape.NColsOfTiles))
	buf = engine.AppendUint64(buf, uint64(s.fileSize))

	for _, pos := range s.positions {
		buf = s.appendScaledPos(buf, pos, extended)
	}

	blocks := s.freeList.blocks()
	buf = engine.AppendUint32(buf, uint32(len(blocks)))
	for _, b := range blocks {
		buf = s.appendScaledPos(buf, b[0], extended)
		buf = engine.AppendUint32(buf, uint32(b[1]))
	}

	buf = engine.AppendUint32(buf, uint32(len(s.vlrs)))
	for _, v := range s.vlrs {
		buf = s.appendScaledPos(buf, v.filePos, extended)
	}

	if err := renameio.WriteFile(IndexPath(dataPath), buf, 0o644); err != nil {
		return fmt.Errorf("write index file: %w", err)
	}

	return nil
}

// LoadIndex reads the companion index when it is at least as fresh as the
// data file. It reports whether the index was used; a stale or missing
// index simply returns false and the caller falls back to Scan.
func (s *TileStore) LoadIndex(dataPath string, dataModTime time.Time) (bool, error) {
	indexPath := IndexPath(dataPath)
	info, err := os.Stat(indexPath)
	if err != nil || info.ModTime().Before(dataModTime) {
		return false, nil
	}

	buf, err := os.ReadFile(indexPath)
	if err != nil {
		return false, nil
	}

	loaded, err := s.parseIndex(buf)
	if err != nil {
		return false, fmt.Errorf("parse index file: %w", err)
	}

	return loaded, nil
}

func (s *TileStore) parseIndex(buf []byte) (bool, error) {
	engine := endian.GetLittleEndianEngine()

	if len(buf) < 24 || [4]byte(buf[0:4]) != indexMagic || buf[4] != indexVersion {
		return false, errs.ErrBadMagic
	}
	extended := buf[5] != 0

	nRows := int(int32(engine.Uint32(buf[8:12])))
	nCols := int(int32(engine.Uint32(buf[12:16])))
	if nRows != s.shape.NRowsOfTiles || nCols != s.shape.NColsOfTiles {
		return false, errs.ErrInvalidSpec
	}
	s.fileSize = int64(engine.Uint64(buf[16:24]))

	pos := 24
	posWidth := 4
	if extended {
		posWidth = 8
	}

	readPos := func() (int64, error) {
		if pos+posWidth > len(buf) {
			return 0, errs.ErrInvalidRecordSize
		}
		var v int64
		if extended {
			v = int64(engine.Uint64(buf[pos:])) * 8
		} else {
			v = int64(engine.Uint32(buf[pos:])) * 8
		}
		pos += posWidth

		return v, nil
	}

	for i := range s.positions {
		p, err := readPos()
		if err != nil {
			return false, err
		}
		s.positions[i] = p
	}

	if pos+4 > len(buf) {
		return false, errs.ErrInvalidRecordSize
	}
	blockCount := int(int32(engine.Uint32(buf[pos:])))
	pos += 4
	for i := 0; i < blockCount; i++ {
		blockPos, err := readPos()
		if err != nil {
			return false, err
		}
		if pos+4 > len(buf) {
			return false, errs.ErrInvalidRecordSize
		}
		blockSize := int32(engine.Uint32(buf[pos:]))
		pos += 4
		s.freeList.append(blockPos, blockSize)
	}

	if pos+4 > len(buf) {
		return false, errs.ErrInvalidRecordSize
	}
	vlrCount := int(int32(engine.Uint32(buf[pos:])))
	pos += 4
	for i := 0; i < vlrCount; i++ {
		recordPos, err := readPos()
		if err != nil {
			return false, err
		}
		_, body, err := readRecord(s.file, recordPos, s.fileSize)
		if err != nil {
			return false, err
		}
		v, err := parseVLRBody(body, recordPos)
		if err != nil {
			return false, err
		}
		s.vlrs = append(s.vlrs, v)
	}

	return true, nil
}
