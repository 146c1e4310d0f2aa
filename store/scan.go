package store

import (
	"errors"
	"fmt"

	"github.com/arloliu/gridstore/errs"
)

// Scan rebuilds the tile position table, the free list, and the VLR list
// by walking the tile region record by record.
//
// Positive-size records are classified by their index field: a
// non-negative value is a tile, -1 a variable-length record, and any
// other negative value a hard error. Negative sizes are free blocks,
// which arrive in file order and therefore naturally sorted.
//
// A truncated or torn tail - a record whose header cannot be read or
// whose size overruns the file - ends the scan at the last coherent
// record boundary. Everything recovered up to that point remains usable;
// space beyond it is not reclaimed until a compaction pass.
func (s *TileStore) Scan() error {
	pos := s.contentOffset

	for pos+RecordHeaderSize <= s.fileSize {
		size, err := readRecordSize(s.file, pos)
		if err != nil {
			return fmt.Errorf("scan tile region: %w", err)
		}

		if size < 0 {
			blockSize := -size
			if blockSize%8 != 0 || pos+int64(blockSize) > s.fileSize {
				s.fileSize = pos
				break
			}
			s.freeList.append(pos, blockSize)
			pos += int64(blockSize)
			continue
		}

		if size == 0 || size%8 != 0 || pos+int64(size) > s.fileSize {
			// Torn tail from an interrupted write; stop at the last
			// coherent boundary.
			s.fileSize = pos
			break
		}

		header, body, err := readRecord(s.file, pos, s.fileSize)
		if err != nil {
			if errors.Is(err, errs.ErrChecksumMismatch) {
				return err
			}
			s.fileSize = pos
			break
		}

		switch {
		case header.indexField >= 0:
			if int(header.indexField) >= len(s.positions) {
				return fmt.Errorf("%w: %d", errs.ErrTileIndexOutOfRange, header.indexField)
			}
			s.positions[header.indexField] = pos
		case header.indexField == vlrTypeField:
			v, err := parseVLRBody(body, pos)
			if err != nil {
				return err
			}
			s.vlrs = append(s.vlrs, v)
		default:
			return fmt.Errorf("%w: record type %d at %d", errs.ErrUnknownRecordType, -header.indexField, pos)
		}

		pos += int64(size)
	}

	return nil
}
