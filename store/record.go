// Package store implements the on-disk tile container: fixed-layout
// records in a single random-access file, a first-fit free-space
// allocator with coalescing, the tile position table, and variable-length
// records for metadata.
//
// Every record starts at a file position that is a multiple of 8 and
// occupies a multiple of 8 bytes. A record leads with a 16-byte header -
// size, tile index or negated record type, flags, and 4 reserved bytes -
// so that the record body starts aligned. Free blocks store their size
// negated in the size field; the remaining bytes are garbage left over
// from whatever previously occupied the block.
package store

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/arloliu/gridstore/endian"
	"github.com/arloliu/gridstore/errs"
)

const (
	// RecordHeaderSize is the fixed record header: size (int32), tile
	// index or negated type (int32), flags (uint32), 4 reserved bytes.
	RecordHeaderSize = 16

	// MinSplit is the smallest surplus worth keeping as a separate free
	// block. First-fit with a minimum split avoids fragmenting the file
	// into unusable slivers.
	MinSplit = 1024

	// ChecksumSize is the xxhash64 trailer appended to records when
	// checksums are enabled.
	ChecksumSize = 8

	// vlrTypeField is the tile-index field value marking a
	// variable-length record.
	vlrTypeField = -1
)

// Record flag bits, stored in the low bytes of the flags word.
const (
	flagCompressed uint32 = 1 << 0
	flagChecksum   uint32 = 1 << 8
)

// multipleOf8 rounds n up to the next multiple of 8.
func multipleOf8(n int) int {
	return (n + 7) &^ 7
}

// endianEngine returns the little-endian engine the record layout uses.
func endianEngine() endian.EndianEngine {
	return endian.GetLittleEndianEngine()
}

// recordHeader is the decoded form of the 16-byte record header.
type recordHeader struct {
	size       int32
	indexField int32
	flags      uint32
}

func (h recordHeader) compressed() bool { return h.flags&flagCompressed != 0 }

func (h recordHeader) checksummed() bool { return h.flags&flagChecksum != 0 }

func (h recordHeader) appendTo(dst []byte) []byte {
	engine := endian.GetLittleEndianEngine()
	dst = engine.AppendUint32(dst, uint32(h.size))
	dst = engine.AppendUint32(dst, uint32(h.indexField))
	dst = engine.AppendUint32(dst, h.flags)
	dst = engine.AppendUint32(dst, 0)

	return dst
}

func parseRecordHeader(buf []byte) recordHeader {
	engine := endian.GetLittleEndianEngine()

	return recordHeader{
		size:       int32(engine.Uint32(buf[0:4])),
		indexField: int32(engine.Uint32(buf[4:8])),
		flags:      engine.Uint32(buf[8:12]),
	}
}

// readRecordSize reads the int32 at pos: positive for live records,
// negative for free blocks.
func readRecordSize(f *os.File, pos int64) (int32, error) {
	var buf [4]byte
	if _, err := f.ReadAt(buf[:], pos); err != nil {
		return 0, fmt.Errorf("read record size at %d: %w", pos, err)
	}

	return int32(endian.GetLittleEndianEngine().Uint32(buf[:])), nil
}

// writeFreeBlockHeader stamps a free block's negated size at pos.
func writeFreeBlockHeader(f *os.File, pos int64, size int32) error {
	buf := endian.GetLittleEndianEngine().AppendUint32(nil, uint32(-size))
	if _, err := f.WriteAt(buf, pos); err != nil {
		return fmt.Errorf("write free block header at %d: %w", pos, err)
	}

	return nil
}

// readRecord reads a full record at pos, validating its size field
// against the remaining file length.
func readRecord(f *os.File, pos, fileSize int64) (recordHeader, []byte, error) {
	var headerBuf [RecordHeaderSize]byte
	if _, err := f.ReadAt(headerBuf[:], pos); err != nil {
		return recordHeader{}, nil, fmt.Errorf("read record header at %d: %w", pos, err)
	}

	header := parseRecordHeader(headerBuf[:])
	if header.size <= 0 || header.size%8 != 0 {
		return recordHeader{}, nil, errs.ErrInvalidRecordSize
	}
	if pos+int64(header.size) > fileSize {
		return recordHeader{}, nil, fmt.Errorf("%w: record at %d overruns file", errs.ErrInvalidRecordSize, pos)
	}

	body := make([]byte, int(header.size)-RecordHeaderSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, pos+RecordHeaderSize, int64(len(body))), body); err != nil {
		return recordHeader{}, nil, fmt.Errorf("read record body at %d: %w", pos, err)
	}

	if header.checksummed() {
		if len(body) < ChecksumSize {
			return recordHeader{}, nil, errs.ErrInvalidRecordSize
		}
		stored := endian.GetLittleEndianEngine().Uint64(body[len(body)-ChecksumSize:])
		digest := xxhash.New()
		_, _ = digest.Write(headerBuf[:])
		_, _ = digest.Write(body[:len(body)-ChecksumSize])
		if digest.Sum64() != stored {
			return recordHeader{}, nil, errs.ErrChecksumMismatch
		}
		body = body[:len(body)-ChecksumSize]
	}

	return header, body, nil
}

// buildRecord assembles a complete on-disk record: header, payload,
// padding to a multiple of 8, and the optional checksum trailer. The
// returned slice's length is the record size stamped into the header.
func buildRecord(indexField int32, flags uint32, payload []byte, checksums bool) []byte {
	size := multipleOf8(RecordHeaderSize + len(payload))
	if checksums {
		flags |= flagChecksum
		size += ChecksumSize
	}

	header := recordHeader{size: int32(size), indexField: indexField, flags: flags}
	record := header.appendTo(make([]byte, 0, size))
	record = append(record, payload...)
	record = append(record, make([]byte, size-len(record))...)

	if checksums {
		digest := xxhash.Sum64(record[:size-ChecksumSize])
		endian.GetLittleEndianEngine().PutUint64(record[size-ChecksumSize:], digest)
	}

	return record
}
