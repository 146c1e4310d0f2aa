package store

import (
	"fmt"
	"strings"

	"github.com/arloliu/gridstore/compress"
	"github.com/arloliu/gridstore/endian"
	"github.com/arloliu/gridstore/errs"
)

// VLRHeaderSize is the header that leads a variable-length record's body:
// user id (16 bytes ASCII), record id (int32), payload size (int32),
// text/binary flag (1 byte), 7 reserved bytes, description (32 bytes).
const VLRHeaderSize = 16 + 4 + 4 + 1 + 7 + 32

const (
	vlrUserIDSize      = 16
	vlrDescriptionSize = 32
)

// VLR payload compression codes, stored in the first reserved byte.
const (
	vlrPayloadRaw byte = 0
	vlrPayloadS2  byte = 1
)

// VLR describes one variable-length record: a named binary or text blob
// stored in the tile file alongside tile records.
type VLR struct {
	UserID      string
	RecordID    int32
	Description string
	IsText      bool

	compression byte
	filePos     int64 // start of the record
	payloadSize int32 // stored (possibly compressed) payload bytes
}

// vlrKey identifies a record by user id and record id.
func (v VLR) vlrKey() string {
	return fmt.Sprintf("%s#%d", v.UserID, v.RecordID)
}

// encodeVLRBody assembles the VLR header and payload into a record body.
func encodeVLRBody(v VLR, payload []byte) ([]byte, error) {
	if len(v.UserID) == 0 || len(v.UserID) > vlrUserIDSize {
		return nil, fmt.Errorf("%w: vlr user id %q", errs.ErrInvalidSpec, v.UserID)
	}
	for i := 0; i < len(v.UserID); i++ {
		if v.UserID[i] < 0x20 || v.UserID[i] > 0x7E {
			return nil, fmt.Errorf("%w: vlr user id %q", errs.ErrInvalidSpec, v.UserID)
		}
	}
	if len(v.Description) > vlrDescriptionSize {
		return nil, fmt.Errorf("%w: vlr description too long", errs.ErrInvalidSpec)
	}

	engine := endian.GetLittleEndianEngine()
	body := make([]byte, 0, VLRHeaderSize+len(payload))

	var userID [vlrUserIDSize]byte
	copy(userID[:], v.UserID)
	body = append(body, userID[:]...)

	body = engine.AppendUint32(body, uint32(v.RecordID))
	body = engine.AppendUint32(body, uint32(len(payload)))

	if v.IsText {
		body = append(body, 1)
	} else {
		body = append(body, 0)
	}
	body = append(body, v.compression, 0, 0, 0, 0, 0, 0)

	var description [vlrDescriptionSize]byte
	copy(description[:], v.Description)
	body = append(body, description[:]...)

	return append(body, payload...), nil
}

// parseVLRBody decodes a VLR header from a record body and returns the
// record metadata; the payload itself stays on disk until requested.
func parseVLRBody(body []byte, recordPos int64) (VLR, error) {
	if len(body) < VLRHeaderSize {
		return VLR{}, fmt.Errorf("%w: vlr header truncated", errs.ErrInvalidRecordSize)
	}
	engine := endian.GetLittleEndianEngine()

	v := VLR{
		UserID:      strings.TrimRight(string(body[0:16]), "\x00"),
		RecordID:    int32(engine.Uint32(body[16:20])),
		payloadSize: int32(engine.Uint32(body[20:24])),
		IsText:      body[24] != 0,
		compression: body[25],
		Description: strings.TrimRight(string(body[32:64]), "\x00"),
		filePos:     recordPos,
	}

	if v.payloadSize < 0 || VLRHeaderSize+int(v.payloadSize) > len(body) {
		return VLR{}, fmt.Errorf("%w: vlr payload overruns record", errs.ErrInvalidRecordSize)
	}

	return v, nil
}

// compressS2 applies the fast metadata compressor.
func compressS2(payload []byte) ([]byte, error) {
	return compress.NewS2Compressor().Compress(payload)
}

// decodeVLRPayload undoes the optional payload compression.
func decodeVLRPayload(v VLR, stored []byte) ([]byte, error) {
	switch v.compression {
	case vlrPayloadRaw:
		return stored, nil
	case vlrPayloadS2:
		return compress.NewS2Compressor().Decompress(stored)
	default:
		return nil, fmt.Errorf("%w: vlr compression %d", errs.ErrUnknownRecordType, v.compression)
	}
}
