package compress

import "github.com/klauspost/compress/s2"

// S2Compressor is the fast compressor behind large variable-length
// metadata records. VLR payloads - provenance blobs, projection text,
// application state - are written once and read rarely, so the store
// favors S2's near-memcpy speed over the tighter ratios of the tile
// codecs; the record keeps the compressed form only when it actually
// saves space.
type S2Compressor struct{}

var _ Codec = (*S2Compressor)(nil)

// NewS2Compressor creates a new S2 compressor.
func NewS2Compressor() S2Compressor {
	return S2Compressor{}
}

// Compress compresses a metadata payload as a single S2 block.
func (c S2Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Encode(nil, data), nil
}

// Decompress decompresses an S2 block back into the stored payload.
func (c S2Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Decode(nil, data)
}
