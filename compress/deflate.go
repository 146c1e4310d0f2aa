package compress

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// deflateLevel is a middle compression level, trading a little ratio for
// predictable per-tile encode cost.
const deflateLevel = 6

// flateWriterPool pools flate writers; resetting a writer is far cheaper
// than building its internal tables from scratch.
var flateWriterPool = sync.Pool{
	New: func() any {
		w, err := flate.NewWriter(io.Discard, deflateLevel)
		if err != nil {
			panic(fmt.Sprintf("failed to create flate writer for pool: %v", err))
		}
		return w
	},
}

// DeflateCompressor provides raw-Deflate compression for residual streams
// and float bit planes.
//
// The compressed stream carries no length information of its own; the tile
// codecs record the decompressed size in their record headers and the
// decompressor reads to end of stream.
type DeflateCompressor struct{}

var _ Codec = (*DeflateCompressor)(nil)

// NewDeflateCompressor creates a new Deflate compressor.
func NewDeflateCompressor() DeflateCompressor {
	return DeflateCompressor{}
}

// Compress compresses the input data as a raw Deflate stream.
func (c DeflateCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer

	w := flateWriterPool.Get().(*flate.Writer)
	defer flateWriterPool.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("deflate compression failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate compression failed: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress decompresses a raw Deflate stream.
func (c DeflateCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	decompressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("deflate decompression failed: %w", err)
	}

	return decompressed, nil
}
