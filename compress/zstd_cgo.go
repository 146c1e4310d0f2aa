//go:build nobuild

package compress

import (
	"github.com/valyala/gozstd"
)

// cgo variant of the Zstd entropy stage behind the zstd extension tile
// codec. It emits standard Zstandard frames, so tiles written with one
// variant decode with the other; level 3 roughly matches the pure-Go
// path's SpeedDefault on residual streams.

// Compress compresses a residual stream using the reference Zstandard
// implementation.
func (c ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return gozstd.CompressLevel(nil, data, 3), nil
}

// Decompress decompresses a Zstd-compressed residual stream using the
// reference Zstandard implementation.
func (c ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return gozstd.Decompress(nil, data)
}
