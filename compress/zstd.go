package compress

// ZstdCompressor provides Zstandard compression for the zstd extension
// codec.
//
// Two implementations exist behind build tags: the default pure-Go path
// and a cgo path binding the reference library. Both produce standard
// Zstandard frames and interoperate freely.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
