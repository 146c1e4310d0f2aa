package compress

import (
	"fmt"

	"github.com/arloliu/gridstore/format"
)

// Compressor compresses a byte payload.
//
// Payloads are M32 residual streams, float bit planes, or metadata blobs,
// typically a few hundred bytes to a few hundred kilobytes.
type Compressor interface {
	// Compress compresses the input data and returns the compressed result.
	//
	// The returned slice is owned by the caller and the input slice is not
	// modified. NoOpCompressor returns the input slice itself; the other
	// compressors return a newly allocated slice.
	Compress(data []byte) ([]byte, error)
}

// Decompressor decompresses a byte payload produced by the matching
// Compressor.
type Decompressor interface {
	// Decompress decompresses the input data and returns the original
	// bytes. It returns an error when the data is corrupted or was
	// produced by an incompatible algorithm.
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both compression and decompression capabilities.
type Codec interface {
	Compressor
	Decompressor
}

// CreateCodec is a factory returning the Codec for a compression type.
//
// The target string names the caller's usage and only appears in error
// messages.
func CreateCodec(compressionType format.CompressionType, target string) (Codec, error) {
	switch compressionType {
	case format.CompressionNone:
		return NewNoOpCompressor(), nil
	case format.CompressionDeflate:
		return NewDeflateCompressor(), nil
	case format.CompressionZstd:
		return NewZstdCompressor(), nil
	case format.CompressionS2:
		return NewS2Compressor(), nil
	case format.CompressionLZ4:
		return NewLZ4Compressor(), nil
	default:
		return nil, fmt.Errorf("invalid %s compression: %s", target, compressionType)
	}
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone:    NewNoOpCompressor(),
	format.CompressionDeflate: NewDeflateCompressor(),
	format.CompressionZstd:    NewZstdCompressor(),
	format.CompressionS2:      NewS2Compressor(),
	format.CompressionLZ4:     NewLZ4Compressor(),
}

// GetCodec retrieves a built-in Codec for the specified compression type.
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}
