package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/gridstore/format"
)

func residualLikePayload() []byte {
	// Small residual bytes with long runs, like an M32 stream from a
	// smooth tile.
	payload := make([]byte, 0, 4096)
	for i := 0; i < 1024; i++ {
		payload = append(payload, 0, 0, 1, 0xFF)
	}

	return payload
}

func TestCodecRoundTrips(t *testing.T) {
	payload := residualLikePayload()

	types := []format.CompressionType{
		format.CompressionNone,
		format.CompressionDeflate,
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	}

	for _, ct := range types {
		t.Run(ct.String(), func(t *testing.T) {
			codec, err := GetCodec(ct)
			require.NoError(t, err)

			compressed, err := codec.Compress(payload)
			require.NoError(t, err)

			decompressed, err := codec.Decompress(compressed)
			require.NoError(t, err)
			require.Equal(t, payload, decompressed)
		})
	}
}

func TestCompressingCodecsReduceRedundantData(t *testing.T) {
	payload := bytes.Repeat([]byte{0x00, 0x01}, 8192)

	for _, ct := range []format.CompressionType{
		format.CompressionDeflate,
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	} {
		codec, err := GetCodec(ct)
		require.NoError(t, err)

		compressed, err := codec.Compress(payload)
		require.NoError(t, err)
		require.Less(t, len(compressed), len(payload), "type %s", ct)
	}
}

func TestCreateCodec(t *testing.T) {
	codec, err := CreateCodec(format.CompressionDeflate, "tile")
	require.NoError(t, err)
	require.NotNil(t, codec)

	_, err = CreateCodec(format.CompressionType(0xEE), "tile")
	require.Error(t, err)

	_, err = GetCodec(format.CompressionType(0xEE))
	require.Error(t, err)
}

func TestDecompressRejectsCorruptedInput(t *testing.T) {
	garbage := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03}

	for _, ct := range []format.CompressionType{
		format.CompressionDeflate,
		format.CompressionZstd,
	} {
		codec, err := GetCodec(ct)
		require.NoError(t, err)

		_, err = codec.Decompress(garbage)
		require.Error(t, err, "type %s", ct)
	}
}

func TestNoOpPassthrough(t *testing.T) {
	codec := NewNoOpCompressor()
	payload := []byte{1, 2, 3}

	compressed, err := codec.Compress(payload)
	require.NoError(t, err)
	require.Equal(t, payload, compressed)

	decompressed, err := codec.Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, payload, decompressed)
}
