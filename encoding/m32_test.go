package encoding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestM32RoundTrip(t *testing.T) {
	values := []int32{
		0, 1, -1, 125, -125, 126, -126, 127, -127,
		1000, -1000, math.MaxInt16, math.MinInt16,
		math.MaxInt16 + 1, math.MinInt16 - 1,
		math.MaxInt32, math.MinInt32,
	}

	enc := NewM32Encoder(len(values))
	for _, v := range values {
		enc.Append(v)
	}

	dec := NewM32Decoder(enc.Bytes())
	for _, want := range values {
		got, null, err := dec.Next()
		require.NoError(t, err)
		require.False(t, null)
		require.Equal(t, want, got)
	}
	require.Equal(t, 0, dec.Remaining())
}

func TestM32EncodedLengths(t *testing.T) {
	tests := []struct {
		value int32
		want  int
	}{
		{0, 1},
		{125, 1},
		{-125, 1},
		{126, 3},
		{-126, 3},
		{math.MaxInt16, 3},
		{math.MinInt16, 3},
		{math.MaxInt16 + 1, 5},
		{math.MinInt32, 5},
	}

	for _, tt := range tests {
		enc := NewM32Encoder(1)
		enc.Append(tt.value)
		require.Equal(t, tt.want, enc.EncodedLength(), "value %d", tt.value)
	}
}

func TestM32NullSentinelRoundTrip(t *testing.T) {
	enc := NewM32Encoder(4)
	enc.Append(7)
	enc.AppendNull()
	enc.Append(-7)

	dec := NewM32Decoder(enc.Bytes())

	v, null, err := dec.Next()
	require.NoError(t, err)
	require.False(t, null)
	require.Equal(t, int32(7), v)

	_, null, err = dec.Next()
	require.NoError(t, err)
	require.True(t, null)

	v, null, err = dec.Next()
	require.NoError(t, err)
	require.False(t, null)
	require.Equal(t, int32(-7), v)
}

func TestM32ReservedAndTruncatedCodes(t *testing.T) {
	// -127 and -128 are reserved lead bytes.
	for _, lead := range []byte{0x81, 0x80} {
		dec := NewM32Decoder([]byte{lead})
		_, _, err := dec.Next()
		require.Error(t, err)
	}

	// Truncated multi-byte forms.
	dec := NewM32Decoder([]byte{126, 0x01})
	_, _, err := dec.Next()
	require.Error(t, err)

	dec = NewM32Decoder([]byte{127, 0x01, 0x02})
	_, _, err = dec.Next()
	require.Error(t, err)

	// Empty stream.
	dec = NewM32Decoder(nil)
	_, _, err = dec.Next()
	require.Error(t, err)
}

func TestM32DecoderSlice(t *testing.T) {
	enc := NewM32Encoder(2)
	enc.Append(42)

	data := append([]byte{0xEE}, enc.Bytes()...)
	dec := NewM32DecoderSlice(data, 1, enc.EncodedLength())

	v, null, err := dec.Next()
	require.NoError(t, err)
	require.False(t, null)
	require.Equal(t, int32(42), v)
	require.Equal(t, 0, dec.Remaining())
}
