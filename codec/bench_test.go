package codec

import (
	"testing"
)

func benchPlane() []int32 {
	values := make([]int32, 120*120)
	for r := 0; r < 120; r++ {
		for c := 0; c < 120; c++ {
			values[r*120+c] = int32(1000 + 3*r + 2*c + (r*c)%7)
		}
	}

	return values
}

func BenchmarkRegistryEncodeInt(b *testing.B) {
	r := NewDefaultRegistry()
	values := benchPlane()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := r.EncodeInt(120, 120, values); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRegistryDecodeInt(b *testing.B) {
	r := NewDefaultRegistry()
	packing, err := r.EncodeInt(120, 120, benchPlane())
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.DecodeInt(packing, 120, 120); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFloatCodec(b *testing.B) {
	c := NewFloatCodec()
	values := make([]float32, 120*120)
	for i := range values {
		values[i] = 20.0 + float32(i%120)*0.25
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		packing, err := c.EncodeFloat(0, 120, 120, values)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := c.DecodeFloat(packing, 120, 120); err != nil {
			b.Fatal(err)
		}
	}
}
