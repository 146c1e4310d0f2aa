package tile

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/gridstore/codec"
	"github.com/arloliu/gridstore/format"
)

func int32Def() ElementDef {
	return ElementDef{
		Name:      "z",
		Type:      format.TypeInt32,
		Scale:     1,
		Offset:    0,
		FillInt:   format.NullInt32,
		FillFloat: float32(math.NaN()),
	}
}

func floatDef() ElementDef {
	return ElementDef{
		Name:      "t",
		Type:      format.TypeFloat32,
		Scale:     1,
		Offset:    0,
		FillInt:   format.NullInt32,
		FillFloat: float32(math.NaN()),
	}
}

func codedDef() ElementDef {
	return ElementDef{
		Name:      "p",
		Type:      format.TypeIntCodedFloat32,
		Scale:     100,
		Offset:    50,
		FillInt:   format.NullInt32,
		FillFloat: float32(math.NaN()),
	}
}

func shortDef() ElementDef {
	return ElementDef{
		Name:      "d",
		Type:      format.TypeInt16,
		Scale:     1,
		Offset:    0,
		FillInt:   int32(format.NullInt16),
		FillFloat: float32(math.NaN()),
	}
}

func TestNewTileStartsFilled(t *testing.T) {
	tl := New(5, 1, 2, 4, 4, []ElementDef{int32Def()})

	require.Equal(t, 5, tl.Index())
	require.Equal(t, 1, tl.Row())
	require.Equal(t, 2, tl.Col())
	require.False(t, tl.NeedsWrite())
	require.False(t, tl.HasValidData())
	require.True(t, tl.HasNullDataValues())
	require.Equal(t, format.NullInt32, tl.ValueInt(0, 3, 3))
}

func TestTileCellAccessMarksDirty(t *testing.T) {
	tl := New(0, 0, 0, 4, 4, []ElementDef{int32Def()})

	tl.SetValueInt(0, 2, 3, 42)
	require.True(t, tl.NeedsWrite())
	require.Equal(t, int32(42), tl.ValueInt(0, 2, 3))
	require.True(t, tl.HasValidData())

	tl.ClearDirty()
	require.False(t, tl.NeedsWrite())
}

func TestScaleOffsetConversion(t *testing.T) {
	tl := New(0, 0, 0, 2, 2, []ElementDef{codedDef()})

	// encoded = round((value - offset) * scale)
	tl.SetValueFloat(0, 0, 0, 51.237)
	require.Equal(t, int32(124), tl.ValueInt(0, 0, 0))
	require.InDelta(t, 51.24, float64(tl.ValueFloat(0, 0, 0)), 1e-4)

	// NaN maps to the fill sentinel both ways.
	tl.SetValueFloat(0, 0, 1, float32(math.NaN()))
	require.Equal(t, format.NullInt32, tl.ValueInt(0, 0, 1))
	require.True(t, math.IsNaN(float64(tl.ValueFloat(0, 0, 1))))
}

func TestInt16PlaneNarrowPacking(t *testing.T) {
	tl := New(0, 0, 0, 2, 2, []ElementDef{shortDef()})

	tl.SetValueInt(0, 0, 0, 1234)
	tl.SetValueInt(0, 1, 1, -1234)
	require.Equal(t, int32(1234), tl.ValueInt(0, 0, 0))
	require.Equal(t, int32(-1234), tl.ValueInt(0, 1, 1))
	require.Equal(t, 2*2*2, tl.StandardSizeInBytes())

	raw := tl.AppendUncompressed(nil)
	require.Len(t, raw, 8)

	tl2 := New(0, 0, 0, 2, 2, []ElementDef{shortDef()})
	require.NoError(t, tl2.ReadUncompressed(raw))
	require.Equal(t, int32(1234), tl2.ValueInt(0, 0, 0))
	require.Equal(t, int32(int16(format.NullInt16)), tl2.ValueInt(0, 0, 1))
}

func TestUncompressedRoundTripMultiElement(t *testing.T) {
	defs := []ElementDef{int32Def(), floatDef()}
	tl := New(0, 0, 0, 3, 3, defs)

	tl.SetValueInt(0, 1, 1, -777)
	tl.SetValueFloat(1, 2, 2, 3.5)

	raw := tl.AppendUncompressed(nil)
	require.Len(t, raw, tl.StandardSizeInBytes())

	tl2 := New(0, 0, 0, 3, 3, defs)
	require.NoError(t, tl2.ReadUncompressed(raw))
	require.Equal(t, int32(-777), tl2.ValueInt(0, 1, 1))
	require.Equal(t, float32(3.5), tl2.ValueFloat(1, 2, 2))

	require.Error(t, tl2.ReadUncompressed(raw[:10]))
}

func TestCompressedPackingRoundTrip(t *testing.T) {
	registry := codec.NewDefaultRegistry()
	defs := []ElementDef{int32Def(), floatDef()}
	tl := New(0, 0, 0, 8, 8, defs)

	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			tl.SetValueInt(0, r, c, int32(100+r+c))
			tl.SetValueFloat(1, r, c, float32(r)*0.5+float32(c))
		}
	}

	packing, err := tl.CompressedPacking(registry)
	require.NoError(t, err)
	require.NotNil(t, packing)

	tl2 := New(0, 0, 0, 8, 8, defs)
	require.NoError(t, tl2.DecodeCompressed(registry, packing))

	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			require.Equal(t, tl.ValueInt(0, r, c), tl2.ValueInt(0, r, c))
			require.Equal(t, tl.ValueFloat(1, r, c), tl2.ValueFloat(1, r, c))
		}
	}
}

func TestCompressedPackingDeclinesAllNullPlane(t *testing.T) {
	registry := codec.NewDefaultRegistry()
	tl := New(0, 0, 0, 4, 4, []ElementDef{int32Def()})

	packing, err := tl.CompressedPacking(registry)
	require.NoError(t, err)
	require.Nil(t, packing)
}

func TestBlockOps(t *testing.T) {
	tl := New(0, 0, 0, 6, 6, []ElementDef{int32Def()})

	block := []int32{1, 2, 3, 4, 5, 6}
	tl.WriteBlockInt(0, 2, 2, 2, 3, block, 0, 0, 3)

	out := make([]int32, 6)
	tl.ReadBlockInt(0, 2, 2, 2, 3, out, 0, 0, 3)
	if diff := cmp.Diff(block, out); diff != "" {
		t.Fatalf("block mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, int32(1), tl.ValueInt(0, 2, 2))
	require.Equal(t, int32(6), tl.ValueInt(0, 3, 4))
	require.Equal(t, format.NullInt32, tl.ValueInt(0, 0, 0))
}

func TestBlockOpsFloat(t *testing.T) {
	tl := New(0, 0, 0, 4, 4, []ElementDef{floatDef()})

	block := []float32{1.5, 2.5, 3.5, 4.5}
	tl.WriteBlockFloat(0, 1, 1, 2, 2, block, 0, 0, 2)

	out := make([]float32, 4)
	tl.ReadBlockFloat(0, 1, 1, 2, 2, out, 0, 0, 2)
	require.Equal(t, block, out)
}

func TestSetToNullState(t *testing.T) {
	tl := New(0, 0, 0, 2, 2, []ElementDef{int32Def()})
	tl.SetValueInt(0, 0, 0, 9)
	require.True(t, tl.HasValidData())

	tl.SetToNullState()
	require.False(t, tl.HasValidData())
	require.True(t, tl.NeedsWrite())
}

func TestIntCodingMapsFillToNull(t *testing.T) {
	def := int32Def()
	def.FillInt = -9999
	tl := New(0, 0, 0, 2, 2, []ElementDef{def})
	tl.SetValueInt(0, 0, 0, 7)

	coding := tl.IntCoding()
	require.Equal(t, int32(7), coding[0][0])
	require.Equal(t, format.NullInt32, coding[0][1])
}
