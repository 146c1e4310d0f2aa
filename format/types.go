package format

import "math"

type (
	// ElementType identifies the storage type of a raster element.
	ElementType uint8
	// GeometryType states whether cell values are point or area referenced.
	GeometryType uint8
	// CoordinateSystemType identifies the model coordinate system.
	CoordinateSystemType uint8
	// PredictorType identifies a predictive transform.
	PredictorType uint8
	// RecordType identifies non-tile records; stored negated on disk.
	RecordType int32
	// CompressionType identifies a general-purpose byte compressor.
	CompressionType uint8
)

const (
	CompressionNone    CompressionType = 0x1 // CompressionNone represents no compression.
	CompressionDeflate CompressionType = 0x2 // CompressionDeflate represents Deflate compression.
	CompressionZstd    CompressionType = 0x3 // CompressionZstd represents Zstandard compression.
	CompressionS2      CompressionType = 0x4 // CompressionS2 represents S2 compression.
	CompressionLZ4     CompressionType = 0x5 // CompressionLZ4 represents LZ4 block compression.
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionDeflate:
		return "Deflate"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

const (
	TypeInt32           ElementType = 0x1 // TypeInt32 is a signed 32-bit integer element.
	TypeFloat32         ElementType = 0x2 // TypeFloat32 is an IEEE-754 binary32 element.
	TypeIntCodedFloat32 ElementType = 0x3 // TypeIntCodedFloat32 is a logical float stored as a scaled 32-bit integer.
	TypeInt16           ElementType = 0x4 // TypeInt16 is a signed 16-bit integer element.

	GeometryUnspecified GeometryType = 0x0
	GeometryPoint       GeometryType = 0x1
	GeometryArea        GeometryType = 0x2

	CoordinateSystemNone       CoordinateSystemType = 0x0
	CoordinateSystemCartesian  CoordinateSystemType = 0x1
	CoordinateSystemGeographic CoordinateSystemType = 0x2

	PredictorNone          PredictorType = 0x0
	PredictorConstant      PredictorType = 0x1
	PredictorLinear        PredictorType = 0x2
	PredictorTriangle      PredictorType = 0x3
	PredictorConstantNulls PredictorType = 0x4

	// RecordVLR marks a variable-length record; its type field is stored
	// as -1 on disk.
	RecordVLR RecordType = 1
)

// NullInt32 is the integer fill sentinel shared by the integer-coding paths.
const NullInt32 int32 = math.MinInt32

// NullInt16 is the default fill value for 16-bit elements.
const NullInt16 int16 = math.MinInt16

func (e ElementType) String() string {
	switch e {
	case TypeInt32:
		return "Int32"
	case TypeFloat32:
		return "Float32"
	case TypeIntCodedFloat32:
		return "IntCodedFloat32"
	case TypeInt16:
		return "Int16"
	default:
		return "Unknown"
	}
}

// BytesPerCell returns the natural binary width of one cell on disk.
func (e ElementType) BytesPerCell() int {
	switch e {
	case TypeInt16:
		return 2
	default:
		return 4
	}
}

func (g GeometryType) String() string {
	switch g {
	case GeometryPoint:
		return "Point"
	case GeometryArea:
		return "Area"
	default:
		return "Unspecified"
	}
}

func (c CoordinateSystemType) String() string {
	switch c {
	case CoordinateSystemCartesian:
		return "Cartesian"
	case CoordinateSystemGeographic:
		return "Geographic"
	default:
		return "None"
	}
}

func (p PredictorType) String() string {
	switch p {
	case PredictorConstant:
		return "Constant"
	case PredictorLinear:
		return "Linear"
	case PredictorTriangle:
		return "Triangle"
	case PredictorConstantNulls:
		return "ConstantWithNulls"
	default:
		return "None"
	}
}
