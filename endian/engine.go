// Package endian provides byte order utilities for binary encoding and decoding.
//
// It combines the ByteOrder and AppendByteOrder interfaces from encoding/binary
// into a single EndianEngine interface so that encoders can both read fixed
// offsets and append to growing buffers through one value.
//
// The gridstore file format is strictly little-endian, so most callers obtain
// the engine with GetLittleEndianEngine. The big-endian engine exists for
// diagnostic tooling that inspects foreign byte orders.
package endian

import "encoding/binary"

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary.
//
// The interface is satisfied by binary.LittleEndian and binary.BigEndian,
// keeping it fully compatible with standard-library code while giving
// encoders access to the faster append operations.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetLittleEndianEngine returns the little-endian engine used by the
// gridstore on-disk format.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}
