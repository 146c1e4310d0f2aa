// Package compress provides the general-purpose byte compressors behind the
// gridstore tile codecs and metadata records.
//
// Every compressor implements the Codec interface (Compress plus
// Decompress over byte slices). Deflate backs the deflate tile codec and
// each plane of the float codec; Zstd and LZ4 back the optional extension
// codecs; S2 offers fast compression for large metadata payloads.
//
// The Zstd implementation has two variants selected at build time: the
// default pure-Go implementation and a cgo implementation kept behind a
// build tag for environments that link the reference library.
package compress
