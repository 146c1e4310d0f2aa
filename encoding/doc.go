// Package encoding implements the low-level coding primitives shared by the
// gridstore tile codecs.
//
// It provides four layers, leaves first:
//
//   - BitWriter and BitReader: append/consume individual bits and bit-packed
//     integers over a byte buffer, little-endian bit order (LSB first within
//     a byte).
//   - M32Encoder and M32Decoder: a variable-length signed-integer coding that
//     packs values near zero into a single byte and rarer large values into
//     up to five bytes, with a dedicated null sentinel for fill-value cells.
//   - Predictive transforms: four reversible predictors that rewrite a tile
//     into a stream of small M32-coded residuals.
//   - HuffmanEncoder and HuffmanDecoder: byte-symbol Huffman coding with a
//     serialized code tree, used as the entropy stage of the huffman tile
//     codec.
//
// All primitives are deterministic: a given input produces exactly one
// encoded form, and the decoders reproduce the original input bit for bit.
package encoding
