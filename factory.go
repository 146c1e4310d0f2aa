package gridstore

import (
	"fmt"
	"sync"

	"github.com/arloliu/gridstore/codec"
	"github.com/arloliu/gridstore/errs"
)

// The factory table maps the 16-character codec ids persisted in file
// headers to constructor functions. The built-in codecs are installed at
// process start; applications install extension codecs before opening any
// file that names them, and an unknown id is an open-time error.
var (
	factoryMu      sync.RWMutex
	codecFactories = map[string]func() codec.TileCodec{
		codec.IDHuffman: func() codec.TileCodec { return codec.NewHuffmanCodec() },
		codec.IDDeflate: codec.NewDeflateCodec,
		codec.IDFloat:   func() codec.TileCodec { return codec.NewFloatCodec() },
		codec.IDZstd:    codec.NewZstdCodec,
		codec.IDLZ4:     codec.NewLZ4Codec,
	}
)

// RegisterCodecFactory installs a constructor for an extension codec id.
func RegisterCodecFactory(id string, factory func() codec.TileCodec) error {
	if err := codec.ValidateCodecID(id); err != nil {
		return err
	}
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %s", errs.ErrInvalidCodecID, id)
	}

	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, exists := codecFactories[id]; exists {
		return fmt.Errorf("%w: %s", errs.ErrDuplicateCodec, id)
	}
	codecFactories[id] = factory

	return nil
}

func lookupCodecFactory(id string) (func() codec.TileCodec, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	factory, ok := codecFactories[id]

	return factory, ok
}
