package gridstore

import (
	"fmt"
	"io"

	"github.com/arloliu/gridstore/errs"
)

// CacheHits returns the number of tile lookups served from the cache.
func (f *File) CacheHits() int64 { return f.cache.Hits() }

// CacheMisses returns the number of tile lookups that went to the store.
func (f *File) CacheMisses() int64 { return f.cache.Misses() }

// TileCountStored returns the number of tiles present on disk.
func (f *File) TileCountStored() int { return f.store.TileCountStored() }

// Summarize writes a textual report of the file's geometry, storage
// usage, and access counters. With verbose set it also walks every
// compressed tile and reports per-codec entropy and bits-per-symbol
// statistics.
func (f *File) Summarize(w io.Writer, verbose bool) error {
	if f.closed {
		return errs.ErrFileClosed
	}

	s := f.spec
	fmt.Fprintf(w, "gridstore file: %s\n", f.path)
	if s.Identification != "" {
		fmt.Fprintf(w, "identification: %s\n", s.Identification)
	}
	fmt.Fprintf(w, "uuid:           %s\n", s.UUID)
	fmt.Fprintf(w, "raster:         %d rows x %d cols\n", s.NRowsInRaster, s.NColsInRaster)
	fmt.Fprintf(w, "tiles:          %d x %d cells, %d x %d grid\n",
		s.NRowsInTile, s.NColsInTile, s.NRowsOfTiles(), s.NColsOfTiles())
	fmt.Fprintf(w, "coordinates:    %s, x [%g, %g], y [%g, %g]\n",
		s.CoordinateSystem, s.X0, s.X1, s.Y0, s.Y1)

	fmt.Fprintf(w, "elements:       %d\n", len(s.Elements))
	for _, e := range s.Elements {
		fmt.Fprintf(w, "  %-16s %-16s scale=%g offset=%g", e.Name, e.Type, e.Scale, e.Offset)
		if e.Unit != "" {
			fmt.Fprintf(w, " unit=%s", e.Unit)
		}
		fmt.Fprintln(w)
	}

	counters := f.store.Counters()
	fmt.Fprintf(w, "storage:        %d of %d tiles stored, file size %d, free %d\n",
		f.store.TileCountStored(), s.NRowsOfTiles()*s.NColsOfTiles(),
		f.store.FileSize(), f.store.FreeBytes())
	fmt.Fprintf(w, "activity:       %d tile writes (%d compressed), %d tile reads\n",
		counters.TilesWritten, counters.CompressedWrites, counters.TilesRead)

	hits, misses := f.cache.Hits(), f.cache.Misses()
	if hits+misses > 0 {
		fmt.Fprintf(w, "cache:          %d hits, %d misses (%.1f%% hit rate)\n",
			hits, misses, 100*float64(hits)/float64(hits+misses))
	}

	metadata := f.store.VLRs()
	if len(metadata) > 0 {
		fmt.Fprintf(w, "metadata:       %d records\n", len(metadata))
		for _, v := range metadata {
			kind := "binary"
			if v.IsText {
				kind = "text"
			}
			fmt.Fprintf(w, "  %s#%d (%s)\n", v.UserID, v.RecordID, kind)
		}
	}

	if !verbose {
		return nil
	}

	stats := f.registry.NewStats()
	compressed, uncompressed, err := f.store.AnalyzeTiles(stats)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "analysis:       %d compressed tiles, %d uncompressed\n", compressed, uncompressed)
	for _, st := range stats {
		if st.TileCount == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-10s %6d tiles, %8d bytes, entropy %.3f bits/sym, packed %.3f bits/sym\n",
			st.CodecID, st.TileCount, st.PackingBytes, st.Entropy(), st.BitsPerSymbol())
	}

	return nil
}
