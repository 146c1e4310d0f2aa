// Package gridstore provides a storage engine for very large
// two-dimensional numeric grids: digital elevation models, gridded
// meteorology, bathymetry, and similar rasters.
//
// A grid is broken into fixed-size rectangular tiles that are
// individually materialized, compressed, and placed in a single
// random-access file with an internal free-space manager. Applications
// touch the whole grid through a per-cell API while only a small working
// set of tiles lives in memory.
//
// # Basic Usage
//
// Creating a file and writing cells:
//
//	spec, _ := gridstore.NewRasterSpec(7200, 10800, 120, 120,
//	    gridstore.WithCompressionEnabled(true))
//	spec.AddElement(gridstore.NewInt32Element("elevation"))
//	spec.SetGeographicCoordinates(-90, -180, 90, 180)
//
//	gf, _ := gridstore.Create("etopo.gvs", spec)
//	elevation, _ := gf.GetElement("elevation")
//	elevation.WriteValueInt(1200, 3400, 132)
//	gf.Close()
//
// Reading them back:
//
//	gf, _ := gridstore.Open("etopo.gvs")
//	elevation, _ := gf.GetElement("elevation")
//	v, _ := elevation.ReadValueInt(1200, 3400)
//	gf.Close()
//
// # Package Structure
//
// This package is the public facade. The supporting packages can be used
// directly for fine-grained control: encoding holds the bit-level and
// predictive-transform primitives, codec the tile compression codecs and
// their registry, compress the general-purpose byte compressors, tile the
// in-memory tile representation, store the on-disk record container with
// its free-space allocator, and cache the LRU tile cache.
package gridstore
