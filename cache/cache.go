// Package cache provides the bounded LRU tile cache that sits between the
// file facade and the tile store.
//
// The cache holds at most a configured number of tiles. A lookup that
// misses reads the tile from the store, evicting the least recently used
// resident tile first and writing it back if dirty. Two shortcuts trim
// the common access patterns: a one-slot fast path for repeated access to
// the same tile, and a negative cache remembering the last index that was
// not on disk, so that row-major scans over sparse regions do not hit the
// store once per cell.
package cache

import (
	"fmt"

	"github.com/arloliu/gridstore/errs"
	"github.com/arloliu/gridstore/store"
	"github.com/arloliu/gridstore/tile"
)

// Size presets for the tile cache. The values are chosen to be relatively
// prime to typical grid widths so that row-major scans do not thrash.
const (
	SizeSmall  = 9
	SizeMedium = 25
	SizeLarge  = 101

	// DefaultCapacity applies when no preset or explicit count is given.
	DefaultCapacity = 16
)

// node is one entry of the doubly linked LRU list; the head is the most
// recently used tile. Tiles themselves are plain data; the links live in
// the cache's own node structure.
type node struct {
	tile *tile.Tile
	prev *node
	next *node
}

// TileCache is a bounded LRU over tiles keyed by tile index, backed by
// the file store. It is owned by a single file handle and not safe for
// concurrent use.
type TileCache struct {
	store    *store.TileStore
	capacity int

	head  *node
	tail  *node
	byIdx map[int]*node

	// lastTile short-circuits repeated access to the same tile without
	// touching the map.
	lastTile *tile.Tile

	// priorUnsatisfiedRequest remembers the last index whose lookup
	// found nothing on disk; -1 when invalid.
	priorUnsatisfiedRequest int

	nColsOfTiles int

	hits   int64
	misses int64
}

// New creates a cache over the store with the given capacity; a
// non-positive capacity falls back to DefaultCapacity.
func New(s *store.TileStore, capacity, nColsOfTiles int) *TileCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &TileCache{
		store:                   s,
		capacity:                capacity,
		byIdx:                   make(map[int]*node, capacity),
		priorUnsatisfiedRequest: -1,
		nColsOfTiles:            nColsOfTiles,
	}
}

// Capacity returns the maximum number of resident tiles.
func (c *TileCache) Capacity() int { return c.capacity }

// Len returns the number of resident tiles.
func (c *TileCache) Len() int { return len(c.byIdx) }

// Hits returns the number of lookups satisfied from the cache.
func (c *TileCache) Hits() int64 { return c.hits }

// Misses returns the number of lookups that went to the store.
func (c *TileCache) Misses() int64 { return c.misses }

// GetTile returns the tile at idx, reading it from the store on a miss.
// A nil tile with a nil error means the tile is not on disk and the grid
// cell values are the element fill values.
func (c *TileCache) GetTile(idx int) (*tile.Tile, error) {
	if c.lastTile != nil && c.lastTile.Index() == idx {
		c.hits++
		return c.lastTile, nil
	}

	if n, ok := c.byIdx[idx]; ok {
		c.hits++
		c.moveToHead(n)
		c.lastTile = n.tile

		return n.tile, nil
	}

	if c.priorUnsatisfiedRequest == idx {
		c.misses++
		return nil, nil
	}

	c.misses++
	if !c.store.TileExists(idx) {
		c.priorUnsatisfiedRequest = idx
		return nil, nil
	}

	t, err := c.store.ReadTile(idx, idx/c.nColsOfTiles, idx%c.nColsOfTiles)
	if err != nil {
		return nil, err
	}
	if err := c.insert(t); err != nil {
		return nil, err
	}

	return t, nil
}

// AllocateNewTile creates an all-fill tile at idx and inserts it at the
// head of the list. The tile may or may not exist on disk; allocation
// invalidates the negative cache either way. Allocating an index already
// resident is an error; callers wanting get-or-allocate semantics use
// GetOrAllocate.
func (c *TileCache) AllocateNewTile(idx int, defs []tile.ElementDef, tileRows, tileCols int) (*tile.Tile, error) {
	if _, ok := c.byIdx[idx]; ok {
		return nil, fmt.Errorf("%w: %d", errs.ErrTileAlreadyCached, idx)
	}

	c.priorUnsatisfiedRequest = -1

	t := tile.New(idx, idx/c.nColsOfTiles, idx%c.nColsOfTiles, tileRows, tileCols, defs)
	if err := c.insert(t); err != nil {
		return nil, err
	}

	return t, nil
}

// GetOrAllocate returns the resident or stored tile at idx, materializing
// an all-fill tile when it exists nowhere.
func (c *TileCache) GetOrAllocate(idx int, defs []tile.ElementDef, tileRows, tileCols int) (*tile.Tile, error) {
	t, err := c.GetTile(idx)
	if err != nil {
		return nil, err
	}
	if t != nil {
		return t, nil
	}

	return c.AllocateNewTile(idx, defs, tileRows, tileCols)
}

// insert places a tile at the head, evicting the tail if the cache is
// full.
func (c *TileCache) insert(t *tile.Tile) error {
	if len(c.byIdx) >= c.capacity {
		if err := c.evictTail(); err != nil {
			return err
		}
	}

	n := &node{tile: t}
	c.linkAtHead(n)
	c.byIdx[t.Index()] = n
	c.lastTile = t

	return nil
}

// evictTail drops the least recently used tile, writing it back first if
// dirty.
func (c *TileCache) evictTail() error {
	n := c.tail
	if n == nil {
		return nil
	}
	if n.tile.NeedsWrite() {
		if err := c.store.StoreTile(n.tile); err != nil {
			return err
		}
	}

	c.unlink(n)
	delete(c.byIdx, n.tile.Index())
	if c.lastTile == n.tile {
		c.lastTile = nil
	}

	return nil
}

// Flush writes back every dirty resident tile and clears the dirty flags.
func (c *TileCache) Flush() error {
	for n := c.head; n != nil; n = n.next {
		if n.tile.NeedsWrite() {
			if err := c.store.StoreTile(n.tile); err != nil {
				return err
			}
		}
	}

	return nil
}

// DirtyTiles returns the resident tiles needing write-back, most recently
// used first; used by the multi-threaded flush path to precompress them.
func (c *TileCache) DirtyTiles() []*tile.Tile {
	var dirty []*tile.Tile
	for n := c.head; n != nil; n = n.next {
		if n.tile.NeedsWrite() {
			dirty = append(dirty, n.tile)
		}
	}

	return dirty
}

// Clear empties the cache without writing anything back.
func (c *TileCache) Clear() {
	c.head = nil
	c.tail = nil
	c.byIdx = make(map[int]*node, c.capacity)
	c.lastTile = nil
	c.priorUnsatisfiedRequest = -1
}

// ResidentIndexes returns the resident tile indexes, most recently used
// first; used by diagnostics and tests.
func (c *TileCache) ResidentIndexes() []int {
	var out []int
	for n := c.head; n != nil; n = n.next {
		out = append(out, n.tile.Index())
	}

	return out
}

func (c *TileCache) linkAtHead(n *node) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *TileCache) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}

func (c *TileCache) moveToHead(n *node) {
	if c.head == n {
		return
	}
	c.unlink(n)
	c.linkAtHead(n)
}
