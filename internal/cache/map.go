package cache

import (
	"sync"

	"github.com/paulmach/orb/maptile"
)

// MapCache keeps tiles in memory.
type MapCache struct {
	m sync.Map
}

var _ TileCache = (*MapCache)(nil)

func NewMapCache() *MapCache {
	return &MapCache{}
}

func (c *MapCache) Has(t maptile.Tile) (bool, error) {
	_, ok := c.m.Load(t)
	return ok, nil
}

func (c *MapCache) Set(t maptile.Tile, data []byte) error {
	c.m.Store(t, data)
	return nil
}

func (c *MapCache) Get(t maptile.Tile) ([]byte, bool) {
	v, ok := c.m.Load(t)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}
