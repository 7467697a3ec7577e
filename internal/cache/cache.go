// Package cache stores fetched tiles. A tile is cached iff its entry exists.
package cache

import "github.com/paulmach/orb/maptile"

type TileCache interface {
	Has(maptile.Tile) (bool, error)
	Set(maptile.Tile, []byte) error
}
