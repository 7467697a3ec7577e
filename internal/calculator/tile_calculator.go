package calculator

import (
	"math"

	"github.com/paulmach/orb/maptile"

	"github.com/geoyee/regiontiles/internal/model"
)

const (
	// MaxZoom is the deepest level a tile index still fits in uint32.
	MaxZoom = 30
	// MaxLatitude is the Web Mercator cut-off; beyond it tan/cos diverge.
	MaxLatitude = 85.05112877980659
)

// TileX maps a longitude to its column at zoom.
func TileX(lon float64, zoom int) int {
	n := float64(int64(1) << uint(zoom))
	return int(math.Floor((lon + 180.0) / 360.0 * n))
}

// TileY maps a latitude to its row at zoom. Rows grow southward.
func TileY(lat float64, zoom int) int {
	lat = ClampLatitude(lat)
	n := float64(int64(1) << uint(zoom))
	latRad := lat * math.Pi / 180.0
	return int(math.Floor((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n))
}

func ClampLatitude(lat float64) float64 {
	if lat > MaxLatitude {
		return MaxLatitude
	}
	if lat < -MaxLatitude {
		return -MaxLatitude
	}
	return lat
}

func Deg2Num(lon, lat float64, zoom int) (x, y int) {
	return TileX(lon, zoom), TileY(lat, zoom)
}

func ClampTileCoords(minX, minY, maxX, maxY, zoom int) (int, int, int, int) {
	if minX < 0 {
		minX = 0
	}
	if minY < 0 {
		minY = 0
	}
	maxTile := 1 << zoom
	if maxX >= maxTile {
		maxX = maxTile - 1
	}
	if maxY >= maxTile {
		maxY = maxTile - 1
	}
	return minX, minY, maxX, maxY
}

// TileRange is an inclusive rectangle of tiles at one zoom. An inverted
// rectangle is empty.
type TileRange struct {
	Zoom       int
	MinX, MinY int
	MaxX, MaxY int
}

// RangeForBox returns the grid-clamped tile rectangle covering box at zoom.
// The north edge (MaxLat) gives the smaller row.
func RangeForBox(box model.BoundingBox, zoom int) TileRange {
	minX, minY := Deg2Num(box.MinLon, box.MaxLat, zoom)
	maxX, maxY := Deg2Num(box.MaxLon, box.MinLat, zoom)
	minX, minY, maxX, maxY = ClampTileCoords(minX, minY, maxX, maxY, zoom)
	return TileRange{Zoom: zoom, MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// Count is the number of tiles in the rectangle, never negative.
func (r TileRange) Count() int {
	w := r.MaxX - r.MinX + 1
	h := r.MaxY - r.MinY + 1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (r TileRange) Each(fn func(maptile.Tile)) {
	z := maptile.Zoom(r.Zoom)
	for x := r.MinX; x <= r.MaxX; x++ {
		for y := r.MinY; y <= r.MaxY; y++ {
			fn(maptile.New(uint32(x), uint32(y), z))
		}
	}
}

func ValidateZoomRange(minZoom, maxZoom int) error {
	if minZoom < 0 || maxZoom > MaxZoom || minZoom > maxZoom {
		return ErrInvalidZoomRange
	}
	return nil
}

func ValidateMargin(m model.Margin) error {
	if m.Lat < 0 || m.Lon < 0 || math.IsNaN(m.Lat) || math.IsNaN(m.Lon) || math.IsInf(m.Lat, 0) || math.IsInf(m.Lon, 0) {
		return ErrInvalidMargin
	}
	return nil
}
