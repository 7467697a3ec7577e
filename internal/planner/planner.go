// Package planner selects which tiles a run may fetch under a tile budget.
package planner

import (
	"math"

	"github.com/paulmach/orb/maptile"

	"github.com/geoyee/regiontiles/internal/calculator"
	"github.com/geoyee/regiontiles/internal/model"
	"github.com/geoyee/regiontiles/internal/region"
)

// Plan walks zoom levels from minZoom to maxZoom and, within each level,
// the regions in insertion order. A region's whole tile rectangle is
// admitted when the fetch set plus the rectangle stays strictly below
// maxTiles; otherwise the rectangle goes to Skipped.
//
// Zoom levels outside [0, calculator.MaxZoom] are not visited. ToFetch and
// Skipped never share a tile.
func Plan(regions *region.Set, minZoom, maxZoom, maxTiles int) *model.TilePlan {
	plan := model.NewTilePlan()
	if regions == nil {
		return plan
	}

	minZoom = max(minZoom, 0)
	maxZoom = min(maxZoom, calculator.MaxZoom)

	for zoom := minZoom; zoom <= maxZoom; zoom++ {
		for _, r := range regions.All() {
			tiles := calculator.RangeForBox(r.Box, zoom)
			if plan.ToFetch.Len()+tiles.Count() < maxTiles {
				plan.HighestZoom = zoom
				tiles.Each(func(t maptile.Tile) {
					plan.Skipped.Remove(t)
					plan.ToFetch.Add(t)
				})
				continue
			}
			tiles.Each(func(t maptile.Tile) {
				if !plan.ToFetch.Has(t) {
					plan.Skipped.Add(t)
				}
			})
		}
	}
	return plan
}

// RequestedUpperBound sums the rectangle sizes Plan would visit without
// enumerating any tile. Overlapping regions are counted once per region, so
// the result is never below plan.Requested(). It saturates at math.MaxInt.
func RequestedUpperBound(regions *region.Set, minZoom, maxZoom int) int {
	minZoom = max(minZoom, 0)
	maxZoom = min(maxZoom, calculator.MaxZoom)

	total := 0
	for zoom := minZoom; zoom <= maxZoom; zoom++ {
		for _, r := range regions.All() {
			n := calculator.RangeForBox(r.Box, zoom).Count()
			if n > math.MaxInt-total {
				return math.MaxInt
			}
			total += n
		}
	}
	return total
}

// ZoomSummary counts planned and skipped tiles for one zoom level.
type ZoomSummary struct {
	Zoom    int
	Fetch   int
	Skipped int
}

// Summarize breaks a plan down per zoom level, ascending.
func Summarize(plan *model.TilePlan) []ZoomSummary {
	byZoom := make(map[int]*ZoomSummary)
	get := func(z int) *ZoomSummary {
		s, ok := byZoom[z]
		if !ok {
			s = &ZoomSummary{Zoom: z}
			byZoom[z] = s
		}
		return s
	}
	for t := range plan.ToFetch {
		get(int(t.Z)).Fetch++
	}
	for t := range plan.Skipped {
		get(int(t.Z)).Skipped++
	}

	out := make([]ZoomSummary, 0, len(byZoom))
	for z := 0; z <= calculator.MaxZoom && len(out) < len(byZoom); z++ {
		if s, ok := byZoom[z]; ok {
			out = append(out, *s)
		}
	}
	return out
}
