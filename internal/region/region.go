// Package region turns placemark geometry into named bounding boxes.
package region

import (
	"fmt"

	"github.com/geoyee/regiontiles/internal/logger"
	"github.com/geoyee/regiontiles/internal/model"
)

// Expand grows a point symmetrically by the margin.
func Expand(p model.GeoPoint, m model.Margin) model.BoundingBox {
	return model.BoundingBox{
		MinLat: p.Lat - m.Lat,
		MinLon: p.Lon - m.Lon,
		MaxLat: p.Lat + m.Lat,
		MaxLon: p.Lon + m.Lon,
	}
}

// VertexName names the index-th vertex region of a path placemark.
func VertexName(base string, index int) string {
	return fmt.Sprintf("%s_%06d", base, index)
}

// FromPlacemarks expands every placemark into regions. A placemark with a
// single point yields one region under its own name; otherwise each path
// vertex yields its own region, numbered across all paths of the placemark.
// Placemarks with several points and no path yield nothing.
func FromPlacemarks(placemarks []model.Placemark, m model.Margin, l logger.Logger) *Set {
	set := NewSet()
	for _, pm := range placemarks {
		if len(pm.Points) == 1 {
			set.Put(pm.Name, Expand(pm.Points[0], m))
			continue
		}

		index := 0
		for _, path := range pm.Paths {
			for _, vertex := range path {
				set.Put(VertexName(pm.Name, index), Expand(vertex, m))
				index++
			}
		}
		if index == 0 {
			l.Debug("placemark has no usable geometry, skipping", "name", pm.Name, "points", len(pm.Points))
		}
	}
	return set
}
