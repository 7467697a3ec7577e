package geometry

import (
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"

	"github.com/geoyee/regiontiles/internal/model"
)

// ParseGeoJSON accepts a FeatureCollection or a single Feature. The
// placemark name is the "name" property, falling back to the feature id.
func ParseGeoJSON(r io.Reader) ([]model.Placemark, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read GeoJSON")
	}

	var features []*geojson.Feature
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err == nil {
		features = fc.Features
	} else {
		f, ferr := geojson.UnmarshalFeature(data)
		if ferr != nil {
			return nil, errors.Wrap(err, "Malformed GeoJSON")
		}
		features = []*geojson.Feature{f}
	}

	placemarks := make([]model.Placemark, 0, len(features))
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		placemark := model.Placemark{Name: featureName(f)}
		collectGeoJSON(&placemark, f.Geometry)
		placemarks = append(placemarks, placemark)
	}
	return placemarks, nil
}

func featureName(f *geojson.Feature) string {
	if name := f.Properties.MustString("name", ""); name != "" {
		return name
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return ""
}

func collectGeoJSON(p *model.Placemark, g orb.Geometry) {
	switch geom := g.(type) {
	case orb.Point:
		p.Points = append(p.Points, toGeoPoint(geom))
	case orb.MultiPoint:
		for _, pt := range geom {
			p.Points = append(p.Points, toGeoPoint(pt))
		}
	case orb.LineString:
		p.Paths = append(p.Paths, toPath(geom))
	case orb.MultiLineString:
		for _, ls := range geom {
			p.Paths = append(p.Paths, toPath(ls))
		}
	case orb.Ring:
		p.Paths = append(p.Paths, toPath(geom))
	case orb.Polygon:
		for _, ring := range geom {
			p.Paths = append(p.Paths, toPath(ring))
		}
	case orb.MultiPolygon:
		for _, polygon := range geom {
			collectGeoJSON(p, polygon)
		}
	case orb.Collection:
		for _, child := range geom {
			collectGeoJSON(p, child)
		}
	}
}

func toGeoPoint(pt orb.Point) model.GeoPoint {
	return model.GeoPoint{Lon: pt.Lon(), Lat: pt.Lat()}
}

func toPath(points []orb.Point) []model.GeoPoint {
	path := make([]model.GeoPoint, len(points))
	for i, pt := range points {
		path[i] = toGeoPoint(pt)
	}
	return path
}
