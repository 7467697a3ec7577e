// Package geometry reads named points and paths from KML, GeoJSON and OSM
// files.
package geometry

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/geoyee/regiontiles/internal/model"
)

var ErrUnsupportedFormat = errors.New("unsupported geometry file format")

// ReadFile picks a parser by file extension.
func ReadFile(filename string) ([]model.Placemark, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open geometry file %s", filename)
	}
	defer f.Close()

	lower := strings.ToLower(filename)
	var placemarks []model.Placemark
	switch {
	case strings.HasSuffix(lower, ".osm.pbf"):
		placemarks, err = ParseOSMPBF(f)
	case strings.HasSuffix(lower, ".kml"):
		placemarks, err = ParseKML(f)
	case strings.HasSuffix(lower, ".geojson"), strings.HasSuffix(lower, ".json"):
		placemarks, err = ParseGeoJSON(f)
	case strings.HasSuffix(lower, ".osm"):
		placemarks, err = ParseOSM(f)
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "extension %q", filepath.Ext(filename))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read %s", filename)
	}
	return placemarks, nil
}
