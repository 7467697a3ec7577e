package geometry

import (
	"encoding/xml"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/geoyee/regiontiles/internal/model"
)

type kmlCoordinates struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	Outer kmlCoordinates   `xml:"outerBoundaryIs>LinearRing"`
	Inner []kmlCoordinates `xml:"innerBoundaryIs>LinearRing"`
}

type kmlGeometry struct {
	Points      []kmlCoordinates `xml:"Point"`
	LineStrings []kmlCoordinates `xml:"LineString"`
	Polygons    []kmlPolygon     `xml:"Polygon"`
	Multi       []kmlGeometry    `xml:"MultiGeometry"`
}

type kmlPlacemark struct {
	Name string `xml:"name"`
	kmlGeometry
}

// ParseKML returns every Placemark regardless of Document/Folder nesting.
// Polygon boundaries are read as paths. A placemark with unparseable
// coordinates is dropped.
func ParseKML(r io.Reader) ([]model.Placemark, error) {
	decoder := xml.NewDecoder(r)
	var placemarks []model.Placemark

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "Malformed KML")
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "Placemark" {
			continue
		}

		var raw kmlPlacemark
		if err := decoder.DecodeElement(&raw, &start); err != nil {
			return nil, errors.Wrap(err, "Malformed KML placemark")
		}

		placemark := model.Placemark{Name: strings.TrimSpace(raw.Name)}
		if err := collectKML(&placemark, raw.kmlGeometry); err != nil {
			continue
		}
		placemarks = append(placemarks, placemark)
	}

	return placemarks, nil
}

func collectKML(p *model.Placemark, g kmlGeometry) error {
	for _, point := range g.Points {
		coords, err := parseKMLCoordinates(point.Coordinates)
		if err != nil {
			return err
		}
		p.Points = append(p.Points, coords...)
	}
	for _, line := range g.LineStrings {
		coords, err := parseKMLCoordinates(line.Coordinates)
		if err != nil {
			return err
		}
		p.Paths = append(p.Paths, coords)
	}
	for _, polygon := range g.Polygons {
		for _, ring := range append([]kmlCoordinates{polygon.Outer}, polygon.Inner...) {
			coords, err := parseKMLCoordinates(ring.Coordinates)
			if err != nil {
				return err
			}
			if len(coords) > 0 {
				p.Paths = append(p.Paths, coords)
			}
		}
	}
	for _, multi := range g.Multi {
		if err := collectKML(p, multi); err != nil {
			return err
		}
	}
	return nil
}

// parseKMLCoordinates reads whitespace separated "lon,lat[,alt]" tuples.
func parseKMLCoordinates(s string) ([]model.GeoPoint, error) {
	var points []model.GeoPoint
	for _, tuple := range strings.Fields(s) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, errors.Errorf("Invalid KML coordinate tuple '%s'", tuple)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Invalid longitude in '%s'", tuple)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Invalid latitude in '%s'", tuple)
		}
		if !isFinite(lon) || !isFinite(lat) {
			return nil, errors.Errorf("Non-finite KML coordinate '%s'", tuple)
		}
		points = append(points, model.GeoPoint{Lon: lon, Lat: lat})
	}
	return points, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
