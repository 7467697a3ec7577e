package geometry

import (
	"context"
	"io"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"

	"github.com/geoyee/regiontiles/internal/model"
)

type osmScanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

// ParseOSM reads OSM XML. Named nodes become single points and named ways
// become paths. Way nodes must appear before the way, as in any file written
// by the OSM API or osmium.
func ParseOSM(r io.Reader) ([]model.Placemark, error) {
	return scanOSM(osmxml.New(context.Background(), r))
}

// ParseOSMPBF reads the OSM protobuf format with the same rules as ParseOSM.
func ParseOSMPBF(r io.Reader) ([]model.Placemark, error) {
	return scanOSM(osmpbf.New(context.Background(), r, 1))
}

func scanOSM(scanner osmScanner) ([]model.Placemark, error) {
	defer scanner.Close()

	nodes := make(map[osm.NodeID]model.GeoPoint)
	var placemarks []model.Placemark

	for scanner.Scan() {
		switch obj := scanner.Object().(type) {
		case *osm.Node:
			point := model.GeoPoint{Lon: obj.Lon, Lat: obj.Lat}
			nodes[obj.ID] = point
			if name := obj.Tags.Find("name"); name != "" {
				placemarks = append(placemarks, model.Placemark{
					Name:   name,
					Points: []model.GeoPoint{point},
				})
			}
		case *osm.Way:
			name := obj.Tags.Find("name")
			if name == "" {
				continue
			}
			path := make([]model.GeoPoint, 0, len(obj.Nodes))
			for _, wn := range obj.Nodes {
				if point, ok := nodes[wn.ID]; ok {
					path = append(path, point)
				} else if wn.Lat != 0 || wn.Lon != 0 {
					path = append(path, model.GeoPoint{Lon: wn.Lon, Lat: wn.Lat})
				}
			}
			if len(path) == 0 {
				continue
			}
			placemarks = append(placemarks, model.Placemark{
				Name:  name,
				Paths: [][]model.GeoPoint{path},
			})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "Unable to scan OSM data")
	}
	return placemarks, nil
}
