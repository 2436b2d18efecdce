// Package geomio converts GeoJSON region uploads into the planner's polygon
// model and picks the reference region that anchors the grid.
package geomio

import (
	"fmt"
	"log"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"squadrat-planner/internal/geometry"
	"squadrat-planner/internal/models"
)

// ErrNoReferenceRegion indicates that no region is usable as the grid anchor
type ErrNoReferenceRegion struct {
	Reason string
}

func (e *ErrNoReferenceRegion) Error() string {
	return fmt.Sprintf("no reference region: %s", e.Reason)
}

// Region is one named area from an upload. Reference marks the region whose
// outer ring anchors the grid lattice.
type Region struct {
	Name      string
	Reference bool
	Polygon   models.Polygon
}

// ParseRegions decodes a GeoJSON FeatureCollection (or a single feature or
// bare geometry) into regions. MultiPolygon features fan out into one region
// per polygon.
func ParseRegions(data []byte) ([]Region, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		feature, ferr := geojson.UnmarshalFeature(data)
		if ferr != nil {
			g, gerr := geojson.UnmarshalGeometry(data)
			if gerr != nil {
				return nil, &geometry.ErrInvalidGeometry{Reason: fmt.Sprintf("not valid GeoJSON: %v", err)}
			}
			feature = geojson.NewFeature(g.Geometry())
		}
		fc = geojson.NewFeatureCollection()
		fc.Append(feature)
	}

	var regions []Region
	for idx, feature := range fc.Features {
		name := featureName(feature, idx)
		reference := featureBool(feature, "reference")

		switch geom := feature.Geometry.(type) {
		case orb.Polygon:
			poly, err := convertPolygon(geom)
			if err != nil {
				return nil, err
			}
			regions = append(regions, Region{Name: name, Reference: reference, Polygon: poly})
		case orb.MultiPolygon:
			for pi, part := range geom {
				poly, err := convertPolygon(part)
				if err != nil {
					return nil, err
				}
				partName := name
				if len(geom) > 1 {
					partName = fmt.Sprintf("%s/%d", name, pi+1)
				}
				regions = append(regions, Region{Name: partName, Reference: reference, Polygon: poly})
			}
		default:
			log.Printf("[GEOMIO] Skipping non-polygon feature: name=%s type=%s", name, feature.Geometry.GeoJSONType())
		}
	}

	if len(regions) == 0 {
		return nil, &geometry.ErrInvalidGeometry{Reason: "no polygon features in input"}
	}
	return regions, nil
}

// ReferenceRing picks the ring that anchors the grid: an explicit
// reference-flagged region wins, otherwise the region with the largest
// bounding-box area.
func ReferenceRing(regions []Region) (models.Ring, error) {
	if len(regions) == 0 {
		return nil, &ErrNoReferenceRegion{Reason: "no regions supplied"}
	}

	for _, r := range regions {
		if r.Reference {
			return r.Polygon.Outer, nil
		}
	}

	best := -1
	bestArea := 0.0
	for i, r := range regions {
		bbox, err := geometry.BoundingBox(r.Polygon.Outer)
		if err != nil {
			continue
		}
		area := (bbox.MaxLat - bbox.MinLat) * (bbox.MaxLng - bbox.MinLng)
		if best < 0 || area > bestArea {
			best = i
			bestArea = area
		}
	}
	if best < 0 {
		return nil, &ErrNoReferenceRegion{Reason: "no region has a usable outer ring"}
	}
	return regions[best].Polygon.Outer, nil
}

// Polygons strips region metadata for the grid scanner
func Polygons(regions []Region) []models.Polygon {
	polys := make([]models.Polygon, len(regions))
	for i, r := range regions {
		polys[i] = r.Polygon
	}
	return polys
}

func convertPolygon(p orb.Polygon) (models.Polygon, error) {
	if len(p) == 0 || len(p[0]) < 3 {
		return models.Polygon{}, &geometry.ErrInvalidGeometry{Reason: "polygon outer ring needs at least 3 points"}
	}

	poly := models.Polygon{Outer: convertRing(p[0])}
	for _, hole := range p[1:] {
		if len(hole) < 3 {
			continue
		}
		poly.Holes = append(poly.Holes, convertRing(hole))
	}
	return poly, nil
}

func convertRing(r orb.Ring) models.Ring {
	ring := make(models.Ring, len(r))
	for i, pt := range r {
		ring[i] = models.Coordinates{Lat: pt.Lat(), Lng: pt.Lon()}
	}
	return ring
}

func featureName(f *geojson.Feature, idx int) string {
	for _, key := range []string{"name", "title", "id"} {
		if v, ok := f.Properties[key].(string); ok && v != "" {
			return v
		}
	}
	if f.ID != nil {
		return fmt.Sprintf("%v", f.ID)
	}
	return fmt.Sprintf("region-%d", idx+1)
}

func featureBool(f *geojson.Feature, key string) bool {
	switch v := f.Properties[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "yes" || v == "1"
	default:
		return false
	}
}
