// Package gpxexport serializes planned routes to GPX 1.1 for bike computers
// and navigation apps.
package gpxexport

import (
	"fmt"
	"time"

	"github.com/tkrajina/gpxgo/gpx"

	"squadrat-planner/internal/models"
)

const creator = "squadrat-planner"

// Export renders the route geometry as a single GPX track with one segment,
// plus the road-snapped waypoints as GPX waypoints
func Export(route *models.Route, name string) ([]byte, error) {
	if route == nil || len(route.Coordinates) == 0 {
		return nil, fmt.Errorf("route has no geometry to export")
	}
	if name == "" {
		name = fmt.Sprintf("Exploration ride %s", time.Now().Format("2006-01-02"))
	}

	points := make([]gpx.GPXPoint, len(route.Coordinates))
	for i, pt := range route.Coordinates {
		points[i] = gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  pt.Lat,
				Longitude: pt.Lng,
				Elevation: *gpx.NewNullableFloat64(pt.Elevation),
			},
		}
	}

	doc := &gpx.GPX{
		Creator:     creator,
		Name:        name,
		Description: describeRoute(route),
		Tracks: []gpx.GPXTrack{
			{
				Name: name,
				Segments: []gpx.GPXTrackSegment{
					{Points: points},
				},
			},
		},
	}

	for i, wp := range route.Waypoints {
		if !wp.HasRoad {
			continue
		}
		doc.Waypoints = append(doc.Waypoints, gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  wp.Coords.Lat,
				Longitude: wp.Coords.Lng,
			},
			Name: fmt.Sprintf("WP%d (%s)", i+1, wp.Type),
		})
	}

	return doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
}

func describeRoute(route *models.Route) string {
	desc := fmt.Sprintf("%.1f km, %.0f min, %.0f m climb, profile %s",
		route.DistanceKm, route.TimeMin, route.ElevationGainM, route.ProfileUsed)
	if route.Minimal {
		return desc + " (minimal skeleton)"
	}
	if route.Simplified {
		return desc + " (simplified)"
	}
	return desc
}
