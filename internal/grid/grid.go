// Package grid derives the uniform lattice over a reference polygon and
// computes the visited-cell set by sampling cell centers against the supplied
// track polygons.
package grid

import (
	"log"
	"math"
	"time"

	"squadrat-planner/internal/geometry"
	"squadrat-planner/internal/models"
)

// DeriveParams builds grid parameters from a reference ring and a declared
// grid size. The origin is the ring's south-west corner; the base square is
// fixed at {0, size-1, 0, size-1}.
func DeriveParams(referenceRing models.Ring, size int) (*models.GridParams, error) {
	if size <= 0 {
		return nil, &geometry.ErrInvalidGeometry{Reason: "grid size must be positive"}
	}

	box, err := geometry.BoundingBox(referenceRing)
	if err != nil {
		return nil, err
	}
	if box.MaxLat == box.MinLat || box.MaxLng == box.MinLng {
		return nil, &geometry.ErrInvalidGeometry{Reason: "reference ring has zero extent"}
	}

	return &models.GridParams{
		LatStep:   (box.MaxLat - box.MinLat) / float64(size),
		LngStep:   (box.MaxLng - box.MinLng) / float64(size),
		OriginLat: box.MinLat,
		OriginLng: box.MinLng,
		Size:      size,
		BaseSquare: models.CellRect{
			MinI: 0, MaxI: size - 1,
			MinJ: 0, MaxJ: size - 1,
		},
		Bounds: box,
	}, nil
}

// CellCenter returns the center point of cell (i,j)
func CellCenter(p *models.GridParams, i, j int) models.Coordinates {
	return models.Coordinates{
		Lat: p.OriginLat + (float64(i)+0.5)*p.LatStep,
		Lng: p.OriginLng + (float64(j)+0.5)*p.LngStep,
	}
}

// CellBounds returns the lat/lng rectangle of cell (i,j)
func CellBounds(p *models.GridParams, i, j int) models.CellBounds {
	return models.CellBounds{
		South: p.OriginLat + float64(i)*p.LatStep,
		West:  p.OriginLng + float64(j)*p.LngStep,
		North: p.OriginLat + float64(i+1)*p.LatStep,
		East:  p.OriginLng + float64(j+1)*p.LngStep,
	}
}

// CellAt inverts the center mapping: the cell whose rectangle contains the
// point
func CellAt(p *models.GridParams, lat, lng float64) models.CellKey {
	return models.CellKey{
		I: int(math.Floor((lat - p.OriginLat) / p.LatStep)),
		J: int(math.Floor((lng - p.OriginLng) / p.LngStep)),
	}
}

// ScanVisited samples the center of every cell in the base square expanded by
// bufferRadius against every polygon; a cell is visited when any polygon
// contains its center. The result is a fresh set, never patched
// incrementally.
//
// This is the dominant cost center: O(cells x polygons x ring length).
func ScanVisited(polygons []models.Polygon, p *models.GridParams, bufferRadius int) models.VisitedSet {
	start := time.Now()
	scan := p.BaseSquare.Expand(bufferRadius)
	visited := make(models.VisitedSet)

	// Bounding boxes let the inner loop reject most polygons cheaply.
	boxes := make([]models.BoundingBox, len(polygons))
	for idx, poly := range polygons {
		box, err := geometry.BoundingBox(poly.Outer)
		if err != nil {
			// Degenerate track polygons cannot cover anything; skip.
			boxes[idx] = models.BoundingBox{MinLat: 1, MaxLat: -1}
			continue
		}
		boxes[idx] = box
	}

	for i := scan.MinI; i <= scan.MaxI; i++ {
		for j := scan.MinJ; j <= scan.MaxJ; j++ {
			center := CellCenter(p, i, j)
			for idx, poly := range polygons {
				if !boxes[idx].Contains(center.Lat, center.Lng) {
					continue
				}
				if geometry.PointInPolygon(center.Lat, center.Lng, poly) {
					visited.Add(models.CellKey{I: i, J: j})
					break
				}
			}
		}
	}

	cells := (scan.MaxI - scan.MinI + 1) * (scan.MaxJ - scan.MinJ + 1)
	log.Printf("[GRID] Visited scan complete: cells=%d polygons=%d visited=%d elapsed=%v",
		cells, len(polygons), len(visited), time.Since(start))
	return visited
}
