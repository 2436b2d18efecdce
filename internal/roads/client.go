// Package roads fetches road line geometry from an Overpass-style service.
// Fetches fan out concurrently across spatial partitions, retry with backoff
// against alternate endpoint instances, and merge by stable feature id.
// A failed partition degrades (it is skipped); it never aborts the flow.
package roads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"squadrat-planner/internal/models"
	"squadrat-planner/internal/storage"
)

// DefaultEndpoints are the public Overpass API instances tried in order
var DefaultEndpoints = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
}

const defaultMaxRetries = 3

// Fetcher provides road geometry for the cells of a planned route
type Fetcher interface {
	FetchForCells(ctx context.Context, cells []models.SelectedCell, profile string) ([]models.RoadFeature, error)
}

// ErrRoadFetchFailed is returned when every endpoint attempt for an area
// failed
type ErrRoadFetchFailed struct {
	Reason string
}

func (e *ErrRoadFetchFailed) Error() string {
	return fmt.Sprintf("road fetch failed: %s", e.Reason)
}

// Client is an Overpass API client with optional caching
type Client struct {
	endpoints  []string
	httpClient *http.Client
	cache      storage.RoadCache
	maxRetries int
}

// NewClient creates a road-geometry client. cache may be nil to disable
// caching; empty endpoints falls back to DefaultEndpoints.
func NewClient(endpoints []string, cache storage.RoadCache) *Client {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	return &Client{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache:      cache,
		maxRetries: defaultMaxRetries,
	}
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"geometry"`
}

// highwayFilter maps a vehicle profile to the Overpass highway tag filter
func highwayFilter(profile string) string {
	switch profile {
	case "fastbike":
		return "primary|secondary|tertiary|unclassified|residential"
	default:
		return "primary|secondary|tertiary|unclassified|residential|living_street|track|cycleway|service|path"
	}
}

// FetchArea fetches all road features in a bounding box, consulting the
// cache first and trying each endpoint with backoff on failure
func (c *Client) FetchArea(ctx context.Context, bbox models.BoundingBox, profile string) ([]models.RoadFeature, error) {
	if c.cache != nil {
		cached, ok, err := c.cache.Get(ctx, bbox, profile)
		if err != nil {
			log.Printf("[ROADS] Cache read failed, fetching fresh: err=%v", err)
		} else if ok {
			return cached, nil
		}
	}

	query := fmt.Sprintf(
		`[out:json][timeout:25];way["highway"~"%s"](%f,%f,%f,%f);out geom;`,
		highwayFilter(profile), bbox.MinLat, bbox.MinLng, bbox.MaxLat, bbox.MaxLng,
	)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		endpoint := c.endpoints[attempt%len(c.endpoints)]

		features, err := c.fetchOnce(ctx, endpoint, query)
		if err == nil {
			log.Printf("[ROADS] Fetched area: features=%d endpoint=%s", len(features), endpoint)
			if c.cache != nil {
				if cacheErr := c.cache.Set(ctx, bbox, profile, features); cacheErr != nil {
					log.Printf("[ROADS] Cache write failed: err=%v", cacheErr)
				}
			}
			return features, nil
		}

		lastErr = err
		if attempt < c.maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			log.Printf("[ROADS] Retry %d/%d: endpoint=%s backoff=%v err=%v",
				attempt+1, c.maxRetries, endpoint, backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	log.Printf("[ERROR] Road fetch failed after %d attempts: err=%v", c.maxRetries, lastErr)
	return nil, &ErrRoadFetchFailed{Reason: lastErr.Error()}
}

func (c *Client) fetchOnce(ctx context.Context, endpoint, query string) ([]models.RoadFeature, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var parsed overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	features := make([]models.RoadFeature, 0, len(parsed.Elements))
	for _, el := range parsed.Elements {
		if el.Type != "way" || len(el.Geometry) < 2 {
			continue
		}
		id := fmt.Sprintf("way/%d", el.ID)
		if el.ID == 0 {
			// Some mirrors omit ids; give the feature a stable one so the
			// merge can still deduplicate.
			id = uuid.NewString()
		}
		points := make([]models.Coordinates, len(el.Geometry))
		for i, g := range el.Geometry {
			points[i] = models.Coordinates{Lat: g.Lat, Lng: g.Lon}
		}
		features = append(features, models.RoadFeature{ID: id, Tags: el.Tags, Points: points})
	}
	return features, nil
}

// FetchForCells groups cells by dominant cardinal direction, fetches each
// partition concurrently and merges the results deduplicated by feature id
func (c *Client) FetchForCells(ctx context.Context, cells []models.SelectedCell, profile string) ([]models.RoadFeature, error) {
	if len(cells) == 0 {
		return nil, nil
	}

	partitions := PartitionCells(cells)
	log.Printf("[ROADS] Fetching partitions: cells=%d partitions=%d profile=%s",
		len(cells), len(partitions), profile)

	var (
		mu      sync.Mutex
		merged  []models.RoadFeature
		seen    = make(map[string]bool)
		skipped int
		wg      sync.WaitGroup
	)

	for _, bbox := range partitions {
		wg.Add(1)
		go func(bbox models.BoundingBox) {
			defer wg.Done()

			features, err := c.FetchArea(ctx, bbox, profile)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Degrade: cells in this partition fall back to center
				// waypoints downstream.
				skipped++
				return
			}
			for _, f := range features {
				if seen[f.ID] {
					continue
				}
				seen[f.ID] = true
				merged = append(merged, f)
			}
		}(bbox)
	}
	wg.Wait()

	if skipped > 0 {
		log.Printf("[ROADS] Partitions skipped after retries: skipped=%d/%d", skipped, len(partitions))
	}
	log.Printf("[ROADS] Merge complete: features=%d", len(merged))
	return merged, nil
}

// PartitionCells groups cells by their dominant cardinal direction and
// returns one padded bounding box per group. Cells without a direction tag
// form their own group.
func PartitionCells(cells []models.SelectedCell) []models.BoundingBox {
	groups := make(map[models.Direction][]models.SelectedCell)
	order := []models.Direction{models.North, models.South, models.East, models.West, ""}

	for _, cell := range cells {
		var dir models.Direction
		if len(cell.Directions) > 0 {
			dir = cell.Directions[0]
		}
		groups[dir] = append(groups[dir], cell)
	}

	var boxes []models.BoundingBox
	for _, dir := range order {
		group := groups[dir]
		if len(group) == 0 {
			continue
		}
		box := models.BoundingBox{
			MinLat: group[0].Bounds.South,
			MaxLat: group[0].Bounds.North,
			MinLng: group[0].Bounds.West,
			MaxLng: group[0].Bounds.East,
		}
		for _, cell := range group[1:] {
			if cell.Bounds.South < box.MinLat {
				box.MinLat = cell.Bounds.South
			}
			if cell.Bounds.North > box.MaxLat {
				box.MaxLat = cell.Bounds.North
			}
			if cell.Bounds.West < box.MinLng {
				box.MinLng = cell.Bounds.West
			}
			if cell.Bounds.East > box.MaxLng {
				box.MaxLng = cell.Bounds.East
			}
		}
		boxes = append(boxes, pad(box))
	}
	return boxes
}

// pad grows a partition box slightly so roads just outside the cells still
// count as connecting
const padDegrees = 0.001

func pad(b models.BoundingBox) models.BoundingBox {
	return models.BoundingBox{
		MinLat: b.MinLat - padDegrees,
		MaxLat: b.MaxLat + padDegrees,
		MinLng: b.MinLng - padDegrees,
		MaxLng: b.MaxLng + padDegrees,
	}
}
