// Package routeservice talks to the external BRouter-style routing service:
// ordered waypoints plus a vehicle profile in, route geometry with elevation
// and aggregate stats out. Failures carry an explicit kind so the caller's
// fallback chain can match on category instead of message text.
package routeservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"squadrat-planner/internal/models"
)

// Profiles lists the known vehicle profiles in fallback order
var Profiles = []string{"trekking", "fastbike", "shortest"}

// ErrorKind categorizes a routing-service failure
type ErrorKind string

const (
	// KindTransport is a timeout, HTTP failure or rate limit; retryable.
	KindTransport ErrorKind = "transport"
	// KindCoverage means a waypoint falls outside the service's data area;
	// triggers the simplification tier, not the profile tier.
	KindCoverage ErrorKind = "coverage"
	// KindRouting is a generic routing failure; triggers the profile tier.
	KindRouting ErrorKind = "routing"
)

// ServiceError is a categorized routing-service failure
type ServiceError struct {
	Kind    ErrorKind
	Profile string
	Reason  string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("routing service error (%s, profile=%s): %s", e.Kind, e.Profile, e.Reason)
}

// RouteGeometry is one successful routing response
type RouteGeometry struct {
	Points         []models.RoutePoint
	DistanceKm     float64
	TimeMin        float64
	ElevationGainM float64
}

// Service submits waypoint sequences to the external routing service
type Service interface {
	SubmitRoute(ctx context.Context, waypoints []models.Coordinates, profile string) (*RouteGeometry, error)
}

// Client is a BRouter HTTP client
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a routing-service client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		maxRetries: 3,
	}
}

type brouterResponse struct {
	Features []struct {
		Properties struct {
			TrackLength    string `json:"track-length"`
			TotalTime      string `json:"total-time"`
			FilteredAscend string `json:"filtered ascend"`
		} `json:"properties"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// SubmitRoute requests route geometry through the given waypoints. Transport
// failures are retried with backoff; coverage and routing failures are
// returned immediately for the caller's fallback chain.
func (c *Client) SubmitRoute(ctx context.Context, waypoints []models.Coordinates, profile string) (*RouteGeometry, error) {
	if len(waypoints) < 2 {
		return nil, &ServiceError{Kind: KindRouting, Profile: profile, Reason: "need at least 2 waypoints"}
	}

	lonlats := make([]string, len(waypoints))
	for i, wp := range waypoints {
		lonlats[i] = fmt.Sprintf("%.6f,%.6f", wp.Lng, wp.Lat)
	}
	queryURL := fmt.Sprintf("%s/brouter?lonlats=%s&profile=%s&alternativeidx=0&format=geojson",
		c.baseURL, url.QueryEscape(strings.Join(lonlats, "|")), url.QueryEscape(profile))

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		geometry, err := c.submitOnce(ctx, queryURL, profile, len(waypoints))
		if err == nil {
			return geometry, nil
		}

		var svcErr *ServiceError
		if !errors.As(err, &svcErr) || svcErr.Kind != KindTransport {
			return nil, err
		}
		lastErr = err

		if attempt < c.maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			log.Printf("[ROUTE] Retry %d/%d: profile=%s backoff=%v err=%v",
				attempt+1, c.maxRetries, profile, backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, lastErr
}

func (c *Client) submitOnce(ctx context.Context, queryURL, profile string, waypointCount int) (*RouteGeometry, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", queryURL, nil)
	if err != nil {
		return nil, &ServiceError{Kind: KindTransport, Profile: profile, Reason: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[ERROR] Routing request failed: profile=%s err=%v", profile, err)
		return nil, &ServiceError{Kind: KindTransport, Profile: profile, Reason: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Kind: KindTransport, Profile: profile, Reason: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp.StatusCode, string(body), profile)
	}

	var parsed brouterResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// BRouter reports errors as plain text with status 200.
		return nil, classify(resp.StatusCode, string(body), profile)
	}
	if len(parsed.Features) == 0 {
		return nil, &ServiceError{Kind: KindRouting, Profile: profile, Reason: "empty response"}
	}

	feature := parsed.Features[0]
	geometry := &RouteGeometry{
		Points: make([]models.RoutePoint, 0, len(feature.Geometry.Coordinates)),
	}
	for _, coord := range feature.Geometry.Coordinates {
		if len(coord) < 2 {
			continue
		}
		pt := models.RoutePoint{Lng: coord[0], Lat: coord[1]}
		if len(coord) > 2 {
			pt.Elevation = coord[2]
		}
		geometry.Points = append(geometry.Points, pt)
	}

	meters, _ := strconv.ParseFloat(feature.Properties.TrackLength, 64)
	seconds, _ := strconv.ParseFloat(feature.Properties.TotalTime, 64)
	ascend, _ := strconv.ParseFloat(feature.Properties.FilteredAscend, 64)
	geometry.DistanceKm = meters / 1000
	geometry.TimeMin = seconds / 60
	geometry.ElevationGainM = ascend

	log.Printf("[ROUTE] Route received: profile=%s waypoints=%d points=%d distance=%.1fkm",
		profile, waypointCount, len(geometry.Points), geometry.DistanceKm)
	return geometry, nil
}

// classify maps an error response to a kind. Coverage phrasing follows the
// BRouter wording for waypoints outside loaded data tiles.
func classify(status int, body, profile string) *ServiceError {
	lower := strings.ToLower(body)
	reason := fmt.Sprintf("HTTP %d: %s", status, strings.TrimSpace(body))

	switch {
	case strings.Contains(lower, "not mapped") ||
		strings.Contains(lower, "datafile") ||
		strings.Contains(lower, "outside"):
		return &ServiceError{Kind: KindCoverage, Profile: profile, Reason: reason}
	case status >= 500 || status == http.StatusTooManyRequests:
		return &ServiceError{Kind: KindTransport, Profile: profile, Reason: reason}
	default:
		return &ServiceError{Kind: KindRouting, Profile: profile, Reason: reason}
	}
}
