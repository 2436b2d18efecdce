package models

// Coordinates represents a geographic point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RoundCoordinate rounds a coordinate to 5 decimal places (~1m precision),
// used for cache keys and same-point checks
func RoundCoordinate(v float64) float64 {
	if v < 0 {
		return float64(int(v*100000-0.5)) / 100000
	}
	return float64(int(v*100000+0.5)) / 100000
}

// Ring is an ordered sequence of coordinates; the closing vertex may or may
// not be duplicated
type Ring []Coordinates

// Polygon is an outer ring with optional holes. Holes are assumed to lie
// within the outer ring; this is not validated.
type Polygon struct {
	Outer Ring   `json:"outer"`
	Holes []Ring `json:"holes,omitempty"`
}

// BoundingBox is an axis-aligned lat/lng box
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// Contains reports whether the point lies inside the box (inclusive)
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// CellKey identifies a grid cell by its integer lattice indices
type CellKey struct {
	I int `json:"i"`
	J int `json:"j"`
}

// CellRect is an inclusive range of cell indices
type CellRect struct {
	MinI int `json:"min_i"`
	MaxI int `json:"max_i"`
	MinJ int `json:"min_j"`
	MaxJ int `json:"max_j"`
}

// Contains reports whether the cell lies within the rect
func (r CellRect) Contains(k CellKey) bool {
	return k.I >= r.MinI && k.I <= r.MaxI && k.J >= r.MinJ && k.J <= r.MaxJ
}

// Expand grows the rect by n cells on all sides
func (r CellRect) Expand(n int) CellRect {
	return CellRect{MinI: r.MinI - n, MaxI: r.MaxI + n, MinJ: r.MinJ - n, MaxJ: r.MaxJ + n}
}

// GridParams describes the uniform lattice derived from a reference polygon.
// Cell (i,j) maps to the rectangle origin + i*step per axis.
type GridParams struct {
	LatStep    float64     `json:"lat_step"`
	LngStep    float64     `json:"lng_step"`
	OriginLat  float64     `json:"origin_lat"`
	OriginLng  float64     `json:"origin_lng"`
	Size       int         `json:"size"`
	BaseSquare CellRect    `json:"base_square"`
	Bounds     BoundingBox `json:"bounds"`
}

// CellBounds is the lat/lng rectangle of a single cell
type CellBounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Center returns the geometric center of the cell
func (c CellBounds) Center() Coordinates {
	return Coordinates{Lat: (c.South + c.North) / 2, Lng: (c.West + c.East) / 2}
}

// ContainsPoint reports whether the point lies inside the cell (inclusive)
func (c CellBounds) ContainsPoint(p Coordinates) bool {
	return p.Lat >= c.South && p.Lat <= c.North && p.Lng >= c.West && p.Lng <= c.East
}

// VisitedSet is the set of cells covered by the supplied track polygons.
// It is computed once per scan and treated as immutable afterwards.
type VisitedSet map[CellKey]struct{}

// Has reports membership
func (v VisitedSet) Has(k CellKey) bool {
	_, ok := v[k]
	return ok
}

// Add inserts a cell (only used while the scan builds the set)
func (v VisitedSet) Add(k CellKey) {
	v[k] = struct{}{}
}

// Direction is a cardinal direction relative to the base square
type Direction string

const (
	North Direction = "N"
	South Direction = "S"
	East  Direction = "E"
	West  Direction = "W"
)

// AllDirections lists the four cardinal directions
var AllDirections = []Direction{North, South, East, West}

// OptimizeMode selects which scoring terms the optimizer emphasizes
type OptimizeMode string

const (
	ModeBalanced OptimizeMode = "balanced"
	ModeEdge     OptimizeMode = "edge"
	ModeHoles    OptimizeMode = "holes"
)

// ScoreBreakdown itemizes the additive terms behind a candidate score
type ScoreBreakdown struct {
	Base      float64 `json:"base"`
	Layer     float64 `json:"layer"`
	Hole      float64 `json:"hole"`
	Edge      float64 `json:"edge"`
	Adjacency float64 `json:"adjacency"`
	Direction float64 `json:"direction"`
}

// Total sums all terms
func (s ScoreBreakdown) Total() float64 {
	return s.Base + s.Layer + s.Hole + s.Edge + s.Adjacency + s.Direction
}

// EdgeInfo describes the completion state of one border row/column just
// outside the base square
type EdgeInfo struct {
	Direction     Direction `json:"direction"`
	CompletionPct float64   `json:"completion_pct"`
	CanExpand     bool      `json:"can_expand"`
}

// SelectedCell is one optimizer pick, with full scoring transparency
type SelectedCell struct {
	GridCoords     CellKey        `json:"grid_coords"`
	Bounds         CellBounds     `json:"bounds"`
	Score          float64        `json:"score"`
	Breakdown      ScoreBreakdown `json:"score_breakdown"`
	LayerDistance  int            `json:"layer_distance"`
	SelectionOrder int            `json:"selection_order"`
	Directions     []Direction    `json:"directions,omitempty"`
	HoleID         int            `json:"hole_id,omitempty"`
	HoleSize       int            `json:"hole_size,omitempty"`
}

// RoadFeature is one line feature returned by the road-geometry service
type RoadFeature struct {
	ID     string            `json:"id"`
	Tags   map[string]string `json:"tags,omitempty"`
	Points []Coordinates     `json:"points"`
}

// WaypointType distinguishes how a waypoint was produced
type WaypointType string

const (
	WaypointStart        WaypointType = "start"
	WaypointIntersection WaypointType = "intersection"
	WaypointMidpoint     WaypointType = "midpoint"
	WaypointNearest      WaypointType = "nearest"
	WaypointCenter       WaypointType = "center"
)

// Waypoint is a routing via-point, optionally snapped onto a road.
// GridCoords is the stable identity of the originating cell and survives
// reordering.
type Waypoint struct {
	Coords       Coordinates   `json:"coords"`
	Type         WaypointType  `json:"type"`
	Priority     int           `json:"priority"`
	GridCoords   CellKey       `json:"grid_coords"`
	HasRoad      bool          `json:"has_road"`
	Alternatives []Coordinates `json:"alternatives,omitempty"`
}

// RoutePoint is one point of the final route geometry
type RoutePoint struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Elevation float64 `json:"elevation"`
}

// Route is the final planned route plus aggregate stats from the routing
// service
type Route struct {
	Coordinates         []RoutePoint `json:"coordinates"`
	DistanceKm          float64      `json:"distance_km"`
	ElevationGainM      float64      `json:"elevation_gain_m"`
	TimeMin             float64      `json:"time_min"`
	Waypoints           []Waypoint   `json:"waypoints"`
	SkippedSquareCoords []CellKey    `json:"skipped_square_coords,omitempty"`
	ProfileUsed         string       `json:"profile_used"`
	Simplified          bool         `json:"simplified"`
	Minimal             bool         `json:"minimal"`
}
