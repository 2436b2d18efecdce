// Package storage caches road-geometry fetches in SQLite so repeated
// optimization runs over the same area skip the network.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"squadrat-planner/internal/models"
)

const DefaultDBFileName = "roadcache.db"

// RoadCache stores fetched road features keyed by area and profile
type RoadCache interface {
	Get(ctx context.Context, bbox models.BoundingBox, profile string) ([]models.RoadFeature, bool, error)
	Set(ctx context.Context, bbox models.BoundingBox, profile string, features []models.RoadFeature) error
	Close() error
}

// SQLiteRoadCache is a file-backed RoadCache
type SQLiteRoadCache struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteRoadCache opens (and if needed creates) the cache database
func NewSQLiteRoadCache(dbPath string) (*SQLiteRoadCache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS road_cache (
		cache_key  TEXT PRIMARY KEY,
		features   TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	log.Printf("[CACHE] Road cache opened: path=%s", dbPath)
	return &SQLiteRoadCache{db: db}, nil
}

// makeCacheKey rounds the bbox so that near-identical areas hit the same row
func makeCacheKey(bbox models.BoundingBox, profile string) string {
	return fmt.Sprintf("%.5f,%.5f,%.5f,%.5f|%s",
		models.RoundCoordinate(bbox.MinLat),
		models.RoundCoordinate(bbox.MinLng),
		models.RoundCoordinate(bbox.MaxLat),
		models.RoundCoordinate(bbox.MaxLng),
		profile,
	)
}

func (c *SQLiteRoadCache) Get(ctx context.Context, bbox models.BoundingBox, profile string) ([]models.RoadFeature, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var payload string
	err := c.db.QueryRowContext(ctx,
		`SELECT features FROM road_cache WHERE cache_key = ?`,
		makeCacheKey(bbox, profile),
	).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read road cache: %w", err)
	}

	var features []models.RoadFeature
	if err := json.Unmarshal([]byte(payload), &features); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached features: %w", err)
	}
	return features, true, nil
}

func (c *SQLiteRoadCache) Set(ctx context.Context, bbox models.BoundingBox, profile string, features []models.RoadFeature) error {
	payload, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO road_cache (cache_key, features) VALUES (?, ?)`,
		makeCacheKey(bbox, profile), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to write road cache: %w", err)
	}
	return nil
}

func (c *SQLiteRoadCache) Close() error {
	return c.db.Close()
}
