package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squadrat-planner/internal/models"
)

func testCache(t *testing.T) *SQLiteRoadCache {
	t.Helper()
	cache, err := NewSQLiteRoadCache(filepath.Join(t.TempDir(), DefaultDBFileName))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestRoadCacheMissThenHit(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	bbox := models.BoundingBox{MinLat: 50.0, MaxLat: 50.1, MinLng: 8.0, MaxLng: 8.1}

	_, ok, err := cache.Get(ctx, bbox, "trekking")
	require.NoError(t, err)
	assert.False(t, ok)

	features := []models.RoadFeature{
		{
			ID:   "way/123",
			Tags: map[string]string{"highway": "residential"},
			Points: []models.Coordinates{
				{Lat: 50.01, Lng: 8.01},
				{Lat: 50.02, Lng: 8.02},
			},
		},
	}
	require.NoError(t, cache.Set(ctx, bbox, "trekking", features))

	got, ok, err := cache.Get(ctx, bbox, "trekking")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, features, got)
}

func TestRoadCacheKeyedByProfile(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	bbox := models.BoundingBox{MinLat: 50.0, MaxLat: 50.1, MinLng: 8.0, MaxLng: 8.1}
	require.NoError(t, cache.Set(ctx, bbox, "trekking", []models.RoadFeature{{ID: "a"}}))

	_, ok, err := cache.Get(ctx, bbox, "fastbike")
	require.NoError(t, err)
	assert.False(t, ok, "different profile must not hit")
}

func TestRoadCacheReplace(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	bbox := models.BoundingBox{MinLat: 50.0, MaxLat: 50.1, MinLng: 8.0, MaxLng: 8.1}
	require.NoError(t, cache.Set(ctx, bbox, "trekking", []models.RoadFeature{{ID: "old"}}))
	require.NoError(t, cache.Set(ctx, bbox, "trekking", []models.RoadFeature{{ID: "new"}}))

	got, ok, err := cache.Get(ctx, bbox, "trekking")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}
