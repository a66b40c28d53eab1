package devserver

import (
	"context"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"courier/internal/geo"
)

const driverGeoKey = "drivers:locations"

// driverPosition is one geo index entry.
type driverPosition struct {
	DriverID      string
	Lat           float64
	Lng           float64
	DistanceMiles float64
}

// GeoIndex answers radius queries over driver positions.
type GeoIndex interface {
	Update(ctx context.Context, driverID string, lat, lng float64) error
	Remove(ctx context.Context, driverID string) error
	Near(ctx context.Context, lat, lng, radiusMiles float64) ([]driverPosition, error)
}

// RedisGeoIndex keeps driver positions in a Redis geo set.
type RedisGeoIndex struct {
	client *redis.Client
}

// NewRedisGeoIndex creates a Redis-backed geo index.
func NewRedisGeoIndex(client *redis.Client) *RedisGeoIndex {
	return &RedisGeoIndex{client: client}
}

var _ GeoIndex = (*RedisGeoIndex)(nil)

func (g *RedisGeoIndex) Update(ctx context.Context, driverID string, lat, lng float64) error {
	return g.client.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      driverID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

func (g *RedisGeoIndex) Remove(ctx context.Context, driverID string) error {
	return g.client.ZRem(ctx, driverGeoKey, driverID).Err()
}

func (g *RedisGeoIndex) Near(ctx context.Context, lat, lng, radiusMiles float64) ([]driverPosition, error) {
	results, err := g.client.GeoRadius(ctx, driverGeoKey, lng, lat, &redis.GeoRadiusQuery{
		Radius:    radiusMiles,
		Unit:      "mi",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	positions := make([]driverPosition, 0, len(results))
	for _, r := range results {
		positions = append(positions, driverPosition{
			DriverID:      r.Name,
			Lat:           r.Latitude,
			Lng:           r.Longitude,
			DistanceMiles: r.Dist,
		})
	}
	return positions, nil
}

// MemoryGeoIndex is the fallback index when Redis is not configured. It
// scans all positions with the haversine formula; fine for dev-sized data.
type MemoryGeoIndex struct {
	mu        sync.RWMutex
	positions map[string][2]float64 // driverID -> lat, lng
}

// NewMemoryGeoIndex creates an in-memory geo index.
func NewMemoryGeoIndex() *MemoryGeoIndex {
	return &MemoryGeoIndex{positions: make(map[string][2]float64)}
}

var _ GeoIndex = (*MemoryGeoIndex)(nil)

func (g *MemoryGeoIndex) Update(ctx context.Context, driverID string, lat, lng float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[driverID] = [2]float64{lat, lng}
	return nil
}

func (g *MemoryGeoIndex) Remove(ctx context.Context, driverID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.positions, driverID)
	return nil
}

func (g *MemoryGeoIndex) Near(ctx context.Context, lat, lng, radiusMiles float64) ([]driverPosition, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	positions := make([]driverPosition, 0)
	for driverID, pos := range g.positions {
		d := geo.Distance(lat, lng, pos[0], pos[1])
		if d <= radiusMiles {
			positions = append(positions, driverPosition{
				DriverID:      driverID,
				Lat:           pos[0],
				Lng:           pos[1],
				DistanceMiles: d,
			})
		}
	}
	sort.Slice(positions, func(a, b int) bool {
		return positions[a].DistanceMiles < positions[b].DistanceMiles
	})
	return positions, nil
}
