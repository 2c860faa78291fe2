// README: Redis GEO index keyed by an arbitrary member id (pickup points, drivers).
package geo

import (
	"context"

	"github.com/redis/go-redis/v9"

	"antar/internal/types"
)

const (
	PickupIndexKey = "geo:pickups"
	DriverIndexKey = "geo:drivers"
)

type Index struct {
	redis *redis.Client
	key   string
}

func NewIndex(client *redis.Client, key string) *Index {
	return &Index{redis: client, key: key}
}

func (i *Index) Add(ctx context.Context, id types.ID, p types.Point) error {
	return i.redis.GeoAdd(ctx, i.key, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (i *Index) Remove(ctx context.Context, id types.ID) error {
	return i.redis.ZRem(ctx, i.key, string(id)).Err()
}

// Near returns member ids within radiusKm of p, closest first.
func (i *Index) Near(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := i.redis.GeoSearch(ctx, i.key, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for n, r := range results {
		ids[n] = types.ID(r)
	}
	return ids, nil
}
