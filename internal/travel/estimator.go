// Package travel estimates one-way drive time between geocoded points.
package travel

import (
	"context"
	"math"
	"time"

	"kribdispatch/internal/model"
)

// Estimator answers "how long to drive from A to B". Implementations
// never fail: a routing-backed estimator absorbs backend errors and
// answers from the distance fallback instead.
type Estimator interface {
	Estimate(ctx context.Context, from, to model.GeoPoint) time.Duration
}

// DefaultSpeedKph is the average speed assumed by the fallback
// estimator. Deliberately conservative for urban service areas.
const DefaultSpeedKph = 40.0

// Fallback estimates travel as straight-line distance over an average
// speed. It is symmetric and monotonic in distance, which is all the
// scheduler's contract requires.
type Fallback struct {
	SpeedKph float64
}

func (f Fallback) Estimate(_ context.Context, from, to model.GeoPoint) time.Duration {
	speed := f.SpeedKph
	if speed <= 0 {
		speed = DefaultSpeedKph
	}
	meters := HaversineMeters(from.Lat, from.Lng, to.Lat, to.Lng)
	sec := meters / (speed / 3.6)
	return time.Duration(sec * float64(time.Second))
}

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
