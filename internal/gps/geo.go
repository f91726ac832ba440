package gps

import (
	"errors"
	"math"
)

const earthRadiusMeters = 6371000

var ErrNoFixes = errors.New("no fixes")

// Distance returns the great-circle distance between two fixes in meters.
func Distance(a, b Fix) float64 {
	return haversineMeters(a.Lat, a.Lon, b.Lat, b.Lon)
}

// InRadius reports whether p lies within radiusMeters of center.
func InRadius(center, p Fix, radiusMeters float64) bool {
	return Distance(center, p) <= radiusMeters
}

// AllInRadius reports whether every fix lies within radiusMeters of center.
// An empty slice is vacuously inside.
func AllInRadius(center Fix, fixes []Fix, radiusMeters float64) bool {
	for _, f := range fixes {
		if !InRadius(center, f, radiusMeters) {
			return false
		}
	}
	return true
}

// GeographicCenter returns the arithmetic mean of the fix coordinates and
// accuracies. Longitudes are averaged naively, so results near the ±180°
// meridian or the poles are approximate.
func GeographicCenter(fixes []Fix) (Center, error) {
	if len(fixes) == 0 {
		return Center{}, ErrNoFixes
	}

	var lat, lon, acc float64
	for _, f := range fixes {
		lat += f.Lat
		lon += f.Lon
		acc += f.Accuracy
	}
	n := float64(len(fixes))

	return Center{
		Lat:   lat / n,
		Lon:   lon / n,
		Error: int(math.Round(acc / n)),
	}, nil
}

// haversineMeters calculates the distance between two points in meters.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
