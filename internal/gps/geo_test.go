package gps

import (
	"math"
	"testing"
)

func TestDistanceIdenticalPoints(t *testing.T) {
	f := Fix{Lat: 43.6532, Lon: -79.3832}
	if d := Distance(f, f); d != 0 {
		t.Fatalf("expected zero distance, got %f", d)
	}
}

func TestDistanceKnownPair(t *testing.T) {
	// One degree of latitude is roughly 111.19 km on a 6371 km sphere.
	a := Fix{Lat: 0, Lon: 0}
	b := Fix{Lat: 1, Lon: 0}
	d := Distance(a, b)
	if math.Abs(d-111195) > 50 {
		t.Fatalf("expected ~111195m, got %f", d)
	}
}

func TestGeographicCenterUnitSquare(t *testing.T) {
	fixes := []Fix{
		{Lat: 0, Lon: 0, Accuracy: 10},
		{Lat: 0, Lon: 1, Accuracy: 10},
		{Lat: 1, Lon: 0, Accuracy: 10},
		{Lat: 1, Lon: 1, Accuracy: 10},
	}
	c, err := GeographicCenter(fixes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Lat != 0.5 || c.Lon != 0.5 {
		t.Fatalf("expected center (0.5, 0.5), got (%f, %f)", c.Lat, c.Lon)
	}
	if c.Error != 10 {
		t.Fatalf("expected error 10, got %d", c.Error)
	}
}

func TestGeographicCenterEmpty(t *testing.T) {
	if _, err := GeographicCenter(nil); err != ErrNoFixes {
		t.Fatalf("expected ErrNoFixes, got %v", err)
	}
}

func TestInRadius(t *testing.T) {
	center := Fix{Lat: 43.6532, Lon: -79.3832}
	near := Fix{Lat: 43.6535, Lon: -79.3832} // ~33m north
	far := Fix{Lat: 43.6632, Lon: -79.3832}  // ~1.1km north

	if !InRadius(center, near, 100) {
		t.Fatalf("expected near fix inside 100m")
	}
	if InRadius(center, far, 100) {
		t.Fatalf("expected far fix outside 100m")
	}
}

func TestAllInRadius(t *testing.T) {
	center := Fix{Lat: 43.6532, Lon: -79.3832}
	cluster := []Fix{
		{Lat: 43.6533, Lon: -79.3832},
		{Lat: 43.6532, Lon: -79.3830},
	}
	if !AllInRadius(center, cluster, 100) {
		t.Fatalf("expected cluster inside 100m")
	}
	cluster = append(cluster, Fix{Lat: 43.6632, Lon: -79.3832})
	if AllInRadius(center, cluster, 100) {
		t.Fatalf("expected outlier to fail the check")
	}
	if !AllInRadius(center, nil, 1) {
		t.Fatalf("expected empty slice to pass vacuously")
	}
}
