package gps

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// DemoSource emits simulated fixes driving a circle around a center point.
// Useful for development without a receiver attached.
type DemoSource struct {
	interval time.Duration

	mu     sync.Mutex
	ch     chan Fix
	closed bool
	stop   chan struct{}
}

func NewDemoSource(interval time.Duration) *DemoSource {
	if interval <= 0 {
		interval = time.Second
	}
	d := &DemoSource{
		interval: interval,
		ch:       make(chan Fix, 16),
		stop:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *DemoSource) run() {
	const (
		centerLat = 43.6532 // Toronto
		centerLon = -79.3832
		radius    = 0.005 // ~500m
	)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	var t float64
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
		}
		t += d.interval.Seconds()

		speed := 12 + 5*math.Sin(t*0.3) + rand.Float64()
		bearing := math.Mod(t*10, 360)
		fix := Fix{
			Lat:      centerLat + radius*math.Sin(t*0.1),
			Lon:      centerLon + radius*math.Cos(t*0.1),
			Accuracy: 4 + rand.Float64()*8,
			Speed:    &speed,
			Bearing:  &bearing,
			Time:     time.Now().UTC(),
		}

		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return
		}
		select {
		case d.ch <- fix:
		default:
		}
		d.mu.Unlock()
	}
}

func (d *DemoSource) Positions() <-chan Fix { return d.ch }

func (d *DemoSource) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.stop)
		close(d.ch)
	}
	return nil
}
