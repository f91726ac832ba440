package motion

import (
	"context"
	"log"
	"sync"
	"time"
)

type Config struct {
	// Window qualification.
	MinWindow           time.Duration
	MaxWindow           time.Duration
	Retention           time.Duration // hard bound on sample age
	VehicleTimeRatio    float64
	ConfidenceThreshold float64

	// Analysis cadence per state.
	NormalInterval     time.Duration
	FastInterval       time.Duration
	LowInterval        time.Duration
	BackgroundInterval time.Duration

	// State transitions and cleanup.
	LowAfter            int           // consecutive misses before Low
	BackgroundAfter     int           // consecutive misses before Background
	AggressiveTrimAfter int           // consecutive misses before shrinking retention
	AggressiveTrimBy    time.Duration // how much retention shrinks when trimming hard
}

func DefaultConfig() Config {
	return Config{
		MinWindow:           time.Minute,
		MaxWindow:           5 * time.Minute,
		Retention:           5 * time.Minute,
		VehicleTimeRatio:    0.6,
		ConfidenceThreshold: 70,
		NormalInterval:      time.Minute,
		FastInterval:        30 * time.Second,
		LowInterval:         2 * time.Minute,
		BackgroundInterval:  5 * time.Minute,
		LowAfter:            5,
		BackgroundAfter:     15,
		AggressiveTrimAfter: 10,
		AggressiveTrimBy:    2 * time.Minute,
	}
}

// Classifier keeps a bounded time-ordered window of activity samples and
// fires one trigger per confirmed driving episode. The window is cleared
// completely after a detection so stale samples cannot re-trigger.
type Classifier struct {
	cfg Config

	mu                 sync.Mutex
	window             []Sample
	lastAnalysis       time.Time
	analyzed           bool
	consecutiveDriving int
	consecutiveIdle    int
	state              State
	cancel             context.CancelFunc
	destroyed          bool

	trigger chan struct{}
	now     func() time.Time
}

func NewClassifier(cfg Config) *Classifier {
	if cfg.MinWindow <= 0 {
		cfg = DefaultConfig()
	}
	return &Classifier{
		cfg:     cfg,
		state:   StateNormal,
		trigger: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Trigger fires once per confirmed driving episode. Zero replay: a consumer
// that subscribes late sees only future episodes.
func (c *Classifier) Trigger() <-chan struct{} { return c.trigger }

// Start consumes activity samples until the context ends or Stop is called.
// Starting while running is a no-op.
func (c *Classifier) Start(ctx context.Context, samples <-chan Sample) {
	c.mu.Lock()
	if c.cancel != nil || c.destroyed {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-samples:
				if !ok {
					return
				}
				c.Add(s)
			}
		}
	}()
}

func (c *Classifier) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Clear empties the window and resets the cadence counters.
func (c *Classifier) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = nil
	c.analyzed = false
	c.consecutiveDriving = 0
	c.consecutiveIdle = 0
	c.state = StateNormal
}

// Destroy stops consumption and closes the trigger stream.
func (c *Classifier) Destroy() {
	c.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.destroyed {
		c.destroyed = true
		close(c.trigger)
	}
}

// State reports the current analysis cadence.
func (c *Classifier) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WindowSize reports how many samples the window currently holds.
func (c *Classifier) WindowSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.window)
}

// Add appends one sample and, when the throttle allows, runs the
// sliding-window analysis.
func (c *Classifier) Add(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	if s.Time.IsZero() {
		s.Time = c.now()
	}
	c.window = append(c.window, s)

	now := c.now()
	if !c.shouldAnalyze(now) {
		return
	}
	c.analyzed = true
	c.lastAnalysis = now

	retained := c.retained(now, c.cfg.Retention)
	if c.findDrivingWindow(retained) {
		c.consecutiveDriving++
		c.consecutiveIdle = 0
		c.window = nil // never re-trigger on the same data
		c.state = nextState(c.consecutiveDriving, 0, c.cfg)
		log.Printf("[motion] driving episode confirmed (cadence %s)", c.state)
		select {
		case c.trigger <- struct{}{}:
		default:
		}
		return
	}

	c.consecutiveDriving = 0
	c.consecutiveIdle++

	retention := c.cfg.Retention
	if c.consecutiveIdle >= c.cfg.AggressiveTrimAfter {
		retention -= c.cfg.AggressiveTrimBy
		if retention < c.cfg.MinWindow {
			retention = c.cfg.MinWindow
		}
	}
	c.window = c.retained(now, retention)
	c.state = nextState(0, c.consecutiveIdle, c.cfg)
}

// shouldAnalyze gates analysis: at least two samples overall, the cadence
// interval elapsed (or never analyzed), and at least two samples young
// enough to matter.
func (c *Classifier) shouldAnalyze(now time.Time) bool {
	if len(c.window) < 2 {
		return false
	}
	if c.analyzed && now.Sub(c.lastAnalysis) < c.cfg.interval(c.state) {
		return false
	}
	return len(c.retained(now, c.cfg.Retention)) >= 2
}

// retained returns the suffix of the window younger than maxAge.
func (c *Classifier) retained(now time.Time, maxAge time.Duration) []Sample {
	cutoff := now.Add(-maxAge)
	for i, s := range c.window {
		if s.Time.After(cutoff) {
			return c.window[i:]
		}
	}
	return nil
}

// findDrivingWindow scans every candidate window between MinWindow and
// MaxWindow with two pointers over prefix sums. A window qualifies when the
// duration-weighted share of in-vehicle time meets VehicleTimeRatio and the
// duration-weighted mean confidence meets ConfidenceThreshold.
func (c *Classifier) findDrivingWindow(samples []Sample) bool {
	n := len(samples)
	if n < 2 {
		return false
	}

	// Prefix sums over inter-sample segments: segment i spans samples[i] to
	// samples[i+1] and carries samples[i]'s state and confidence.
	vehicleSec := make([]float64, n)
	confSec := make([]float64, n)
	for i := 1; i < n; i++ {
		seg := samples[i].Time.Sub(samples[i-1].Time).Seconds()
		vehicleSec[i] = vehicleSec[i-1]
		confSec[i] = confSec[i-1] + float64(samples[i-1].Confidence)*seg
		if samples[i-1].Activity == InVehicle {
			vehicleSec[i] += seg
		}
	}

	left := 0
	for right := 1; right < n; right++ {
		for samples[right].Time.Sub(samples[left].Time) > c.cfg.MaxWindow {
			left++
		}
		total := samples[right].Time.Sub(samples[left].Time)
		if total < c.cfg.MinWindow {
			continue
		}
		totalSec := total.Seconds()
		vehicle := vehicleSec[right] - vehicleSec[left]
		avgConf := (confSec[right] - confSec[left]) / totalSec
		if vehicle/totalSec >= c.cfg.VehicleTimeRatio && avgConf >= c.cfg.ConfidenceThreshold {
			return true
		}
	}
	return false
}
