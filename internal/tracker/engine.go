// Package tracker contains the trip-recording pipeline: the decision engine
// that filters raw fixes, the recorder that persists and uploads them, and
// the scheduler that retries the queue in the background.
package tracker

import (
	"fmt"
	"log"
	"sync"
	"time"

	"roadlog/internal/gps"
)

type Thresholds struct {
	MaxAccuracy       float64 // meters; absolute ceiling, nothing overrides it
	MinSendInterval   time.Duration
	MinSendDistance   float64 // meters
	ForceSaveInterval time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxAccuracy:       70,
		MinSendInterval:   time.Minute,
		MinSendDistance:   500,
		ForceSaveInterval: 30 * time.Minute,
	}
}

// FixSummary is the displayed digest of a fix plus why it mattered.
type FixSummary struct {
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Accuracy float64   `json:"accuracy"`
	Time     time.Time `json:"time"`
	Reason   string    `json:"reason,omitempty"`
}

type SendError struct {
	Message string    `json:"message"`
	Kind    string    `json:"kind"`
	Time    time.Time `json:"time"`
}

// Stats is the running picture the application surfaces to the driver.
// Totals only grow; the "last" fields are overwritten in place.
type Stats struct {
	Saved        int64       `json:"saved"`
	Sent         int64       `json:"sent"`
	Filtered     int64       `json:"filtered"`
	LastFiltered *FixSummary `json:"last_filtered,omitempty"`
	LastSent     *FixSummary `json:"last_sent,omitempty"`
	LastError    *SendError  `json:"last_error,omitempty"`
}

// Decision is the outcome of evaluating one fix. Recomputed per fix, never
// persisted.
type Decision struct {
	Send       bool
	Forced     bool
	Reason     string
	Received   int64
	Sent       int64
	LastSentAt time.Time
	Stats      Stats
	Err        error // set when persist/upload failed after acceptance
}

// Engine is the stateful filter answering "should this fix be sent now".
// It is also the single source of truth for displayed statistics, even
// though persistence and upload happen in the recorder.
type Engine struct {
	thresholds Thresholds

	mu           sync.Mutex
	received     int64
	accepted     int64
	lastSentAt   time.Time
	lastSentFix  *gps.Fix
	lastForcedAt time.Time
	stats        Stats

	now func() time.Time
}

func NewEngine(t Thresholds) *Engine {
	e := &Engine{thresholds: t, now: time.Now}
	e.lastForcedAt = e.now()
	return e
}

// Evaluate decides whether the fix should be persisted and sent now.
func (e *Engine) Evaluate(fix gps.Fix) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.received++
	now := e.now()

	// The accuracy ceiling is absolute: neither elapsed time, distance, nor
	// a due forced save can push a noisy fix through. The forced-save clock
	// is left untouched so the heartbeat fires on the next clean fix.
	if fix.Accuracy > e.thresholds.MaxAccuracy {
		reason := fmt.Sprintf("accuracy %.0fm above %.0fm ceiling",
			fix.Accuracy, e.thresholds.MaxAccuracy)
		return e.reject(fix, reason)
	}

	sinceSend := now.Sub(e.lastSentAt)
	timePassed := e.lastSentFix == nil || sinceSend >= e.thresholds.MinSendInterval

	moved := 0.0
	distancePassed := true
	if e.lastSentFix != nil {
		moved = gps.Distance(*e.lastSentFix, fix)
		distancePassed = moved >= e.thresholds.MinSendDistance
	}

	switch {
	case timePassed || distancePassed:
		reason := "distance threshold passed"
		if e.lastSentFix == nil {
			reason = "first fix"
		} else if timePassed {
			reason = fmt.Sprintf("%.0fs since last send", sinceSend.Seconds())
		} else {
			reason = fmt.Sprintf("moved %.0fm", moved)
		}
		return e.accept(fix, now, reason, false)
	case now.Sub(e.lastForcedAt) >= e.thresholds.ForceSaveInterval:
		// Heartbeat: a stationary vehicle still reports periodically.
		e.lastForcedAt = now
		return e.accept(fix, now, "forced periodic save", true)
	default:
		reason := fmt.Sprintf("too soon (%.0fs < %.0fs) and too close (%.0fm < %.0fm)",
			sinceSend.Seconds(), e.thresholds.MinSendInterval.Seconds(),
			moved, e.thresholds.MinSendDistance)
		return e.reject(fix, reason)
	}
}

func (e *Engine) accept(fix gps.Fix, now time.Time, reason string, forced bool) Decision {
	e.accepted++
	e.lastSentAt = now
	f := fix
	e.lastSentFix = &f
	return Decision{
		Send:       true,
		Forced:     forced,
		Reason:     reason,
		Received:   e.received,
		Sent:       e.accepted,
		LastSentAt: e.lastSentAt,
		Stats:      e.snapshotLocked(),
	}
}

func (e *Engine) reject(fix gps.Fix, reason string) Decision {
	e.stats.Filtered++
	e.stats.LastFiltered = &FixSummary{
		Lat: fix.Lat, Lon: fix.Lon, Accuracy: fix.Accuracy, Time: fix.Time,
		Reason: reason,
	}
	log.Printf("[tracker] filtered fix: %s", reason)
	return Decision{
		Reason:     reason,
		Received:   e.received,
		Sent:       e.accepted,
		LastSentAt: e.lastSentAt,
		Stats:      e.snapshotLocked(),
	}
}

// RecordSaved notes that the recorder persisted an accepted fix locally.
func (e *Engine) RecordSaved(fix gps.Fix) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Saved++
}

// RecordSent notes a confirmed upload of n queued fixes, the last of which
// was fix.
func (e *Engine) RecordSent(n int, fix gps.Fix) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Sent += int64(n)
	e.stats.LastSent = &FixSummary{
		Lat: fix.Lat, Lon: fix.Lon, Accuracy: fix.Accuracy, Time: fix.Time,
	}
}

// RecordSendError notes a failed persist or upload attempt.
func (e *Engine) RecordSendError(err error, kind string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.LastError = &SendError{
		Message: err.Error(),
		Kind:    kind,
		Time:    e.now(),
	}
}

// Stats returns a copy safe to hand to other goroutines.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Stats {
	snap := e.stats
	if e.stats.LastFiltered != nil {
		v := *e.stats.LastFiltered
		snap.LastFiltered = &v
	}
	if e.stats.LastSent != nil {
		v := *e.stats.LastSent
		snap.LastSent = &v
	}
	if e.stats.LastError != nil {
		v := *e.stats.LastError
		snap.LastError = &v
	}
	return snap
}
