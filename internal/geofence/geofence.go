// Package geofence tracks circular regions around stops and republishes
// enter/exit transitions on a single broadcast stream.
package geofence

import (
	"context"
	"fmt"
	"log"
	"sync"

	"roadlog/internal/gps"
)

type Transition int

const (
	Entered Transition = iota
	Exited
)

func (t Transition) String() string {
	if t == Exited {
		return "exited"
	}
	return "entered"
}

// Event is one boundary crossing for a registered stop.
type Event struct {
	StopID     string
	StopType   string
	Transition Transition
}

// Region is a circular geofence around a stop.
type Region struct {
	ID       string
	StopType string
	Lat      float64
	Lon      float64
	Radius   float64 // meters
}

// Service owns the region set, evaluates fixes against it, and fans out
// transitions to every subscriber. Delivery is at-most-once with zero
// replay: a slow subscriber drops events rather than blocking the rest.
type Service struct {
	mu      sync.Mutex
	regions map[string]Region
	inside  map[string]bool
	subs    map[chan Event]struct{}
}

func NewService() *Service {
	return &Service{
		regions: map[string]Region{},
		inside:  map[string]bool{},
		subs:    map[chan Event]struct{}{},
	}
}

// Add registers one region. Invalid regions fail individually and never
// block others.
func (s *Service) Add(r Region) error {
	if r.ID == "" {
		return fmt.Errorf("geofence: region id required")
	}
	if r.Radius <= 0 {
		return fmt.Errorf("geofence %s: radius must be positive, got %.1f", r.ID, r.Radius)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[r.ID] = r
	return nil
}

// AddAll registers regions best-effort: failures are logged and skipped.
func (s *Service) AddAll(regions []Region) {
	for _, r := range regions {
		if err := s.Add(r); err != nil {
			log.Printf("[geofence] skipping region: %v", err)
		}
	}
}

func (s *Service) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.regions, id)
	delete(s.inside, id)
}

func (s *Service) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions = map[string]Region{}
	s.inside = map[string]bool{}
}

// Subscribe registers a transition consumer.
func (s *Service) Subscribe() <-chan Event {
	ch := make(chan Event, 8)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[ch] = struct{}{}
	return ch
}

func (s *Service) Unsubscribe(sub <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		if ch == sub {
			delete(s.subs, ch)
			close(ch)
			return
		}
	}
}

// Publish republishes one transition to all subscribers. Platform bridges
// and tests push synthetic events through here.
func (s *Service) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(e)
}

func (s *Service) publishLocked(e Event) {
	for ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Observe evaluates one fix against every region and publishes the
// transitions it causes.
func (s *Service) Observe(f gps.Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.regions {
		center := gps.Fix{Lat: r.Lat, Lon: r.Lon}
		now := gps.InRadius(center, f, r.Radius)
		was := s.inside[id]
		if now == was {
			continue
		}
		s.inside[id] = now
		ev := Event{StopID: id, StopType: r.StopType, Transition: Entered}
		if !now {
			ev.Transition = Exited
		}
		log.Printf("[geofence] %s stop %s", ev.Transition, id)
		s.publishLocked(ev)
	}
}

// Watch consumes a position stream and feeds Observe until the stream
// closes or the context ends.
func (s *Service) Watch(ctx context.Context, fixes <-chan gps.Fix) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-fixes:
			if !ok {
				return
			}
			s.Observe(f)
		}
	}
}
