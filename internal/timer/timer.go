// Package timer provides a single-shot cancellable delay, used to detect
// dwelling at a stop.
package timer

import (
	"sync"
	"time"
)

// OneShot emits exactly one value on C after the delay given to Start,
// unless Stop runs first. Start while scheduled is a no-op: the original
// delay stands. Stop is idempotent.
type OneShot struct {
	mu      sync.Mutex
	timer   *time.Timer
	running bool
	gen     uint64
	c       chan struct{}
}

func NewOneShot() *OneShot {
	return &OneShot{c: make(chan struct{}, 1)}
}

// C is the event channel. At most one value is buffered; an unconsumed
// event does not block the next Start.
func (o *OneShot) C() <-chan struct{} { return o.c }

func (o *OneShot) Start(delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return
	}
	o.running = true
	o.gen++
	gen := o.gen
	o.timer = time.AfterFunc(delay, func() { o.fire(gen) })
}

func (o *OneShot) fire(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	// A Stop (or a newer Start) observed between expiry and here wins.
	if !o.running || gen != o.gen {
		return
	}
	o.running = false
	o.timer = nil
	select {
	case o.c <- struct{}{}:
	default:
	}
}

func (o *OneShot) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.running = false
}

func (o *OneShot) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}
