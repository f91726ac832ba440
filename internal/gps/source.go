package gps

import "sync"

// Source is a stream of raw position fixes.
type Source interface {
	// Positions returns the fix channel. It is closed when the source stops.
	Positions() <-chan Fix
	Stop() error
}

// ChannelSource is a Source fed by pushing fixes in from the outside: a
// platform adapter, a replayed recording, or a test.
type ChannelSource struct {
	mu     sync.Mutex
	ch     chan Fix
	closed bool
}

func NewChannelSource(buffer int) *ChannelSource {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSource{ch: make(chan Fix, buffer)}
}

// Push delivers one fix downstream. Pushes after Stop, or against a full
// buffer, are dropped; Push never blocks.
func (s *ChannelSource) Push(f Fix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- f:
	default:
	}
}

func (s *ChannelSource) Positions() <-chan Fix { return s.ch }

func (s *ChannelSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Broadcaster fans one position source out to several independent consumers.
// Each subscriber gets its own buffered channel; a slow subscriber drops
// fixes rather than stalling the others. Late subscribers receive the single
// most recent fix, then the live stream.
type Broadcaster struct {
	source Source

	mu      sync.Mutex
	subs    map[chan Fix]struct{}
	last    Fix
	hasLast bool
	done    chan struct{}
}

func NewBroadcaster(source Source) *Broadcaster {
	b := &Broadcaster{
		source: source,
		subs:   map[chan Fix]struct{}{},
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broadcaster) run() {
	defer close(b.done)
	for f := range b.source.Positions() {
		b.mu.Lock()
		b.last = f
		b.hasLast = true
		for ch := range b.subs {
			select {
			case ch <- f:
			default:
			}
		}
		b.mu.Unlock()
	}

	b.mu.Lock()
	for ch := range b.subs {
		close(ch)
	}
	b.subs = map[chan Fix]struct{}{}
	b.mu.Unlock()
}

// Subscribe registers a new consumer. The returned channel is closed when
// the underlying source stops.
func (b *Broadcaster) Subscribe() <-chan Fix {
	ch := make(chan Fix, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hasLast {
		ch <- b.last
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe detaches a consumer obtained from Subscribe.
func (b *Broadcaster) Unsubscribe(sub <-chan Fix) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		if ch == sub {
			delete(b.subs, ch)
			close(ch)
			return
		}
	}
}

// Stop halts the underlying source and waits for fan-out to drain.
func (b *Broadcaster) Stop() error {
	err := b.source.Stop()
	<-b.done
	return err
}
