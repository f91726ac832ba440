package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"roadlog/internal/battery"
	"roadlog/internal/gps"
	"roadlog/internal/session"
	"roadlog/internal/storage"
)

// ErrNoSession means tracking continued but nothing could be uploaded
// because no authenticated identity was available. Recoverable: the queue
// keeps growing and the next fix retries.
var ErrNoSession = errors.New("no auth session")

// Uploader sends one batch of queued fixes in a single request.
type Uploader interface {
	UploadFixes(ctx context.Context, token, tripRemoteID string, fixes []storage.StoredFix) error
}

// PositionStream hands out independent fix subscriptions and can halt the
// underlying source.
type PositionStream interface {
	Subscribe() <-chan gps.Fix
	Stop() error
}

// Recorder is the orchestrator: per incoming fix it consults the engine,
// persists accepted fixes, opportunistically uploads everything unsent, and
// deletes rows only on confirmed success.
type Recorder struct {
	Positions PositionStream
	Engine    *Engine
	Store     *storage.Store
	Uploader  Uploader
	Sessions  session.Source
	Battery   battery.Accessor

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// Start resolves the trip and begins consuming fixes. The returned channel
// carries one decision per fix, annotated with any persist/upload failure,
// and closes when tracking stops.
func (r *Recorder) Start(ctx context.Context, tripID string) (<-chan Decision, error) {
	remoteID, err := r.Store.TripRemoteID(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("resolve trip %s: %w", tripID, err)
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, errors.New("already tracking")
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	sub := r.Positions.Subscribe()
	out := make(chan Decision, 16)

	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case fix, ok := <-sub:
				if !ok {
					return
				}
				d := r.handleFix(ctx, tripID, remoteID, fix)
				select {
				case out <- d:
				default:
					// Nobody is reading decisions; tracking must not stall.
				}
			}
		}
	}()

	return out, nil
}

// Stop halts consumption of new fixes and the underlying position source.
// An upload already in flight finishes or fails on its own.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.running = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return r.Positions.Stop()
}

// handleFix runs the persist → batch-read → upload → delete cycle for one
// fix. Every failure is recovered into the decision; the stream never dies
// on a bad cycle.
func (r *Recorder) handleFix(ctx context.Context, tripID, remoteID string, fix gps.Fix) Decision {
	d := r.Engine.Evaluate(fix)
	if !d.Send {
		return d
	}

	var level *float64
	if r.Battery != nil {
		if v, ok := r.Battery.Level(); ok {
			level = &v
		}
	}

	if _, err := r.Store.InsertFix(ctx, tripID, fix, level); err != nil {
		return r.fail(d, err, "persistence")
	}
	r.Engine.RecordSaved(fix)

	// Upload everything still unsent, not just this fix: a slow previous
	// cycle leaves rows behind that ride along now.
	unsent, err := r.Store.UnsentFixes(ctx)
	if err != nil {
		return r.fail(d, err, "persistence")
	}

	sess := r.Sessions.Session()
	if sess == nil {
		return r.fail(d, ErrNoSession, "auth")
	}

	if err := r.Uploader.UploadFixes(ctx, sess.Token, remoteID, unsent); err != nil {
		// Rows stay queued; the next fix or the sync scheduler retries.
		return r.fail(d, err, "upload")
	}
	r.Engine.RecordSent(len(unsent), fix)

	ids := make([]int64, len(unsent))
	for i, f := range unsent {
		ids[i] = f.ID
	}
	if err := r.Store.DeleteFixes(ctx, ids); err != nil {
		return r.fail(d, err, "persistence")
	}

	d.Stats = r.Engine.Stats()
	return d
}

func (r *Recorder) fail(d Decision, err error, kind string) Decision {
	r.Engine.RecordSendError(err, kind)
	d.Err = err
	d.Stats = r.Engine.Stats()
	return d
}
