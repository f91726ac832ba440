package tracker

import (
	"context"
	"log"
	"sync"
	"time"

	"roadlog/internal/session"
	"roadlog/internal/storage"
)

// SyncScheduler flushes the durable queue on a fixed interval, independent
// of live tracking. Large backlogs are split into bounded batches; a failed
// batch is left queued and does not block the batches after it.
type SyncScheduler struct {
	Store    *storage.Store
	Uploader Uploader
	Sessions session.Source

	Interval  time.Duration // default 10m
	BatchSize int           // default 100
	MaxFixAge time.Duration // optional: prune rows older than this each cycle

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Start launches the background loop. Calling it while already running is a
// no-op.
func (s *SyncScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	interval := s.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Flush(ctx); err != nil {
					log.Printf("[sync] flush: %v", err)
				}
			}
		}
	}()
}

// Stop cancels the loop and clears its handle. The batch attempt in flight
// finishes or fails on its own.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Flush runs one sync cycle immediately. Partial failures are logged per
// batch; only confirmed batches are deleted.
func (s *SyncScheduler) Flush(ctx context.Context) error {
	unsent, err := s.Store.UnsentFixes(ctx)
	if err != nil {
		return err
	}
	if len(unsent) == 0 {
		s.prune(ctx)
		return nil
	}

	sess := s.Sessions.Session()
	if sess == nil {
		log.Printf("[sync] %d fixes queued, no auth session, retrying later", len(unsent))
		return nil
	}

	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	// Queued rows can span trips; each trip flushes against its own remote
	// identifier, in arrival order.
	for _, tripID := range tripOrder(unsent) {
		remoteID, err := s.Store.TripRemoteID(ctx, tripID)
		if err != nil {
			log.Printf("[sync] trip %s: %v", tripID, err)
			continue
		}
		fixes := tripFixes(unsent, tripID)
		for start := 0; start < len(fixes); start += batchSize {
			end := start + batchSize
			if end > len(fixes) {
				end = len(fixes)
			}
			batch := fixes[start:end]
			if err := s.Uploader.UploadFixes(ctx, sess.Token, remoteID, batch); err != nil {
				log.Printf("[sync] batch of %d failed, kept queued: %v", len(batch), err)
				continue
			}
			ids := make([]int64, len(batch))
			for i, f := range batch {
				ids[i] = f.ID
			}
			if s.MaxFixAge > 0 {
				// Retention mode: confirmed rows stay for the audit window
				// and the age-based prune removes them.
				if err := s.Store.MarkSent(ctx, ids); err != nil {
					log.Printf("[sync] mark sent: %v", err)
				}
			} else if err := s.Store.DeleteFixes(ctx, ids); err != nil {
				log.Printf("[sync] delete after upload: %v", err)
			}
		}
	}

	s.prune(ctx)
	return nil
}

func (s *SyncScheduler) prune(ctx context.Context) {
	if s.MaxFixAge <= 0 {
		return
	}
	n, err := s.Store.PruneFixesBefore(ctx, time.Now().Add(-s.MaxFixAge))
	if err != nil {
		log.Printf("[sync] prune: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[sync] pruned %d fixes older than %s", n, s.MaxFixAge)
	}
}

func tripOrder(fixes []storage.StoredFix) []string {
	var order []string
	seen := map[string]bool{}
	for _, f := range fixes {
		if !seen[f.TripID] {
			seen[f.TripID] = true
			order = append(order, f.TripID)
		}
	}
	return order
}

func tripFixes(fixes []storage.StoredFix, tripID string) []storage.StoredFix {
	var out []storage.StoredFix
	for _, f := range fixes {
		if f.TripID == tripID {
			out = append(out, f)
		}
	}
	return out
}
