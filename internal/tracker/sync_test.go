package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"roadlog/internal/gps"
	"roadlog/internal/session"
	"roadlog/internal/storage"
)

func seedFixes(t *testing.T, store *storage.Store, tripID string, n int) {
	t.Helper()
	base := time.Now().Add(-time.Duration(n) * time.Second)
	for i := 0; i < n; i++ {
		fix := gps.Fix{Lat: 43.65, Lon: -79.38, Accuracy: 15, Time: base.Add(time.Duration(i) * time.Second)}
		if _, err := store.InsertFix(context.Background(), tripID, fix, nil); err != nil {
			t.Fatalf("seed fix %d: %v", i, err)
		}
	}
}

func TestFlushPartialBatchFailure(t *testing.T) {
	store := newTestStore(t)
	tripID, err := store.EnsureTrip(context.Background(), "", "remote-9")
	if err != nil {
		t.Fatalf("ensure trip: %v", err)
	}
	seedFixes(t, store, tripID, 150)

	// First batch of 100 succeeds, second batch of 50 fails.
	uploads := &stubUploader{errs: []error{nil, errors.New("server down")}}
	s := &SyncScheduler{
		Store:     store,
		Uploader:  uploads,
		Sessions:  staticSessions{sess: &session.Session{Token: "tok"}},
		BatchSize: 100,
	}

	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	calls := uploads.calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(calls))
	}
	if len(calls[0]) != 100 || len(calls[1]) != 50 {
		t.Fatalf("wrong batch sizes: %d and %d", len(calls[0]), len(calls[1]))
	}

	count, err := store.CountUnsent(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 50 {
		t.Fatalf("expected the failed batch kept queued, got %d rows", count)
	}

	// The next flush retries only what is left.
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	calls = uploads.calls()
	if len(calls) != 3 || len(calls[2]) != 50 {
		t.Fatalf("expected retry batch of 50, got %d calls", len(calls))
	}
	count, _ = store.CountUnsent(context.Background())
	if count != 0 {
		t.Fatalf("expected queue drained, got %d rows", count)
	}
}

func TestFlushGroupsByTrip(t *testing.T) {
	store := newTestStore(t)
	tripA, err := store.EnsureTrip(context.Background(), "", "remote-a")
	if err != nil {
		t.Fatalf("ensure trip: %v", err)
	}
	tripB, err := store.EnsureTrip(context.Background(), "", "remote-b")
	if err != nil {
		t.Fatalf("ensure trip: %v", err)
	}
	seedFixes(t, store, tripA, 3)
	seedFixes(t, store, tripB, 2)

	uploads := &stubUploader{}
	s := &SyncScheduler{
		Store:    store,
		Uploader: uploads,
		Sessions: staticSessions{sess: &session.Session{Token: "tok"}},
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	calls := uploads.calls()
	if len(calls) != 2 {
		t.Fatalf("expected one batch per trip, got %d", len(calls))
	}
	if len(calls[0]) != 3 || calls[0][0].TripID != tripA {
		t.Fatalf("first batch should be trip A's 3 fixes")
	}
	if len(calls[1]) != 2 || calls[1][0].TripID != tripB {
		t.Fatalf("second batch should be trip B's 2 fixes")
	}
	count, _ := store.CountUnsent(context.Background())
	if count != 0 {
		t.Fatalf("expected both trips drained, got %d rows", count)
	}
}

func TestFlushWithoutSessionLeavesQueue(t *testing.T) {
	store := newTestStore(t)
	tripID, err := store.EnsureTrip(context.Background(), "", "remote-9")
	if err != nil {
		t.Fatalf("ensure trip: %v", err)
	}
	seedFixes(t, store, tripID, 5)

	uploads := &stubUploader{}
	s := &SyncScheduler{
		Store:    store,
		Uploader: uploads,
		Sessions: staticSessions{},
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(uploads.calls()) != 0 {
		t.Fatalf("no upload should happen without a session")
	}
	count, _ := store.CountUnsent(context.Background())
	if count != 5 {
		t.Fatalf("expected queue untouched, got %d rows", count)
	}
}

func TestFlushPrunesOldFixes(t *testing.T) {
	store := newTestStore(t)
	tripID, err := store.EnsureTrip(context.Background(), "", "remote-9")
	if err != nil {
		t.Fatalf("ensure trip: %v", err)
	}
	old := gps.Fix{Lat: 1, Lon: 1, Accuracy: 10, Time: time.Now().Add(-72 * time.Hour)}
	if _, err := store.InsertFix(context.Background(), tripID, old, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Upload fails so the row survives to the prune step.
	uploads := &stubUploader{errs: []error{errors.New("server down")}}
	s := &SyncScheduler{
		Store:     store,
		Uploader:  uploads,
		Sessions:  staticSessions{sess: &session.Session{Token: "tok"}},
		MaxFixAge: 48 * time.Hour,
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	count, _ := store.CountUnsent(context.Background())
	if count != 0 {
		t.Fatalf("expected stale row pruned, got %d", count)
	}
}

func TestFlushRetainsConfirmedRowsUntilPruned(t *testing.T) {
	store := newTestStore(t)
	tripID, err := store.EnsureTrip(context.Background(), "", "remote-9")
	if err != nil {
		t.Fatalf("ensure trip: %v", err)
	}
	fix := gps.Fix{Lat: 43.65, Lon: -79.38, Accuracy: 15, Time: time.Now().Add(-time.Hour)}
	if _, err := store.InsertFix(context.Background(), tripID, fix, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	uploads := &stubUploader{}
	s := &SyncScheduler{
		Store:     store,
		Uploader:  uploads,
		Sessions:  staticSessions{sess: &session.Session{Token: "tok"}},
		MaxFixAge: 48 * time.Hour,
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(uploads.calls()) != 1 {
		t.Fatalf("expected one upload, got %d", len(uploads.calls()))
	}

	// The confirmed row leaves the queue but stays stored for the audit
	// window; only the age-based prune removes it.
	count, err := store.CountUnsent(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty queue after confirmed upload, got %d", count)
	}
	pruned, err := store.PruneFixesBefore(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected the retained row pruned, got %d", pruned)
	}

	// A second flush has nothing to re-upload.
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if len(uploads.calls()) != 1 {
		t.Fatalf("confirmed rows must not be re-uploaded")
	}
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	store := newTestStore(t)
	s := &SyncScheduler{
		Store:    store,
		Uploader: &stubUploader{},
		Sessions: staticSessions{},
		Interval: time.Hour,
	}
	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx) // no-op while running
	s.Stop()
	s.Stop() // no-op when stopped
}
