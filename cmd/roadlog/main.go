package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roadlog/internal/battery"
	"roadlog/internal/config"
	"roadlog/internal/geofence"
	"roadlog/internal/gps"
	"roadlog/internal/motion"
	"roadlog/internal/session"
	"roadlog/internal/storage"
	"roadlog/internal/timer"
	"roadlog/internal/tracker"
	"roadlog/internal/uploader"
	"roadlog/internal/web"
)

func main() {
	configPath := flag.String("config", "roadlog.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.API.TripID == "" {
		log.Fatalf("no remote trip id configured (api.trip_id or API_TRIP_ID)")
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	if err := store.InitSchema(context.Background()); err != nil {
		log.Fatalf("init schema: %v", err)
	}

	// Each daemon run records one trip against the configured remote id.
	tripID, err := store.EnsureTrip(context.Background(), "", cfg.API.TripID)
	if err != nil {
		log.Fatalf("register trip: %v", err)
	}

	sessions := session.NewManager()
	sessions.SetToken(cfg.API.Token)

	source, err := openSource(cfg.GPS)
	if err != nil {
		log.Fatalf("open gps source: %v", err)
	}
	positions := gps.NewBroadcaster(source)

	engine := tracker.NewEngine(tracker.Thresholds{
		MaxAccuracy:       cfg.Tracking.MaxAccuracyM,
		MinSendInterval:   time.Duration(cfg.Tracking.MinSendIntervalSec) * time.Second,
		MinSendDistance:   cfg.Tracking.MinSendDistanceM,
		ForceSaveInterval: time.Duration(cfg.Tracking.ForceSaveIntervalMin) * time.Minute,
	})
	client := &uploader.Client{BaseURL: cfg.API.BaseURL}

	var batteries battery.Accessor = battery.None{}
	if cfg.Battery.Device != "" {
		batteries = battery.Sysfs{Device: cfg.Battery.Device}
	}

	recorder := &tracker.Recorder{
		Positions: positions,
		Engine:    engine,
		Store:     store,
		Uploader:  client,
		Sessions:  sessions,
		Battery:   batteries,
	}

	scheduler := &tracker.SyncScheduler{
		Store:     store,
		Uploader:  client,
		Sessions:  sessions,
		Interval:  time.Duration(cfg.Sync.IntervalMin) * time.Minute,
		BatchSize: cfg.Sync.BatchSize,
		MaxFixAge: time.Duration(cfg.Sync.MaxFixAgeDay) * 24 * time.Hour,
	}

	classifier := motion.NewClassifier(motionConfig(cfg.Motion))
	fences := geofence.NewService()
	fences.AddAll(stopRegions(cfg.Stops))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	decisions, err := recorder.Start(ctx, tripID)
	if err != nil {
		log.Fatalf("start tracking: %v", err)
	}
	go reportDecisions(decisions)

	scheduler.Start(ctx)
	classifier.Start(ctx, motion.FeedFromPositions(ctx, positions.Subscribe()))
	go reportDriving(ctx, classifier)
	go fences.Watch(ctx, positions.Subscribe())
	go watchStops(ctx, fences, time.Duration(cfg.Motion.DwellDelaySec)*time.Second)

	statusServer := &web.Server{Store: store, Engine: engine}
	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      statusServer.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	if err := recorder.Stop(); err != nil {
		log.Printf("stop tracking: %v", err)
	}
	scheduler.Stop()
	classifier.Destroy()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func openSource(cfg config.GPSConfig) (gps.Source, error) {
	switch cfg.Type {
	case "nmea":
		src := gps.NewNMEASource(cfg.PortPath, cfg.BaudRate)
		if err := src.Open(); err != nil {
			return nil, err
		}
		return src, nil
	default:
		return gps.NewDemoSource(time.Second), nil
	}
}

func motionConfig(cfg config.MotionConfig) motion.Config {
	mc := motion.DefaultConfig()
	if cfg.MinWindowSec > 0 {
		mc.MinWindow = time.Duration(cfg.MinWindowSec) * time.Second
	}
	if cfg.MaxWindowSec > 0 {
		mc.MaxWindow = time.Duration(cfg.MaxWindowSec) * time.Second
	}
	if cfg.RetentionSec > 0 {
		mc.Retention = time.Duration(cfg.RetentionSec) * time.Second
	}
	if cfg.VehicleTimeRatio > 0 {
		mc.VehicleTimeRatio = cfg.VehicleTimeRatio
	}
	if cfg.ConfidenceThreshold > 0 {
		mc.ConfidenceThreshold = cfg.ConfidenceThreshold
	}
	return mc
}

func stopRegions(stops []config.StopConfig) []geofence.Region {
	regions := make([]geofence.Region, 0, len(stops))
	for _, s := range stops {
		regions = append(regions, geofence.Region{
			ID:       s.ID,
			StopType: s.Type,
			Lat:      s.Lat,
			Lon:      s.Lon,
			Radius:   s.RadiusM,
		})
	}
	return regions
}

// reportDecisions surfaces upload problems; filtered fixes stay at debug
// noise inside the engine.
func reportDecisions(decisions <-chan tracker.Decision) {
	for d := range decisions {
		if d.Err != nil {
			log.Printf("[tracker] fix kept queued: %v", d.Err)
		}
	}
}

func reportDriving(ctx context.Context, classifier *motion.Classifier) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-classifier.Trigger():
			if !ok {
				return
			}
			log.Printf("[motion] driving episode detected")
		}
	}
}

// watchStops reacts to geofence transitions: entering a stop arms the dwell
// timer, leaving disarms it, and the timer firing means the driver has
// parked at the stop.
func watchStops(ctx context.Context, fences *geofence.Service, dwell time.Duration) {
	if dwell <= 0 {
		dwell = 2 * time.Minute
	}
	events := fences.Subscribe()
	defer fences.Unsubscribe(events)

	dwellTimer := timer.NewOneShot()
	defer dwellTimer.Stop()
	var currentStop string

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Transition {
			case geofence.Entered:
				currentStop = ev.StopID
				dwellTimer.Start(dwell)
			case geofence.Exited:
				if ev.StopID == currentStop {
					dwellTimer.Stop()
					currentStop = ""
				}
			}
		case <-dwellTimer.C():
			log.Printf("[stops] dwelling at stop %s, starting arrival workflow", currentStop)
		}
	}
}
