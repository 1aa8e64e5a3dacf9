package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"dumpwatch/internal/config"
	"dumpwatch/internal/logger"
	"dumpwatch/internal/route"
	"dumpwatch/internal/service/ai"
	"dumpwatch/internal/service/capture"
	"dumpwatch/internal/service/catalog"
	"dumpwatch/internal/service/dumping"
	"dumpwatch/internal/service/eventstore"
	"dumpwatch/internal/service/media"
	"dumpwatch/internal/service/notify"
	"dumpwatch/internal/service/plates"
	"dumpwatch/internal/service/registry"
	"dumpwatch/internal/service/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config    *config.Config
	logger    *logger.Logger
	registry  *registry.Registry
	store     *eventstore.Store
	catalog   *Catalog
	media     media.Store
	sync      *catalog.Synchronizer
	hub       *websocket.HubService
	notifier  notify.Notifier
	sessions  []*capture.Session
	plates    *plates.Pass
	detectors []*ai.DetectorService
}

// NewApp builds every component from the environment. Capture sessions are
// created for CAMERA_SOURCES, or for every registered camera when it is unset;
// a source missing from the registry aborts startup.
func NewApp(ctx context.Context) (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	a := &App{
		config:   cfg,
		logger:   log,
		store:    eventstore.New(cfg.EvidenceRoot),
		hub:      websocket.NewHubService(log),
		notifier: notify.Nop{},
	}

	reg, err := registry.Load(cfg.CameraRegistry)
	if err != nil {
		return nil, err
	}
	a.registry = reg

	if a.catalog, err = OpenCatalog(cfg); err != nil {
		return nil, err
	}
	if a.media, err = OpenMedia(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	a.sync = catalog.NewSynchronizer(a.store, a.catalog.Events, a.catalog.Cameras, a.catalog.Locations, a.media, reg, log)

	if cfg.MQTTBroker != "" {
		n, err := notify.NewMQTTNotifier(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, log)
		if err != nil {
			log.Warning("Event notifications disabled: %v", err)
		} else {
			a.notifier = n
		}
	}

	if err := a.setupSessions(); err != nil {
		a.Close()
		return nil, err
	}
	a.setupPlatePass()
	return a, nil
}

func (a *App) setupSessions() error {
	cfg := a.config
	sources := cfg.CameraSources
	if len(sources) == 0 {
		for _, c := range a.registry.Cameras() {
			sources = append(sources, c.Source)
		}
	}
	if len(sources) == 0 {
		a.logger.Warning("No camera sources configured, running catalog only")
		return nil
	}

	// fail fast before loading any model
	for _, src := range sources {
		if _, err := a.registry.Lookup(src); err != nil {
			return err
		}
	}

	vehicles, err := a.loadDetector(cfg.VehicleModelPath, cfg.VehicleLabelsPath, cfg.VehicleConfidence)
	if err != nil {
		return fmt.Errorf("vehicle detector: %w", err)
	}
	waste, err := a.loadDetector(cfg.WasteModelPath, cfg.WasteLabelsPath, cfg.WasteConfidence)
	if err != nil {
		return fmt.Errorf("waste detector: %w", err)
	}

	opts := capture.Options{
		Thresholds: dumping.Thresholds{
			ActorLeaveTime:   cfg.ActorLeaveTime,
			WastePersistTime: cfg.WastePersistTime,
			ResetDelay:       cfg.ResetDelay,
			ClipDuration:     cfg.VideoDuration,
			ActorLabels:      cfg.ActorLabels,
			GroundRatio:      cfg.GroundRatio,
		},
		WasteLabel: cfg.WasteLabel,
		VideoCodec: cfg.VideoCodec,
		VideoFPS:   cfg.VideoFPS,
	}

	var hub capture.Broadcaster
	if cfg.BroadcastFrames {
		hub = a.hub
	}
	for _, src := range sources {
		session, err := capture.NewSession(src, a.registry, vehicles, waste, a.store, a.notifier, hub, opts, a.logger)
		if err != nil {
			return err
		}
		a.sessions = append(a.sessions, session)
	}
	return nil
}

func (a *App) setupPlatePass() {
	cfg := a.config
	detector, err := a.loadDetector(cfg.PlateModelPath, "", cfg.PlateConfidence)
	if err != nil {
		a.logger.Warning("Plate extraction disabled: %v", err)
		return
	}
	opts := plates.Options{
		PadX:              cfg.PlatePadX,
		PadY:              cfg.PlatePadY,
		ScaleFactor:       cfg.ScaleFactor,
		IoUThreshold:      cfg.IoUThreshold,
		DistanceThreshold: cfg.DistanceThreshold,
		TrackMaxAge:       cfg.TrackMaxAge,
		Interval:          cfg.PlateScanInterval,
		StaleRecording:    a.sync.StaleRecording,
	}
	a.plates = plates.NewPass(a.store, detector, opts, a.logger)
}

func (a *App) loadDetector(modelPath, labelsPath string, confidence float64) (*ai.DetectorService, error) {
	labels := []string{"plate"}
	if labelsPath != "" {
		var err error
		if labels, err = ai.LoadLabels(labelsPath); err != nil {
			return nil, err
		}
	}
	d, err := ai.NewDetectorService(modelPath, labels, confidence, a.logger)
	if err != nil {
		return nil, err
	}
	a.detectors = append(a.detectors, d)
	return d, nil
}

// Run starts every background loop and the HTTP server, and blocks until ctx
// is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	goWithWait := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goWithWait(a.hub.Run)
	for _, s := range a.sessions {
		s := s
		goWithWait(func() {
			if err := s.Run(ctx); err != nil {
				a.logger.Error("Camera %s stopped: %v", s.Camera().CameraID, err)
			}
		})
	}
	if a.plates != nil {
		goWithWait(func() { a.plates.Run(ctx) })
	}
	if a.config.SyncInterval > 0 {
		goWithWait(func() { a.sync.Run(ctx, a.config.SyncInterval) })
	}

	router := route.SetupRoutes(a.config, a.logger, a.hub, a.sync, route.Repositories{
		Events:    a.catalog.Events,
		Cameras:   a.catalog.Cameras,
		Locations: a.catalog.Locations,
	}, a.media)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("Evidence server listening on :%d", a.config.Port)
	a.logger.Info("Evidence root: %s, catalog: %s, media: %s", a.config.EvidenceRoot, a.config.CatalogDriver, a.config.MediaBackend)
	a.logger.Info("Cameras: %d", len(a.sessions))

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = err
	}

	a.logger.Info("Shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP shutdown: %v", err)
	}

	cancel()
	a.hub.Stop()
	wg.Wait()
	return runErr
}

// Close releases detectors, the notifier and the catalog.
func (a *App) Close() {
	for _, d := range a.detectors {
		d.Close()
	}
	a.detectors = nil
	if a.notifier != nil {
		a.notifier.Close()
		a.notifier = nil
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			a.logger.Error("Failed to close catalog: %v", err)
		}
		a.catalog = nil
	}
}
