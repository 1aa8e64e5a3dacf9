package capture

import (
	"context"
	"errors"
	"image/color"
	"time"

	"dumpwatch/internal/dto"
	"dumpwatch/internal/logger"
	"dumpwatch/internal/service/ai"
	"dumpwatch/internal/service/dumping"
	"dumpwatch/internal/service/eventstore"
	"dumpwatch/internal/service/notify"
	"dumpwatch/internal/service/recorder"
	"dumpwatch/internal/service/registry"

	"gocv.io/x/gocv"
)

// Detector is satisfied by *ai.DetectorService.
type Detector interface {
	Detect(frame gocv.Mat) ([]dto.Detection, error)
}

// Broadcaster is satisfied by the websocket hub.
type Broadcaster interface {
	Broadcast(jpeg []byte, camera, phase string)
	GetClientCount() int
}

type Options struct {
	Thresholds     dumping.Thresholds
	WasteLabel     string // empty keeps every label of the waste model
	VideoCodec     string
	VideoFPS       float64
	ReconnectDelay time.Duration
}

var (
	vehicleColor = color.RGBA{R: 0, G: 160, B: 255, A: 0}
	wasteColor   = color.RGBA{R: 255, G: 0, B: 0, A: 0}
)

// Session processes the stream of one registered camera.
type Session struct {
	camera   registry.Camera
	open     func(address string) (Source, error)
	vehicles Detector
	waste    Detector
	opts     Options
	hub      Broadcaster
	monitor  *Monitor[gocv.Mat]
	logger   *logger.Logger
}

// NewSession resolves address in the registry; an unregistered source is an error.
func NewSession(address string, reg *registry.Registry, vehicles, waste Detector, store *eventstore.Store,
	notifier notify.Notifier, hub Broadcaster, opts Options, log *logger.Logger) (*Session, error) {
	camera, err := reg.Lookup(address)
	if err != nil {
		return nil, err
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}

	camLog := log.Camera(camera.CameraID)
	rec := recorder.New(store, VideoWriterOpener(opts.VideoCodec, opts.VideoFPS), opts.Thresholds.ClipDuration, camLog)

	return &Session{
		camera:   camera,
		open:     OpenSource,
		vehicles: vehicles,
		waste:    waste,
		opts:     opts,
		hub:      hub,
		monitor:  NewMonitor(camera, opts.Thresholds, store, rec, notifier, camLog),
		logger:   camLog,
	}, nil
}

func (s *Session) Camera() registry.Camera {
	return s.camera
}

// Run reads frames until ctx is cancelled or a file source ends. Live sources
// are reopened after a failure.
func (s *Session) Run(ctx context.Context) error {
	defer s.monitor.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	for {
		source, err := s.open(s.camera.Source)
		if err != nil {
			s.logger.Error("%v", err)
			if !s.wait(ctx) {
				return nil
			}
			continue
		}
		s.logger.Info("Capturing from %s", s.camera.Source)

		err = s.consume(ctx, source, &frame)
		source.Close()

		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrEndOfStream):
			s.logger.Info("Source %s finished", s.camera.Source)
			return nil
		case !source.Live():
			return err
		}
		s.logger.Warning("Stream interrupted: %v", err)
		if !s.wait(ctx) {
			return nil
		}
	}
}

func (s *Session) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.opts.ReconnectDelay):
		return true
	}
}

func (s *Session) consume(ctx context.Context, source Source, frame *gocv.Mat) error {
	for {
		now, err := source.Read(ctx, frame)
		if err != nil {
			return err
		}
		s.process(*frame, now)
	}
}

func (s *Session) process(frame gocv.Mat, now time.Time) {
	det := dumping.Frame{Height: frame.Rows()}

	var err error
	if det.Vehicles, err = s.vehicles.Detect(frame); err != nil {
		s.logger.Error("Vehicle detection failed: %v", err)
	}
	waste, err := s.waste.Detect(frame)
	if err != nil {
		s.logger.Error("Waste detection failed: %v", err)
	}
	det.Waste = filterLabel(waste, s.opts.WasteLabel)

	out := s.monitor.Observe(frame, det, now)
	s.broadcast(frame, det.Vehicles, out.Waste, now)
}

func (s *Session) broadcast(frame gocv.Mat, vehicles, waste []dto.Detection, now time.Time) {
	if s.hub == nil || s.hub.GetClientCount() == 0 {
		return
	}
	view := frame.Clone()
	defer view.Close()

	if err := ai.DrawDetections(&view, vehicles, vehicleColor); err != nil {
		s.logger.Debug("Failed to annotate frame: %v", err)
	}
	if err := ai.DrawDetections(&view, waste, wasteColor); err != nil {
		s.logger.Debug("Failed to annotate frame: %v", err)
	}
	jpeg, err := ai.EncodeJPEG(view)
	if err != nil {
		s.logger.Error("Failed to encode image: %v", err)
		return
	}
	s.hub.Broadcast(jpeg, s.camera.CameraID, s.monitor.Phase(now).String())
}

func filterLabel(dets []dto.Detection, label string) []dto.Detection {
	if label == "" {
		return dets
	}
	out := dets[:0:0]
	for _, d := range dets {
		if d.Label == label {
			out = append(out, d)
		}
	}
	return out
}
