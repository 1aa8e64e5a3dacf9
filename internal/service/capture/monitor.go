// Package capture turns a camera stream into dumping events: it runs the
// detectors on every frame, drives the state machine and records evidence.
package capture

import (
	"time"

	"dumpwatch/internal/dto"
	"dumpwatch/internal/logger"
	"dumpwatch/internal/service/dumping"
	"dumpwatch/internal/service/eventstore"
	"dumpwatch/internal/service/notify"
	"dumpwatch/internal/service/recorder"
	"dumpwatch/internal/service/registry"
)

// Monitor owns the state machine and recorder of one camera. It is driven by a
// single goroutine.
type Monitor[F any] struct {
	camera   registry.Camera
	th       dumping.Thresholds
	store    *eventstore.Store
	rec      *recorder.Recorder[F]
	notifier notify.Notifier
	logger   *logger.Logger

	state dumping.State
}

func NewMonitor[F any](camera registry.Camera, th dumping.Thresholds, store *eventstore.Store,
	rec *recorder.Recorder[F], notifier notify.Notifier, logger *logger.Logger) *Monitor[F] {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Monitor[F]{
		camera:   camera,
		th:       th,
		store:    store,
		rec:      rec,
		notifier: notifier,
		logger:   logger,
	}
}

// Observe advances the machine with the detections of frame and feeds the
// frame to the recorder. A confirmation starts a clip whose first frame is
// this one.
func (m *Monitor[F]) Observe(frame F, det dumping.Frame, now time.Time) dumping.Outcome {
	var out dumping.Outcome
	m.state, out = dumping.Step(m.state, det, now, m.th)

	if out.Confirmed {
		m.confirm(out.Actor, now)
	}
	if out.Reset {
		m.logger.Info("Scene clear, ready for the next event")
	}

	m.rec.Write(frame, now)
	return out
}

func (m *Monitor[F]) confirm(actor string, now time.Time) {
	rec := &dto.EventRecord{
		EventID:      dumping.NewEventID(now),
		CameraID:     m.camera.CameraID,
		Location:     m.camera.Location,
		Ward:         m.camera.Ward,
		City:         m.camera.City,
		Timestamp:    now.Local().Format(dto.TimestampLayout),
		Actor:        actor,
		DumpingVideo: dto.DefaultVideoPath,
	}
	eventDir := m.store.EventDir(m.camera.CameraID, rec.EventID)

	if err := m.rec.Start(eventDir, rec, now); err != nil {
		m.logger.Error("Failed to start evidence for %s: %v", rec.EventID, err)
		return
	}
	m.logger.Info("Dumping confirmed: event %s, actor %s", rec.EventID, actor)

	if err := m.notifier.Notify(notify.FromRecord(rec, eventDir, now)); err != nil {
		m.logger.Warning("Failed to announce %s: %v", rec.EventID, err)
	}
}

// Phase reports the machine phase at now.
func (m *Monitor[F]) Phase(now time.Time) dumping.Phase {
	return m.state.Phase(now, m.th)
}

// Close finalizes a clip still in progress.
func (m *Monitor[F]) Close() {
	m.rec.Finish()
}
