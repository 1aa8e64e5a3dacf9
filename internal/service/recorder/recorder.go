// Package recorder writes the fixed-length evidence clip of a confirmed event.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dumpwatch/internal/dto"
	"dumpwatch/internal/logger"
	"dumpwatch/internal/service/eventstore"
)

// Sink receives the frames of one clip.
type Sink[F any] interface {
	Write(frame F) error
	Close() error
}

// SinkOpener opens a sink writing to path. Frame geometry comes from the first frame.
type SinkOpener[F any] func(path string, first F) (Sink[F], error)

// Recorder holds at most one open clip. It is driven by the capture loop of a
// single camera and is not safe for concurrent use.
type Recorder[F any] struct {
	open     SinkOpener[F]
	store    *eventstore.Store
	duration time.Duration
	logger   *logger.Logger

	sink     Sink[F]
	pending  bool // Start was called, sink opens on the first frame
	eventDir string
	video    string
	started  time.Time
	frames   int
}

func New[F any](store *eventstore.Store, open SinkOpener[F], duration time.Duration, logger *logger.Logger) *Recorder[F] {
	return &Recorder[F]{
		open:     open,
		store:    store,
		duration: duration,
		logger:   logger,
	}
}

// Recording reports whether a clip is open or about to be opened.
func (r *Recorder[F]) Recording() bool {
	return r.pending || r.sink != nil
}

// EventDir returns the directory of the clip in progress.
func (r *Recorder[F]) EventDir() string {
	return r.eventDir
}

// Start writes the event record and arms a new clip starting at now. A clip
// still in progress is finalized first.
func (r *Recorder[F]) Start(eventDir string, rec *dto.EventRecord, now time.Time) error {
	if r.Recording() {
		r.logger.Warning("New event %s while clip %s still open, finalizing it early", rec.EventID, r.eventDir)
		r.Finish()
	}

	if err := r.store.Create(eventDir, rec); err != nil {
		return fmt.Errorf("failed to write event record: %w", err)
	}
	video, err := eventstore.VideoPath(eventDir, rec)
	if err != nil {
		return err
	}
	if err := eventstore.MarkRecording(eventDir); err != nil {
		return err
	}

	r.pending = true
	r.eventDir = eventDir
	r.video = video
	r.started = now
	r.frames = 0
	return nil
}

// Write appends frame to the open clip. Once the clip spans the configured
// duration it is closed and the frame is not written.
func (r *Recorder[F]) Write(frame F, now time.Time) {
	if !r.Recording() {
		return
	}
	if now.Sub(r.started) >= r.duration {
		r.Finish()
		return
	}

	if r.pending {
		sink, err := r.open(r.video, frame)
		if err != nil {
			r.logger.Error("Failed to open clip %s: %v", r.video, err)
			r.abandon()
			return
		}
		r.sink = sink
		r.pending = false
	}

	if err := r.sink.Write(frame); err != nil {
		r.logger.Error("Failed to write frame to %s: %v", r.video, err)
		r.abandon()
		return
	}
	r.frames++
}

// Finish closes the current clip, if any. Called when the duration is reached
// and on shutdown.
func (r *Recorder[F]) Finish() {
	if !r.Recording() {
		return
	}
	if r.sink != nil {
		if err := r.sink.Close(); err != nil {
			r.logger.Error("Failed to close clip %s: %v", r.video, err)
		}
	}
	if err := eventstore.ClearRecording(r.eventDir); err != nil {
		r.logger.Warning("Failed to clear recording marker in %s: %v", r.eventDir, err)
	}
	r.logger.Info("Clip saved: %s (%d frames)", r.video, r.frames)
	r.reset()
}

// abandon drops a clip that could not be written. The event record stays.
func (r *Recorder[F]) abandon() {
	if r.sink != nil {
		r.sink.Close()
	}
	if err := os.Remove(r.video); err != nil && !os.IsNotExist(err) {
		r.logger.Warning("Failed to remove partial clip %s: %v", r.video, err)
	}
	eventstore.ClearRecording(r.eventDir)
	r.logger.Warning("Clip abandoned for %s", filepath.Base(r.eventDir))
	r.reset()
}

func (r *Recorder[F]) reset() {
	r.sink = nil
	r.pending = false
	r.eventDir = ""
	r.video = ""
	r.frames = 0
}
