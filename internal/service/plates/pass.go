// Package plates extracts deduplicated licence-plate crops from recorded clips.
package plates

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"time"

	"dumpwatch/internal/dto"
	"dumpwatch/internal/logger"
	"dumpwatch/internal/service/eventstore"
	"dumpwatch/internal/service/tracker"

	"gocv.io/x/gocv"
)

// Detector is satisfied by *ai.DetectorService loaded with the plate model.
type Detector interface {
	Detect(frame gocv.Mat) ([]dto.Detection, error)
}

type Options struct {
	PadX              float64
	PadY              float64
	ScaleFactor       float64
	IoUThreshold      float64
	DistanceThreshold float64
	TrackMaxAge       time.Duration
	Interval          time.Duration
	StaleRecording    time.Duration
}

func DefaultOptions() Options {
	return Options{
		PadX:              0.35,
		PadY:              0.45,
		ScaleFactor:       2.5,
		IoUThreshold:      tracker.DefaultIoUThreshold,
		DistanceThreshold: tracker.DefaultDistanceThreshold,
		TrackMaxAge:       tracker.DefaultMaxAge,
		Interval:          3 * time.Second,
		StaleRecording:    2 * time.Minute,
	}
}

// Pass scans the evidence tree for finished clips whose plates have not been
// extracted yet.
type Pass struct {
	store    *eventstore.Store
	detector Detector
	opts     Options
	logger   *logger.Logger
	now      func() time.Time
	missing  map[string]bool // event dirs already reported without a clip
}

func NewPass(store *eventstore.Store, detector Detector, opts Options, logger *logger.Logger) *Pass {
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions().Interval
	}
	return &Pass{
		store:    store,
		detector: detector,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		missing:  make(map[string]bool),
	}
}

// Run calls ScanOnce every interval until ctx is cancelled.
func (p *Pass) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.ScanOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("Plate scan failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ScanOnce processes every pending event once and returns how many were completed.
func (p *Pass) ScanOnce(ctx context.Context) (int, error) {
	refs, err := p.store.Events("")
	if err != nil {
		return 0, err
	}
	done := 0
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		ok, err := p.processEvent(ctx, ref.Dir)
		if err != nil {
			p.logger.Warning("Plate pass on %s: %v", ref.Dir, err)
			continue
		}
		if ok {
			done++
		}
	}
	return done, nil
}

// processEvent returns true when the event was scanned to the end and frozen.
func (p *Pass) processEvent(ctx context.Context, dir string) (bool, error) {
	rec, err := p.store.Read(dir)
	if errors.Is(err, eventstore.ErrNotReady) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.PlateProcessed {
		return false, nil
	}
	recording, err := eventstore.Recording(dir, p.opts.StaleRecording, p.now())
	if err != nil {
		return false, err
	}
	if recording {
		p.logger.Debug("Clip of %s is still recording", dir)
		return false, nil
	}

	video, err := eventstore.VideoPath(dir, rec)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(video); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
		if !p.missing[dir] {
			p.missing[dir] = true
			p.logger.Warning("Clip of %s is missing, skipping plate extraction", dir)
		}
		return false, nil
	}
	delete(p.missing, dir)
	if err := p.scanClip(ctx, dir, video, rec.NextPlateID()); err != nil {
		if errors.Is(err, eventstore.ErrFrozen) {
			return false, nil
		}
		return false, err
	}
	if err := p.store.MarkPlatesProcessed(dir); err != nil {
		return false, err
	}
	p.logger.Info("Plates processed for %s", filepath.Base(dir))
	return true, nil
}

func (p *Pass) scanClip(ctx context.Context, dir, video string, nextID int) error {
	capture, err := gocv.VideoCaptureFile(video)
	if err != nil {
		return fmt.Errorf("failed to open clip: %w", err)
	}
	defer capture.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	scan := newClipScan(p.opts, nextID)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ok := capture.Read(&frame); !ok || frame.Empty() {
			return nil
		}
		offset := time.Duration(capture.Get(gocv.VideoCapturePosMsec) * float64(time.Millisecond))

		dets, err := p.detector.Detect(frame)
		if err != nil {
			p.logger.Warning("Plate detection failed at %s: %v", dto.FormatFrameTime(offset), err)
			continue
		}
		for _, d := range dets {
			id, ok := scan.accept(d.Box, d.Confidence, offset)
			if !ok {
				continue
			}
			if err := p.savePlate(dir, frame, d, id, offset); err != nil {
				return err
			}
		}
	}
}

func (p *Pass) savePlate(dir string, frame gocv.Mat, d dto.Detection, id int, offset time.Duration) error {
	crop := cropBox(d.Box, p.opts.PadX, p.opts.PadY, frame.Cols(), frame.Rows())
	if crop.Empty() {
		return nil
	}

	region := frame.Region(crop.Rect())
	defer region.Close()

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(region, &scaled, image.Point{}, p.opts.ScaleFactor, p.opts.ScaleFactor, gocv.InterpolationCubic)

	name := PlateFileName(id)
	if ok := gocv.IMWrite(filepath.Join(dir, eventstore.PlatesDir, name), scaled); !ok {
		return fmt.Errorf("failed to write plate image %s", name)
	}

	return p.store.AppendPlate(dir, dto.PlateRecord{
		PlateID:    id,
		Image:      path.Join(eventstore.PlatesDir, name),
		Confidence: d.Confidence,
		FrameTime:  dto.FormatFrameTime(offset),
	})
}

func PlateFileName(id int) string {
	return fmt.Sprintf("plate_%03d.jpg", id)
}

// cropBox pads a plate box for context and limits it to the frame.
func cropBox(b dto.Box, padX, padY float64, w, h int) dto.Box {
	return b.Pad(padX, padY).Clamp(w, h)
}

// clipScan assigns plate ids in the order plates first appear in the clip.
// Ids below firstNew were appended by an earlier, interrupted scan.
type clipScan struct {
	tracker  *tracker.Tracker
	firstNew int
}

func newClipScan(opts Options, firstNew int) *clipScan {
	return &clipScan{
		tracker:  tracker.New(opts.IoUThreshold, opts.DistanceThreshold, opts.TrackMaxAge),
		firstNew: firstNew,
	}
}

// accept returns the id of a plate seen for the first time and not yet recorded.
func (c *clipScan) accept(box dto.Box, score float64, at time.Duration) (int, bool) {
	track, created := c.tracker.Observe(box, score, at)
	if !created || track.ID < c.firstNew {
		return 0, false
	}
	return track.ID, true
}
