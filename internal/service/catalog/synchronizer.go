// Package catalog ingests the on-disk evidence tree into the evidence catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dumpwatch/internal/dto"
	"dumpwatch/internal/logger"
	"dumpwatch/internal/model"
	"dumpwatch/internal/repository"
	"dumpwatch/internal/service/dumping"
	"dumpwatch/internal/service/eventstore"
	"dumpwatch/internal/service/media"
	"dumpwatch/internal/service/registry"
)

// Synchronizer copies events from the evidence tree into the catalog.
// Running it any number of times yields one catalog entry per event.
type Synchronizer struct {
	store     *eventstore.Store
	events    repository.EventRepository
	cameras   repository.CameraRepository
	locations repository.LocationRepository
	media     media.Store
	registry  *registry.Registry
	logger    *logger.Logger

	// StaleRecording is how old a recording marker must be before the clip
	// under it is treated as abandoned.
	StaleRecording time.Duration

	mu  sync.Mutex
	now func() time.Time
}

func NewSynchronizer(store *eventstore.Store, events repository.EventRepository, cameras repository.CameraRepository,
	locations repository.LocationRepository, mediaStore media.Store, reg *registry.Registry, logger *logger.Logger) *Synchronizer {
	return &Synchronizer{
		store:          store,
		events:         events,
		cameras:        cameras,
		locations:      locations,
		media:          mediaStore,
		registry:       reg,
		logger:         logger,
		StaleRecording: 2 * time.Minute,
		now:            time.Now,
	}
}

// Sync ingests every event of cameraID, or of every camera when cameraID is empty.
func (s *Synchronizer) Sync(ctx context.Context, cameraID string) (dto.SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report dto.SyncReport
	refs, err := s.store.Events(cameraID)
	if err != nil {
		return report, err
	}

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		switch outcome, err := s.syncEvent(ctx, ref); {
		case err != nil:
			report.Skipped++
			if errors.Is(err, eventstore.ErrNotReady) {
				s.logger.Debug("Skipping %s: %v", ref.Dir, err)
			} else {
				s.logger.Warning("Skipping %s: %v", ref.Dir, err)
			}
		case outcome == outcomeIngested:
			report.Ingested++
		case outcome == outcomeRefreshed:
			report.Refreshed++
		case outcome == outcomeDuplicate:
			report.Duplicates++
		case outcome == outcomeDeferred:
			report.Skipped++
		}
	}

	if report.Ingested > 0 || report.Refreshed > 0 {
		s.logger.Info("Catalog sync: %d scanned, %d ingested, %d refreshed, %d skipped",
			report.Scanned, report.Ingested, report.Refreshed, report.Skipped)
	}
	return report, nil
}

type outcome int

const (
	outcomeIngested outcome = iota
	outcomeDuplicate
	outcomeRefreshed
	outcomeDeferred
)

func (s *Synchronizer) syncEvent(ctx context.Context, ref eventstore.EventRef) (outcome, error) {
	rec, err := s.store.Read(ref.Dir)
	if err != nil {
		return 0, err
	}

	recording, err := eventstore.Recording(ref.Dir, s.StaleRecording, s.now())
	if err != nil {
		return 0, err
	}
	if recording {
		return outcomeDeferred, nil
	}

	eventID := rec.EventID
	if eventID == "" {
		eventID, err = s.store.EnsureEventID(ref.Dir, func() string {
			if ref.DirID != "" {
				return ref.DirID
			}
			return dumping.NewEventID(s.now())
		})
		if err != nil {
			return 0, fmt.Errorf("failed to assign event id: %w", err)
		}
		s.logger.Info("Assigned event id %s to %s", eventID, ref.Dir)
	}

	existing, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		if existing.PlateProcessed || (!rec.PlateProcessed && len(rec.Plates) <= len(existing.Plates)) {
			return outcomeDuplicate, nil
		}
		plates := s.copyPlates(ctx, ref, eventID, rec)
		if err := s.events.ReplacePlates(ctx, eventID, plates, rec.PlateProcessed); err != nil {
			return 0, err
		}
		return outcomeRefreshed, nil
	}

	if _, err := s.cameras.GetOrCreate(ctx, s.cameraFor(ref.CameraID, rec)); err != nil {
		return 0, err
	}

	ts, err := rec.Time()
	if err != nil {
		info, statErr := os.Stat(filepath.Join(ref.Dir, eventstore.RecordFile))
		if statErr != nil {
			return 0, err
		}
		s.logger.Warning("Event %s: %v, using record mtime", eventID, err)
		ts = info.ModTime()
	}

	ev := &model.DumpingEvent{
		EventID:        eventID,
		CameraID:       ref.CameraID,
		Location:       rec.Location,
		Timestamp:      ts,
		Actor:          rec.Actor,
		PlateProcessed: rec.PlateProcessed,
	}

	if rec.Location != "" {
		loc, err := s.locations.FindByName(ctx, rec.Location)
		if err != nil {
			s.logger.Warning("Location lookup for %q failed: %v", rec.Location, err)
		} else if loc != nil {
			ev.LegalLocationID = &loc.ID
		}
	}

	if ev.VideoKey, err = s.copyVideo(ctx, ref, eventID, rec); err != nil {
		return 0, err
	}
	ev.Plates = s.copyPlates(ctx, ref, eventID, rec)

	inserted, err := s.events.Insert(ctx, ev)
	if err != nil {
		return 0, err
	}
	if !inserted {
		return outcomeDuplicate, nil
	}
	return outcomeIngested, nil
}

func (s *Synchronizer) cameraFor(cameraID string, rec *dto.EventRecord) *model.Camera {
	cam := &model.Camera{CameraID: cameraID, Location: rec.Location, Ward: rec.Ward, City: rec.City}
	if s.registry != nil {
		if reg, ok := s.registry.ByID(cameraID); ok {
			cam.Location, cam.Ward, cam.City = reg.Location, reg.Ward, reg.City
		}
	}
	return cam
}

// copyVideo returns the media key of the copied clip, or "" when the event has no clip.
func (s *Synchronizer) copyVideo(ctx context.Context, ref eventstore.EventRef, eventID string, rec *dto.EventRecord) (string, error) {
	video, err := eventstore.VideoPath(ref.Dir, rec)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(video); errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("Event %s has no clip, cataloguing metadata only", eventID)
		return "", nil
	}
	key := media.VideoKey(ref.CameraID, eventID, video)
	if err := media.PutFile(ctx, s.media, key, video); err != nil {
		return "", fmt.Errorf("failed to copy clip: %w", err)
	}
	return key, nil
}

// copyPlates copies plate crops that exist on disk. Missing crops keep their
// metadata with an empty image key.
func (s *Synchronizer) copyPlates(ctx context.Context, ref eventstore.EventRef, eventID string, rec *dto.EventRecord) []model.PlateDetection {
	plates := make([]model.PlateDetection, 0, len(rec.Plates))
	for _, p := range rec.Plates {
		pd := model.PlateDetection{
			EventID:    eventID,
			PlateID:    p.PlateID,
			Confidence: p.Confidence,
			FrameTime:  p.FrameTime,
		}
		if src, err := eventstore.PlatePath(ref.Dir, p.Image); err != nil {
			s.logger.Warning("Event %s plate %d: %v", eventID, p.PlateID, err)
		} else {
			key := media.PlateKey(ref.CameraID, eventID, src)
			if err := media.PutFile(ctx, s.media, key, src); err != nil {
				s.logger.Warning("Event %s plate %d not copied: %v", eventID, p.PlateID, err)
			} else {
				pd.ImageKey = key
			}
		}
		plates = append(plates, pd)
	}
	return plates
}

// ListEvents returns catalogued events newest first.
func (s *Synchronizer) ListEvents(ctx context.Context, filter *dto.EventFilters) ([]model.DumpingEvent, error) {
	if filter == nil {
		filter = &dto.EventFilters{}
	}
	return s.events.List(ctx, filter)
}

// SyncAndList runs Sync for cameraID and then lists its events.
func (s *Synchronizer) SyncAndList(ctx context.Context, cameraID string) ([]model.DumpingEvent, dto.SyncReport, error) {
	report, err := s.Sync(ctx, cameraID)
	if err != nil {
		return nil, report, err
	}
	events, err := s.ListEvents(ctx, &dto.EventFilters{Camera: cameraID})
	return events, report, err
}

// Delete removes a catalog entry and its media copies. The evidence tree is untouched.
func (s *Synchronizer) Delete(ctx context.Context, eventID string) error {
	ev, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return err
	}
	if ev == nil {
		return nil
	}
	keys := []string{ev.VideoKey}
	for _, p := range ev.Plates {
		keys = append(keys, p.ImageKey)
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.media.Delete(ctx, key); err != nil {
			s.logger.Warning("Failed to delete media %s: %v", key, err)
		}
	}
	return s.events.Delete(ctx, eventID)
}

// Run syncs every interval until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sync(ctx, ""); err != nil && ctx.Err() == nil {
			s.logger.Error("Catalog sync failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
