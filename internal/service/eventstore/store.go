// Package eventstore owns the on-disk evidence tree:
//
//	<root>/<camera_id>/event_<event_id>/event.json
//	<root>/<camera_id>/event_<event_id>/dumping/dumping.mp4
//	<root>/<camera_id>/event_<event_id>/plates/*.jpg
//
// Every rewrite of event.json goes through a temp file and a rename so that
// readers only ever see a complete document.
package eventstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dumpwatch/internal/dto"
)

const (
	RecordFile   = "event.json"
	DumpingDir   = "dumping"
	PlatesDir    = "plates"
	EventPrefix  = "event_"
	RecordingTag = ".recording"
)

var (
	// ErrNotReady is returned when an event directory has no readable event.json yet.
	ErrNotReady = errors.New("event record not ready")
	// ErrFrozen is returned when a plate is appended after plate_processed was set.
	ErrFrozen = errors.New("event plates already processed")
	// ErrInvalidCamera is returned for a camera id that is not a plain directory name.
	ErrInvalidCamera = errors.New("invalid camera id")
)

// Store serialises read-modify-write cycles on the same event within this process.
type Store struct {
	root  string
	locks sync.Map // event dir -> *sync.Mutex
}

func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string {
	return s.root
}

// EventDir returns the directory of an event.
func (s *Store) EventDir(cameraID, eventID string) string {
	return filepath.Join(s.root, cameraID, EventPrefix+eventID)
}

// VideoPath resolves the clip referenced by rec inside eventDir.
func VideoPath(eventDir string, rec *dto.EventRecord) (string, error) {
	rel := rec.DumpingVideo
	if rel == "" {
		rel = dto.DefaultVideoPath
	}
	return resolve(eventDir, rel)
}

// PlatePath resolves a plate image path stored in a record.
func PlatePath(eventDir, rel string) (string, error) {
	return resolve(eventDir, rel)
}

func resolve(eventDir, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the event directory", rel)
	}
	return filepath.Join(eventDir, clean), nil
}

func (s *Store) lock(eventDir string) func() {
	m, _ := s.locks.LoadOrStore(filepath.Clean(eventDir), &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Create lays out a new event directory and writes its first event.json.
func (s *Store) Create(eventDir string, rec *dto.EventRecord) error {
	if rec.DumpingVideo == "" {
		rec.DumpingVideo = dto.DefaultVideoPath
	}
	if rec.Plates == nil {
		rec.Plates = []dto.PlateRecord{}
	}
	for _, dir := range []string{DumpingDir, PlatesDir} {
		if err := os.MkdirAll(filepath.Join(eventDir, dir), 0755); err != nil {
			return fmt.Errorf("failed to create event directory: %w", err)
		}
	}

	unlock := s.lock(eventDir)
	defer unlock()
	return writeRecord(eventDir, rec)
}

// Read loads event.json from eventDir.
func (s *Store) Read(eventDir string) (*dto.EventRecord, error) {
	return readRecord(eventDir)
}

// Update applies fn to the current record and atomically replaces event.json
// with the result. If fn returns an error nothing is written.
func (s *Store) Update(eventDir string, fn func(rec *dto.EventRecord) error) (*dto.EventRecord, error) {
	unlock := s.lock(eventDir)
	defer unlock()

	rec, err := readRecord(eventDir)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := writeRecord(eventDir, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// AppendPlate adds a plate entry unless the event's plates are frozen.
func (s *Store) AppendPlate(eventDir string, plate dto.PlateRecord) error {
	_, err := s.Update(eventDir, func(rec *dto.EventRecord) error {
		if rec.PlateProcessed {
			return ErrFrozen
		}
		rec.Plates = append(rec.Plates, plate)
		return nil
	})
	return err
}

// MarkPlatesProcessed sets plate_processed. Setting it twice is harmless.
func (s *Store) MarkPlatesProcessed(eventDir string) error {
	_, err := s.Update(eventDir, func(rec *dto.EventRecord) error {
		rec.PlateProcessed = true
		return nil
	})
	return err
}

// EnsureEventID returns the record's event id, assigning one through newID
// and writing it back when the record has none.
func (s *Store) EnsureEventID(eventDir string, newID func() string) (string, error) {
	rec, err := s.Update(eventDir, func(rec *dto.EventRecord) error {
		if rec.EventID == "" {
			rec.EventID = newID()
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return rec.EventID, nil
}

func readRecord(eventDir string) (*dto.EventRecord, error) {
	data, err := os.ReadFile(filepath.Join(eventDir, RecordFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, eventDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read event record: %w", err)
	}
	var rec dto.EventRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotReady, eventDir, err)
	}
	return &rec, nil
}

func writeRecord(eventDir string, rec *dto.EventRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode event record: %w", err)
	}

	tmp, err := os.CreateTemp(eventDir, RecordFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp record: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(eventDir, RecordFile)); err != nil {
		return fmt.Errorf("failed to replace event record: %w", err)
	}
	return nil
}

// MarkRecording creates the marker that tells readers the clip is still being written.
func MarkRecording(eventDir string) error {
	f, err := os.Create(recordingMarker(eventDir))
	if err != nil {
		return fmt.Errorf("failed to create recording marker: %w", err)
	}
	return f.Close()
}

// ClearRecording removes the recording marker.
func ClearRecording(eventDir string) error {
	err := os.Remove(recordingMarker(eventDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func recordingMarker(eventDir string) string {
	return filepath.Join(eventDir, DumpingDir, RecordingTag)
}

// Recording reports whether a recording marker younger than staleAfter is
// present. A marker older than staleAfter is left behind by a recorder that
// died and is ignored.
func Recording(eventDir string, staleAfter time.Duration, now time.Time) (bool, error) {
	info, err := os.Stat(recordingMarker(eventDir))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return now.Sub(info.ModTime()) <= staleAfter, nil
}

// ClipReady reports whether the event's clip is complete: the video exists
// and it is not being recorded.
func ClipReady(eventDir string, rec *dto.EventRecord, staleAfter time.Duration, now time.Time) (bool, error) {
	video, err := VideoPath(eventDir, rec)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(video); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	recording, err := Recording(eventDir, staleAfter, now)
	if err != nil {
		return false, err
	}
	return !recording, nil
}
