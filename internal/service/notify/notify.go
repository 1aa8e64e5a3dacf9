// Package notify announces confirmed dumping events to downstream consumers.
package notify

import (
	"encoding/json"
	"path"
	"time"

	"dumpwatch/internal/dto"
)

// Event is the announcement published when an event is confirmed.
type Event struct {
	EventID   string    `json:"event_id"`
	CameraID  string    `json:"camera_id"`
	Location  string    `json:"location"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	EventDir  string    `json:"event_dir"`
}

// FromRecord builds the announcement of a freshly written event record.
func FromRecord(rec *dto.EventRecord, eventDir string, at time.Time) Event {
	return Event{
		EventID:   rec.EventID,
		CameraID:  rec.CameraID,
		Location:  rec.Location,
		Actor:     rec.Actor,
		Timestamp: at,
		EventDir:  eventDir,
	}
}

// Notifier must not block the caller for long; it is invoked from capture loops.
type Notifier interface {
	Notify(ev Event) error
	Close()
}

// Topic is the per-camera topic under base, e.g. dumpwatch/events/cam_01.
func Topic(base, cameraID string) string {
	return path.Join(base, cameraID)
}

func Payload(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// Nop is used when no broker is configured.
type Nop struct{}

func (Nop) Notify(Event) error { return nil }
func (Nop) Close()             {}
