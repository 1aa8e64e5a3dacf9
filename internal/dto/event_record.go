package dto

import (
	"fmt"
	"time"
)

const (
	// TimestampLayout is the local wall-clock format used in event.json.
	TimestampLayout = "2006-01-02 15:04:05"
	// DefaultVideoPath is the clip location relative to the event directory.
	DefaultVideoPath = "dumping/dumping.mp4"
)

// EventRecord is the on-disk event.json document of one dumping event.
type EventRecord struct {
	EventID        string        `json:"event_id"`
	CameraID       string        `json:"camera_id"`
	Location       string        `json:"location"`
	Ward           string        `json:"ward,omitempty"`
	City           string        `json:"city,omitempty"`
	Timestamp      string        `json:"timestamp"`
	Actor          string        `json:"actor"`
	DumpingVideo   string        `json:"dumping_video"`
	Plates         []PlateRecord `json:"plates"`
	PlateProcessed bool          `json:"plate_processed"`
}

// PlateRecord is one deduplicated plate crop appended by the plate pass.
type PlateRecord struct {
	PlateID    int     `json:"plate_id"`
	Image      string  `json:"image"`
	Confidence float64 `json:"confidence"`
	FrameTime  string  `json:"frame_time"`
}

// Time parses the record timestamp in the local zone. RFC 3339 is accepted as well.
func (r *EventRecord) Time() (time.Time, error) {
	if t, err := time.ParseInLocation(TimestampLayout, r.Timestamp, time.Local); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid event timestamp %q", r.Timestamp)
	}
	return t, nil
}

// NextPlateID returns the id the next appended plate should get.
func (r *EventRecord) NextPlateID() int {
	next := 1
	for _, p := range r.Plates {
		if p.PlateID >= next {
			next = p.PlateID + 1
		}
	}
	return next
}

// FormatFrameTime renders a clip offset the way plate entries store it, e.g. "3.2s".
func FormatFrameTime(offset time.Duration) string {
	return fmt.Sprintf("%.1fs", offset.Seconds())
}
