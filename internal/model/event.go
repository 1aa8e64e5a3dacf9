package model

import "time"

// DumpingEvent is the catalog entry for one confirmed dumping event.
type DumpingEvent struct {
	ID              int64            `json:"id"`
	EventID         string           `json:"event_id"`
	CameraID        string           `json:"camera_id"`
	Location        string           `json:"location"`
	LegalLocationID *int64           `json:"legal_location_id,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
	Actor           string           `json:"actor"`
	VideoKey        string           `json:"video_key,omitempty"`
	PlateProcessed  bool             `json:"plate_processed"`
	Plates          []PlateDetection `json:"plates,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// PlateDetection is one plate crop attached to a catalogued event.
type PlateDetection struct {
	ID         int64   `json:"id"`
	EventID    string  `json:"event_id"`
	PlateID    int     `json:"plate_id"`
	ImageKey   string  `json:"image_key"`
	Confidence float64 `json:"confidence"`
	FrameTime  string  `json:"frame_time"`
}
