package model

// Camera is a catalog row for a camera that has produced evidence.
type Camera struct {
	ID       int64  `json:"id"`
	CameraID string `json:"camera_id"`
	Location string `json:"location"`
	Ward     string `json:"ward,omitempty"`
	City     string `json:"city,omitempty"`
}

// LegalLocation is a named place whose catalogued events are linked to it.
type LegalLocation struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Ward string `json:"ward,omitempty"`
	City string `json:"city,omitempty"`
}
