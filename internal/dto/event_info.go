package dto

import (
	"encoding/json"
	"time"
)

// EventInfo is the catalog view of one dumping event returned by the API.
type EventInfo struct {
	EventID        string      `json:"eventId"`
	Camera         string      `json:"camera"`
	Location       string      `json:"location"`
	LegalLocation  string      `json:"legalLocation,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	Actor          string      `json:"actor"`
	VideoURL       string      `json:"videoUrl,omitempty"`
	PlateProcessed bool        `json:"plateProcessed"`
	Plates         []PlateInfo `json:"plates"`
}

// PlateInfo is the catalog view of one plate crop.
type PlateInfo struct {
	PlateID    int     `json:"plateId"`
	ImageURL   string  `json:"imageUrl,omitempty"`
	Confidence float64 `json:"confidence"`
	FrameTime  string  `json:"frameTime"`
}

// MarshalJSON formats the timestamp the same way event.json does.
func (e EventInfo) MarshalJSON() ([]byte, error) {
	type Alias EventInfo
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		Alias
	}{
		Timestamp: e.Timestamp.Format(TimestampLayout),
		Alias:     (Alias)(e),
	})
}

// UnmarshalJSON accepts the timestamp format written by MarshalJSON.
func (e *EventInfo) UnmarshalJSON(data []byte) error {
	type Alias EventInfo
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{Alias: (*Alias)(e)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.Timestamp == "" {
		return nil
	}
	t, err := time.ParseInLocation(TimestampLayout, aux.Timestamp, time.Local)
	if err != nil {
		return err
	}
	e.Timestamp = t
	return nil
}
