// EventsData is a paginated response payload for the evidence catalog.
package dto

type EventsData struct {
	Events      []EventInfo `json:"events"`
	Synced      *SyncReport `json:"synced,omitempty"`
	Length      int         `json:"length"`
	TotalPages  int         `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
	Limit       int         `json:"pageSize"`
}

// SyncReport summarises one synchronizer run.
type SyncReport struct {
	Scanned    int `json:"scanned"`
	Ingested   int `json:"ingested"`
	Duplicates int `json:"duplicates"`
	Refreshed  int `json:"refreshed"`
	Skipped    int `json:"skipped"`
}
