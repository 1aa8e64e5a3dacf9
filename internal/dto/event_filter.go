// EventFilters describe user-provided filters to narrow the catalogued event list.
package dto

import "time"

type EventFilters struct {
	Camera     string
	Actor      string
	DateAfter  time.Time
	DateBefore time.Time
	Limit      int
	Offset     int
}
