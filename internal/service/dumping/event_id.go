package dumping

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const eventIDLayout = "20060102_150405"

// NewEventID returns a sortable, globally unique event id such as
// "20240101_120000_1f2e3d4c".
func NewEventID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.Format(eventIDLayout) + "_" + suffix
}
