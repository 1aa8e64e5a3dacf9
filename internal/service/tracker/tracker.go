// Package tracker deduplicates detections of the same physical object.
//
// Two uses share the box geometry: a single-frame filter that drops waste
// boxes touching any vehicle box, and a multi-frame Tracker that maps each
// plate detection to an existing track or opens a new one.
package tracker

import (
	"time"

	"dumpwatch/internal/dto"
)

const (
	DefaultIoUThreshold      = 0.3
	DefaultDistanceThreshold = 80.0
	DefaultMaxAge            = 5 * time.Second
)

// FilterOverlapping returns the candidates that overlap none of the blockers.
func FilterOverlapping(candidates, blockers []dto.Detection) []dto.Detection {
	if len(blockers) == 0 {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if !OverlapsAny(c.Box, dto.Boxes(blockers)) {
			out = append(out, c)
		}
	}
	return out
}

// OverlapsAny reports whether b overlaps at least one of others.
func OverlapsAny(b dto.Box, others []dto.Box) bool {
	for _, o := range others {
		if b.Overlaps(o) {
			return true
		}
	}
	return false
}

// Track is one deduplicated object. At is the offset at which it was last seen.
type Track struct {
	ID       int
	Box      dto.Box
	FirstAt  time.Duration
	LastAt   time.Duration
	Hits     int
	MaxScore float64
}

// Tracker matches boxes against known tracks. A box belongs to a track when
// IoU exceeds IoUThreshold or the centre distance is below DistanceThreshold.
// The first matching track in creation order wins.
type Tracker struct {
	IoUThreshold      float64
	DistanceThreshold float64
	MaxAge            time.Duration // tracks unseen for longer are dropped, 0 keeps them forever

	tracks []*Track
	nextID int
}

func New(iouThreshold, distanceThreshold float64, maxAge time.Duration) *Tracker {
	return &Tracker{
		IoUThreshold:      iouThreshold,
		DistanceThreshold: distanceThreshold,
		MaxAge:            maxAge,
		nextID:            1,
	}
}

// Observe records a detection seen at offset at. It returns the track the
// detection was assigned to and whether that track was created by this call.
func (t *Tracker) Observe(box dto.Box, score float64, at time.Duration) (Track, bool) {
	t.prune(at)

	if tr := t.match(box); tr != nil {
		tr.Box = box
		tr.LastAt = at
		tr.Hits++
		tr.MaxScore = max(tr.MaxScore, score)
		return *tr, false
	}

	tr := &Track{
		ID:       t.nextID,
		Box:      box,
		FirstAt:  at,
		LastAt:   at,
		Hits:     1,
		MaxScore: score,
	}
	t.nextID++
	t.tracks = append(t.tracks, tr)
	return *tr, true
}

// Matches reports whether box would be assigned to an existing track.
func (t *Tracker) Matches(box dto.Box) bool {
	return t.match(box) != nil
}

func (t *Tracker) match(box dto.Box) *Track {
	for _, tr := range t.tracks {
		if box.IoU(tr.Box) > t.IoUThreshold || box.CenterDistance(tr.Box) < t.DistanceThreshold {
			return tr
		}
	}
	return nil
}

func (t *Tracker) prune(now time.Duration) {
	if t.MaxAge <= 0 {
		return
	}
	kept := t.tracks[:0]
	for _, tr := range t.tracks {
		if now-tr.LastAt <= t.MaxAge {
			kept = append(kept, tr)
		}
	}
	t.tracks = kept
}

// Tracks returns a snapshot of the live tracks in creation order.
func (t *Tracker) Tracks() []Track {
	out := make([]Track, len(t.tracks))
	for i, tr := range t.tracks {
		out[i] = *tr
	}
	return out
}

// Reset forgets every track. Ids keep increasing.
func (t *Tracker) Reset() {
	t.tracks = nil
}
