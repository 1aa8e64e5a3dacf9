// Package dumping decides, frame by frame, when a camera has witnessed a
// dumping event: a vehicle was present, left, and waste stayed behind.
package dumping

import (
	"strings"
	"time"

	"dumpwatch/internal/dto"
	"dumpwatch/internal/service/tracker"
)

// Phase is the observable condition of a camera's state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActorPresent
	PhaseWastePersisting
	PhaseConfirmed
	PhaseCooldown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseActorPresent:
		return "ACTOR_PRESENT"
	case PhaseWastePersisting:
		return "WASTE_PERSISTING"
	case PhaseConfirmed:
		return "CONFIRMED"
	case PhaseCooldown:
		return "COOLDOWN"
	}
	return "UNKNOWN"
}

// Thresholds are the debounce timings of the machine.
type Thresholds struct {
	ActorLeaveTime   time.Duration
	WastePersistTime time.Duration
	ResetDelay       time.Duration
	ClipDuration     time.Duration // only used to report CONFIRMED vs COOLDOWN
	ActorLabels      []string      // empty accepts every vehicle label
	GroundRatio      float64       // 0 disables the ground-line filter
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ActorLeaveTime:   time.Second,
		WastePersistTime: 2 * time.Second,
		ResetDelay:       8 * time.Second,
		ClipDuration:     10 * time.Second,
	}
}

// Frame is what the detectors reported for one captured frame.
type Frame struct {
	Vehicles []dto.Detection
	Waste    []dto.Detection
	Height   int // frame height in pixels, 0 disables the ground-line filter
}

// State is the per-camera memory of the machine. The zero value is IDLE.
type State struct {
	Active         bool
	ActorSeenOnce  bool
	Actor          string
	ActorLastSeen  time.Time
	WasteFirstSeen time.Time
	WasteLastSeen  time.Time
	ConfirmedAt    time.Time
}

// Outcome reports what a Step did besides updating state.
type Outcome struct {
	Confirmed bool
	Reset     bool
	Actor     string
	Waste     []dto.Detection // waste that survived the filters this frame
}

// Step advances the machine by one frame observed at now.
func Step(s State, f Frame, now time.Time, th Thresholds) (State, Outcome) {
	var out Outcome

	vehicles := ActorDetections(f.Vehicles, th.ActorLabels)
	waste := GroundWaste(tracker.FilterOverlapping(f.Waste, vehicles), f.Height, th.GroundRatio)
	out.Waste = waste

	if len(vehicles) > 0 {
		s.ActorLastSeen = now
		s.ActorSeenOnce = true
		s.Actor = vehicles[0].Label
	}

	if len(waste) > 0 {
		s.WasteLastSeen = now
		if s.WasteFirstSeen.IsZero() {
			s.WasteFirstSeen = now
		}
	} else if !s.Active && !s.WasteFirstSeen.IsZero() && now.Sub(s.WasteLastSeen) > th.ResetDelay {
		// waste that vanished before confirmation no longer counts as persisting
		s.WasteFirstSeen = time.Time{}
	}

	if !s.Active &&
		s.ActorSeenOnce &&
		len(waste) > 0 &&
		now.Sub(s.ActorLastSeen) > th.ActorLeaveTime &&
		now.Sub(s.WasteFirstSeen) >= th.WastePersistTime {
		s.Active = true
		s.ConfirmedAt = now
		out.Confirmed = true
		out.Actor = s.Actor
		return s, out
	}

	if s.Active && len(waste) == 0 && now.Sub(s.WasteLastSeen) > th.ResetDelay {
		s = State{}
		out.Reset = true
	}

	return s, out
}

// Phase derives the observable phase of s at now.
func (s State) Phase(now time.Time, th Thresholds) Phase {
	switch {
	case s.Active && now.Sub(s.ConfirmedAt) < th.ClipDuration:
		return PhaseConfirmed
	case s.Active:
		return PhaseCooldown
	case s.ActorSeenOnce && !s.WasteFirstSeen.IsZero():
		return PhaseWastePersisting
	case s.ActorSeenOnce:
		return PhaseActorPresent
	}
	return PhaseIdle
}

// ActorDetections keeps the detections whose label is one of labels.
func ActorDetections(dets []dto.Detection, labels []string) []dto.Detection {
	if len(labels) == 0 {
		return dets
	}
	out := dets[:0:0]
	for _, d := range dets {
		for _, l := range labels {
			if strings.EqualFold(d.Label, l) {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// GroundWaste drops waste boxes whose bottom edge lies above the ground line.
func GroundWaste(dets []dto.Detection, frameHeight int, ratio float64) []dto.Detection {
	if frameHeight <= 0 || ratio <= 0 {
		return dets
	}
	line := int(float64(frameHeight) * ratio)
	out := dets[:0:0]
	for _, d := range dets {
		if d.Box.Y2 >= line {
			out = append(out, d)
		}
	}
	return out
}
