package track

import (
	"context"
	"math"

	"github.com/cxd309/tms-track/internal/vmath"
	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Look-ahead applied to the far end of an element when checking events on a boundary crossing, so events
// sitting exactly on the boundary are caught.
const boundaryLookAhead = 0.01

// Follower is a cursor on a track. It resolves a track position into a world frame and fires the events
// its motion crosses.
type Follower struct {
	TrackIndex       int
	TrackPosition    float64
	LastTrackElement int

	WorldPosition  mgl64.Vec3
	WorldDirection mgl64.Vec3
	WorldUp        mgl64.Vec3
	WorldSide      mgl64.Vec3

	CurveRadius         float64
	CurveCant           float64
	CantDueToInaccuracy float64
	Pitch               float64

	AdhesionMultiplier float64
	RainIntensity      int
	SnowIntensity      int

	Odometer     float64
	StationIndex int
	TriggerType  EventTriggerType

	// Train and CarIndex identify the owner. They are handed to event handlers and never inspected here.
	Train    Train
	CarIndex int
}

// NewFollower returns a follower at position 0 of track 0 that triggers nothing.
func NewFollower(train Train, carIndex int) *Follower {
	return &Follower{
		WorldDirection:     vmath.Forward,
		WorldUp:            vmath.Up,
		WorldSide:          vmath.Right,
		AdhesionMultiplier: 1,
		StationIndex:       -1,
		TriggerType:        TriggerNone,
		Train:              train,
		CarIndex:           carIndex,
	}
}

// Clone returns an independent follower at the same position and frame. Environmental samples, the
// odometer, the station index and the inaccuracy cant start fresh.
func (f *Follower) Clone() *Follower {
	c := NewFollower(f.Train, f.CarIndex)
	c.TrackIndex = f.TrackIndex
	c.TrackPosition = f.TrackPosition
	c.LastTrackElement = f.LastTrackElement
	c.WorldPosition = f.WorldPosition
	c.WorldDirection = f.WorldDirection
	c.WorldUp = f.WorldUp
	c.WorldSide = f.WorldSide
	c.CurveRadius = f.CurveRadius
	c.CurveCant = f.CurveCant
	c.TriggerType = f.TriggerType
	return c
}

// EnterStation records that the follower passed the start of a station in the given direction.
func (f *Follower) EnterStation(stationIndex, direction int) {
	switch {
	case direction < 0:
		if f.StationIndex == stationIndex {
			f.StationIndex = -1
		}
	case direction > 0:
		f.StationIndex = stationIndex
	}
}

// LeaveStation records that the follower passed the end of a station in the given direction.
func (f *Follower) LeaveStation(stationIndex, direction int) {
	switch {
	case direction < 0:
		f.StationIndex = stationIndex
	case direction > 0:
		if f.StationIndex == stationIndex {
			f.StationIndex = -1
		}
	}
}

// Frame returns the follower's current world frame.
func (f *Follower) Frame() Frame {
	return Frame{
		Position:  f.WorldPosition,
		Direction: f.WorldDirection,
		Up:        f.WorldUp,
		Side:      f.WorldSide,
	}
}

// UpdateRelative moves the follower by delta along its track.
func (f *Follower) UpdateRelative(reg *Registry, delta float64, updateWorldCoordinates, addInaccuracy bool) {
	f.UpdateAbsolute(reg, f.TrackPosition+delta, updateWorldCoordinates, addInaccuracy)
}

// UpdateWorldCoordinates recomputes the world frame at the current position.
func (f *Follower) UpdateWorldCoordinates(reg *Registry, addInaccuracy bool) {
	f.UpdateAbsolute(reg, f.TrackPosition, true, addInaccuracy)
}

// UpdateAbsolute moves the follower to newPosition on its current track, firing every event crossed on
// the way. If the follower's track is not registered nothing happens.
func (f *Follower) UpdateAbsolute(reg *Registry, newPosition float64, updateWorldCoordinates, addInaccuracy bool) {
	t, ok := reg.Track(f.TrackIndex)
	if !ok {
		return
	}
	f.update(reg, t, newPosition, updateWorldCoordinates, addInaccuracy)
}

// update is UpdateAbsolute against an explicit track. reg may be nil, in which case no events fire.
func (f *Follower) update(reg *Registry, t *Track, newPosition float64, updateWorldCoordinates, addInaccuracy bool) {
	if len(t.Elements) == 0 {
		f.runOff(newPosition)
		return
	}

	i := t.prevValid(max(f.LastTrackElement, 0))
	for i >= 0 && newPosition < t.Elements[i].StartingTrackPosition {
		f.checkEvents(reg, i, -1, f.TrackPosition-t.Elements[i].StartingTrackPosition, -boundaryLookAhead)
		if t = f.currentTrack(reg, t); t == nil {
			f.runOff(newPosition)
			return
		}
		i = t.prevValid(i - 1)
	}
	if i < 0 {
		i = t.nextValid(0)
	}
	if i < 0 {
		// Nothing but gap slots.
		f.runOff(newPosition)
		return
	}
	for {
		j := t.nextValid(i + 1)
		if j < 0 || newPosition < t.Elements[j].StartingTrackPosition {
			break
		}
		start := t.Elements[i].StartingTrackPosition
		f.checkEvents(reg, i, 1, f.TrackPosition-start, t.Elements[j].StartingTrackPosition-start+boundaryLookAhead)
		if t = f.currentTrack(reg, t); t == nil {
			f.runOff(newPosition)
			return
		}
		if i = j; i >= len(t.Elements) || t.Elements[i].InvalidElement {
			if i = t.prevValid(i); i < 0 {
				f.runOff(newPosition)
				return
			}
			break
		}
	}

	e := &t.Elements[i]
	da := f.TrackPosition - e.StartingTrackPosition
	db := newPosition - e.StartingTrackPosition

	// Cant and inaccuracy blend towards the next valid element.
	var next *TrackElement
	blend := 0.0
	if j := t.nextValid(i + 1); j >= 0 {
		next = &t.Elements[j]
		if span := next.StartingTrackPosition - e.StartingTrackPosition; span > 0 {
			blend = vmath.Clamp(db/span, 0, 1)
		}
	}

	if updateWorldCoordinates {
		fr := e.FrameAt(db)
		f.WorldPosition = fr.Position
		f.WorldDirection = fr.Direction
		f.WorldUp = fr.Up
		f.WorldSide = fr.Side
	}
	f.CurveRadius = e.CurveRadius
	switch {
	case db == 0 || next == nil:
		f.CurveCant = e.CurveCant
	default:
		f.CurveCant = cantAt(e, next, blend)
	}
	f.Pitch = e.Pitch
	f.AdhesionMultiplier = e.AdhesionMultiplier
	f.RainIntensity = e.RainIntensity
	f.SnowIntensity = e.SnowIntensity

	if addInaccuracy {
		x, y, c := t.GetInaccuracies(newPosition, e.CsvRwAccuracyLevel)
		if next != nil {
			x2, y2, c2 := t.GetInaccuracies(newPosition, next.CsvRwAccuracyLevel)
			x = (1-blend)*x + blend*x2
			y = (1-blend)*y + blend*y2
			c = (1-blend)*c + blend*c2
		}
		f.WorldPosition = f.WorldPosition.Add(f.WorldSide.Mul(x)).Add(f.WorldUp.Mul(y))
		f.CurveCant += c
		f.CantDueToInaccuracy = c
	} else {
		f.CantDueToInaccuracy = 0
	}

	f.checkEvents(reg, i, vmath.Sign(db-da), da, db)

	if step := newPosition - f.TrackPosition; step != 0 {
		if math.Abs(step) > f.teleportThreshold(reg) {
			f.Odometer = 0
		} else {
			f.Odometer += step
		}
	}
	f.TrackPosition = newPosition
	f.LastTrackElement = i
}

// currentTrack re-resolves the follower's track after events ran, since a handler may have handed the
// follower over to another track. It returns nil if the new track is unusable.
// runOff commits newPosition when there is no element to place the follower on. World Z carries
// the distance moved so a later update on real geometry starts from a consistent position.
func (f *Follower) runOff(newPosition float64) {
	f.WorldPosition[2] += newPosition - f.TrackPosition
	f.TrackPosition = newPosition
	f.LastTrackElement = 0
}

func (f *Follower) currentTrack(reg *Registry, t *Track) *Track {
	if reg == nil {
		return t
	}
	nt, ok := reg.Track(f.TrackIndex)
	if !ok || len(nt.Elements) == 0 {
		return nil
	}
	return nt
}

func (f *Follower) teleportThreshold(reg *Registry) float64 {
	if reg == nil {
		return DefaultOptions().TeleportThreshold
	}
	return reg.opts.TeleportThreshold
}

// checkEvents fires the events of element i on the follower's track whose delta lies in the interval
// swept from oldDelta to newDelta. If a handler moves the follower to another track the same element
// index is checked there, once per track.
func (f *Follower) checkEvents(reg *Registry, i, direction int, oldDelta, newDelta float64) {
	if reg == nil || f.TriggerType == TriggerNone || direction == 0 {
		return
	}
	visited := map[int]struct{}{}
	for depth := 0; ; depth++ {
		ti := f.TrackIndex
		visited[ti] = struct{}{}
		t, ok := reg.Track(ti)
		if !ok || i >= len(t.Elements) {
			return
		}
		if !f.fireElement(reg, t, i, direction, oldDelta, newDelta) {
			return
		}
		// A handler moved the follower.
		if _, seen := visited[f.TrackIndex]; seen || depth+1 >= reg.opts.MaxHandOffDepth {
			reg.guarded.Add(context.Background(), 1, metric.WithAttributes(attribute.Int("track", f.TrackIndex)))
			reg.log.Warn("Stopped recursive track hand-off",
				"from", ti, "to", f.TrackIndex, "element", i, "depth", depth+1)
			return
		}
	}
}

// fireElement triggers the events of one element in travel order. It stops and returns true as soon as a
// handler changes the follower's track.
func (f *Follower) fireElement(reg *Registry, t *Track, i, direction int, oldDelta, newDelta float64) bool {
	ti := f.TrackIndex
	e := &t.Elements[i]
	tc := TriggerContext{
		Direction:   direction,
		TriggerType: f.TriggerType,
		Train:       f.Train,
		CarIndex:    f.CarIndex,
		Follower:    f,
	}
	if direction < 0 {
		for j := len(e.Events) - 1; j >= 0; j-- {
			ev := e.Events[j]
			if oldDelta > ev.TrackPositionDelta && newDelta <= ev.TrackPositionDelta {
				tc.TrackPosition = e.StartingTrackPosition + ev.TrackPositionDelta
				reg.trigger(ev, tc)
				if f.TrackIndex != ti {
					return true
				}
			}
		}
		return false
	}
	for _, ev := range e.Events {
		if oldDelta < ev.TrackPositionDelta && newDelta >= ev.TrackPositionDelta {
			tc.TrackPosition = e.StartingTrackPosition + ev.TrackPositionDelta
			reg.trigger(ev, tc)
			if f.TrackIndex != ti {
				return true
			}
		}
	}
	return false
}
