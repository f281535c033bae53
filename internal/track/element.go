package track

import (
	"github.com/cxd309/tms-track/internal/vmath"
	"github.com/go-gl/mathgl/mgl64"
)

// PowerSupplyType identifies the conductor a power supply is delivered through.
type PowerSupplyType int

const (
	PowerSupplyOverheadLine PowerSupplyType = iota
	PowerSupplyThirdRail
	PowerSupplyFourthRail
)

// PowerSupply describes the electrical supply available along an element.
type PowerSupply struct {
	Voltage       float64 `json:"voltage"`        // volts
	Amperage      float64 `json:"amperage"`       // amps
	ContactHeight float64 `json:"contact_height"` // metres above the rail head
	AC            bool    `json:"ac"`
}

// Frame is a world-space position with its orientation.
type Frame struct {
	Position  mgl64.Vec3
	Direction mgl64.Vec3
	Up        mgl64.Vec3
	Side      mgl64.Vec3
}

// Yaw returns the frame turned by angle about the world vertical. A positive angle turns towards Side.
func (f Frame) Yaw(angle float64) Frame {
	if angle == 0 {
		return f
	}
	return Frame{
		Position:  f.Position,
		Direction: vmath.Yaw(f.Direction, angle),
		Up:        vmath.Yaw(f.Up, angle),
		Side:      vmath.Yaw(f.Side, angle),
	}
}

// WithPitch returns the frame with its direction set to climb at perMille, keeping heading and side.
func (f Frame) WithPitch(perMille float64) Frame {
	h := vmath.Normalize(vmath.Horizontal(f.Direction))
	if h.Dot(h) == 0 {
		return f
	}
	dir := vmath.Normalize(mgl64.Vec3{h.X(), perMille / 1000, h.Z()})
	side := vmath.Normalize(vmath.Horizontal(f.Side))
	return Frame{
		Position:  f.Position,
		Direction: dir,
		Up:        dir.Cross(side),
		Side:      side,
	}
}

// TrackElement is one cell of track geometry, valid from StartingTrackPosition up to the start of the
// next valid element.
//
// Elements are written by the route loader and by the load-time transforms only. Followers read them.
type TrackElement struct {
	// InvalidElement marks a gap slot used to splice separately authored segments. Gap slots carry no
	// geometry and are skipped by lookups.
	InvalidElement bool

	StartingTrackPosition float64

	CurveRadius      float64 // signed; 0 is straight, positive turns towards WorldSide
	CurveCant        float64
	CurveCantTangent float64

	Pitch              float64 // per mille
	AdhesionMultiplier float64
	RainIntensity      int
	SnowIntensity      int
	CsvRwAccuracyLevel float64

	WorldPosition  mgl64.Vec3
	WorldDirection mgl64.Vec3
	WorldUp        mgl64.Vec3
	WorldSide      mgl64.Vec3

	// Events are anchored relative to StartingTrackPosition and kept in ascending delta order.
	Events []*Event

	PowerSupplies map[PowerSupplyType]PowerSupply
}

// NewTrackElement returns a straight element at the given position with a default frame facing +Z.
func NewTrackElement(startingTrackPosition float64) TrackElement {
	return TrackElement{
		StartingTrackPosition: startingTrackPosition,
		AdhesionMultiplier:    1,
		WorldDirection:        mgl64.Vec3{0, 0, 1},
		WorldUp:               mgl64.Vec3{0, 1, 0},
		WorldSide:             mgl64.Vec3{1, 0, 0},
	}
}

// Frame returns the element's anchored frame.
func (e *TrackElement) Frame() Frame {
	return Frame{
		Position:  e.WorldPosition,
		Direction: e.WorldDirection,
		Up:        e.WorldUp,
		Side:      e.WorldSide,
	}
}

// SetFrame overwrites the element's anchored frame.
func (e *TrackElement) SetFrame(f Frame) {
	e.WorldPosition = f.Position
	e.WorldDirection = f.Direction
	e.WorldUp = f.Up
	e.WorldSide = f.Side
}

// AddEvent anchors ev to the element, keeping the list ordered by delta. Events with equal deltas keep
// insertion order.
func (e *TrackElement) AddEvent(ev *Event) {
	i := len(e.Events)
	for i > 0 && e.Events[i-1].TrackPositionDelta > ev.TrackPositionDelta {
		i--
	}
	e.Events = append(e.Events, nil)
	copy(e.Events[i+1:], e.Events[i:])
	e.Events[i] = ev
}

// clone copies the element's data. The event list is not shared.
func (e *TrackElement) clone() TrackElement {
	c := *e
	c.Events = nil
	if e.PowerSupplies != nil {
		c.PowerSupplies = make(map[PowerSupplyType]PowerSupply, len(e.PowerSupplies))
		for k, v := range e.PowerSupplies {
			c.PowerSupplies[k] = v
		}
	}
	return c
}
