// Package track maps scalar track positions onto world-space frames.
//
// A Track is an ordered array of TrackElements. It is populated once by a route loader, transformed once
// by ComputeCantTangents and SmoothTurns, and is then read-only. Any number of Followers may read the same
// Track concurrently; each Follower is owned by a single caller.
package track

import (
	"math"

	"github.com/cxd309/tms-track/internal/vmath"
	"github.com/go-gl/mathgl/mgl64"
)

// DefaultRailGauge is standard gauge in metres.
const DefaultRailGauge = 1.435

// Track is one named run of rail.
type Track struct {
	Name      string
	Elements  []TrackElement
	RailGauge float64
}

// NewTrack returns an empty standard-gauge track.
func NewTrack(name string) *Track {
	return &Track{Name: name, RailGauge: DefaultRailGauge}
}

// GetInaccuracies returns the lateral (x), vertical (y) and cant (c) perturbation of imperfect track at
// position. The result depends only on position, level and the rail gauge.
func (t *Track) GetInaccuracies(position, level float64) (x, y, c float64) {
	if level <= 0 {
		return 0, 0, 0
	}
	z := math.Pow(0.25*level, 1.2) * position
	x = 0.14*math.Sin(0.5843*z) + 0.82*math.Sin(0.2246*z) + 0.55*math.Sin(0.1974*z)
	x *= 0.0035 * t.RailGauge * level
	y = 0.18*math.Sin(0.5172*z) + 0.37*math.Sin(0.3251*z) + 0.91*math.Sin(0.3773*z)
	y *= 0.0020 * t.RailGauge * level
	c = 0.23*math.Sin(0.3131*z) + 0.54*math.Sin(0.5807*z) + 0.81*math.Sin(0.3621*z)
	c *= 0.0025 * t.RailGauge * level
	return x, y, c
}

// maxCantTangentNorm bounds the normalized tangent pair of a segment to keep the cant spline monotone.
const maxCantTangentNorm = 3.0

// ComputeCantTangents fills CurveCantTangent with finite-difference tangents of cant over element index.
func (t *Track) ComputeCantTangents() {
	n := len(t.Elements)
	switch n {
	case 0:
		return
	case 1:
		t.Elements[0].CurveCantTangent = 0
		return
	}

	deltas := make([]float64, n-1)
	for i := range deltas {
		deltas[i] = t.Elements[i+1].CurveCant - t.Elements[i].CurveCant
	}

	tangents := make([]float64, n)
	tangents[0] = deltas[0]
	tangents[n-1] = deltas[n-2]
	for i := 1; i < n-1; i++ {
		tangents[i] = 0.5 * (deltas[i-1] + deltas[i])
	}

	for i, d := range deltas {
		if d == 0 {
			tangents[i] = 0
			tangents[i+1] = 0
			continue
		}
		a := tangents[i] / d
		b := tangents[i+1] / d
		if norm := math.Hypot(a, b); norm > maxCantTangentNorm {
			s := maxCantTangentNorm / norm
			tangents[i] = s * a * d
			tangents[i+1] = s * b * d
		}
	}

	for i := range t.Elements {
		t.Elements[i].CurveCantTangent = tangents[i]
	}
}

// cantAt evaluates the cubic Hermite cant spline between a and b at t in [0, 1].
func cantAt(a, b *TrackElement, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return (2*t3-3*t2+1)*a.CurveCant +
		(t3-2*t2+t)*a.CurveCantTangent +
		(-2*t3+3*t2)*b.CurveCant +
		(t3-t2)*b.CurveCantTangent
}

// FrameAt returns the frame db metres past the start of element e, following its arc when CurveRadius is
// set. The arc is evaluated in closed form: the chord is rotated by half the subtended angle and the frame
// by the whole angle.
func (e *TrackElement) FrameAt(db float64) Frame {
	if db == 0 {
		return e.Frame()
	}
	if e.CurveRadius == 0 {
		return Frame{
			Position:  e.WorldPosition.Add(e.WorldDirection.Mul(db)),
			Direction: e.WorldDirection,
			Up:        e.WorldUp,
			Side:      e.WorldSide,
		}
	}

	r := e.CurveRadius
	p := vmath.Gradient(e.WorldDirection)
	s := db / math.Sqrt(1+p*p)
	h := s * p
	b := s / math.Abs(r)
	f := 2 * r * r * (1 - math.Cos(b))
	c := float64(vmath.Sign(db)) * math.Sqrt(math.Max(f, 0))
	a := 0.5 * float64(vmath.Sign(r)) * b

	d := vmath.Yaw(vmath.Normalize(vmath.Horizontal(e.WorldDirection)), a)
	pos := e.WorldPosition.Add(mgl64.Vec3{c * d.X(), h, c * d.Z()})
	d = vmath.Yaw(d, a)
	dir := vmath.Normalize(mgl64.Vec3{d.X(), p, d.Z()})
	side := vmath.Yaw(e.WorldSide, 2*a)
	return Frame{
		Position:  pos,
		Direction: dir,
		Up:        dir.Cross(side),
		Side:      side,
	}
}

// prevValid returns the nearest non-gap element at or before i, or -1.
func (t *Track) prevValid(i int) int {
	if i >= len(t.Elements) {
		i = len(t.Elements) - 1
	}
	for i >= 0 && t.Elements[i].InvalidElement {
		i--
	}
	return i
}

// nextValid returns the nearest non-gap element at or after i, or -1.
func (t *Track) nextValid(i int) int {
	if i < 0 {
		i = 0
	}
	for i < len(t.Elements) {
		if !t.Elements[i].InvalidElement {
			return i
		}
		i++
	}
	return -1
}

// EventCount returns the number of events anchored to the track.
func (t *Track) EventCount() int {
	n := 0
	for i := range t.Elements {
		n += len(t.Elements[i].Events)
	}
	return n
}

// EndPosition returns the starting position of the last element, or 0 for an empty track.
func (t *Track) EndPosition() float64 {
	if len(t.Elements) == 0 {
		return 0
	}
	return t.Elements[len(t.Elements)-1].StartingTrackPosition
}
