package track

import (
	"log/slog"
	"math"

	"github.com/cxd309/tms-track/internal/vmath"
	"github.com/go-gl/mathgl/mgl64"
)

// Below these squared side-vector differences an axis gives no usable radius estimate.
const radiusAxisEpsilon = 1e-6

// Sampling offset used to read the geometry just before an element boundary.
const boundaryBias = 1e-8

// SmoothTurns replaces the kinks between straight runs with fitted circular arcs. Every element is split
// into subdivisions parts first; a kink is then fitted using the parts either side of it. Event track
// positions, the first element's position and the last element's position are preserved.
//
// It must run before any follower uses the track. reg supplies tunables and the logger and may be nil.
func (t *Track) SmoothTurns(subdivisions int, reg *Registry) error {
	if subdivisions < 2 {
		return ErrInvalidSubdivisions
	}
	opts, log := DefaultOptions(), slog.Default()
	if reg != nil {
		opts, log = reg.opts, reg.log
	}
	if len(t.Elements) < 2 {
		return nil
	}

	events := t.EventCount()
	t.subdivide(subdivisions)
	turns := t.findTurns(subdivisions, opts.TurnEpsilon)

	var fitted, skipped int
	for _, i := range turns {
		if t.fitTurn(i, opts.BisectionSamples) {
			fitted++
		} else {
			skipped++
		}
	}
	t.relocateEvents()
	t.ComputeCantTangents()

	log.Debug("Smoothed turns",
		"track", t.Name,
		"subdivisions", subdivisions,
		"elements", len(t.Elements),
		"turns", len(turns),
		"fitted", fitted,
		"skipped", skipped,
		"events", events)
	return nil
}

// subdivide splits every element into subdivisions parts. The original elements land on multiples of
// subdivisions; the parts in between are sampled from the original geometry, inherit their parent's data
// and carry no events.
func (t *Track) subdivide(subdivisions int) {
	n := len(t.Elements)
	out := make([]TrackElement, (n-1)*subdivisions+1)
	walker := NewFollower(nil, 0)
	for q := 0; q < n-1; q++ {
		a, b := &t.Elements[q], &t.Elements[q+1]
		out[q*subdivisions] = *a
		for m := 1; m < subdivisions; m++ {
			part := a.clone()
			r := float64(m) / float64(subdivisions)
			if a.InvalidElement || b.InvalidElement {
				// Gap geometry is meaningless; keep the part out of lookups.
				part.InvalidElement = true
				out[q*subdivisions+m] = part
				continue
			}
			p := (1-r)*a.StartingTrackPosition + r*b.StartingTrackPosition
			walker.update(nil, t, p, true, false)
			part.StartingTrackPosition = p
			part.SetFrame(walker.Frame())
			part.CurveCant = walker.CurveCant
			part.CurveCantTangent = 0
			out[q*subdivisions+m] = part
		}
	}
	out[len(out)-1] = t.Elements[n-1]
	t.Elements = out
}

// endFrame is the frame at which element i hands over to element i+1.
func (t *Track) endFrame(i int) Frame {
	e := &t.Elements[i]
	next := t.Elements[i+1].StartingTrackPosition
	p := boundaryBias*e.StartingTrackPosition + (1-boundaryBias)*next
	return e.FrameAt(p - e.StartingTrackPosition)
}

// findTurns returns the original element boundaries whose stored direction disagrees with the geometry
// arriving at them.
func (t *Track) findTurns(subdivisions int, epsilon float64) []int {
	var turns []int
	for i := subdivisions; i < len(t.Elements)-1; i += subdivisions {
		if t.Elements[i-1].InvalidElement || t.Elements[i].InvalidElement || t.Elements[i+1].InvalidElement {
			continue
		}
		d := t.Elements[i].WorldDirection.Sub(t.endFrame(i - 1).Direction)
		if d.X()*d.X()+d.Z()*d.Z() > epsilon {
			turns = append(turns, i)
		}
	}
	return turns
}

// estimateRadius derives the radius of the arc joining elements a and b from their positions and side
// vectors. It returns 0 if the two axis estimates disagree or neither is usable.
func estimateRadius(a, b *TrackElement) float64 {
	s := a.WorldSide.Sub(b.WorldSide)
	var rx, rz float64
	if s.X()*s.X() > radiusAxisEpsilon {
		rx = (b.WorldPosition.X() - a.WorldPosition.X()) / s.X()
	}
	if s.Z()*s.Z() > radiusAxisEpsilon {
		rz = (b.WorldPosition.Z() - a.WorldPosition.Z()) / s.Z()
	}
	switch {
	case rx != 0 && rz != 0:
		if vmath.Sign(rx) != vmath.Sign(rz) {
			return 0
		}
		if f := rx / rz; f <= 0.9 || f >= 1.1 {
			return 0
		}
		return math.Sqrt(math.Abs(rx*rz)) * float64(vmath.Sign(rx))
	case rx != 0:
		return rx
	default:
		return rz
	}
}

// fitTurn bends the parts either side of the kink at i into an arc and re-fits the length of part i so
// that it still ends on part i+1. It reports whether the turn was fitted.
func (t *Track) fitTurn(i, samples int) bool {
	prev, cur, next := &t.Elements[i-1], &t.Elements[i], &t.Elements[i+1]
	r := estimateRadius(prev, next)
	if r*r <= 1 {
		return false
	}

	prev.CurveRadius = r
	cur.CurveRadius = r
	cur.SetFrame(t.endFrame(i - 1))

	// Part i may grow up to the start of part i+2 so that element order is preserved.
	limit := t.Elements[i+2].StartingTrackPosition - cur.StartingTrackPosition
	target := next.WorldPosition

	length, best := fitLength(cur, target, limit, samples)

	// The yaw needed to point part i at its target is known up to its sign, and the arc may already
	// cover it. Try all three and keep the best.
	angle := yawBetween(cur.WorldDirection, target.Sub(cur.WorldPosition))
	base := cur.Frame()
	bestK := 0
	for _, k := range []int{-1, 1} {
		cur.SetFrame(base.Yaw(float64(k) * angle))
		if l, e := fitLength(cur, target, limit, samples); e < best {
			length, best, bestK = l, e, k
		}
	}
	cur.SetFrame(base.Yaw(float64(bestK) * angle))
	length, _ = fitLength(cur, target, limit, samples)

	// Grade: turn the part about its side axis so its gradient matches the straight line to the target.
	delta := target.Sub(cur.WorldPosition)
	if run := vmath.HorizontalLen(delta); run > 0 {
		pitch := math.Atan(delta.Y()/run) - math.Atan(vmath.Gradient(cur.WorldDirection))
		cur.WorldDirection = vmath.RotateAbout(cur.WorldDirection, cur.WorldSide, -pitch)
		cur.WorldUp = vmath.RotateAbout(cur.WorldUp, cur.WorldSide, -pitch)
	}

	next.StartingTrackPosition = cur.StartingTrackPosition + length
	return true
}

// fitLength bisects for the length of e, within [0, limit], whose end point lies closest to target. It
// returns the length and the squared distance left over.
func fitLength(e *TrackElement, target mgl64.Vec3, limit float64, samples int) (float64, float64) {
	lo, hi := 0.0, limit
	for k := 0; k < samples && hi-lo > 1e-10; k++ {
		mid := 0.5 * (lo + hi)
		f := e.FrameAt(mid)
		if target.Sub(f.Position).Dot(f.Direction) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	l := 0.5 * (lo + hi)
	return l, vmath.DistSq(e.FrameAt(l).Position, target)
}

// yawBetween is the unsigned horizontal angle between a and b.
func yawBetween(a, b mgl64.Vec3) float64 {
	ha, hb := vmath.Normalize(vmath.Horizontal(a)), vmath.Normalize(vmath.Horizontal(b))
	return math.Acos(vmath.Clamp(ha.Dot(hb), -1, 1))
}

// relocateEvents moves every event that now lies at or beyond the start of the following element onto
// that element, keeping its track position.
func (t *Track) relocateEvents() {
	for i := range t.Elements {
		j := t.nextValid(i + 1)
		if j < 0 {
			return
		}
		e, boundary := &t.Elements[i], t.Elements[j].StartingTrackPosition
		keep := e.Events[:0]
		for _, ev := range e.Events {
			if abs := e.StartingTrackPosition + ev.TrackPositionDelta; abs >= boundary {
				ev.TrackPositionDelta = abs - boundary
				t.Elements[j].AddEvent(ev)
				continue
			}
			keep = append(keep, ev)
		}
		clear(e.Events[len(keep):])
		e.Events = keep
	}
}
