// Package vmath holds the small set of vector operations the track geometry needs on top of mgl64.
//
// World space is Y-up. A track frame is (Direction, Up, Side) with Up = Direction x Side; for a frame facing +Z
// the side vector is +X.
package vmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	// Up is the world vertical.
	Up = mgl64.Vec3{0, 1, 0}
	// Forward is the default travel direction of an unrotated frame.
	Forward = mgl64.Vec3{0, 0, 1}
	// Right is the default side vector of an unrotated frame.
	Right = mgl64.Vec3{1, 0, 0}
)

// Normalize returns v scaled to unit length. The zero vector is returned unchanged.
func Normalize(v mgl64.Vec3) mgl64.Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Mul(1 / l)
}

// Horizontal drops the vertical component of v.
func Horizontal(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{v.X(), 0, v.Z()}
}

// HorizontalLen is the length of v projected onto the ground plane.
func HorizontalLen(v mgl64.Vec3) float64 {
	return math.Hypot(v.X(), v.Z())
}

// Gradient returns rise over run of a direction vector. A vertical vector has zero gradient.
func Gradient(dir mgl64.Vec3) float64 {
	run := HorizontalLen(dir)
	if run == 0 {
		return 0
	}
	return dir.Y() / run
}

// Yaw rotates v about the world vertical. A positive angle turns +Z towards +X.
func Yaw(v mgl64.Vec3, angle float64) mgl64.Vec3 {
	return mgl64.Rotate3DY(angle).Mul3x1(v)
}

// RotateAbout rotates v by angle (right-hand rule) about axis. The axis need not be normalized.
func RotateAbout(v, axis mgl64.Vec3, angle float64) mgl64.Vec3 {
	axis = Normalize(axis)
	if axis.Dot(axis) == 0 {
		return v
	}
	return mgl64.QuatRotate(angle, axis).Rotate(v)
}

// DistSq is the squared distance between a and b.
func DistSq(a, b mgl64.Vec3) float64 {
	d := a.Sub(b)
	return d.Dot(d)
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Sign returns -1, 0 or +1.
func Sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
