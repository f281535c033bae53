// Package kinematics defines the MotionModel interface for train traction and braking
// physics, along with built-in implementations.
//
// A model is specified for dry, level track. The track conditions under the leading
// axle (adhesion and grade, as sampled by its follower) derive the model that applies
// for a step. Adding a new model requires implementing MotionModel and registering it
// in the JSON discriminator in the service package.
package kinematics

// Gravity is the standard gravitational acceleration in m/s².
const Gravity = 9.80665

// Conditions are the track conditions a vehicle is running on.
type Conditions struct {
	Adhesion float64 // rail adhesion multiplier; 1 is dry rail
	Pitch    float64 // grade in per mille; positive climbs
}

// Nominal is dry, level track.
var Nominal = Conditions{Adhesion: 1}

// GradeAcceleration is the along-track component of gravity for c, negative when climbing.
func (c Conditions) GradeAcceleration() float64 {
	return -Gravity * c.Pitch / 1000
}

// MotionModel is the physics contract every kinematics implementation must satisfy.
// All distance values are in metres, velocities in m/s, and time in seconds.
type MotionModel interface {
	// VMax returns the vehicle's maximum permissible speed (m/s).
	VMax() float64

	// Under returns the model that applies on track with conditions c.
	Under(c Conditions) MotionModel

	// BrakingDistance returns the minimum distance needed to stop from velocity v.
	BrakingDistance(v float64) float64

	// BrakingDistanceTo returns the distance needed to decelerate from v to targetV.
	// Returns 0 if v ≤ targetV.
	BrakingDistanceTo(v, targetV float64) float64

	// VelocityAfterBraking returns the velocity reached after braking from v0 over dist metres.
	// Used when a movement authority grants less distance than the vehicle proposed.
	VelocityAfterBraking(v0, dist float64) float64

	// AccelerateStep advances the vehicle toward targetV over dt seconds.
	// Handles mid-step transitions: if targetV is reached before dt expires, the
	// vehicle cruises at targetV for the remainder of the timestep.
	// Returns (distance travelled, new velocity).
	AccelerateStep(v, targetV, dt float64) (dist, newV float64)

	// DecelerateStep brakes the vehicle toward targetV (≥ 0) over dt seconds.
	// Handles mid-step transitions: if targetV is reached before dt expires, the
	// vehicle cruises at targetV for the remainder.
	// Returns (distance travelled, new velocity).
	DecelerateStep(v, targetV, dt float64) (dist, newV float64)
}
