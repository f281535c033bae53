// Package service defines the vehicle, stop and service types used in the simulation,
// along with the SimService state machine.
//
// A running service is a train of cars. Every car owns a follower for its front axle
// and one for its rear axle, so the track events a train passes over fire once per
// axle with the trigger type of that axle.
package service

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/cxd309/tms-track/internal/kinematics"
	"github.com/cxd309/tms-track/internal/track"
)

// ServiceID is a unique string identifier for a service.
type ServiceID = string

// ServiceState describes the current motion state of a service.
type ServiceState string

const (
	StateStationary   ServiceState = "stationary"
	StateDwelling     ServiceState = "dwelling"
	StateAccelerating ServiceState = "accelerating"
	StateDecelerating ServiceState = "decelerating"
	StateCruising     ServiceState = "cruising"
	StateTerminated   ServiceState = "terminated"
)

// stopTolerance is how close (metres) the train front must be to a stop to count as standing at it.
const stopTolerance = 0.01

// RouteStop is a stopping point on the service's track with a required dwell time.
type RouteStop struct {
	Name     string  `json:"name"`
	Position float64 `json:"position"` // track position of the train front, metres
	TDwell   float64 `json:"t_dwell"`  // seconds
}

// Vehicle holds the static parameters of a train.
// The physics of acceleration and braking are encapsulated by the Kinem field;
// adding a new model only requires implementing kinematics.MotionModel and registering
// it in UnmarshalJSON below.
type Vehicle struct {
	Name   string                 `json:"name"`
	Length float64                `json:"length"` // train length, metres
	Cars   int                    `json:"cars"`   // number of cars sharing the length equally
	Kinem  kinematics.MotionModel `json:"-"`      // set by UnmarshalJSON
}

// kinematicsDisc is the minimum JSON structure needed to read the model discriminator.
type kinematicsDisc struct {
	Model string `json:"model"`
}

// vehicleJSON is the raw JSON shape of a Vehicle, before the kinematics model is resolved.
type vehicleJSON struct {
	Name   string          `json:"name"`
	Length float64         `json:"length"`
	Cars   int             `json:"cars"`
	Kinem  json.RawMessage `json:"kinematics"`
}

// UnmarshalJSON implements json.Unmarshaler for Vehicle.
// The "kinematics" field must contain a "model" discriminator key that selects
// the concrete implementation; the rest of the kinematics object is forwarded to
// that implementation's own unmarshaler. A missing car count means one car.
//
// Supported models:
//   - "constant": fixed a_acc / a_dcc rates.
func (v *Vehicle) UnmarshalJSON(data []byte) error {
	var aux vehicleJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v.Name = aux.Name
	v.Length = aux.Length
	v.Cars = max(aux.Cars, 1)

	if len(aux.Kinem) == 0 {
		return fmt.Errorf("vehicle %q: missing \"kinematics\" field", v.Name)
	}

	var disc kinematicsDisc
	if err := json.Unmarshal(aux.Kinem, &disc); err != nil {
		return fmt.Errorf("vehicle %q: reading kinematics model discriminator: %w", v.Name, err)
	}

	switch disc.Model {
	case kinematics.ConstantModelName:
		var k kinematics.ConstantAcceleration
		if err := json.Unmarshal(aux.Kinem, &k); err != nil {
			return fmt.Errorf("vehicle %q: parsing constant kinematics: %w", v.Name, err)
		}
		v.Kinem = k
	default:
		return fmt.Errorf("vehicle %q: unknown kinematics model %q", v.Name, disc.Model)
	}
	return nil
}

// Service is the static definition of a scheduled service.
type Service struct {
	ServiceID       ServiceID   `json:"service_id"`
	InitialTrack    int         `json:"initial_track"`
	InitialPosition float64     `json:"initial_position"` // track position of the train front, metres
	Route           []RouteStop `json:"route"`
	Vehicle         Vehicle     `json:"vehicle"`
	// DepartureDelay is the number of simulation-seconds the service waits
	// stationary before beginning to move. Zero = immediate.
	DepartureDelay float64 `json:"departure_delay,omitempty"` // seconds
}

// Car is one vehicle of a train with a follower on each end.
type Car struct {
	Front *track.Follower
	Rear  *track.Follower
}

// SimService is a Service enriched with live simulation state.
type SimService struct {
	Service
	Cars           []Car        `json:"-"`
	State          ServiceState `json:"state"`
	Velocity       float64      `json:"velocity"`        // m/s
	RemainingDwell float64      `json:"remaining_dwell"` // seconds
	NextStop       string       `json:"next_stop"`
	nextStopIndex  int
	reg            *track.Registry
}

// GetFirstStop returns the index in svc.Route of the first stop ahead of the initial position.
// Stops must be in increasing track position order.
func GetFirstStop(svc Service) (int, error) {
	if len(svc.Route) == 0 {
		return 0, fmt.Errorf("service %q has no route stops", svc.ServiceID)
	}
	for i := 1; i < len(svc.Route); i++ {
		if svc.Route[i].Position < svc.Route[i-1].Position {
			return 0, fmt.Errorf("service %q: stop %q lies behind stop %q",
				svc.ServiceID, svc.Route[i].Name, svc.Route[i-1].Name)
		}
	}
	for i, stop := range svc.Route {
		if stop.Position > svc.InitialPosition+stopTolerance {
			return i, nil
		}
	}
	return 0, fmt.Errorf("service %q: no stop ahead of initial position %g", svc.ServiceID, svc.InitialPosition)
}

// NewSimService creates a SimService from a static Service definition, placing an axle follower at each
// end of every car on reg.
func NewSimService(svc Service, reg *track.Registry) (*SimService, error) {
	first, err := GetFirstStop(svc)
	if err != nil {
		return nil, err
	}
	if _, err := reg.MustTrack(svc.InitialTrack); err != nil {
		return nil, fmt.Errorf("service %q initial track: %w", svc.ServiceID, err)
	}
	if svc.Vehicle.Kinem == nil {
		return nil, fmt.Errorf("service %q: vehicle has no kinematics model", svc.ServiceID)
	}

	cars := max(svc.Vehicle.Cars, 1)
	carLength := svc.Vehicle.Length / float64(cars)
	s := &SimService{
		Service:       svc,
		Cars:          make([]Car, cars),
		State:         StateStationary,
		NextStop:      svc.Route[first].Name,
		nextStopIndex: first,
		reg:           reg,
	}
	for k := range s.Cars {
		frontType, rearType := track.TriggerOtherCarFrontAxle, track.TriggerOtherCarRearAxle
		if k == 0 {
			frontType = track.TriggerFrontCarFrontAxle
		}
		if k == cars-1 {
			rearType = track.TriggerRearCarRearAxle
		}
		s.Cars[k] = Car{
			Front: s.place(k, frontType, svc.InitialPosition-float64(k)*carLength),
			Rear:  s.place(k, rearType, svc.InitialPosition-float64(k+1)*carLength),
		}
	}
	return s, nil
}

// place puts a follower at position without firing the events behind it.
func (s *SimService) place(car int, trigger track.EventTriggerType, position float64) *track.Follower {
	f := track.NewFollower(s.ServiceID, car)
	f.TrackIndex = s.InitialTrack
	f.TriggerType = trigger
	f.TrackPosition = position
	f.UpdateWorldCoordinates(s.reg, false)
	return f
}

// Front returns the follower on the leading axle of the train.
func (s *SimService) Front() *track.Follower { return s.Cars[0].Front }

// Rear returns the follower on the trailing axle of the train.
func (s *SimService) Rear() *track.Follower { return s.Cars[len(s.Cars)-1].Rear }

// Followers returns every axle follower from front to rear.
func (s *SimService) Followers() []*track.Follower {
	out := make([]*track.Follower, 0, 2*len(s.Cars))
	for _, c := range s.Cars {
		out = append(out, c.Front, c.Rear)
	}
	return out
}

// Conditions returns the track conditions under the leading axle.
func (s *SimService) Conditions() kinematics.Conditions {
	f := s.Front()
	return kinematics.Conditions{Adhesion: f.AdhesionMultiplier, Pitch: f.Pitch}
}

// Model returns the vehicle's motion model under the current track conditions.
func (s *SimService) Model() kinematics.MotionModel {
	return s.Vehicle.Kinem.Under(s.Conditions())
}

// BrakingDistance returns the minimum stopping distance from the service's current velocity.
func (s *SimService) BrakingDistance() float64 {
	return s.Model().BrakingDistance(s.Velocity)
}

// DistanceToNextStop returns the metres from the train front to its next stop, or +Inf once the
// service has no stops left.
func (s *SimService) DistanceToNextStop() float64 {
	if s.nextStopIndex >= len(s.Route) {
		return math.Inf(1)
	}
	return math.Max(0, s.Route[s.nextStopIndex].Position-s.Front().TrackPosition)
}

// Advance moves every axle follower forward by dist metres, stopping short at the next stop.
// It returns the distance moved and whether the train front reached the stop.
func (s *SimService) Advance(dist float64) (float64, bool) {
	toStop := s.DistanceToNextStop()
	arrived := dist >= toStop-stopTolerance
	if arrived {
		dist = toStop
	}
	if dist > 0 {
		for _, f := range s.Followers() {
			f.UpdateRelative(s.reg, dist, true, false)
		}
	}
	return dist, arrived
}

// AdvanceDwell decrements the remaining dwell time by dt seconds.
// If the service is not yet dwelling it is transitioned into the dwelling state first.
func (s *SimService) AdvanceDwell(dt float64) {
	if s.State != StateDwelling {
		s.startDwell()
	}
	s.RemainingDwell -= dt
	if s.RemainingDwell <= 0 {
		s.endDwell()
	}
}

// ArriveAtStop transitions the service into the dwelling state upon reaching a stop.
func (s *SimService) ArriveAtStop() {
	s.startDwell()
}

func (s *SimService) startDwell() {
	s.State = StateDwelling
	s.Velocity = 0
	s.RemainingDwell = 0
	if s.nextStopIndex < len(s.Route) {
		s.RemainingDwell = s.Route[s.nextStopIndex].TDwell
	}
	s.advanceNextStop()
}

func (s *SimService) endDwell() {
	s.Velocity = 0
	s.RemainingDwell = 0
	if s.nextStopIndex >= len(s.Route) {
		s.State = StateTerminated
		return
	}
	s.State = StateAccelerating
}

func (s *SimService) advanceNextStop() {
	s.nextStopIndex++
	s.NextStop = ""
	if s.nextStopIndex < len(s.Route) {
		s.NextStop = s.Route[s.nextStopIndex].Name
	}
}

// Vec is a world-space vector in log output.
type Vec [3]float64

// FollowerLog is a point-in-time snapshot of an axle follower.
type FollowerLog struct {
	Car          int     `json:"car"`
	Trigger      string  `json:"trigger"`
	TrackIndex   int     `json:"track_index"`
	Position     float64 `json:"position"`
	World        Vec     `json:"world"`
	Direction    Vec     `json:"direction"`
	Up           Vec     `json:"up"`
	CurveRadius  float64 `json:"curve_radius"`
	CurveCant    float64 `json:"curve_cant"`
	Pitch        float64 `json:"pitch"`
	Adhesion     float64 `json:"adhesion"`
	StationIndex int     `json:"station_index"`
	Odometer     float64 `json:"odometer"`
}

// ServiceLog is a point-in-time snapshot of a SimService's state.
type ServiceLog struct {
	ServiceID      ServiceID     `json:"service_id"`
	TrackIndex     int           `json:"track_index"`
	Position       float64       `json:"position"` // train front, metres
	State          ServiceState  `json:"state"`
	Velocity       float64       `json:"velocity"`
	RemainingDwell float64       `json:"remaining_dwell"`
	NextStop       string        `json:"next_stop"`
	StationIndex   int           `json:"station_index"`
	Followers      []FollowerLog `json:"followers,omitempty"`
}

// GetLog returns a point-in-time snapshot of the service state. Axle snapshots are included when
// withFollowers is set.
func (s *SimService) GetLog(withFollowers bool) ServiceLog {
	front := s.Front()
	l := ServiceLog{
		ServiceID:      s.ServiceID,
		TrackIndex:     front.TrackIndex,
		Position:       front.TrackPosition,
		State:          s.State,
		Velocity:       s.Velocity,
		RemainingDwell: s.RemainingDwell,
		NextStop:       s.NextStop,
		StationIndex:   front.StationIndex,
	}
	if withFollowers {
		for _, f := range s.Followers() {
			l.Followers = append(l.Followers, FollowerLog{
				Car:          f.CarIndex,
				Trigger:      f.TriggerType.String(),
				TrackIndex:   f.TrackIndex,
				Position:     f.TrackPosition,
				World:        Vec(f.WorldPosition),
				Direction:    Vec(f.WorldDirection),
				Up:           Vec(f.WorldUp),
				CurveRadius:  f.CurveRadius,
				CurveCant:    f.CurveCant,
				Pitch:        f.Pitch,
				Adhesion:     f.AdhesionMultiplier,
				StationIndex: f.StationIndex,
				Odometer:     f.Odometer,
			})
		}
	}
	return l
}
