// Package engine implements the simulation loop.
//
// The route is loaded once into a track registry. The simulation then advances in fixed
// timesteps. Each step has two passes:
//
//  1. Safety pass - every service computes its minimal movement authority (MA), which
//     is the track ahead it physically needs to stop (braking distance under the
//     conditions at its leading axle).
//
//  2. Motion pass - every service proposes its desired movement, has that proposal
//     trimmed by the MA record from pass 1, then moves its axle followers. Events the
//     axles cross fire during this pass and are recorded with the step's timestamp.
package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/cxd309/tms-track/internal/event"
	"github.com/cxd309/tms-track/internal/recorder"
	"github.com/cxd309/tms-track/internal/route"
	"github.com/cxd309/tms-track/internal/service"
)

// NewTMS constructs a TMS from a SimulationInput, building the route and placing each
// service at its initial position.
func NewTMS(input SimulationInput, opts Options) (*TMS, error) {
	if input.Meta.TimeStep <= 0 {
		return nil, fmt.Errorf("time step must be positive, got %g", input.Meta.TimeStep)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("simulation", input.Meta.SimulationID)

	subdivisions := opts.Subdivisions
	if input.Subdivisions != nil {
		subdivisions = *input.Subdivisions
	}
	reg, err := route.Build(input.Route, opts.Track, subdivisions, log)
	if err != nil {
		return nil, fmt.Errorf("building route: %w", err)
	}

	t := &TMS{
		meta:    input.Meta,
		reg:     reg,
		opts:    opts,
		log:     log,
		firings: recorder.NewMemory(),
		rec:     opts.Recorder,
	}
	event.Register(reg, event.SinkFunc(t.recordFiring))

	t.services = make([]*service.SimService, 0, len(input.ServiceList))
	for _, svc := range input.ServiceList {
		simSvc, err := service.NewSimService(svc, reg)
		if err != nil {
			return nil, fmt.Errorf("creating service %q: %w", svc.ServiceID, err)
		}
		t.services = append(t.services, simSvc)
	}
	return t, nil
}

// recordFiring stamps a firing with the current time and stores it. A recorder error is kept and
// surfaced at the end of the step.
func (t *TMS) recordFiring(f event.Firing) {
	f.Time = t.curTime
	t.firings.RecordFiring(t.meta.SimulationID, f)
	if t.rec == nil || t.recErr != nil {
		return
	}
	if err := t.rec.RecordFiring(t.meta.SimulationID, f); err != nil {
		t.recErr = err
	}
}

// Run executes the full simulation and returns the log.
func (t *TMS) Run() (SimulationLog, error) {
	log := SimulationLog{Meta: t.meta}
	for t.curTime <= t.meta.RunTime {
		row, err := t.step()
		if err != nil {
			return SimulationLog{}, fmt.Errorf("at t=%.2f: %w", t.curTime, err)
		}
		log.Output = append(log.Output, row)
		t.curTime += t.meta.TimeStep
	}
	log.Firings = t.firings.Firings()
	t.log.Info("Simulation finished", "steps", len(log.Output), "firings", len(log.Firings))
	return log, nil
}

// step advances the simulation by one timestep and returns the resulting log row.
func (t *TMS) step() (SimulationLogRow, error) {
	dt := t.meta.TimeStep

	// Pass 1: compute the minimal MA (braking-distance safety envelope) for each service.
	minMAs := make(map[string]movementAuthority, len(t.services))
	for _, svc := range t.services {
		minMAs[svc.ServiceID] = svc.BrakingDistance()
	}

	// Pass 2: propose, grant, and apply movement for each service.
	for _, svc := range t.services {
		switch svc.State {
		case service.StateStationary:
			// Hold until the departure delay has elapsed, then start moving.
			if t.curTime < svc.DepartureDelay {
				continue
			}
			svc.State = service.StateAccelerating
			continue
		case service.StateDwelling:
			svc.AdvanceDwell(dt)
			continue
		case service.StateTerminated:
			continue
		}

		// Kinematic proposal: how far would this service travel in dt with no MA constraints?
		proposedDist, newVelocity, newState := proposeMovement(svc, dt, svc.DistanceToNextStop())

		// MA check: how far is the service allowed to travel given other services' safety envelopes?
		grantedDist := math.Min(proposedDist, t.computeMaxAllowedDistance(svc, minMAs))

		// If MA trims the movement, recompute velocity from the shorter granted distance.
		if grantedDist < proposedDist {
			newVelocity, newState = constrainedKinematics(svc, grantedDist)
		}

		// Advance the axles and detect stop arrival.
		if _, arrived := svc.Advance(grantedDist); arrived {
			svc.ArriveAtStop()
		} else {
			svc.Velocity = newVelocity
			svc.State = newState
		}
	}

	// Snapshot all services for the log.
	logs := make([]service.ServiceLog, len(t.services))
	for i, svc := range t.services {
		logs[i] = svc.GetLog(t.opts.Snapshots)
		if t.rec != nil && t.recErr == nil {
			t.recErr = t.rec.RecordSnapshot(t.meta.SimulationID, t.curTime, logs[i])
		}
	}
	if t.recErr != nil {
		return SimulationLogRow{}, fmt.Errorf("recording: %w", t.recErr)
	}
	return SimulationLogRow{Timestamp: t.curTime, ServiceLogs: logs}, nil
}

// computeMaxAllowedDistance returns the maximum distance svc may travel without
// entering any other service's safety envelope (its rear axle minus its minimal MA).
// Only services whose leading axle is on the same track are considered.
func (t *TMS) computeMaxAllowedDistance(svc *service.SimService, minMAs map[string]movementAuthority) float64 {
	maxDist := math.Inf(1)
	front := svc.Front()

	for _, other := range t.services {
		if other.ServiceID == svc.ServiceID {
			continue
		}
		if other.Front().TrackIndex != front.TrackIndex {
			continue
		}
		if other.Front().TrackPosition <= front.TrackPosition {
			continue // other is behind or level
		}

		safetyZoneStart := other.Rear().TrackPosition - minMAs[other.ServiceID]
		if allowed := safetyZoneStart - front.TrackPosition; allowed < maxDist {
			maxDist = allowed
		}
	}

	if math.IsInf(maxDist, 1) {
		return math.MaxFloat64
	}
	return math.Max(0, maxDist)
}

// proposeMovement returns the distance, resulting velocity, and resulting state for svc
// over timestep dt, braking for the next stop.
//
// Priority (highest first):
//  1. Braking to stop at next stop
//  2. Decelerating to VMax (if currently over it)
//  3. Normal state machine (accelerate / cruise / decelerate)
func proposeMovement(svc *service.SimService, dt, distToStop float64) (float64, float64, service.ServiceState) {
	v := svc.Velocity
	m := svc.Model()
	vMax := m.VMax()

	// 1. Stop braking (highest priority).
	if distToStop <= m.BrakingDistance(v) {
		dist, newV := m.DecelerateStep(v, 0, dt)
		if newV <= 0 {
			return dist, 0, service.StateDwelling
		}
		return dist, newV, service.StateDecelerating
	}

	// 2. Decelerate to VMax if currently over it.
	if v > vMax {
		dist, newV := m.DecelerateStep(v, vMax, dt)
		if newV <= vMax {
			return dist, newV, service.StateCruising
		}
		return dist, newV, service.StateDecelerating
	}

	// 3. Normal state machine.
	switch svc.State {
	case service.StateAccelerating:
		dist, newV := m.AccelerateStep(v, vMax, dt)
		if newV >= vMax {
			return dist, vMax, service.StateCruising
		}
		return dist, newV, service.StateAccelerating

	case service.StateCruising:
		return vMax * dt, vMax, service.StateCruising

	case service.StateDecelerating:
		dist, newV := m.DecelerateStep(v, 0, dt)
		if newV <= 0 {
			return dist, 0, service.StateDwelling
		}
		return dist, newV, service.StateDecelerating

	default:
		return 0, v, svc.State
	}
}

// constrainedKinematics derives the velocity after travelling grantedDist under
// maximum braking (used when the MA limits movement to less than proposed). A service
// brought to a stand is held stationary and sets off again on the next step.
func constrainedKinematics(svc *service.SimService, grantedDist float64) (float64, service.ServiceState) {
	if grantedDist <= 0 {
		return 0, service.StateStationary
	}
	newV := svc.Model().VelocityAfterBraking(svc.Velocity, grantedDist)
	if newV <= 0 {
		return 0, service.StateStationary
	}
	return newV, service.StateDecelerating
}

// RunJSON is the primary entry point for the CLI and WASM targets. It accepts a
// JSON-encoded SimulationInput, runs the simulation with default options, and returns
// a JSON-encoded SimulationLog.
func RunJSON(jsonInput string) (string, error) {
	return RunJSONWith(jsonInput, DefaultOptions())
}

// RunJSONWith is RunJSON with explicit options.
func RunJSONWith(jsonInput string, opts Options) (string, error) {
	var input SimulationInput
	if err := json.Unmarshal([]byte(jsonInput), &input); err != nil {
		return "", fmt.Errorf("invalid input JSON: %w", err)
	}

	tms, err := NewTMS(input, opts)
	if err != nil {
		return "", err
	}

	simLog, err := tms.Run()
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(simLog)
	if err != nil {
		return "", fmt.Errorf("marshaling output: %w", err)
	}
	return string(out), nil
}
