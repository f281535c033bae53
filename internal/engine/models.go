package engine

import (
	"log/slog"

	"github.com/cxd309/tms-track/internal/event"
	"github.com/cxd309/tms-track/internal/recorder"
	"github.com/cxd309/tms-track/internal/route"
	"github.com/cxd309/tms-track/internal/service"
	"github.com/cxd309/tms-track/internal/track"
)

// SimulationMeta holds the identity and timing parameters for a simulation run.
type SimulationMeta struct {
	SimulationID string  `json:"simulation_id"`
	RunTime      float64 `json:"run_time"`  // seconds
	TimeStep     float64 `json:"time_step"` // seconds
}

// SimulationInput is the JSON-serialisable input to the engine.
type SimulationInput struct {
	Meta        SimulationMeta    `json:"simulation_meta"`
	Route       route.Data        `json:"route"`
	ServiceList []service.Service `json:"service_list"`
	// Subdivisions overrides the configured turn smoothing when set. Zero disables smoothing.
	Subdivisions *int `json:"smoothing_subdivisions,omitempty"`
}

// SimulationLogRow is the state of all services at a single simulation timestep.
type SimulationLogRow struct {
	Timestamp   float64              `json:"timestamp"` // seconds
	ServiceLogs []service.ServiceLog `json:"service_logs"`
}

// SimulationLog is the complete output of a simulation run.
type SimulationLog struct {
	Meta    SimulationMeta     `json:"simulation_meta"`
	Output  []SimulationLogRow `json:"output"`
	Firings []event.Firing     `json:"firings"`
}

// Options configure a run independently of its input.
type Options struct {
	Track        track.Options
	Subdivisions int
	// Snapshots adds per-axle follower snapshots to every log row.
	Snapshots bool
	// Recorder, if set, receives every firing and snapshot as well as the returned log.
	Recorder recorder.Recorder
	Logger   *slog.Logger
}

// DefaultOptions returns the options used by RunJSON.
func DefaultOptions() Options {
	return Options{
		Track:     track.DefaultOptions(),
		Snapshots: true,
	}
}

// movementAuthority is the distance ahead (metres) a service is authorised to travel.
type movementAuthority = float64

// TMS simulation engine state.
type TMS struct {
	meta     SimulationMeta
	reg      *track.Registry
	services []*service.SimService
	curTime  float64

	opts    Options
	log     *slog.Logger
	firings *recorder.Memory
	rec     recorder.Recorder
	recErr  error
}
