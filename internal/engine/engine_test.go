package engine

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/cxd309/tms-track/internal/event"
	"github.com/cxd309/tms-track/internal/recorder"
	"github.com/cxd309/tms-track/internal/service"
	"github.com/cxd309/tms-track/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// One 20 m car departs from 20 m, reaches 10 m/s at t=10 and runs in to Beta at 300 m at t=38.
const singleService = `{
	"simulation_meta": {"simulation_id": "sim1", "run_time": 60, "time_step": 1},
	"route": {"tracks": [{
		"index": 0,
		"name": "main",
		"elements": [
			{"start": 0, "events": [
				{"kind": "sound", "delta": 50, "data": {"name": "joint"}},
				{"kind": "beacon", "delta": 100, "data": {"type": 7}},
				{"kind": "marker", "delta": 150, "data": {"text": "whistle"}},
				{"kind": "station_start", "delta": 290, "data": {"station_index": 1, "name": "Beta"}}
			]},
			{"start": 500}
		]
	}]},
	"service_list": [{
		"service_id": "s1",
		"initial_position": 20,
		"route": [
			{"name": "Alpha", "position": 20, "t_dwell": 0},
			{"name": "Beta", "position": 300, "t_dwell": 10}
		],
		"vehicle": {"name": "unit", "length": 20, "kinematics": {"model": "constant", "a_acc": 1, "a_dcc": 1, "v_max": 10}}
	}]
}`

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func input(t *testing.T, s string) SimulationInput {
	t.Helper()
	var in SimulationInput
	require.NoError(t, json.Unmarshal([]byte(s), &in))
	return in
}

func quietOptions() Options {
	opts := DefaultOptions()
	opts.Logger = quiet()
	return opts
}

func firingAt(t *testing.T, firings []event.Firing, kind track.EventKind) []event.Firing {
	t.Helper()
	var out []event.Firing
	for _, f := range firings {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func TestRunJSON_SingleService(t *testing.T) {
	out, err := RunJSON(singleService)
	require.NoError(t, err)

	var log SimulationLog
	require.NoError(t, json.Unmarshal([]byte(out), &log))
	assert.Equal(t, "sim1", log.Meta.SimulationID)
	require.Len(t, log.Output, 61)

	first := log.Output[0].ServiceLogs[0]
	assert.Equal(t, service.StateAccelerating, first.State)
	assert.Equal(t, 20.0, first.Position)
	require.Len(t, first.Followers, 2)

	atSpeed := log.Output[10].ServiceLogs[0]
	assert.Equal(t, service.StateCruising, atSpeed.State)
	assert.InDelta(t, 70.0, atSpeed.Position, 1e-9)

	arrived := log.Output[38].ServiceLogs[0]
	assert.Equal(t, service.StateDwelling, arrived.State)
	assert.InDelta(t, 300.0, arrived.Position, 1e-9)
	assert.Equal(t, 1, arrived.StationIndex)

	last := log.Output[60].ServiceLogs[0]
	assert.Equal(t, service.StateTerminated, last.State)
	assert.InDelta(t, 300.0, last.Position, 1e-9)
	assert.InDelta(t, 280.0, last.Followers[1].Position, 1e-9)

	require.Len(t, log.Firings, 5)
	for i := 1; i < len(log.Firings); i++ {
		assert.LessOrEqual(t, log.Firings[i-1].Time, log.Firings[i].Time)
	}

	sounds := firingAt(t, log.Firings, event.KindSound)
	require.Len(t, sounds, 2)
	assert.Equal(t, 8.0, sounds[0].Time)
	assert.Equal(t, track.TriggerFrontCarFrontAxle, sounds[0].TriggerType)
	assert.Equal(t, 10.0, sounds[1].Time)
	assert.Equal(t, track.TriggerRearCarRearAxle, sounds[1].TriggerType)
	assert.Equal(t, "joint", sounds[1].Detail)

	beacons := firingAt(t, log.Firings, event.KindBeacon)
	require.Len(t, beacons, 1)
	assert.Equal(t, 13.0, beacons[0].Time)
	assert.Equal(t, "s1", beacons[0].Train)

	stations := firingAt(t, log.Firings, event.KindStationStart)
	require.Len(t, stations, 1)
	assert.Equal(t, 1, stations[0].Direction)
	assert.Len(t, firingAt(t, log.Firings, event.KindMarker), 1)
}

func TestRun_RecordsToSQLite(t *testing.T) {
	rec, err := recorder.OpenSQLite(filepath.Join(t.TempDir(), "run.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	opts := quietOptions()
	opts.Snapshots = false
	opts.Recorder = rec
	tms, err := NewTMS(input(t, singleService), opts)
	require.NoError(t, err)

	log, err := tms.Run()
	require.NoError(t, err)
	assert.Empty(t, log.Output[0].ServiceLogs[0].Followers)

	firings, err := rec.Firings("sim1")
	require.NoError(t, err)
	require.Len(t, firings, len(log.Firings))
	assert.Equal(t, "sound", firings[0].Kind)
	assert.Equal(t, 8.0, firings[0].Time)

	snaps, err := rec.Snapshots("sim1")
	require.NoError(t, err)
	require.Len(t, snaps, len(log.Output))
	assert.Equal(t, "terminated", snaps[len(snaps)-1].State)
}

func TestRun_HoldsBehindLeader(t *testing.T) {
	in := input(t, singleService)
	in.Meta.RunTime = 40

	leader := in.ServiceList[0]
	leader.ServiceID = "leader"
	leader.InitialPosition = 200
	leader.Route = []service.RouteStop{{Name: "Gamma", Position: 450}}
	leader.DepartureDelay = 1000
	in.ServiceList = append(in.ServiceList, leader)

	tms, err := NewTMS(in, quietOptions())
	require.NoError(t, err)
	log, err := tms.Run()
	require.NoError(t, err)

	for _, row := range log.Output {
		follower, stood := row.ServiceLogs[0], row.ServiceLogs[1]
		assert.LessOrEqual(t, follower.Position, 180.0+1e-9, "t=%g", row.Timestamp)
		assert.Equal(t, 200.0, stood.Position)
		assert.Equal(t, service.StateStationary, stood.State)
	}
	assert.InDelta(t, 180.0, log.Output[len(log.Output)-1].ServiceLogs[0].Position, 1e-6)
}

func TestRun_SmoothingOverride(t *testing.T) {
	in := input(t, singleService)
	zero := 0
	in.Subdivisions = &zero

	opts := quietOptions()
	opts.Subdivisions = 4
	tms, err := NewTMS(in, opts)
	require.NoError(t, err)
	tr, err := tms.reg.MustTrack(0)
	require.NoError(t, err)
	assert.Len(t, tr.Elements, 2)

	tms, err = NewTMS(input(t, singleService), opts)
	require.NoError(t, err)
	tr, err = tms.reg.MustTrack(0)
	require.NoError(t, err)
	assert.Len(t, tr.Elements, 5)
}

func TestNewTMS_Errors(t *testing.T) {
	_, err := RunJSON("{not json")
	assert.ErrorContains(t, err, "invalid input JSON")

	in := input(t, singleService)
	in.Meta.TimeStep = 0
	_, err = NewTMS(in, quietOptions())
	assert.ErrorContains(t, err, "time step must be positive")

	in = input(t, singleService)
	in.Route.Tracks[0].Elements[0].Events[0].Kind = "teleport"
	_, err = NewTMS(in, quietOptions())
	assert.ErrorContains(t, err, "building route")

	in = input(t, singleService)
	in.ServiceList[0].InitialTrack = 3
	_, err = NewTMS(in, quietOptions())
	assert.ErrorIs(t, err, track.ErrUnknownTrack)
}
