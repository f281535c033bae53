package recorder

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/cxd309/tms-track/internal/event"
	"github.com/cxd309/tms-track/internal/service"
	"github.com/cxd309/tms-track/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ Recorder = (*Memory)(nil)
	_ Recorder = (*SQLite)(nil)
	_ Recorder = Multi(nil)
)

func firing(time float64, kind track.EventKind) event.Firing {
	return event.Firing{
		Time:          time,
		Kind:          kind,
		Direction:     1,
		TriggerType:   track.TriggerFrontCarFrontAxle,
		Train:         "s1",
		TrackPosition: 42,
		Detail:        "station 0",
	}
}

func snapshot() service.ServiceLog {
	return service.ServiceLog{
		ServiceID:    "s1",
		TrackIndex:   2,
		Position:     120,
		State:        service.StateCruising,
		Velocity:     12.5,
		NextStop:     "Beta",
		StationIndex: -1,
		Followers: []service.FollowerLog{
			{World: service.Vec{1, 2, 3}, Pitch: 5, CurveCant: 0.05, Adhesion: 0.9},
		},
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.RecordFiring("sim", firing(1, event.KindBeacon)))
	require.NoError(t, m.RecordSnapshot("sim", 1, snapshot()))

	firings := m.Firings()
	require.Len(t, firings, 1)
	assert.Equal(t, event.KindBeacon, firings[0].Kind)

	// Returned slices are copies.
	firings[0].Kind = "changed"
	assert.Equal(t, event.KindBeacon, m.Firings()[0].Kind)

	snaps := m.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "sim", snaps[0].SimulationID)
	assert.Equal(t, 120.0, snaps[0].Log.Position)
	assert.NoError(t, m.Close())
}

func TestSQLite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.RecordFiring("sim", firing(2, event.KindMarker)))
	require.NoError(t, s.RecordFiring("sim", firing(1, event.KindStationStart)))
	require.NoError(t, s.RecordFiring("other", firing(0, event.KindSound)))
	require.NoError(t, s.RecordSnapshot("sim", 1, snapshot()))

	rows, err := s.Firings("sim")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "station_start", rows[0].Kind)
	assert.Equal(t, "front_car_front_axle", rows[0].TriggerType)
	assert.Equal(t, "s1", rows[0].Train)
	assert.Equal(t, 42.0, rows[0].TrackPosition)
	assert.Equal(t, "marker", rows[1].Kind)

	snaps, err := s.Snapshots("sim")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "cruising", snaps[0].State)
	assert.Equal(t, 2, snaps[0].TrackIndex)
	assert.Equal(t, 3.0, snaps[0].WorldZ)
	assert.Equal(t, 0.9, snaps[0].Adhesion)
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordFiring("sim", firing(1, event.KindBeacon)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	rows, err := s.Firings("sim")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSQLite_InMemory(t *testing.T) {
	s, err := OpenSQLite("")
	require.NoError(t, err)
	defer s.Close()

	l := snapshot()
	l.Followers = nil
	require.NoError(t, s.RecordSnapshot("sim", 0, l))
	snaps, err := s.Snapshots("sim")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Zero(t, snaps[0].WorldZ)
}

type failing struct{ closed bool }

var errBoom = errors.New("boom")

func (f *failing) RecordFiring(string, event.Firing) error { return errBoom }
func (f *failing) RecordSnapshot(string, float64, service.ServiceLog) error { return errBoom }
func (f *failing) Close() error { f.closed = true; return errBoom }

func TestMulti(t *testing.T) {
	m := NewMemory()
	bad := &failing{}
	multi := Multi{m, bad}

	assert.ErrorIs(t, multi.RecordFiring("sim", firing(0, event.KindSound)), errBoom)
	assert.ErrorIs(t, multi.RecordSnapshot("sim", 0, snapshot()), errBoom)
	assert.Len(t, m.Firings(), 1)
	assert.Len(t, m.Snapshots(), 1)

	assert.ErrorIs(t, multi.Close(), errBoom)
	assert.True(t, bad.closed)
}
