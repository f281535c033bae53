package service

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/cxd309/tms-track/internal/kinematics"
	"github.com/cxd309/tms-track/internal/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registry(t *testing.T) *track.Registry {
	t.Helper()
	tr := track.NewTrack("main")
	for _, p := range []float64{0, 500, 1000} {
		e := track.NewTrackElement(p)
		if n := len(tr.Elements); n > 0 {
			prev := &tr.Elements[n-1]
			e.SetFrame(prev.FrameAt(p - prev.StartingTrackPosition))
		}
		tr.Elements = append(tr.Elements, e)
	}
	tr.Elements[1].Pitch = 20
	tr.Elements[1].AdhesionMultiplier = 0.7
	reg := track.NewRegistry(track.DefaultOptions(), nil)
	reg.Add(0, tr)
	return reg
}

func svc() Service {
	return Service{
		ServiceID:       "s1",
		InitialPosition: 100,
		Route: []RouteStop{
			{Name: "Alpha", Position: 100, TDwell: 30},
			{Name: "Beta", Position: 600, TDwell: 20},
			{Name: "Gamma", Position: 900, TDwell: 10},
		},
		Vehicle: Vehicle{
			Name:   "emu",
			Length: 60,
			Cars:   3,
			Kinem:  kinematics.ConstantAcceleration{AAcc: 1, ADcc: 1, VMaxVal: 20},
		},
	}
}

func TestVehicle_UnmarshalJSON(t *testing.T) {
	var v Vehicle
	err := json.Unmarshal([]byte(`{"name": "dmu", "length": 40, "kinematics": {"model": "constant", "a_acc": 0.8, "a_dcc": 0.9, "v_max": 30}}`), &v)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Cars)
	assert.Equal(t, kinematics.ConstantAcceleration{AAcc: 0.8, ADcc: 0.9, VMaxVal: 30}, v.Kinem)

	err = json.Unmarshal([]byte(`{"name": "x", "kinematics": {"model": "magic"}}`), &v)
	assert.ErrorContains(t, err, `unknown kinematics model "magic"`)

	err = json.Unmarshal([]byte(`{"name": "x"}`), &v)
	assert.ErrorContains(t, err, "missing")
}

func TestGetFirstStop(t *testing.T) {
	s := svc()
	i, err := GetFirstStop(s)
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	s.InitialPosition = 0
	i, err = GetFirstStop(s)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	s.InitialPosition = 950
	_, err = GetFirstStop(s)
	assert.ErrorContains(t, err, "no stop ahead")

	s = svc()
	s.Route[2].Position = 50
	_, err = GetFirstStop(s)
	assert.ErrorContains(t, err, "lies behind")

	_, err = GetFirstStop(Service{ServiceID: "empty"})
	assert.ErrorContains(t, err, "no route stops")
}

func TestNewSimService_PlacesAxles(t *testing.T) {
	s, err := NewSimService(svc(), registry(t))
	require.NoError(t, err)

	require.Len(t, s.Cars, 3)
	assert.Equal(t, "Beta", s.NextStop)
	assert.Equal(t, StateStationary, s.State)

	want := []struct {
		pos     float64
		trigger track.EventTriggerType
	}{
		{100, track.TriggerFrontCarFrontAxle},
		{80, track.TriggerOtherCarRearAxle},
		{80, track.TriggerOtherCarFrontAxle},
		{60, track.TriggerOtherCarRearAxle},
		{60, track.TriggerOtherCarFrontAxle},
		{40, track.TriggerRearCarRearAxle},
	}
	followers := s.Followers()
	require.Len(t, followers, len(want))
	for i, w := range want {
		assert.Equal(t, w.pos, followers[i].TrackPosition, "axle %d", i)
		assert.Equal(t, w.trigger, followers[i].TriggerType, "axle %d", i)
		assert.InDelta(t, w.pos, followers[i].WorldPosition.Z(), 1e-9, "axle %d", i)
		assert.Equal(t, "s1", followers[i].Train)
		assert.Equal(t, i/2, followers[i].CarIndex)
	}
	assert.Same(t, followers[0], s.Front())
	assert.Same(t, followers[5], s.Rear())
}

func TestNewSimService_Errors(t *testing.T) {
	s := svc()
	s.InitialTrack = 9
	_, err := NewSimService(s, registry(t))
	assert.ErrorIs(t, err, track.ErrUnknownTrack)

	s = svc()
	s.Vehicle.Kinem = nil
	_, err = NewSimService(s, registry(t))
	assert.ErrorContains(t, err, "no kinematics model")
}

func TestConditions_FromLeadingAxle(t *testing.T) {
	s, err := NewSimService(svc(), registry(t))
	require.NoError(t, err)
	assert.Equal(t, kinematics.Nominal, s.Conditions())
	assert.Zero(t, s.BrakingDistance())

	s.Velocity = 10
	assert.InDelta(t, 50.0, s.BrakingDistance(), 1e-12)

	s.Advance(410)
	assert.Equal(t, kinematics.Conditions{Adhesion: 0.7, Pitch: 20}, s.Conditions())
	m := s.Model().(kinematics.ConstantAcceleration)
	assert.InDelta(t, 0.7+kinematics.Gravity*0.02, m.ADcc, 1e-12)
}

func TestAdvance_StopsAtStop(t *testing.T) {
	s, err := NewSimService(svc(), registry(t))
	require.NoError(t, err)

	moved, arrived := s.Advance(200)
	assert.Equal(t, 200.0, moved)
	assert.False(t, arrived)
	assert.Equal(t, 300.0, s.DistanceToNextStop())

	moved, arrived = s.Advance(1000)
	assert.Equal(t, 300.0, moved)
	assert.True(t, arrived)
	assert.Equal(t, 600.0, s.Front().TrackPosition)
	assert.Equal(t, 540.0, s.Rear().TrackPosition)
	// Steps beyond the teleport threshold reset the odometer.
	assert.Zero(t, s.Front().Odometer)
}

func TestDwell_RunsThroughRoute(t *testing.T) {
	s, err := NewSimService(svc(), registry(t))
	require.NoError(t, err)

	s.Advance(math.Inf(1))
	s.Velocity = 3
	s.ArriveAtStop()
	assert.Equal(t, StateDwelling, s.State)
	assert.Zero(t, s.Velocity)
	assert.Equal(t, 20.0, s.RemainingDwell)
	assert.Equal(t, "Gamma", s.NextStop)

	s.AdvanceDwell(15)
	assert.Equal(t, StateDwelling, s.State)
	s.AdvanceDwell(5)
	assert.Equal(t, StateAccelerating, s.State)

	_, arrived := s.Advance(math.Inf(1))
	require.True(t, arrived)
	s.ArriveAtStop()
	assert.Equal(t, 10.0, s.RemainingDwell)
	assert.Empty(t, s.NextStop)
	assert.True(t, math.IsInf(s.DistanceToNextStop(), 1))

	s.AdvanceDwell(10)
	assert.Equal(t, StateTerminated, s.State)
}

func TestGetLog(t *testing.T) {
	s, err := NewSimService(svc(), registry(t))
	require.NoError(t, err)

	l := s.GetLog(false)
	assert.Equal(t, "s1", l.ServiceID)
	assert.Equal(t, 100.0, l.Position)
	assert.Equal(t, -1, l.StationIndex)
	assert.Empty(t, l.Followers)

	l = s.GetLog(true)
	require.Len(t, l.Followers, 6)
	assert.Equal(t, "front_car_front_axle", l.Followers[0].Trigger)
	assert.Equal(t, Vec{0, 0, 100}, l.Followers[0].World)
	assert.Equal(t, "rear_car_rear_axle", l.Followers[5].Trigger)
	assert.Equal(t, 2, l.Followers[5].Car)
}
