package event

import (
	"fmt"

	"github.com/cxd309/tms-track/internal/track"
)

// Firing is the record of one event performing its effect.
type Firing struct {
	Time          float64                `json:"time"`
	Kind          track.EventKind        `json:"kind"`
	Direction     int                    `json:"direction"`
	TriggerType   track.EventTriggerType `json:"trigger_type"`
	Train         string                 `json:"train,omitempty"`
	CarIndex      int                    `json:"car_index"`
	TrackIndex    int                    `json:"track_index"`
	TrackPosition float64                `json:"track_position"`
	Detail        string                 `json:"detail,omitempty"`
}

// Sink receives firings.
type Sink interface {
	Record(f Firing)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(f Firing)

func (fn SinkFunc) Record(f Firing) { fn(f) }

type discard struct{}

func (discard) Record(Firing) {}

// Register installs a handler for every kind on reg. Firings go to sink, which may be nil.
func Register(reg *track.Registry, sink Sink) {
	if sink == nil {
		sink = discard{}
	}
	h := handlers{sink: sink}
	reg.Handle(KindStationStart, h.stationStart)
	reg.Handle(KindStationEnd, h.stationEnd)
	reg.Handle(KindBeacon, h.beacon)
	reg.Handle(KindSectionChange, h.sectionChange)
	reg.Handle(KindSound, h.sound)
	reg.Handle(KindTrackChange, h.trackChange)
	reg.Handle(KindTrackEnd, h.trackEnd)
	reg.Handle(KindMarker, h.marker)
}

type handlers struct {
	sink Sink
}

func (h handlers) record(e *track.Event, tc track.TriggerContext, detail string) {
	f := Firing{
		Kind:          e.Kind,
		Direction:     tc.Direction,
		TriggerType:   tc.TriggerType,
		CarIndex:      tc.CarIndex,
		TrackPosition: tc.TrackPosition,
		Detail:        detail,
	}
	if tc.Train != nil {
		f.Train = fmt.Sprint(tc.Train)
	}
	if tc.Follower != nil {
		f.TrackIndex = tc.Follower.TrackIndex
	}
	h.sink.Record(f)
}

func isFront(t track.EventTriggerType) bool {
	return t == track.TriggerTrainFront || t == track.TriggerFrontCarFrontAxle
}

func isRear(t track.EventTriggerType) bool {
	return t == track.TriggerTrainRear || t == track.TriggerRearCarRearAxle
}

// Station boundaries toggle the crossing follower's station index. Every follower keeps its own
// hysteresis, so a train is in a station from its front's entry until its rear's exit.
func (h handlers) stationStart(e *track.Event, tc track.TriggerContext) {
	p, ok := payload[StationStart](e)
	if !ok || !(isFront(tc.TriggerType) || isRear(tc.TriggerType)) {
		return
	}
	if tc.Follower != nil {
		tc.Follower.EnterStation(p.StationIndex, tc.Direction)
	}
	h.record(e, tc, fmt.Sprintf("station %d", p.StationIndex))
}

func (h handlers) stationEnd(e *track.Event, tc track.TriggerContext) {
	p, ok := payload[StationEnd](e)
	if !ok || !(isFront(tc.TriggerType) || isRear(tc.TriggerType)) {
		return
	}
	if tc.Follower != nil {
		tc.Follower.LeaveStation(p.StationIndex, tc.Direction)
	}
	h.record(e, tc, fmt.Sprintf("station %d", p.StationIndex))
}

func (h handlers) beacon(e *track.Event, tc track.TriggerContext) {
	p, ok := payload[Beacon](e)
	if !ok || tc.TriggerType != track.TriggerFrontCarFrontAxle || tc.Direction < 0 {
		return
	}
	h.record(e, tc, fmt.Sprintf("type %d optional %d section %d", p.Type, p.Optional, p.Section))
}

// The leading axle enters the section ahead of it; the trailing axle leaves the one behind.
func (h handlers) sectionChange(e *track.Event, tc track.TriggerContext) {
	p, ok := payload[SectionChange](e)
	if !ok {
		return
	}
	ahead, behind := p.NextSection, p.PreviousSection
	if tc.Direction < 0 {
		ahead, behind = behind, ahead
	}
	switch {
	case isFront(tc.TriggerType):
		h.record(e, tc, fmt.Sprintf("enter section %d", ahead))
	case isRear(tc.TriggerType):
		h.record(e, tc, fmt.Sprintf("leave section %d", behind))
	}
}

func (h handlers) sound(e *track.Event, tc track.TriggerContext) {
	p, ok := payload[Sound](e)
	if !ok || !(tc.TriggerType.IsAxle() || tc.TriggerType == track.TriggerTrainFront) {
		return
	}
	if p.Once {
		e.DontTriggerAnymore = true
	}
	h.record(e, tc, p.Name)
}

func (h handlers) trackChange(e *track.Event, tc track.TriggerContext) {
	p, ok := payload[TrackChange](e)
	if !ok || tc.Follower == nil || tc.TriggerType == track.TriggerNone {
		return
	}
	from, to := p.From, p.To
	if tc.Direction < 0 {
		from, to = to, from
	}
	if tc.Follower.TrackIndex == to {
		return
	}
	h.record(e, tc, fmt.Sprintf("track %d to %d", from, to))
	tc.Follower.TrackIndex = to
}

func (h handlers) trackEnd(e *track.Event, tc track.TriggerContext) {
	if tc.Direction > 0 && isFront(tc.TriggerType) || tc.Direction < 0 && isRear(tc.TriggerType) {
		h.record(e, tc, "end of track")
	}
}

func (h handlers) marker(e *track.Event, tc track.TriggerContext) {
	p, ok := payload[Marker](e)
	if !ok || tc.TriggerType != track.TriggerFrontCarFrontAxle || tc.Direction < 0 {
		return
	}
	e.DontTriggerAnymore = true
	h.record(e, tc, p.Text)
}
