// Package event defines the concrete event kinds placed on tracks and the handlers that perform them.
//
// The track core only decides when an event is crossed. The handlers here decide whether the crossing
// follower is eligible, apply the effect that belongs to the follower itself (station hysteresis, track
// hand-off, one-shot latches) and report every firing to a Sink.
package event

import (
	"fmt"

	"github.com/cxd309/tms-track/internal/track"
)

// Event kinds understood by Register.
const (
	KindStationStart  track.EventKind = "station_start"
	KindStationEnd    track.EventKind = "station_end"
	KindBeacon        track.EventKind = "beacon"
	KindSectionChange track.EventKind = "section_change"
	KindSound         track.EventKind = "sound"
	KindTrackChange   track.EventKind = "track_change"
	KindTrackEnd      track.EventKind = "track_end"
	KindMarker        track.EventKind = "marker"
)

// Kinds lists every kind in a stable order.
var Kinds = []track.EventKind{
	KindStationStart, KindStationEnd, KindBeacon, KindSectionChange,
	KindSound, KindTrackChange, KindTrackEnd, KindMarker,
}

// StationStart marks where a station's platform begins.
type StationStart struct {
	StationIndex int    `json:"station_index"`
	Name         string `json:"name,omitempty"`
}

// StationEnd marks where a station's platform ends.
type StationEnd struct {
	StationIndex int `json:"station_index"`
}

// Beacon is a transponder read by the leading axle of a train.
type Beacon struct {
	Type     int `json:"type"`
	Optional int `json:"optional"`
	Section  int `json:"section"`
}

// SectionChange is a signalling block boundary.
type SectionChange struct {
	PreviousSection int `json:"previous_section"`
	NextSection     int `json:"next_section"`
}

// Sound is an axle-triggered sound cue. Once latches the event after its first firing.
type Sound struct {
	Name string `json:"name"`
	Once bool   `json:"once,omitempty"`
}

// TrackChange hands a follower over between two tracks: to To when crossed forwards, back to From when
// crossed backwards.
type TrackChange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// TrackEnd marks the physical end of a track.
type TrackEnd struct{}

// Marker is a one-shot text marker shown to the driver.
type Marker struct {
	Text string `json:"text"`
}

// New wraps a payload in a track event of the matching kind.
func New(delta float64, payload any) (*track.Event, error) {
	kind, err := KindOf(payload)
	if err != nil {
		return nil, err
	}
	return &track.Event{Kind: kind, TrackPositionDelta: delta, Payload: payload}, nil
}

// KindOf returns the kind of a payload.
func KindOf(payload any) (track.EventKind, error) {
	switch payload.(type) {
	case StationStart, *StationStart:
		return KindStationStart, nil
	case StationEnd, *StationEnd:
		return KindStationEnd, nil
	case Beacon, *Beacon:
		return KindBeacon, nil
	case SectionChange, *SectionChange:
		return KindSectionChange, nil
	case Sound, *Sound:
		return KindSound, nil
	case TrackChange, *TrackChange:
		return KindTrackChange, nil
	case TrackEnd, *TrackEnd:
		return KindTrackEnd, nil
	case Marker, *Marker:
		return KindMarker, nil
	}
	return "", fmt.Errorf("no event kind for payload %T", payload)
}

// payload returns the event's payload as a T, accepting a value or a pointer.
func payload[T any](e *track.Event) (T, bool) {
	switch p := e.Payload.(type) {
	case T:
		return p, true
	case *T:
		if p != nil {
			return *p, true
		}
	}
	var zero T
	return zero, false
}

// TrackChangeOf returns the hand-off carried by e, if e is a track change.
func TrackChangeOf(e *track.Event) (TrackChange, bool) {
	if e.Kind != KindTrackChange {
		return TrackChange{}, false
	}
	return payload[TrackChange](e)
}
