package track

import "fmt"

// EventTriggerType identifies what kind of follower is crossing an event. Events use it to decide
// whether they apply.
type EventTriggerType int

const (
	TriggerNone EventTriggerType = iota
	TriggerCamera
	TriggerFrontCarFrontAxle
	TriggerRearCarRearAxle
	TriggerOtherCarFrontAxle
	TriggerOtherCarRearAxle
	TriggerTrainFront
	TriggerTrainRear
	TriggerFrontBogieAxle
	TriggerRearBogieAxle
)

var triggerTypeNames = [...]string{
	TriggerNone:              "none",
	TriggerCamera:            "camera",
	TriggerFrontCarFrontAxle: "front_car_front_axle",
	TriggerRearCarRearAxle:   "rear_car_rear_axle",
	TriggerOtherCarFrontAxle: "other_car_front_axle",
	TriggerOtherCarRearAxle:  "other_car_rear_axle",
	TriggerTrainFront:        "train_front",
	TriggerTrainRear:         "train_rear",
	TriggerFrontBogieAxle:    "front_bogie_axle",
	TriggerRearBogieAxle:     "rear_bogie_axle",
}

func (t EventTriggerType) String() string {
	if t < 0 || int(t) >= len(triggerTypeNames) {
		return "unknown"
	}
	return triggerTypeNames[t]
}

func (t EventTriggerType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *EventTriggerType) UnmarshalText(b []byte) error {
	for i, name := range triggerTypeNames {
		if name == string(b) {
			*t = EventTriggerType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown trigger type %q", b)
}

// IsAxle reports whether the trigger comes from a car axle (including bogie axles).
func (t EventTriggerType) IsAxle() bool {
	switch t {
	case TriggerFrontCarFrontAxle, TriggerRearCarRearAxle, TriggerOtherCarFrontAxle, TriggerOtherCarRearAxle,
		TriggerFrontBogieAxle, TriggerRearBogieAxle:
		return true
	}
	return false
}

// Train is the vehicle a follower belongs to. It is passed through to event handlers untouched.
type Train any

// EventKind names an event variant. The trigger table maps each kind to its handler.
type EventKind string

// Event is a positional trigger anchored to a track element.
type Event struct {
	Kind EventKind
	// TrackPositionDelta is the offset from the owning element's start.
	TrackPositionDelta float64
	// DontTriggerAnymore latches the event off. Handlers set it for one-shot events.
	DontTriggerAnymore bool
	Payload            any
}

// Rearm clears the one-shot latch.
func (e *Event) Rearm() { e.DontTriggerAnymore = false }

// TriggerContext is everything a handler learns about the crossing.
type TriggerContext struct {
	Direction   int // +1 forward, -1 backward
	TriggerType EventTriggerType
	Train       Train
	CarIndex    int
	// Follower is the cursor that crossed the event. Handlers may move it to another track.
	Follower *Follower
	// TrackPosition is the absolute position of the event on the track it was crossed on.
	TrackPosition float64
}

// TriggerFunc performs an event's effect.
type TriggerFunc func(e *Event, tc TriggerContext)

// TriggerTable dispatches events by kind.
type TriggerTable map[EventKind]TriggerFunc

// TryTrigger runs the handler for e unless the event is latched or has no handler. It reports whether a
// handler ran.
func (e *Event) TryTrigger(table TriggerTable, tc TriggerContext) bool {
	if e.DontTriggerAnymore {
		return false
	}
	fn, ok := table[e.Kind]
	if !ok {
		return false
	}
	fn(e, tc)
	return true
}
