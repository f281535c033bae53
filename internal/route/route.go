// Package route builds a track registry from a JSON route description.
//
// Elements are placed one after another: each element's frame is where the previous element ends, turned
// by the element's own turn angle and set to its pitch. An element may instead be anchored at an explicit
// origin, which is how separately authored segments are spliced after a gap.
package route

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/cxd309/tms-track/internal/event"
	"github.com/cxd309/tms-track/internal/graph"
	"github.com/cxd309/tms-track/internal/track"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrUnknownEventKind is returned for an event whose kind has no payload type.
	ErrUnknownEventKind = errors.New("unknown event kind")
	// ErrUnknownPowerSupply is returned for a power supply type that is not recognised.
	ErrUnknownPowerSupply = errors.New("unknown power supply type")
	// ErrUnorderedElements is returned when element start positions decrease.
	ErrUnorderedElements = errors.New("element positions must not decrease")
	// ErrDuplicateTrack is returned when two tracks share an index.
	ErrDuplicateTrack = errors.New("duplicate track index")
)

// Data is the serialisable description of a route.
type Data struct {
	Tracks []TrackData `json:"tracks"`
}

// TrackData describes one track.
type TrackData struct {
	Index     int           `json:"index"`
	Name      string        `json:"name"`
	RailGauge float64       `json:"rail_gauge,omitempty"` // metres; standard gauge if unset
	Origin    Origin        `json:"origin"`
	Elements  []ElementData `json:"elements"`
}

// Origin anchors an element in world space.
type Origin struct {
	Position [3]float64 `json:"position"` // metres, Y up
	Heading  float64    `json:"heading"`  // radians from +Z, positive turns towards +X
}

// ElementData describes one track element.
type ElementData struct {
	Start    float64     `json:"start"` // metres
	Gap      bool        `json:"gap,omitempty"`
	Origin   *Origin     `json:"origin,omitempty"`
	Turn     float64     `json:"turn,omitempty"`   // radians applied at the element start
	Radius   float64     `json:"radius,omitempty"` // metres, signed
	Cant     float64     `json:"cant,omitempty"`   // metres
	Pitch    float64     `json:"pitch,omitempty"`  // per mille
	Adhesion *float64    `json:"adhesion,omitempty"`
	Rain     int         `json:"rain,omitempty"`
	Snow     int         `json:"snow,omitempty"`
	Accuracy float64     `json:"accuracy,omitempty"`
	Power    []PowerData `json:"power,omitempty"`
	Events   []EventData `json:"events,omitempty"`
}

// PowerData is a power supply available along an element.
type PowerData struct {
	Type string `json:"type"` // overhead_line, third_rail or fourth_rail
	track.PowerSupply
}

// EventData is an event anchored to an element. Data holds the kind's payload.
type EventData struct {
	Kind  track.EventKind `json:"kind"`
	Delta float64         `json:"delta"` // metres past the element start
	Data  json.RawMessage `json:"data,omitempty"`
}

var powerSupplyTypes = map[string]track.PowerSupplyType{
	"overhead_line": track.PowerSupplyOverheadLine,
	"third_rail":    track.PowerSupplyThirdRail,
	"fourth_rail":   track.PowerSupplyFourthRail,
}

// Build populates a registry from data and runs the load-time transforms: cant tangents, then turn
// smoothing when subdivisions is non-zero. The returned registry has no event handlers installed.
func Build(data Data, opts track.Options, subdivisions int, log *slog.Logger) (*track.Registry, error) {
	if log == nil {
		log = slog.Default()
	}
	reg := track.NewRegistry(opts, log)
	for _, td := range data.Tracks {
		if _, exists := reg.Track(td.Index); exists {
			return nil, fmt.Errorf("track %d: %w", td.Index, ErrDuplicateTrack)
		}
		t, err := buildTrack(td)
		if err != nil {
			return nil, fmt.Errorf("track %d (%s): %w", td.Index, td.Name, err)
		}
		reg.Add(td.Index, t)
	}

	reg.ComputeCantTangents()
	if subdivisions != 0 {
		if err := reg.SmoothTurns(subdivisions); err != nil {
			return nil, err
		}
	}

	handOffs := 0
	for _, dir := range []int{1, -1} {
		g, err := graph.Build(reg, dir)
		if err != nil {
			return nil, fmt.Errorf("building hand-off graph: %w", err)
		}
		if dir > 0 {
			handOffs = len(g.Edges())
		}
		warnCycles(log, g, dir)
	}

	elements, events := 0, 0
	reg.Each(func(_ int, t *track.Track) {
		elements += len(t.Elements)
		events += t.EventCount()
	})
	log.Info("Route built",
		"tracks", reg.Len(),
		"elements", elements,
		"events", events,
		"handOffs", handOffs,
		"subdivisions", subdivisions)
	return reg, nil
}

// warnCycles reports the tracks a follower travelling in direction can be handed around and back to,
// with one loop of hand-offs for each.
func warnCycles(log *slog.Logger, g *graph.Graph, direction int) {
	cycles := g.Cycles()
	if len(cycles) == 0 {
		return
	}
	var names, loops []string
	for _, n := range g.Nodes() {
		if !slices.Contains(cycles, n.ID) {
			continue
		}
		names = append(names, n.Name)
		if out, back, ok := g.CycleAt(n.ID); ok {
			loops = append(loops, out.ID+" back via "+back.ID)
		}
	}
	log.Warn("Track hand-offs form a cycle", "direction", direction, "tracks", cycles, "names", names, "loops", loops)
}

func buildTrack(td TrackData) (*track.Track, error) {
	t := track.NewTrack(td.Name)
	if td.RailGauge > 0 {
		t.RailGauge = td.RailGauge
	}
	t.Elements = make([]track.TrackElement, 0, len(td.Elements))

	at := anchor(td.Origin)
	last := -1
	for i, ed := range td.Elements {
		if i > 0 && ed.Start < td.Elements[i-1].Start {
			return nil, fmt.Errorf("element %d at %g after %g: %w", i, ed.Start, td.Elements[i-1].Start, ErrUnorderedElements)
		}
		e, err := buildElement(ed)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if !ed.Gap {
			var f track.Frame
			switch {
			case ed.Origin != nil:
				f = anchor(*ed.Origin)
			case last < 0:
				f = at
			default:
				prev := &t.Elements[last]
				f = prev.FrameAt(ed.Start - prev.StartingTrackPosition)
			}
			e.SetFrame(f.Yaw(ed.Turn).WithPitch(ed.Pitch))
			last = i
		}
		t.Elements = append(t.Elements, e)
	}
	return t, nil
}

func anchor(o Origin) track.Frame {
	e := track.NewTrackElement(0)
	f := e.Frame()
	f.Position = mgl64.Vec3(o.Position)
	return f.Yaw(o.Heading)
}

func buildElement(ed ElementData) (track.TrackElement, error) {
	e := track.NewTrackElement(ed.Start)
	e.InvalidElement = ed.Gap
	e.CurveRadius = ed.Radius
	e.CurveCant = ed.Cant
	e.Pitch = ed.Pitch
	if ed.Adhesion != nil {
		e.AdhesionMultiplier = *ed.Adhesion
	}
	e.RainIntensity = ed.Rain
	e.SnowIntensity = ed.Snow
	e.CsvRwAccuracyLevel = ed.Accuracy

	for _, pd := range ed.Power {
		typ, ok := powerSupplyTypes[pd.Type]
		if !ok {
			return e, fmt.Errorf("%q: %w", pd.Type, ErrUnknownPowerSupply)
		}
		if e.PowerSupplies == nil {
			e.PowerSupplies = make(map[track.PowerSupplyType]track.PowerSupply)
		}
		e.PowerSupplies[typ] = pd.PowerSupply
	}

	for j, evd := range ed.Events {
		ev, err := decodeEvent(evd)
		if err != nil {
			return e, fmt.Errorf("event %d: %w", j, err)
		}
		e.AddEvent(ev)
	}
	return e, nil
}

func decodeEvent(evd EventData) (*track.Event, error) {
	var p any
	switch evd.Kind {
	case event.KindStationStart:
		p = &event.StationStart{}
	case event.KindStationEnd:
		p = &event.StationEnd{}
	case event.KindBeacon:
		p = &event.Beacon{}
	case event.KindSectionChange:
		p = &event.SectionChange{}
	case event.KindSound:
		p = &event.Sound{}
	case event.KindTrackChange:
		p = &event.TrackChange{}
	case event.KindTrackEnd:
		p = &event.TrackEnd{}
	case event.KindMarker:
		p = &event.Marker{}
	default:
		return nil, fmt.Errorf("%q: %w", evd.Kind, ErrUnknownEventKind)
	}
	if len(evd.Data) > 0 {
		if err := json.Unmarshal(evd.Data, p); err != nil {
			return nil, fmt.Errorf("parsing %s payload: %w", evd.Kind, err)
		}
	}
	return event.New(evd.Delta, p)
}
