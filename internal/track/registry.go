package track

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/elliotchance/orderedmap/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrUnknownTrack is returned when a track index is not registered.
	ErrUnknownTrack = errors.New("unknown track")
	// ErrInvalidSubdivisions is returned by SmoothTurns for fewer than two subdivisions.
	ErrInvalidSubdivisions = errors.New("smooth turns needs at least 2 subdivisions")
)

// Options are the tunables of the follower and of turn smoothing.
type Options struct {
	// TeleportThreshold is the single-step distance above which a follower's odometer resets.
	TeleportThreshold float64
	// MaxHandOffDepth bounds how many track hand-offs one event check may follow.
	MaxHandOffDepth int
	// TurnEpsilon is the squared horizontal direction difference that marks a kink as a turn.
	TurnEpsilon float64
	// BisectionSamples bounds the length search that re-fits an element after a turn is smoothed.
	BisectionSamples int
}

// DefaultOptions returns the tunables used when none are configured.
func DefaultOptions() Options {
	return Options{
		TeleportThreshold: 10,
		MaxHandOffDepth:   8,
		TurnEpsilon:       1e-4,
		BisectionSamples:  1000,
	}
}

// Registry holds the tracks of a route keyed by track index, plus the event trigger table shared by
// every follower on the route.
type Registry struct {
	tracks   *orderedmap.OrderedMap[int, *Track]
	triggers TriggerTable
	opts     Options
	log      *slog.Logger

	fired   metric.Int64Counter
	guarded metric.Int64Counter
}

// NewRegistry returns an empty registry. A nil logger falls back to slog.Default.
func NewRegistry(opts Options, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		tracks:   orderedmap.NewOrderedMap[int, *Track](),
		triggers: TriggerTable{},
		opts:     opts,
		log:      log,
	}
	r.initMetrics()
	return r
}

// Options returns the registry's tunables.
func (r *Registry) Options() Options { return r.opts }

// Logger returns the registry's logger.
func (r *Registry) Logger() *slog.Logger { return r.log }

// Add registers t under index, replacing any previous track.
func (r *Registry) Add(index int, t *Track) {
	r.tracks.Set(index, t)
}

// Track looks up a track by index.
func (r *Registry) Track(index int) (*Track, bool) {
	if r == nil {
		return nil, false
	}
	return r.tracks.Get(index)
}

// MustTrack looks up a track by index, returning ErrUnknownTrack if it is missing.
func (r *Registry) MustTrack(index int) (*Track, error) {
	t, ok := r.Track(index)
	if !ok {
		return nil, fmt.Errorf("track %d: %w", index, ErrUnknownTrack)
	}
	return t, nil
}

// Len returns the number of registered tracks.
func (r *Registry) Len() int { return r.tracks.Len() }

// Each calls fn for every track in registration order.
func (r *Registry) Each(fn func(index int, t *Track)) {
	for el := r.tracks.Front(); el != nil; el = el.Next() {
		fn(el.Key, el.Value)
	}
}

// Handle installs the handler for an event kind.
func (r *Registry) Handle(kind EventKind, fn TriggerFunc) {
	r.triggers[kind] = fn
}

// ComputeCantTangents runs the cant tangent pass on every track.
func (r *Registry) ComputeCantTangents() {
	r.Each(func(_ int, t *Track) { t.ComputeCantTangents() })
}

// SmoothTurns runs turn smoothing on every track.
func (r *Registry) SmoothTurns(subdivisions int) error {
	var err error
	r.Each(func(index int, t *Track) {
		if err != nil {
			return
		}
		if e := t.SmoothTurns(subdivisions, r); e != nil {
			err = fmt.Errorf("smoothing track %d: %w", index, e)
		}
	})
	return err
}

func (r *Registry) trigger(e *Event, tc TriggerContext) {
	if e.TryTrigger(r.triggers, tc) {
		r.fired.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", string(e.Kind))))
	}
}
