package track

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/cxd309/tms-track/internal/track"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

func (r *Registry) initMetrics() {
	m := meter()
	var err error
	r.fired, err = m.Int64Counter(
		"track.events.fired",
		metric.WithDescription("Events triggered by followers"),
	)
	if err != nil {
		r.log.Warn("Failed to create fired counter", "error", err)
		r.fired = noop.Int64Counter{}
	}
	r.guarded, err = m.Int64Counter(
		"track.handoff.guard",
		metric.WithDescription("Event checks stopped by the track hand-off guard"),
	)
	if err != nil {
		r.log.Warn("Failed to create hand-off guard counter", "error", err)
		r.guarded = noop.Int64Counter{}
	}
}
