package export

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/solarsentry/space-weather-forecast/internal/domain"
	"github.com/solarsentry/space-weather-forecast/internal/observability"
)

// publishTimeout bounds a single sink publish so one stuck sink cannot hold
// a bundle's fan-out open indefinitely.
const publishTimeout = 10 * time.Second

// Sink receives every completed forecast bundle.
type Sink interface {
	Name() string
	Publish(ctx context.Context, bundle domain.ForecastBundle) error
}

// Runner drains the hub's bundle feed and fans each bundle out to all sinks
// concurrently. A failing sink is logged and counted, never fatal, and a
// bundle's fan-out takes only as long as its slowest publish.
type Runner struct {
	feed    <-chan domain.ForecastBundle
	sinks   []Sink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRunner creates a Runner over the given feed and sinks.
func NewRunner(feed <-chan domain.ForecastBundle, sinks []Sink, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		feed:    feed,
		sinks:   sinks,
		logger:  logger,
		metrics: metrics,
	}
}

// Run consumes the feed until the context is cancelled. With no sinks
// configured it still drains, so the feed buffer never sits full.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("export runner started", "sinks", sinkNames(r.sinks))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("export runner stopping", "reason", ctx.Err())
			return nil
		case bundle := <-r.feed:
			r.dispatch(ctx, bundle)
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, bundle domain.ForecastBundle) {
	var wg sync.WaitGroup
	for _, sink := range r.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			defer cancel()

			if err := sink.Publish(pubCtx, bundle); err != nil {
				r.metrics.SinkPublishes.WithLabelValues(sink.Name(), "error").Inc()
				r.logger.Error("bundle publish failed",
					"sink", sink.Name(), "bundle_id", bundle.ID, "error", err)
				return
			}
			r.metrics.SinkPublishes.WithLabelValues(sink.Name(), "success").Inc()
		}()
	}
	wg.Wait()
}

func sinkNames(sinks []Sink) string {
	names := make([]string, 0, len(sinks))
	for _, sink := range sinks {
		names = append(names, sink.Name())
	}
	return strings.Join(names, ",")
}
