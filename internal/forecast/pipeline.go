package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/solarsentry/space-weather-forecast/internal/domain"
	"github.com/solarsentry/space-weather-forecast/internal/observability"
)

// Result is the product of one forecast cycle: the bundle itself plus the
// fingerprint the hub compares across cycles for change detection.
type Result struct {
	Bundle      domain.ForecastBundle
	Fingerprint domain.Fingerprint
}

// Pipeline runs the fetch-classify-score-synthesize sequence. Each Produce
// call is one complete cycle; the caller owns scheduling and concurrency.
type Pipeline struct {
	source       domain.EventSource
	synthesizer  *Synthesizer
	windowDays   int
	fetchTimeout time.Duration
	logger       *slog.Logger
	metrics      *observability.Metrics
	ready        atomic.Bool
}

// New creates a Pipeline over the given source and synthesizer.
func New(source domain.EventSource, synthesizer *Synthesizer, windowDays int, fetchTimeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		source:       source,
		synthesizer:  synthesizer,
		windowDays:   windowDays,
		fetchTimeout: fetchTimeout,
		logger:       logger,
		metrics:      metrics,
	}
}

// CheckReadiness returns nil once the pipeline has completed at least one
// cycle, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no forecast cycle has completed yet")
	}
	return nil
}

// Produce runs one forecast cycle. Feed failures degrade to an
// all-categories-errored summary rather than aborting: short of context
// cancellation, every cycle yields a bundle.
func (p *Pipeline) Produce(ctx context.Context) (Result, error) {
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	snapshot, err := p.source.Fetch(fetchCtx, p.windowDays)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		p.logger.Error("feed fetch failed, producing degraded forecast", "error", err)
		snapshot = domain.FeedSnapshot{Errors: map[domain.EventKind]string{
			domain.KindCME:   err.Error(),
			domain.KindFlare: err.Error(),
		}}
	}

	cmes := domain.ClassifyEvents(snapshot.CMEs, domain.KindCME)
	flares := domain.ClassifyEvents(snapshot.Flares, domain.KindFlare)
	summary := domain.BuildSummary(cmes, flares, snapshot.Errors, p.windowDays)

	risk := domain.ComputeRiskIndex(summary.CME.Count, summary.Flare.Count)
	if risk.Score < 0 || risk.Score > 100 {
		// Bounded arithmetic makes this unreachable; reaching it means the
		// scorer itself is broken.
		panic(fmt.Sprintf("risk score %v outside [0,100]", risk.Score))
	}

	bundle := p.synthesizer.Synthesize(ctx, summary, risk)

	p.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	p.metrics.RiskScore.Set(risk.Score)
	p.metrics.EventsInWindow.WithLabelValues("cme").Set(float64(summary.CME.Count))
	p.metrics.EventsInWindow.WithLabelValues("flare").Set(float64(summary.Flare.Count))
	if summary.HasErrors() {
		p.metrics.CycleErrors.Inc()
	}

	p.ready.Store(true)
	p.logger.Debug("forecast cycle complete",
		"score", risk.Score,
		"level", risk.Level,
		"cmes", summary.CME.Count,
		"flares", summary.Flare.Count,
		"narrative_source", bundle.NarrativeSource,
		"duration", time.Since(start),
	)

	return Result{Bundle: bundle, Fingerprint: summary.Fingerprint()}, nil
}
