// Package telemetry implements SPEC_FULL §12.3's periodic metrics logger:
// a ticker-driven loop that snapshots the engine's counters, the refresh
// executor's dispatched/dropped counts and the admission predicate's
// allowed/rejected counts, and logs the interval deltas through slog. The
// loop shape (background goroutine, ticker, delta-against-previous-
// snapshot, one slog.Info call per metric group) is grounded directly on
// the reference cache library's internal/telemetry/logger.go and
// sampler.go.
package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// Logger is the telemetry capability exposed to the composition root.
type Logger interface {
	Interval() time.Duration
	Close() error
}

type logs struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	interval time.Duration
	sampler  sampler
}

// New starts a background goroutine that logs metric deltas every interval.
// refresher and admission may be nil if those capabilities are disabled;
// their metric groups are then simply omitted from the log output.
func New(
	ctx context.Context,
	logger *slog.Logger,
	engineMetrics EngineMetricsFunc,
	refresher RefreshMetricsSource,
	admission AdmissionMetricsSource,
	interval time.Duration,
) Logger {
	ctx, cancel := context.WithCancel(ctx)
	l := &logs{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		interval: interval,
		sampler:  newSampler(engineMetrics, refresher, admission),
	}
	if interval > 0 {
		go l.loop()
	}
	return l
}

func (l *logs) Interval() time.Duration { return l.interval }

func (l *logs) Close() error {
	l.cancel()
	return nil
}

func (l *logs) loop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	prev := l.sampler.snapshot()

	for {
		select {
		case <-l.ctx.Done():
			return

		case <-ticker.C:
			cur := l.sampler.snapshot()
			d := deltaSnapshot(prev, cur)
			prev = cur

			common := []any{"interval", l.interval.String()}

			l.logger.Info("cache_engine",
				append(common,
					"hits", int64(d.hits),
					"misses", int64(d.misses),
					"source_calls", int64(d.sourceCalls),
					"source_failures", int64(d.sourceFailures),
					"lock_acquired", int64(d.lockAcquired),
					"lock_contended", int64(d.lockContended),
					"single_flight_joined", int64(d.singleFlightJoined),
					"single_flight_bypass", int64(d.singleFlightBypass),
					"refresh_stale_served", int64(d.refreshStaleServed),
				)...,
			)

			if l.sampler.refresher != nil {
				l.logger.Info("refresh_executor",
					append(common,
						"dispatched", int64(d.refreshDispatched),
						"dropped", int64(d.refreshDropped),
					)...,
				)
			}

			if l.sampler.admission != nil {
				l.logger.Info("admission_predicate",
					append(common,
						"allowed", int64(d.admissionAllowed),
						"not_allowed", int64(d.admissionNotAllowed),
					)...,
				)
			}
		}
	}
}
