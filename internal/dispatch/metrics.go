package dispatch

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type instruments struct {
	items   metric.Int64Counter
	jobs    metric.Int64Counter
	pauses  metric.Int64Counter
	latency metric.Float64Histogram
}

func newInstruments(meter metric.Meter, logger *slog.Logger) instruments {
	fallback := noop.NewMeterProvider().Meter(instrumentationName)
	var inst instruments
	var err error

	if inst.items, err = meter.Int64Counter("voiceover.items",
		metric.WithDescription("Voiceover lines by synthesis result")); err != nil {
		logger.Warn("failed to create items counter", slogError(err))
		inst.items, _ = fallback.Int64Counter("voiceover.items")
	}
	if inst.jobs, err = meter.Int64Counter("voiceover.jobs",
		metric.WithDescription("Job files by outcome")); err != nil {
		logger.Warn("failed to create jobs counter", slogError(err))
		inst.jobs, _ = fallback.Int64Counter("voiceover.jobs")
	}
	if inst.pauses, err = meter.Int64Counter("voiceover.pauses",
		metric.WithDescription("Rate-limit pauses taken")); err != nil {
		logger.Warn("failed to create pauses counter", slogError(err))
		inst.pauses, _ = fallback.Int64Counter("voiceover.pauses")
	}
	if inst.latency, err = meter.Float64Histogram("voiceover.synthesis.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Latency of synthesis calls")); err != nil {
		logger.Warn("failed to create latency histogram", slogError(err))
		inst.latency, _ = fallback.Float64Histogram("voiceover.synthesis.duration")
	}
	return inst
}
