// Package dispatch turns the job files of the intake directory into audio
// files, one synthesis call per voiceover line, and moves processed jobs to
// the done directory.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loqalabs/loqa-voiceover/internal/config"
	"github.com/loqalabs/loqa-voiceover/internal/job"
	"github.com/loqalabs/loqa-voiceover/internal/protocol"
	"github.com/loqalabs/loqa-voiceover/internal/ratelimit"
	"github.com/loqalabs/loqa-voiceover/internal/tts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-voiceover/internal/dispatch"

// Sink receives run events. Sink failures are logged and never stop a run.
type Sink interface {
	Emit(ctx context.Context, evt protocol.JobEvent) error
}

// Options wires a Dispatcher. Synth and Dirs are required; everything else
// has a default.
type Options struct {
	RunID  string
	Dirs   config.DirsConfig
	Model  string
	Voice  string
	Synth  tts.Synthesizer
	Pacer  *ratelimit.BatchPacer
	Sinks  []Sink
	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter
}

// Dispatcher processes one intake directory sequentially. A Dispatcher owns
// its pacer, so the pause accounting spans every job of the run.
type Dispatcher struct {
	runID  string
	dirs   config.DirsConfig
	model  string
	voice  string
	synth  tts.Synthesizer
	pacer  *ratelimit.BatchPacer
	sinks  []Sink
	logger *slog.Logger
	tracer trace.Tracer
	inst   instruments
	clock  func() time.Time
	seen   map[string]string
}

func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pacer := opts.Pacer
	if pacer == nil {
		pacer = ratelimit.NewBatchPacer()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	dirs := opts.Dirs
	if dirs.Extension == "" {
		dirs.Extension = ".json"
	}
	return &Dispatcher{
		runID:  opts.RunID,
		dirs:   dirs,
		model:  opts.Model,
		voice:  opts.Voice,
		synth:  opts.Synth,
		pacer:  pacer,
		sinks:  opts.Sinks,
		logger: logger.With(slog.String("component", "dispatcher"), slog.String("run_id", opts.RunID)),
		tracer: tracer,
		inst:   newInstruments(meter, logger),
		clock:  time.Now,
		seen:   make(map[string]string),
	}
}

// Run processes every job file currently in the intake directory, in
// lexical order. Per-job failures are reported in the Report; the returned
// error is set only when the intake cannot be listed or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: d.runID}

	for _, dir := range []string{d.dirs.Todo, d.dirs.Done} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return report, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	entries, err := os.ReadDir(d.dirs.Todo)
	if err != nil {
		return report, fmt.Errorf("list intake %s: %w", d.dirs.Todo, err)
	}

	d.emit(ctx, protocol.JobEvent{Type: protocol.EventRunStarted, Path: d.dirs.Todo})

	var runErr error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, d.dirs.Extension) {
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		result := d.processJob(ctx, name)
		report.Jobs = append(report.Jobs, result)
		if result.Outcome == OutcomeFailed && ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
	}
	report.Pauses = d.pacer.Pauses()

	d.emit(context.WithoutCancel(ctx), protocol.JobEvent{Type: protocol.EventRunCompleted})
	return report, runErr
}

func (d *Dispatcher) processJob(ctx context.Context, name string) (result JobResult) {
	ctx, span := d.tracer.Start(ctx, "voiceover.job", trace.WithAttributes(attribute.String("job.file", name)))
	defer span.End()

	result = JobResult{File: name}
	defer func() {
		d.inst.jobs.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("outcome", string(result.Outcome))))
		span.SetAttributes(attribute.String("job.outcome", string(result.Outcome)))
		if result.Err != nil && !result.Outcome.Moved() {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, result.Err.Error())
		}
	}()

	log := d.logger.With(slog.String("file", name))
	src := filepath.Join(d.dirs.Todo, name)

	j, err := job.Load(src)
	if err != nil {
		result.Outcome = OutcomeParseError
		result.Err = err
		log.Error("failed to parse job", slogError(err))
		d.emit(ctx, protocol.JobEvent{Type: protocol.EventJobRejected, File: name, Error: err.Error()})
		return result
	}

	result.Title = j.Title
	result.OutputDir = filepath.Join(d.dirs.Output, j.DirName())
	span.SetAttributes(attribute.String("job.title", j.Title), attribute.Int("job.lines", len(j.Voiceover)))
	log = log.With(slog.String("title", j.Title))

	if prev, ok := d.seen[result.OutputDir]; ok {
		log.Warn("output directory already used by another job in this run",
			slog.String("output_dir", result.OutputDir), slog.String("previous_file", prev))
		d.emit(ctx, protocol.JobEvent{Type: protocol.EventTitleCollision, File: name, Title: j.Title, Path: result.OutputDir})
	}
	d.seen[result.OutputDir] = name

	d.emit(ctx, protocol.JobEvent{Type: protocol.EventJobStarted, File: name, Title: j.Title, Path: result.OutputDir})

	if err := os.MkdirAll(result.OutputDir, 0o755); err != nil {
		return d.fail(ctx, log, result, fmt.Errorf("create output directory: %w", err))
	}

	for i, text := range j.Voiceover {
		index := i + 1
		if err := d.pace(ctx, log); err != nil {
			return d.fail(ctx, log, result, err)
		}
		item, err := d.synthesize(ctx, log, name, result.OutputDir, index, text)
		if err != nil {
			return d.fail(ctx, log, result, err)
		}
		result.Items = append(result.Items, item)
	}

	if err := moveFile(src, filepath.Join(d.dirs.Done, name)); err != nil {
		return d.fail(ctx, log, result, err)
	}
	log.Info("moved job to done directory", slog.String("done_dir", d.dirs.Done))

	result.Outcome = OutcomeOK
	for _, item := range result.Items {
		if item.Err != nil {
			result.Outcome = OutcomeItemError
			result.Err = errors.Join(result.Err, fmt.Errorf("voiceover %d: %w", item.Index, item.Err))
		}
	}
	d.emit(ctx, protocol.JobEvent{Type: protocol.EventJobCompleted, File: name, Title: j.Title, Outcome: string(result.Outcome)})
	return result
}

func (d *Dispatcher) pace(ctx context.Context, log *slog.Logger) error {
	if !d.pacer.Due() {
		return nil
	}
	log.Info("pausing after voiceover batch",
		slog.Int("batch_size", d.pacer.Count()),
		slog.Duration("pause", d.pacer.PauseDuration()))
	d.emit(ctx, protocol.JobEvent{Type: protocol.EventRunPaused})
	paused, err := d.pacer.Wait(ctx)
	if err != nil {
		return fmt.Errorf("pause interrupted: %w", err)
	}
	if paused {
		d.inst.pauses.Add(ctx, 1)
	}
	return nil
}

// synthesize handles one line. A rejection by the endpoint is recorded on
// the item and is not an error; transport and filesystem failures are
// returned and abort the job.
func (d *Dispatcher) synthesize(ctx context.Context, log *slog.Logger, file, outputDir string, index int, text string) (ItemResult, error) {
	ctx, span := d.tracer.Start(ctx, "voiceover.synthesize", trace.WithAttributes(
		attribute.Int("voiceover.index", index),
		attribute.Int("voiceover.chars", len([]rune(text))),
	))
	defer span.End()

	item := ItemResult{Index: index}
	log = log.With(slog.Int("index", index))
	log.Info("generating voiceover")

	start := d.clock()
	audio, err := d.synth.Synthesize(ctx, tts.SynthRequest{Text: text, Model: d.model, Voice: d.voice})
	d.inst.latency.Record(context.WithoutCancel(ctx), d.clock().Sub(start).Seconds())

	var statusErr *tts.StatusError
	if errors.As(err, &statusErr) {
		item.Status = statusErr.Code
		item.Err = err
		span.SetAttributes(attribute.Int("http.response.status_code", statusErr.Code))
		span.SetStatus(codes.Error, "synthesis rejected")
		log.Error("error generating voiceover",
			slog.Int("status", statusErr.Code),
			slog.String("body", statusErr.Body))
		d.inst.items.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "rejected")))
		d.emit(ctx, protocol.JobEvent{Type: protocol.EventItemFailed, File: file, Index: index, Status: statusErr.Code, Error: statusErr.Body})
		return item, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.inst.items.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("result", "error")))
		return item, err
	}

	path := filepath.Join(outputDir, job.OutputFile(index))
	if err := writeFile(path, audio.Data); err != nil {
		span.RecordError(err)
		return item, err
	}
	d.pacer.RecordSuccess()

	item.Path = path
	item.Status = 200
	span.SetAttributes(attribute.Int("voiceover.bytes", len(audio.Data)))
	log.Info("generated voiceover", slog.String("path", path), slog.Int("bytes", len(audio.Data)))
	d.inst.items.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
	d.emit(ctx, protocol.JobEvent{Type: protocol.EventItemSucceeded, File: file, Index: index, Path: path, Status: item.Status})
	return item, nil
}

func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, result JobResult, err error) JobResult {
	result.Outcome = OutcomeFailed
	result.Err = err
	log.Error("failed to process job", slogError(err))
	d.emit(context.WithoutCancel(ctx), protocol.JobEvent{Type: protocol.EventJobFailed, File: result.File, Title: result.Title, Error: err.Error()})
	return result
}

func (d *Dispatcher) emit(ctx context.Context, evt protocol.JobEvent) {
	evt.RunID = d.runID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = d.clock().UTC()
	}
	for _, sink := range d.sinks {
		if err := sink.Emit(ctx, evt); err != nil {
			d.logger.Warn("failed to emit run event", slog.String("event", evt.Type), slogError(err))
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
