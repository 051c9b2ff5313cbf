package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-voiceover/internal/bus"
	"github.com/loqalabs/loqa-voiceover/internal/config"
	"github.com/loqalabs/loqa-voiceover/internal/dispatch"
	"github.com/loqalabs/loqa-voiceover/internal/journal"
	"github.com/loqalabs/loqa-voiceover/internal/ratelimit"
	"github.com/loqalabs/loqa-voiceover/internal/tts"
)

const instrumentationName = "github.com/loqalabs/loqa-voiceover"

// Runtime performs one batch run: it sets up telemetry and the optional
// journal and bus sinks, drains the intake directory, then tears everything
// down again.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup

	// newPacer lets tests shorten the pause.
	newPacer func() *ratelimit.BatchPacer
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:      cfg,
		logger:   logger,
		newPacer: ratelimit.NewBatchPacer,
	}
}

// Run processes the intake directory once. Only setup failures and
// cancellation are returned as errors; job failures live in the report.
func (r *Runtime) Run(ctx context.Context) (dispatch.Report, error) {
	synth, err := tts.New(r.cfg.TTS)
	if err != nil {
		return dispatch.Report{}, fmt.Errorf("failed to build synthesizer: %w", err)
	}

	tel, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return dispatch.Report{}, fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	if r.cfg.Telemetry.PrometheusBind != "" {
		if err := r.startStatusServer(tel.metricsHandler); err != nil {
			return dispatch.Report{}, err
		}
		defer r.stopStatusServer()
	}

	runID := uuid.NewString()
	logger := r.logger.With(slog.String("run_id", runID))

	var sinks []dispatch.Sink
	store, err := journal.Open(ctx, r.cfg.Journal, logger)
	if err != nil {
		logger.Warn("journal unavailable, continuing without it", slog.String("error", err.Error()))
	} else {
		defer store.Close()
		if err := store.BeginRun(ctx, runID, r.cfg.Dirs.Todo); err != nil {
			logger.Warn("failed to record run in journal", slog.String("error", err.Error()))
		} else {
			sinks = append(sinks, store)
		}
	}

	if r.cfg.Bus.Enabled {
		client, err := bus.Connect(ctx, r.cfg.Bus, logger)
		if err != nil {
			logger.Warn("bus unavailable, continuing without it", slog.String("error", err.Error()))
		} else {
			defer client.Close()
			sinks = append(sinks, client)
		}
	}

	dispatcher := dispatch.New(dispatch.Options{
		RunID:  runID,
		Dirs:   r.cfg.Dirs,
		Model:  r.cfg.TTS.Model,
		Voice:  r.cfg.TTS.Voice,
		Synth:  synth,
		Pacer:  r.newPacer(),
		Sinks:  sinks,
		Logger: logger,
		Tracer: tel.tracerProvider.Tracer(instrumentationName),
		Meter:  tel.meterProvider.Meter(instrumentationName),
	})

	r.ready.Store(true)
	logger.Info("starting voiceover generation",
		slog.String("todo_dir", r.cfg.Dirs.Todo),
		slog.String("done_dir", r.cfg.Dirs.Done),
		slog.String("output_dir", r.cfg.Dirs.Output),
		slog.String("tts_mode", r.cfg.TTS.Mode))

	report, err := dispatcher.Run(ctx)
	r.ready.Store(false)

	logger.Info("voiceover generation finished",
		slog.Int("jobs", len(report.Jobs)),
		slog.Int("ok", report.Count(dispatch.OutcomeOK)),
		slog.Int("item_error", report.Count(dispatch.OutcomeItemError)),
		slog.Int("parse_error", report.Count(dispatch.OutcomeParseError)),
		slog.Int("failed", report.Count(dispatch.OutcomeFailed)),
		slog.Int("pauses", report.Pauses))
	return report, err
}

func (r *Runtime) startStatusServer(metrics http.Handler) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	listener, err := net.Listen("tcp", r.cfg.Telemetry.PrometheusBind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", r.cfg.Telemetry.PrometheusBind, err)
	}
	r.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("status server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("status server started", slog.String("addr", listener.Addr().String()))
	return nil
}

func (r *Runtime) stopStatusServer() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("status server shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
