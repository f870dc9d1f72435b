package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-caption/internal/audio"
	"github.com/loqalabs/loqa-caption/internal/bus"
	"github.com/loqalabs/loqa-caption/internal/config"
	"github.com/loqalabs/loqa-caption/internal/eventstore"
	"github.com/loqalabs/loqa-caption/internal/overlay"
	"github.com/loqalabs/loqa-caption/internal/pipeline"
	"github.com/loqalabs/loqa-caption/internal/settings"
	"github.com/loqalabs/loqa-caption/internal/translate"
)

// Services are the components the runtime serves and shuts down.
type Services struct {
	Controller *pipeline.Controller
	Settings   *settings.Store
	Overlay    *overlay.Hub
	Audio      audio.Opener
	Translator *translate.Registry
	Events     *eventstore.Store
	// Bus is nil when the bus is disabled.
	Bus *bus.Client
}

type Runtime struct {
	cfg           config.Config
	version       string
	logger        *slog.Logger
	svc           Services
	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, version string, svc Services, logger *slog.Logger) *Runtime {
	r := &Runtime{
		cfg:     cfg,
		version: version,
		logger:  logger.With(slog.String("component", "runtime")),
		svc:     svc,
	}
	svc.Overlay.OnPosition(r.savePosition)
	return r
}

// Start serves the API until ctx ends, then stops any running session and
// saves the user settings.
func (r *Runtime) Start(ctx context.Context) error {
	shutdownTelemetry, metrics, err := SetupTelemetry(ctx, r.cfg, r.version, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.svc.Overlay.Run(hubCtx)
	}()

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.Routes(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http")

	if metrics != nil && r.cfg.Telemetry.PrometheusBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.serve(r.metricsServer, "metrics")
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	if err := r.svc.Controller.Stop(); err != nil && !errors.Is(err, pipeline.ErrStopping) {
		r.logger.Error("session stop error", slogError(err))
	}
	r.persistSettings()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	for _, srv := range []*http.Server{r.httpServer, r.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
	}
	stopHub()
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}
	return nil
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("server failed", slog.String("server", name), slogError(err))
		}
	}()
}

// persistSettings writes the current settings and overlay position back to
// disk on exit.
func (r *Runtime) persistSettings() {
	current := r.svc.Settings.Current()
	current.MonitorPosition = r.svc.Overlay.Snapshot().Position
	if err := r.svc.Settings.Save(current); err != nil {
		r.logger.Error("failed to save settings on exit", slogError(err))
	}
}

func (r *Runtime) savePosition(x, y int) {
	current := r.svc.Settings.Current()
	current.MonitorPosition = [2]int{x, y}
	if err := r.svc.Settings.Save(current); err != nil {
		r.logger.Warn("failed to save overlay position", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
