// Package pipeline couples audio capture, incremental recognition and
// translation into one start/stop session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-caption/internal/audio"
	"github.com/loqalabs/loqa-caption/internal/config"
	"github.com/loqalabs/loqa-caption/internal/stt"
	"github.com/loqalabs/loqa-caption/internal/translate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Deps are the capabilities a controller drives.
type Deps struct {
	Audio       audio.Opener
	Recognizers stt.Factory
	Translator  translate.Translator
	Sink        Sink
}

// SessionConfig selects what a session captures and how it translates.
type SessionConfig struct {
	// DeviceIndex is a position in Audio.Devices(), not a driver index.
	DeviceIndex     int
	ModelDir        string
	FramesPerBuffer int
	Options         translate.Options
}

// Status is a point-in-time view of the controller.
type Status struct {
	State        State     `json:"state"`
	SessionID    string    `json:"session_id,omitempty"`
	Device       string    `json:"device,omitempty"`
	SampleRate   int       `json:"sample_rate,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	QueueDepth   int       `json:"queue_depth"`
	Transcript   []Segment `json:"transcript"`
	Translations []Segment `json:"translations"`
}

type Controller struct {
	cfg     config.PipelineConfig
	deps    Deps
	log     *slog.Logger
	tracer  trace.Tracer
	metrics *metrics
	clock   func() time.Time

	mu      sync.Mutex
	state   atomic.Int32
	session *session
	idle    chan struct{}

	options      optionsCell
	transcript   *history
	translations *history
}

type session struct {
	id         string
	device     audio.Device
	channels   int
	startedAt  time.Time
	src        audio.Source
	rec        stt.Recognizer
	queue      *Queue
	cancel     context.CancelFunc
	stop       atomic.Bool
	seq        atomic.Uint64
	endReason  string
	transcribe chan struct{}
	translate  chan struct{}
	done       chan struct{}
}

func (s *session) stopped() bool { return s.stop.Load() }

func New(cfg config.PipelineConfig, deps Deps, log *slog.Logger) *Controller {
	if deps.Sink == nil {
		deps.Sink = MultiSink()
	}
	idle := make(chan struct{})
	close(idle)
	c := &Controller{
		cfg:          cfg,
		deps:         deps,
		log:          log.With(slog.String("component", "pipeline")),
		tracer:       otel.Tracer(instrumentationName),
		clock:        time.Now,
		idle:         idle,
		transcript:   newHistory(cfg.HistoryLimit),
		translations: newHistory(cfg.HistoryLimit),
	}
	if err := c.initMetrics(); err != nil {
		c.log.Warn("failed to initialize metrics", slogError(err))
	}
	return c
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

// Start opens the device and recognizer and launches both workers. Nothing is
// running when it returns an error.
func (c *Controller) Start(ctx context.Context, sc SessionConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.State() {
	case Running:
		return ErrAlreadyRunning
	case Stopping:
		return ErrStopping
	}

	devices, err := c.deps.Audio.Devices()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	if sc.DeviceIndex < 0 || sc.DeviceIndex >= len(devices) {
		return fmt.Errorf("%w: index %d of %d devices", ErrInvalidDevice, sc.DeviceIndex, len(devices))
	}
	device := devices[sc.DeviceIndex]

	rec, err := c.deps.Recognizers.NewRecognizer(ctx, stt.Model{Dir: sc.ModelDir, SampleRate: device.SampleRate})
	if err != nil {
		return fmt.Errorf("create recognizer: %w", err)
	}
	src, err := c.deps.Audio.Open(ctx, audio.DeviceConfig{Device: device, FramesPerBuffer: sc.FramesPerBuffer})
	if err != nil {
		_ = rec.Close()
		return fmt.Errorf("open capture: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:         uuid.NewString(),
		device:     device,
		channels:   src.Channels(),
		startedAt:  c.clock(),
		src:        src,
		rec:        rec,
		queue:      NewQueue(c.cfg.QueueCapacity),
		cancel:     cancel,
		transcribe: make(chan struct{}),
		translate:  make(chan struct{}),
		done:       make(chan struct{}),
	}
	c.transcript.reset()
	c.translations.reset()
	c.options.Store(sc.Options)
	c.session = s
	c.state.Store(int32(Running))

	// sinks see the session before any of its captions
	c.deps.Sink.SessionChanged(ctx, c.sessionInfo(s, Running, ""))
	go c.runTranscriber(runCtx, s)
	go c.runTranslator(runCtx, s)
	go c.supervise(s)

	c.log.Info("session started",
		slog.String("session_id", s.id),
		slog.String("device", device.Name),
		slog.Int("channels", s.channels),
		slog.Int("sample_rate", device.SampleRate),
		slog.String("engine", sc.Options.Engine))
	return nil
}

// Stop ends the running session. It is a no-op when idle and may be called
// from any goroutine.
func (c *Controller) Stop() error {
	c.mu.Lock()
	switch c.State() {
	case Idle:
		c.mu.Unlock()
		return nil
	case Stopping:
		c.mu.Unlock()
		return ErrStopping
	}
	s := c.session
	c.state.Store(int32(Stopping))
	c.mu.Unlock()

	return c.shutdown(s, "stopped")
}

// supervise ends the session when the transcriber exits on its own.
func (c *Controller) supervise(s *session) {
	<-s.transcribe
	c.mu.Lock()
	if c.session != s || c.State() != Running {
		c.mu.Unlock()
		return
	}
	c.state.Store(int32(Stopping))
	c.mu.Unlock()

	if err := c.shutdown(s, s.endReason); err != nil {
		c.log.Warn("session teardown failed", slog.String("session_id", s.id), slogError(err))
	}
}

func (c *Controller) shutdown(s *session, reason string) error {
	s.stop.Store(true)
	s.cancel()

	timeout := time.Duration(c.cfg.StopTimeoutMS) * time.Millisecond
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	workers := []struct {
		name string
		done chan struct{}
	}{{"transcriber", s.transcribe}, {"translator", s.translate}}
	expired := false
	for _, w := range workers {
		if expired {
			select {
			case <-w.done:
			default:
				c.log.Warn("worker did not stop in time", slog.String("session_id", s.id), slog.String("worker", w.name))
			}
			continue
		}
		select {
		case <-w.done:
		case <-timer.C:
			expired = true
			c.log.Warn("worker did not stop in time", slog.String("session_id", s.id), slog.String("worker", w.name), slog.Duration("timeout", timeout))
		}
	}

	err := errors.Join(s.src.Close(), s.rec.Close())
	s.queue.Clear()

	c.mu.Lock()
	c.session = nil
	c.state.Store(int32(Idle))
	c.mu.Unlock()
	close(s.done)

	if reason == "" {
		reason = "stopped"
	}
	c.log.Info("session stopped", slog.String("session_id", s.id), slog.String("reason", reason))
	c.deps.Sink.SessionChanged(context.Background(), c.sessionInfo(s, Idle, reason))
	return err
}

// Done is closed when the current session ends for any reason. It is already
// closed while idle.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return c.idle
	}
	return c.session.done
}

func (c *Controller) SetOptions(o translate.Options) { c.options.Store(o) }

func (c *Controller) Options() translate.Options { return c.options.Load() }

// Transcript returns the completed source lines of the current or last session.
func (c *Controller) Transcript() []Segment { return c.transcript.snapshot() }

// Translations returns the completed translated lines of the current or last
// session.
func (c *Controller) Translations() []Segment { return c.translations.snapshot() }

func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{State: c.State(), Transcript: c.Transcript(), Translations: c.Translations()}
	if s := c.session; s != nil {
		st.SessionID = s.id
		st.Device = s.device.Name
		st.SampleRate = s.device.SampleRate
		st.StartedAt = s.startedAt
		st.QueueDepth = s.queue.Len()
	}
	c.mu.Unlock()
	return st
}

func (c *Controller) queueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return 0
	}
	return c.session.queue.Len()
}

func (c *Controller) sessionInfo(s *session, state State, reason string) SessionInfo {
	return SessionInfo{
		ID:         s.id,
		State:      state,
		Device:     s.device.Name,
		SampleRate: s.device.SampleRate,
		Engine:     c.options.Load().Engine,
		Reason:     reason,
		At:         c.clock(),
	}
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
