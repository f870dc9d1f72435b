package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-caption/internal/audio"
	"github.com/loqalabs/loqa-caption/internal/audio/portaudio"
	"github.com/loqalabs/loqa-caption/internal/bus"
	"github.com/loqalabs/loqa-caption/internal/config"
	"github.com/loqalabs/loqa-caption/internal/eventstore"
	"github.com/loqalabs/loqa-caption/internal/natsserver"
	"github.com/loqalabs/loqa-caption/internal/overlay"
	"github.com/loqalabs/loqa-caption/internal/pipeline"
	"github.com/loqalabs/loqa-caption/internal/runtime"
	"github.com/loqalabs/loqa-caption/internal/settings"
	"github.com/loqalabs/loqa-caption/internal/stt"
	"github.com/loqalabs/loqa-caption/internal/translate"
)

var version = "0.1.0-dev"

const overlayLines = 3

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (built-in defaults when empty)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [devices]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Telemetry.LogLevel)}))

	opener := newOpener(cfg.Audio, logger)
	if flag.Arg(0) == "devices" {
		if err := listDevices(opener); err != nil {
			logger.Error("failed to list devices", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, opener, logger); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg config.Config, opener audio.Opener, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recognizers, err := newRecognizers(cfg.STT, logger)
	if err != nil {
		return err
	}

	store := settings.NewStore(cfg.Settings.Path, logger)
	current := store.Load()

	events, err := eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer events.Close()

	hub := overlay.NewHub(overlayLines, current.MonitorPosition, logger)
	sinks := []pipeline.Sink{hub, eventstore.NewRecorder(events)}

	var busClient *bus.Client
	if cfg.Bus.Enabled {
		embedded, err := natsserver.Start(cfg.RuntimeName, cfg.Bus, logger)
		if err != nil {
			return err
		}
		defer embedded.Shutdown()

		busCfg := cfg.Bus
		if url := embedded.ClientURL(); url != "" {
			busCfg.Servers = []string{url}
		}
		busClient, err = bus.Connect(cfg.RuntimeName, busCfg, logger)
		if err != nil {
			return err
		}
		defer busClient.Close()

		retention := time.Duration(cfg.EventStore.RetentionDays) * 24 * time.Hour
		publisher, err := bus.NewCaptionPublisher(busClient, retention)
		if err != nil {
			return fmt.Errorf("prepare caption stream: %w", err)
		}
		sinks = append(sinks, publisher)
	}

	registry := translate.NewFromConfig(cfg.Translation)
	controller := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Audio:       opener,
		Recognizers: recognizers,
		Translator:  registry,
		Sink:        pipeline.MultiSink(sinks...),
	}, logger)
	controller.SetOptions(current.EngineOptions())

	rt := runtime.New(cfg, version, runtime.Services{
		Controller: controller,
		Settings:   store,
		Overlay:    hub,
		Audio:      opener,
		Translator: registry,
		Events:     events,
		Bus:        busClient,
	}, logger)
	return rt.Start(ctx)
}

func newOpener(cfg config.AudioConfig, logger *slog.Logger) audio.Opener {
	if cfg.Backend == "wav" {
		return audio.NewWAVFile(cfg.WAVPath, cfg.WAVRealtime, logger)
	}
	return portaudio.New(logger)
}

func newRecognizers(cfg config.STTConfig, logger *slog.Logger) (stt.Factory, error) {
	if cfg.Mode == "exec" {
		return stt.NewExecFactory(cfg.Command, logger)
	}
	return stt.NewMockFactory(cfg.MockFinalEach), nil
}

// listDevices prints the device list in the order session start indexes it.
func listDevices(opener audio.Opener) error {
	devices, err := opener.Devices()
	if err != nil {
		return err
	}
	for i, d := range devices {
		fmt.Printf("%d\t%s\t%d ch\t%d Hz\n", i, d.Name, d.Channels, d.SampleRate)
	}
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
