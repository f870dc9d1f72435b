package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	EventStore  EventStoreConfig  `yaml:"event_store"`
	Settings    SettingsConfig    `yaml:"settings"`
	Audio       AudioConfig       `yaml:"audio"`
	STT         STTConfig         `yaml:"stt"`
	Translation TranslationConfig `yaml:"translation"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	MaxStoreMB     int      `yaml:"max_store_mb"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// SettingsConfig points at the user settings document edited from the UI.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

type AudioConfig struct {
	Backend         string `yaml:"backend"` // portaudio, wav
	WAVPath         string `yaml:"wav_path"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
	WAVRealtime     bool   `yaml:"wav_realtime"`
}

type STTConfig struct {
	Mode          string `yaml:"mode"` // mock, exec
	Command       string `yaml:"command"`
	MockFinalEach int    `yaml:"mock_final_every"`
}

type TranslationConfig struct {
	TimeoutMS      int     `yaml:"timeout_ms"`
	GoogleEndpoint string  `yaml:"google_endpoint"`
	DeepLEndpoint  string  `yaml:"deepl_endpoint"`
	Temperature    float64 `yaml:"temperature"`
	Mock           bool    `yaml:"mock"`
}

type PipelineConfig struct {
	QueueCapacity  int `yaml:"queue_capacity"`
	PollIntervalMS int `yaml:"poll_interval_ms"`
	StopTimeoutMS  int `yaml:"stop_timeout_ms"`
	HistoryLimit   int `yaml:"history_limit"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-caption",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8090,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			MaxStoreMB:     256,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-captions.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		Settings: SettingsConfig{
			Path: "user_config.json",
		},
		Audio: AudioConfig{
			Backend:         "portaudio",
			FramesPerBuffer: 1024,
			WAVRealtime:     true,
		},
		STT: STTConfig{
			Mode:          "mock",
			MockFinalEach: 20,
		},
		Translation: TranslationConfig{
			TimeoutMS:      15000,
			GoogleEndpoint: "https://translate.googleapis.com/translate_a/single",
			DeepLEndpoint:  "",
			Temperature:    0.2,
		},
		Pipeline: PipelineConfig{
			QueueCapacity:  2,
			PollIntervalMS: 100,
			StopTimeoutMS:  2000,
			HistoryLimit:   500,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "LOQA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideInt(&cfg.Bus.MaxStoreMB, "LOQA_BUS_MAX_STORE_MB")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Settings.Path, "LOQA_SETTINGS_PATH")
	overrideString(&cfg.Audio.Backend, "LOQA_AUDIO_BACKEND")
	overrideString(&cfg.Audio.WAVPath, "LOQA_AUDIO_WAV_PATH")
	overrideInt(&cfg.Audio.FramesPerBuffer, "LOQA_AUDIO_FRAMES_PER_BUFFER")
	overrideBool(&cfg.Audio.WAVRealtime, "LOQA_AUDIO_WAV_REALTIME")
	overrideString(&cfg.STT.Mode, "LOQA_STT_MODE")
	overrideString(&cfg.STT.Command, "LOQA_STT_COMMAND")
	overrideInt(&cfg.STT.MockFinalEach, "LOQA_STT_MOCK_FINAL_EVERY")
	overrideInt(&cfg.Translation.TimeoutMS, "LOQA_TRANSLATION_TIMEOUT_MS")
	overrideString(&cfg.Translation.GoogleEndpoint, "LOQA_TRANSLATION_GOOGLE_ENDPOINT")
	overrideString(&cfg.Translation.DeepLEndpoint, "LOQA_TRANSLATION_DEEPL_ENDPOINT")
	overrideFloat(&cfg.Translation.Temperature, "LOQA_TRANSLATION_TEMPERATURE")
	overrideBool(&cfg.Translation.Mock, "LOQA_TRANSLATION_MOCK")
	overrideInt(&cfg.Pipeline.QueueCapacity, "LOQA_PIPELINE_QUEUE_CAPACITY")
	overrideInt(&cfg.Pipeline.PollIntervalMS, "LOQA_PIPELINE_POLL_INTERVAL_MS")
	overrideInt(&cfg.Pipeline.StopTimeoutMS, "LOQA_PIPELINE_STOP_TIMEOUT_MS")
	overrideInt(&cfg.Pipeline.HistoryLimit, "LOQA_PIPELINE_HISTORY_LIMIT")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Settings.Path == "" {
		return errors.New("settings.path must not be empty")
	}
	switch cfg.Audio.Backend {
	case "portaudio":
	case "wav":
		if cfg.Audio.WAVPath == "" {
			return errors.New("audio.wav_path must be set when backend=wav")
		}
	default:
		return errors.New("audio.backend must be one of portaudio|wav")
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		return errors.New("audio.frames_per_buffer must be positive")
	}
	switch cfg.STT.Mode {
	case "mock":
	case "exec":
		if cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	default:
		return errors.New("stt.mode must be one of mock|exec")
	}
	if cfg.Translation.TimeoutMS <= 0 {
		return errors.New("translation.timeout_ms must be positive")
	}
	// a final must fit behind the stale partial it follows
	if cfg.Pipeline.QueueCapacity < 2 {
		return errors.New("pipeline.queue_capacity must be >= 2")
	}
	if cfg.Pipeline.PollIntervalMS <= 0 {
		return errors.New("pipeline.poll_interval_ms must be positive")
	}
	if cfg.Pipeline.StopTimeoutMS <= 0 {
		return errors.New("pipeline.stop_timeout_ms must be positive")
	}
	return nil
}
