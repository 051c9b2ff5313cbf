package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingEndpoint = errors.New("TTS_API_URL is required")
	ErrMissingAPIKey   = errors.New("TTS_API_KEY is required")
)

const dotEnvKey = "VOICEOVER_DOTENV"

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level" env:"VOICEOVER_LOG_LEVEL"`
	LogFormat      string `yaml:"log_format" env:"VOICEOVER_LOG_FORMAT"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" env:"VOICEOVER_OTLP_ENDPOINT"`
	OTLPInsecure   bool   `yaml:"otlp_insecure" env:"VOICEOVER_OTLP_INSECURE"`
	TraceStdout    bool   `yaml:"trace_stdout" env:"VOICEOVER_TRACE_STDOUT"`
	PrometheusBind string `yaml:"prometheus_bind" env:"VOICEOVER_PROMETHEUS_BIND"`
}

type Config struct {
	RunName     string          `yaml:"run_name" env:"VOICEOVER_RUN_NAME"`
	Environment string          `yaml:"environment" env:"VOICEOVER_ENVIRONMENT"`
	DotEnv      string          `yaml:"dotenv"`
	Dirs        DirsConfig      `yaml:"dirs"`
	TTS         TTSConfig       `yaml:"tts"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Journal     JournalConfig   `yaml:"journal"`
	Bus         BusConfig       `yaml:"bus"`
}

// DirsConfig locates the job intake, completion and audio output trees.
type DirsConfig struct {
	Todo      string `yaml:"todo" env:"VOICEOVER_TODO_DIR"`
	Done      string `yaml:"done" env:"VOICEOVER_DONE_DIR"`
	Output    string `yaml:"output" env:"VOICEOVER_OUTPUT_DIR"`
	Extension string `yaml:"extension" env:"VOICEOVER_JOB_EXT"`
}

type TTSConfig struct {
	Mode       string `yaml:"mode" env:"VOICEOVER_TTS_MODE"`
	Endpoint   string `yaml:"endpoint" env:"TTS_API_URL"`
	APIKey     string `yaml:"api_key" env:"TTS_API_KEY"`
	APIVersion string `yaml:"api_version" env:"VOICEOVER_TTS_API_VERSION"`
	Model      string `yaml:"model" env:"VOICEOVER_TTS_MODEL"`
	Voice      string `yaml:"voice" env:"VOICEOVER_TTS_VOICE"`
	Command    string `yaml:"command" env:"VOICEOVER_TTS_COMMAND"`
	TimeoutMS  int    `yaml:"timeout_ms" env:"VOICEOVER_TTS_TIMEOUT_MS"`
}

type JournalConfig struct {
	Path          string `yaml:"path" env:"VOICEOVER_JOURNAL_PATH"`
	RetentionMode string `yaml:"retention_mode" env:"VOICEOVER_JOURNAL_RETENTION_MODE"`
	RetentionDays int    `yaml:"retention_days" env:"VOICEOVER_JOURNAL_RETENTION_DAYS"`
	MaxRuns       int    `yaml:"max_runs" env:"VOICEOVER_JOURNAL_MAX_RUNS"`
	VacuumOnStart bool   `yaml:"vacuum_on_start" env:"VOICEOVER_JOURNAL_VACUUM_ON_START"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled" env:"VOICEOVER_BUS_ENABLED"`
	Servers        []string `yaml:"servers" env:"VOICEOVER_BUS_SERVERS"`
	Username       string   `yaml:"username" env:"VOICEOVER_BUS_USERNAME"`
	Password       string   `yaml:"password" env:"VOICEOVER_BUS_PASSWORD"`
	Token          string   `yaml:"token" env:"VOICEOVER_BUS_TOKEN"`
	TLSInsecure    bool     `yaml:"tls_insecure" env:"VOICEOVER_BUS_TLS_INSECURE"`
	ConnectTimeout int      `yaml:"connect_timeout_ms" env:"VOICEOVER_BUS_CONNECT_TIMEOUT_MS"`
	SubjectPrefix  string   `yaml:"subject_prefix" env:"VOICEOVER_BUS_SUBJECT_PREFIX"`
}

func Default() Config {
	return Config{
		RunName:     "loqa-voiceover",
		Environment: "development",
		DotEnv:      ".env",
		Dirs: DirsConfig{
			Todo:      "todo",
			Done:      "done",
			Output:    "output",
			Extension: ".json",
		},
		TTS: TTSConfig{
			Mode:       "http",
			APIVersion: "2024-05-01-preview",
			Model:      "tts-hd",
			Voice:      "echo",
			TimeoutMS:  90000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFormat:    "json",
			OTLPInsecure: true,
		},
		Journal: JournalConfig{
			Path:          "./data/voiceover-journal.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxRuns:       1000,
		},
		Bus: BusConfig{
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "voiceover",
		},
	}
}

// Load layers defaults, the optional YAML file at path, the dotenv file and
// the process environment, in that order, then validates the result.
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

	if value, ok := os.LookupEnv(dotEnvKey); ok && strings.TrimSpace(value) != "" {
		cfg.DotEnv = value
	}
	vars, err := environment(cfg.DotEnv)
	if err != nil {
		return cfg, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return cfg, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// environment merges the dotenv file under the process environment. Variables
// already exported by the shell win over the file.
func environment(dotEnvPath string) (map[string]string, error) {
	vars := env.ToMap(os.Environ())
	if dotEnvPath == "" {
		return vars, nil
	}
	fileVars, err := godotenv.Read(dotEnvPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return vars, nil
		}
		return nil, fmt.Errorf("failed to read dotenv file %s: %w", dotEnvPath, err)
	}
	for key, value := range fileVars {
		if _, ok := vars[key]; !ok {
			vars[key] = value
		}
	}
	return vars, nil
}

func validate(cfg Config) error {
	switch cfg.TTS.Mode {
	case "http":
		if strings.TrimSpace(cfg.TTS.Endpoint) == "" {
			return ErrMissingEndpoint
		}
		if strings.TrimSpace(cfg.TTS.APIKey) == "" {
			return ErrMissingAPIKey
		}
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when mode=exec")
		}
	case "mock":
	default:
		return errors.New("tts.mode must be one of http|mock|exec")
	}
	if cfg.TTS.TimeoutMS <= 0 {
		return errors.New("tts.timeout_ms must be positive")
	}
	if cfg.RunName == "" {
		return errors.New("run_name must not be empty")
	}
	if cfg.Dirs.Todo == "" || cfg.Dirs.Done == "" || cfg.Dirs.Output == "" {
		return errors.New("dirs.todo, dirs.done and dirs.output must not be empty")
	}
	if filepath.Clean(cfg.Dirs.Todo) == filepath.Clean(cfg.Dirs.Done) {
		return errors.New("dirs.todo and dirs.done must differ")
	}
	if !strings.HasPrefix(cfg.Dirs.Extension, ".") {
		return errors.New("dirs.extension must start with a dot")
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of json|text")
	}
	switch cfg.Journal.RetentionMode {
	case "ephemeral":
	case "session", "persistent":
		if cfg.Journal.Path == "" {
			return errors.New("journal.path must not be empty")
		}
	default:
		return errors.New("journal.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when the bus is enabled")
		}
		if cfg.Bus.SubjectPrefix == "" {
			return errors.New("bus.subject_prefix must not be empty")
		}
	}
	return nil
}
