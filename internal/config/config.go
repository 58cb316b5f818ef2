package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Spec       SpecConfig
	Components ComponentsConfig
	Generator  GeneratorConfig
	Log        LogConfig
	RateLimit  RateLimitConfig
	Telemetry  TelemetryConfig
	OpsLog     OpsLogConfig
}

type ServerConfig struct {
	Host     string
	Port     int
	MaxConns int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type SpecConfig struct {
	// Path of the YAML spec document. Empty means <data_dir>/spec.yaml.
	Path string
}

type ComponentsConfig struct {
	Dir    string
	Ignore []string
}

type GeneratorConfig struct {
	Command string
	Args    string
	Timeout string
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type TelemetryConfig struct {
	OTLPEndpoint string
	// Insecure sends OTLP over plaintext gRPC.
	Insecure bool
}

type OpsLogConfig struct {
	Capacity int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     4010,
			MaxConns: 64,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Components: ComponentsConfig{
			Dir: filepath.Join("src", "components", "generated"),
		},
		Generator: GeneratorConfig{
			Command: "claude",
			Args:    "-p {prompt} --output-format json",
			Timeout: "5m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		RateLimit: RateLimitConfig{
			RPS:   0.2,
			Burst: 3,
		},
		Telemetry: TelemetryConfig{
			Insecure: true,
		},
		OpsLog: OpsLogConfig{
			Capacity: 100,
		},
	}
}

// Load reads configuration from the TOML config file and environment
// variables. The file lives at $XDG_CONFIG_HOME/evodash/config.toml;
// environment variables (EVODASH_*) override file values.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Spec.Path == "" {
		cfg.Spec.Path = filepath.Join(cfg.Storage.DataDir, "spec.yaml")
	}
	return cfg, nil
}

// GeneratorTimeout parses Generator.Timeout, falling back to five minutes.
func (c Config) GeneratorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Generator.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// GeneratorArgs splits Generator.Args on whitespace.
func (c Config) GeneratorArgs() []string {
	return strings.Fields(c.Generator.Args)
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "evodash-data"
		}
	}
	return filepath.Join(dir, "evodash")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
