package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "EVODASH_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "EVODASH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_conns", typ: kInt, env: "EVODASH_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "server.api_token", typ: kString, env: "EVODASH_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "EVODASH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "spec.path", typ: kString, env: "EVODASH_SPEC_PATH",
		apply:   func(cfg *Config, v any) { cfg.Spec.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Spec.Path },
	},
	{
		key: "components.dir", typ: kString, env: "EVODASH_COMPONENTS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Components.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Components.Dir },
	},
	{
		key: "components.ignore", typ: kString, env: "EVODASH_COMPONENTS_IGNORE",
		apply:   func(cfg *Config, v any) { cfg.Components.Ignore = splitList(v.(string)) },
		extract: func(cfg Config) any { return strings.Join(cfg.Components.Ignore, ",") },
	},
	{
		key: "generator.command", typ: kString, env: "EVODASH_GENERATOR_COMMAND",
		apply:   func(cfg *Config, v any) { cfg.Generator.Command = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.Command },
	},
	{
		key: "generator.args", typ: kString, env: "EVODASH_GENERATOR_ARGS",
		apply:   func(cfg *Config, v any) { cfg.Generator.Args = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.Args },
	},
	{
		key: "generator.timeout", typ: kString, env: "EVODASH_GENERATOR_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Generator.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Generator.Timeout },
	},
	{
		key: "log.level", typ: kString, env: "EVODASH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "EVODASH_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "log.file", typ: kString, env: "EVODASH_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
	{
		key: "ratelimit.rps", typ: kFloat, env: "EVODASH_RATELIMIT_RPS",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.RPS = v.(float64) },
		extract: func(cfg Config) any { return cfg.RateLimit.RPS },
	},
	{
		key: "ratelimit.burst", typ: kInt, env: "EVODASH_RATELIMIT_BURST",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.Burst = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.Burst },
	},
	{
		key: "telemetry.otlp_endpoint", typ: kString, env: "EVODASH_OTLP_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.OTLPEndpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Telemetry.OTLPEndpoint },
	},
	{
		key: "telemetry.insecure", typ: kBool, env: "EVODASH_OTLP_INSECURE",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.Insecure = v.(bool) },
		extract: func(cfg Config) any { return cfg.Telemetry.Insecure },
	},
	{
		key: "opslog.capacity", typ: kInt, env: "EVODASH_OPSLOG_CAPACITY",
		apply:   func(cfg *Config, v any) { cfg.OpsLog.Capacity = v.(int) },
		extract: func(cfg Config) any { return cfg.OpsLog.Capacity },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
