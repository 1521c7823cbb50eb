// Package config loads the settings of the polyscript command from a TOML file,
// with environment variables taking precedence over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	EnvEngine   = "POLYSCRIPT_ENGINE"
	EnvLogLevel = "POLYSCRIPT_LOG_LEVEL"
	EnvNATSURL  = "POLYSCRIPT_NATS_URL"
	EnvSubject  = "POLYSCRIPT_SUBJECT"
)

type Config struct {
	// Engine is the engine active at startup.
	Engine string
	// LogLevel applies to the command's diagnostics, not to script output.
	LogLevel slog.Level
	// NATSURL enables publishing execution events to NATS when set.
	NATSURL string
	// Subject is the topic events are published on.
	Subject string
	// Prelude is evaluated, in order, before the prompt is shown.
	Prelude []string
}

type fileConfig struct {
	Engine   string   `toml:"engine"`
	LogLevel string   `toml:"log_level"`
	NATSURL  string   `toml:"nats_url"`
	Subject  string   `toml:"subject"`
	Prelude  []string `toml:"prelude"`
}

func Default() Config {
	return Config{
		Engine:   "javascript",
		LogLevel: slog.LevelInfo,
		Subject:  "polyscript.events",
	}
}

// Load reads path on top of the defaults and then applies the environment. A
// missing file is not an error when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = loadFile(cfg, path)
		if err != nil {
			return Config{}, err
		}
	}
	return ApplyEnv(cfg, os.LookupEnv)
}

func loadFile(cfg Config, path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("engine") {
		if engine := strings.TrimSpace(raw.Engine); engine != "" {
			cfg.Engine = engine
		}
	}
	if meta.IsDefined("log_level") {
		level, err := parseLevel(raw.LogLevel)
		if err != nil {
			return Config{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("nats_url") {
		cfg.NATSURL = strings.TrimSpace(raw.NATSURL)
	}
	if meta.IsDefined("subject") {
		if subject := strings.TrimSpace(raw.Subject); subject != "" {
			cfg.Subject = subject
		}
	}
	if meta.IsDefined("prelude") {
		cfg.Prelude = normalizePrelude(raw.Prelude)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the variables lookup finds.
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	var errs error
	if v, ok := lookup(EnvEngine); ok && strings.TrimSpace(v) != "" {
		cfg.Engine = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		level, err := parseLevel(v)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("parse %s: %w", EnvLogLevel, err))
		} else {
			cfg.LogLevel = level
		}
	}
	if v, ok := lookup(EnvNATSURL); ok {
		cfg.NATSURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvSubject); ok && strings.TrimSpace(v) != "" {
		cfg.Subject = strings.TrimSpace(v)
	}
	if errs != nil {
		return Config{}, errs
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, err
	}
	return level, nil
}

func normalizePrelude(in []string) []string {
	out := make([]string, 0, len(in))
	for _, src := range in {
		if strings.TrimSpace(src) == "" {
			continue
		}
		out = append(out, src)
	}
	return out
}
