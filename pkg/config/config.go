// Package config holds Boba's few runtime knobs: buffer sizing hints, the
// call-stack depth guard, and the logging/tracing/metrics toggles. Defaults are
// overlaid by an optional boba.yaml (or the file named by $BOBA_CONFIG)
// in the working directory, following the same DefaultConfig-plus-struct
// pattern pkg/tracing and pkg/metrics use.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is Boba's full runtime configuration.
type Config struct {
	// InstructionBufferHint is a capacity hint for the Processor's shared
	// instruction buffer. It is loaded and defaulted here, but no other
	// package reads it: the Processor's buffer starts empty and grows via
	// append.
	InstructionBufferHint int `yaml:"instruction_buffer_hint"`

	// ClosureBodyBufferHint is a capacity hint for each closure's private
	// body copy. It is loaded and defaulted here, but no other package
	// reads it: pkg/vm's execCreateClosure allocates each body at exactly
	// its compiled length.
	ClosureBodyBufferHint int `yaml:"closure_body_buffer_hint"`

	// MaxCallDepth bounds recursion depth before the VM raises a
	// RuntimeFault instead of letting a runaway recursive def exhaust
	// the host process's stack.
	MaxCallDepth int `yaml:"max_call_depth"`

	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig toggles pkg/logging.
type LoggingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Level    string `yaml:"level"` // debug, info, warn, error
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// TracingConfig toggles pkg/tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporter_type"` // stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig toggles pkg/metrics and the optional HTTP listener a
// long-running `boba run --watch` or `boba repl` session exposes it on.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns Boba's out-of-the-box configuration: generous enough
// buffer hints for an interactive session, a deep but finite call stack,
// logging on at info level, and tracing and metrics off until a config
// file or CLI flag turns them on.
func Default() *Config {
	return &Config{
		InstructionBufferHint: 4096,
		ClosureBodyBufferHint: 256,
		MaxCallDepth:          4096,
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Format:  "text",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ExporterType: "stdout",
			SamplingRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}

// configPathEnv names the environment variable that overrides the default
// "boba.yaml" config file location.
const configPathEnv = "BOBA_CONFIG"

// Load builds a Config by overlaying an optional YAML file onto Default().
// It looks at $BOBA_CONFIG first, then ./boba.yaml; if neither exists, it
// returns Default() unchanged with no error.
func Load() (*Config, error) {
	path := os.Getenv(configPathEnv)
	if path == "" {
		path = "boba.yaml"
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
