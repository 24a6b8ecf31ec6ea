// Package config loads runtime settings for the simulator from flags,
// RECOVERY_* environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/recovery-simulator/internal/logging"
	"github.com/signalsfoundry/recovery-simulator/internal/observability"
	"github.com/signalsfoundry/recovery-simulator/internal/sim"
)

const EnvPrefix = "RECOVERY"

var (
	ErrInvalidSettings = errors.New("invalid settings")
	ErrHelp            = pflag.ErrHelp
)

// Settings are the resolved runtime settings.
type Settings struct {
	Scenario string `mapstructure:"scenario"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	Tracing            bool    `mapstructure:"tracing"`
	TracingExporter    string  `mapstructure:"tracing-exporter"`
	TracingEndpoint    string  `mapstructure:"tracing-endpoint"`
	TracingSampleRatio float64 `mapstructure:"tracing-sample-ratio"`

	MetricsAddr string `mapstructure:"metrics-addr"`
	DBPath      string `mapstructure:"db"`

	MaxPasses int           `mapstructure:"max-passes"`
	Tolerance float64       `mapstructure:"tolerance"`
	Pacing    time.Duration `mapstructure:"pacing"`

	// Seed overrides the scenario seed when set.
	Seed *uint64 `mapstructure:"-"`
}

func flagSet(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.String("config", "", "optional settings file (yaml, json or toml)")
	fs.String("scenario", "", "scenario file to assess")
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("log-format", "text", "text or json")
	fs.Bool("tracing", false, "export OpenTelemetry spans")
	fs.String("tracing-exporter", "stdout", "stdout or otlp")
	fs.String("tracing-endpoint", "", "OTLP gRPC endpoint")
	fs.Float64("tracing-sample-ratio", 1, "trace sampling ratio in [0,1]")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	fs.String("db", "", "SQLite file for run results")
	fs.Int("max-passes", 0, "interdependent distribution passes per step (0 = one per interdependent resource)")
	fs.Float64("tolerance", 0, "stop interdependent passes once consumption changes by at most this much")
	fs.Duration("pacing", 0, "wall-clock delay between time steps")
	fs.Uint64("seed", 0, "override the scenario seed")
	return fs
}

// Load parses args and merges them with the environment and the optional
// config file. Flags win over the environment, which wins over the file.
// A single positional argument is taken as the scenario path.
func Load(args []string, out io.Writer) (Settings, error) {
	var s Settings
	fs := flagSet("simulator", out)
	if err := fs.Parse(args); err != nil {
		return s, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return s, err
	}
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return s, fmt.Errorf("read settings file %s: %w", file, err)
		}
	}
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	if rest := fs.Args(); len(rest) > 0 {
		if len(rest) > 1 || s.Scenario != "" {
			return s, fmt.Errorf("%w: more than one scenario given", ErrInvalidSettings)
		}
		s.Scenario = rest[0]
	}
	if v.IsSet("seed") {
		seed := v.GetUint64("seed")
		s.Seed = &seed
	}
	return s, s.Validate()
}

// Validate checks ranges and enumerations.
func (s Settings) Validate() error {
	switch {
	case s.Scenario == "":
		return fmt.Errorf("%w: no scenario given", ErrInvalidSettings)
	case !oneOf(s.LogLevel, "debug", "info", "warn", "warning", "error"):
		return fmt.Errorf("%w: log level %q", ErrInvalidSettings, s.LogLevel)
	case !oneOf(s.LogFormat, "text", "json"):
		return fmt.Errorf("%w: log format %q", ErrInvalidSettings, s.LogFormat)
	case !oneOf(s.TracingExporter, "stdout", "otlp", "otlpgrpc"):
		return fmt.Errorf("%w: tracing exporter %q", ErrInvalidSettings, s.TracingExporter)
	case s.TracingSampleRatio < 0 || s.TracingSampleRatio > 1:
		return fmt.Errorf("%w: tracing sample ratio %v outside [0,1]", ErrInvalidSettings, s.TracingSampleRatio)
	case s.MaxPasses < 0:
		return fmt.Errorf("%w: max passes %d", ErrInvalidSettings, s.MaxPasses)
	case s.Tolerance < 0:
		return fmt.Errorf("%w: tolerance %v", ErrInvalidSettings, s.Tolerance)
	case s.Pacing < 0:
		return fmt.Errorf("%w: pacing %v", ErrInvalidSettings, s.Pacing)
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Logging returns the logger configuration.
func (s Settings) Logging(out io.Writer) logging.Config {
	return logging.Config{Level: s.LogLevel, Format: s.LogFormat, Output: out}
}

// TracingConfig returns the tracer configuration.
func (s Settings) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     s.Tracing,
		ServiceName: "recovery-simulator",
		Exporter:    strings.ToLower(s.TracingExporter),
		Endpoint:    s.TracingEndpoint,
		SampleRatio: s.TracingSampleRatio,
		Scenario:    s.Scenario,
		Seed:        s.Seed,
	}
}

// Relaxation returns the interdependent distribution settings.
func (s Settings) Relaxation() sim.Relaxation {
	return sim.Relaxation{MaxPasses: s.MaxPasses, Tolerance: s.Tolerance}
}
