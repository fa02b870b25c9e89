// Package config loads engine configuration from a YAML file with AURUM_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // streak.location must resolve on hosts without a zoneinfo database

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/dispatch"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/engine"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/logging"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/scheduler"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/selector"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region config
// Config holds all engine configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Estimator EstimatorConfig `mapstructure:"estimator" yaml:"estimator"`
	Streak    StreakConfig    `mapstructure:"streak" yaml:"streak"`
	Selector  SelectorConfig  `mapstructure:"selector" yaml:"selector"`
	Feedback  FeedbackConfig  `mapstructure:"feedback" yaml:"feedback"`
	Catalog   CatalogConfig   `mapstructure:"catalog" yaml:"catalog"`
	Inference InferenceConfig `mapstructure:"inference" yaml:"inference"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch" yaml:"dispatch"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "sqlite" or "memory".
	Driver  string        `mapstructure:"driver" yaml:"driver"`
	Path    string        `mapstructure:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// EngineConfig controls the tick.
type EngineConfig struct {
	Behaviors   []string `mapstructure:"behaviors" yaml:"behaviors"`
	Parallelism int      `mapstructure:"parallelism" yaml:"parallelism"`
}

// EstimatorConfig controls decay and trust.
type EstimatorConfig struct {
	HalfLife      time.Duration `mapstructure:"half_life" yaml:"half_life"`
	Lookback      time.Duration `mapstructure:"lookback" yaml:"lookback"`
	ManualTrust   float64       `mapstructure:"manual_trust" yaml:"manual_trust"`
	InferredTrust float64       `mapstructure:"inferred_trust" yaml:"inferred_trust"`
}

// StreakConfig controls the streak period and grace.
type StreakConfig struct {
	Grace  time.Duration `mapstructure:"grace" yaml:"grace"`
	Period time.Duration `mapstructure:"period" yaml:"period"`
	// Location is an IANA zone name used for calendar-day periods.
	Location string `mapstructure:"location" yaml:"location"`
}

// SelectorConfig controls exploration and cooldown.
type SelectorConfig struct {
	Epsilon             float64       `mapstructure:"epsilon" yaml:"epsilon"`
	LowSampleThreshold  float64       `mapstructure:"low_sample_threshold" yaml:"low_sample_threshold"`
	LowSampleMultiplier float64       `mapstructure:"low_sample_multiplier" yaml:"low_sample_multiplier"`
	MaxEpsilon          float64       `mapstructure:"max_epsilon" yaml:"max_epsilon"`
	Cooldown            time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	ExposureWindow      time.Duration `mapstructure:"exposure_window" yaml:"exposure_window"`
	// Seed fixes exploration draws; 0 seeds from the clock.
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

// FeedbackConfig controls efficacy learning.
type FeedbackConfig struct {
	Alpha   float64            `mapstructure:"alpha" yaml:"alpha"`
	Rewards map[string]float64 `mapstructure:"rewards" yaml:"rewards"`
}

// CatalogConfig locates the intervention catalog. An empty path uses the
// embedded default.
type CatalogConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

// InferenceConfig locates the text inference service. An empty address
// uses only the local lexicon.
type InferenceConfig struct {
	Address           string        `mapstructure:"address" yaml:"address"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MinHintConfidence float64       `mapstructure:"min_hint_confidence" yaml:"min_hint_confidence"`
	MaxHintConfidence float64       `mapstructure:"max_hint_confidence" yaml:"max_hint_confidence"`
}

// DispatchConfig enables command sinks.
type DispatchConfig struct {
	Log       bool        `mapstructure:"log" yaml:"log"`
	WebSocket bool        `mapstructure:"websocket" yaml:"websocket"`
	Redis     RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig configures the Redis stream sink and feedback consumer.
type RedisConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr           string `mapstructure:"addr" yaml:"addr"`
	Password       string `mapstructure:"password" yaml:"password"`
	DB             int    `mapstructure:"db" yaml:"db"`
	CommandStream  string `mapstructure:"command_stream" yaml:"command_stream"`
	FeedbackStream string `mapstructure:"feedback_stream" yaml:"feedback_stream"`
	Group          string `mapstructure:"group" yaml:"group"`
	Consumer       string `mapstructure:"consumer" yaml:"consumer"`
}

// SchedulerConfig controls the periodic tick.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Spec is a cron expression or descriptor such as "@every 15m".
	Spec string `mapstructure:"spec" yaml:"spec"`
}

// HTTPConfig controls the HTTP surface.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}
// #endregion config

// #region defaults
// Default returns a Config with every value set to its default.
func Default() *Config {
	est := state.DefaultConfig()
	stk := streak.DefaultConfig()
	sel := selector.DefaultConfig()
	fb := feedback.DefaultConfig()
	prod := signals.DefaultProducerConfig()
	eng := engine.DefaultConfig()

	rewards := make(map[string]float64, len(fb.Rewards))
	for o, r := range fb.Rewards {
		rewards[string(o)] = r
	}

	return &Config{
		Store: StoreConfig{
			Driver:  "sqlite",
			Path:    "aurum.db",
			Timeout: eng.StoreTimeout,
		},
		Engine: EngineConfig{
			Behaviors:   eng.Behaviors,
			Parallelism: eng.Parallelism,
		},
		Estimator: EstimatorConfig{
			HalfLife:      est.HalfLife,
			Lookback:      est.Lookback,
			ManualTrust:   est.ManualTrust,
			InferredTrust: est.InferredTrust,
		},
		Streak: StreakConfig{
			Grace:    stk.Grace,
			Period:   stk.Period,
			Location: "UTC",
		},
		Selector: SelectorConfig{
			Epsilon:             sel.Epsilon,
			LowSampleThreshold:  sel.LowSampleThreshold,
			LowSampleMultiplier: sel.LowSampleMultiplier,
			MaxEpsilon:          sel.MaxEpsilon,
			Cooldown:            sel.Cooldown,
			ExposureWindow:      sel.ExposureWindow,
		},
		Feedback: FeedbackConfig{
			Alpha:   fb.Alpha,
			Rewards: rewards,
		},
		Inference: InferenceConfig{
			Timeout:           2 * time.Second,
			MinHintConfidence: prod.MinHintConfidence,
			MaxHintConfidence: prod.MaxHintConfidence,
		},
		Dispatch: DispatchConfig{
			Log:       true,
			WebSocket: true,
			Redis: RedisConfig{
				Addr:           "localhost:6379",
				CommandStream:  "aurum:commands",
				FeedbackStream: "aurum:feedback",
				Group:          "aurum-engine",
				Consumer:       "engine-1",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
			Spec:    "@every 15m",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
// #endregion defaults

// #region load
// LoadFromPath reads configuration from path and merges AURUM_* environment
// overrides (AURUM_SELECTOR_EPSILON, AURUM_STORE_PATH, ...). If the file does
// not exist it is created with default values. An empty path skips the file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AURUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults are registered key by key so AutomaticEnv can see every key
	// even when the file omits it.
	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}
	if err := v.ReadConfig(strings.NewReader(string(defaults))); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := writeConfigFile(path, Default()); err != nil {
				return nil, fmt.Errorf("write default config: %w", err)
			}
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveToPath writes c as YAML.
func (c *Config) SaveToPath(path string) error {
	return writeConfigFile(path, c)
}

func writeConfigFile(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
// #endregion load

// #region validate
// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid store.driver %q, must be sqlite or memory", c.Store.Driver)
	}
	if c.Selector.Epsilon < 0 || c.Selector.Epsilon > 1 {
		return fmt.Errorf("selector.epsilon must be in [0, 1]")
	}
	if c.Feedback.Alpha <= 0 || c.Feedback.Alpha > 1 {
		return fmt.Errorf("feedback.alpha must be in (0, 1]")
	}
	for o := range c.Feedback.Rewards {
		if !feedback.Outcome(o).Valid() {
			return fmt.Errorf("feedback.rewards: unknown outcome %q", o)
		}
	}
	if _, err := time.LoadLocation(c.Streak.Location); err != nil {
		return fmt.Errorf("streak.location: %w", err)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
// #endregion validate

// #region conversions
// ToStateConfig converts the estimator section.
func (c EstimatorConfig) ToStateConfig() state.Config {
	return state.Config{
		HalfLife:      c.HalfLife,
		Lookback:      c.Lookback,
		ManualTrust:   c.ManualTrust,
		InferredTrust: c.InferredTrust,
	}
}

// ToStreakConfig converts the streak section.
func (c StreakConfig) ToStreakConfig() (streak.Config, error) {
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return streak.Config{}, fmt.Errorf("streak.location: %w", err)
	}
	return streak.Config{Grace: c.Grace, Period: c.Period, Location: loc}, nil
}

// ToSelectorConfig converts the selector section.
func (c SelectorConfig) ToSelectorConfig() selector.Config {
	return selector.Config{
		Epsilon:             c.Epsilon,
		LowSampleThreshold:  c.LowSampleThreshold,
		LowSampleMultiplier: c.LowSampleMultiplier,
		MaxEpsilon:          c.MaxEpsilon,
		Cooldown:            c.Cooldown,
		ExposureWindow:      c.ExposureWindow,
	}
}

// ToFeedbackConfig converts the feedback section.
func (c FeedbackConfig) ToFeedbackConfig() feedback.Config {
	rewards := make(map[feedback.Outcome]float64, len(c.Rewards))
	for o, r := range c.Rewards {
		rewards[feedback.Outcome(o)] = r
	}
	return feedback.Config{Alpha: c.Alpha, Rewards: rewards}
}

// ToProducerConfig converts the inference hint bounds.
func (c InferenceConfig) ToProducerConfig() signals.ProducerConfig {
	return signals.ProducerConfig{
		MinHintConfidence: c.MinHintConfidence,
		MaxHintConfidence: c.MaxHintConfidence,
	}
}

// ToRedisConfig converts the Redis dispatch section.
func (c RedisConfig) ToRedisConfig() dispatch.RedisConfig {
	out := dispatch.DefaultRedisConfig()
	out.Addr = c.Addr
	out.Password = c.Password
	out.DB = c.DB
	out.CommandStream = c.CommandStream
	out.FeedbackStream = c.FeedbackStream
	out.Group = c.Group
	out.Consumer = c.Consumer
	return out
}

// ToSchedulerConfig converts the scheduler section.
func (c SchedulerConfig) ToSchedulerConfig() scheduler.Config {
	return scheduler.Config{Spec: c.Spec, Timeout: scheduler.DefaultConfig().Timeout}
}

// ToLoggingConfig converts the logging section.
func (c LoggingConfig) ToLoggingConfig() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format, File: c.File}
}

// ToEngineConfig assembles the engine configuration from every section.
func (c *Config) ToEngineConfig() (engine.Config, error) {
	stk, err := c.Streak.ToStreakConfig()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Behaviors:    c.Engine.Behaviors,
		StoreTimeout: c.Store.Timeout,
		Parallelism:  c.Engine.Parallelism,
		Seed:         c.Selector.Seed,
		Estimator:    c.Estimator.ToStateConfig(),
		Streak:       stk,
		Selector:     c.Selector.ToSelectorConfig(),
		Feedback:     c.Feedback.ToFeedbackConfig(),
		Producer:     c.Inference.ToProducerConfig(),
	}, nil
}
// #endregion conversions
