// Package config loads run settings from gdpsim.yaml, GDPSIM_* environment
// variables and defaults, in increasing order of precedence: defaults, file,
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/asharahmed/us-econ-growth/internal/model"
	"github.com/asharahmed/us-econ-growth/internal/projection"
	"github.com/asharahmed/us-econ-growth/internal/regime"
	"github.com/asharahmed/us-econ-growth/internal/series"
)

// EnvPrefix prefixes every environment override, e.g. GDPSIM_MODEL_KIND.
const EnvPrefix = "GDPSIM"

// Config aggregates all configuration settings for a run.
type Config struct {
	Model                    ModelConfig    `mapstructure:"model"`
	Data                     DataConfig     `mapstructure:"data"`
	Horizon                  int            `mapstructure:"horizon"`
	Seed                     int64          `mapstructure:"seed"`
	Stochastic               bool           `mapstructure:"stochastic"`
	FallbackToHistoricalMean bool           `mapstructure:"fallback_to_historical_mean"`
	GrowthPeriods            int            `mapstructure:"growth_periods"`
	IntervalLevel            float64        `mapstructure:"interval_level"`
	Ensemble                 EnsembleConfig `mapstructure:"ensemble"`
	Output                   OutputConfig   `mapstructure:"output"`
	Log                      LogConfig      `mapstructure:"log"`
	Metrics                  MetricsConfig  `mapstructure:"metrics"`
}

// OrdersConfig holds (p,d,q) or seasonal (P,D,Q)[period] orders.
type OrdersConfig struct {
	P      int `mapstructure:"p"`
	D      int `mapstructure:"d"`
	Q      int `mapstructure:"q"`
	Period int `mapstructure:"period"`
}

// ModelConfig selects and shapes the target model.
type ModelConfig struct {
	// ARIMA | SARIMAX | RegimeSwitching
	Kind            string       `mapstructure:"kind"`
	Orders          OrdersConfig `mapstructure:"orders"`
	Seasonal        OrdersConfig `mapstructure:"seasonal"`
	IncludeConstant bool         `mapstructure:"include_constant"`
	NumStates       int          `mapstructure:"num_states"`
	// normal | student_t
	Emission      string  `mapstructure:"emission"`
	DoF           float64 `mapstructure:"dof"`
	MaxIterations int     `mapstructure:"max_iterations"`
	// growth | level
	Scale string `mapstructure:"scale"`
	// Covariate model; empty kind picks the frequency default
	Covariate CovariateModelConfig `mapstructure:"covariate"`
}

// CovariateModelConfig is the ARIMA-family model fit to each covariate.
type CovariateModelConfig struct {
	Kind     string       `mapstructure:"kind"`
	Orders   OrdersConfig `mapstructure:"orders"`
	Seasonal OrdersConfig `mapstructure:"seasonal"`
}

// DataConfig points at the historical series.
type DataConfig struct {
	Dir        string   `mapstructure:"dir"`
	Frequency  string   `mapstructure:"frequency"`
	Target     string   `mapstructure:"target"`
	Covariates []string `mapstructure:"covariates"`
	TrainStart string   `mapstructure:"train_start"`
	TrainEnd   string   `mapstructure:"train_end"`
	// linear | ffill
	Fill string `mapstructure:"fill"`
}

type EnsembleConfig struct {
	Paths   int     `mapstructure:"paths"`
	Workers int     `mapstructure:"workers"`
	Alpha   float64 `mapstructure:"alpha"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	// Prometheus textfile written at the end of a run; empty disables it
	Textfile string `mapstructure:"textfile"`
}

// Load reads configuration. configFile may be empty, in which case
// gdpsim.yaml is looked up in the working directory and $HOME/.gdpsim; a
// missing file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("gdpsim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gdpsim")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Target model: ARIMA(1,1,0) on annual growth
	v.SetDefault("model.kind", "ARIMA")
	v.SetDefault("model.orders.p", 1)
	v.SetDefault("model.orders.d", 1)
	v.SetDefault("model.orders.q", 0)
	v.SetDefault("model.seasonal.p", 0)
	v.SetDefault("model.seasonal.d", 0)
	v.SetDefault("model.seasonal.q", 0)
	v.SetDefault("model.seasonal.period", 0)
	v.SetDefault("model.include_constant", false)
	v.SetDefault("model.num_states", 2)
	v.SetDefault("model.emission", "normal")
	v.SetDefault("model.dof", 3)
	v.SetDefault("model.max_iterations", model.DefaultMaxIterations)
	v.SetDefault("model.scale", string(projection.ScaleGrowth))
	v.SetDefault("model.covariate.kind", "")

	// Data
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.frequency", "annual")
	v.SetDefault("data.target", "GDPA")
	v.SetDefault("data.covariates", []string{})
	v.SetDefault("data.train_start", "")
	v.SetDefault("data.train_end", "")
	v.SetDefault("data.fill", "linear")

	// Run
	v.SetDefault("horizon", 10)
	v.SetDefault("seed", 42)
	v.SetDefault("stochastic", true)
	v.SetDefault("fallback_to_historical_mean", false)
	v.SetDefault("growth_periods", 1)
	v.SetDefault("interval_level", 0.95)

	v.SetDefault("ensemble.paths", 500)
	v.SetDefault("ensemble.workers", 0)
	v.SetDefault("ensemble.alpha", 0.1)

	v.SetDefault("output.dir", "output")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.textfile", "")
}

// Validate checks the values that can be checked without data.
func (c *Config) Validate() error {
	if _, err := c.Settings(); err != nil {
		return err
	}
	if c.Data.Target == "" {
		return fmt.Errorf("data.target is required")
	}
	if c.Ensemble.Alpha <= 0 || c.Ensemble.Alpha >= 1 {
		return fmt.Errorf("ensemble.alpha must be in (0, 1), got %v", c.Ensemble.Alpha)
	}
	if c.Ensemble.Paths < 0 || c.Ensemble.Workers < 0 {
		return fmt.Errorf("ensemble.paths and ensemble.workers must be >= 0")
	}
	return nil
}

// Frequency parses data.frequency.
func (c *Config) Frequency() (series.Frequency, error) {
	return series.ParseFrequency(c.Data.Frequency)
}

// ModelSpec converts the model section.
func (c *Config) ModelSpec() (model.Spec, error) {
	kind, err := model.ParseKind(c.Model.Kind)
	if err != nil {
		return model.Spec{}, fmt.Errorf("model.kind: %w", err)
	}
	family, err := regime.ParseFamily(c.Model.Emission)
	if err != nil {
		return model.Spec{}, fmt.Errorf("model.emission: %w", err)
	}
	spec := model.Spec{
		Kind:            kind,
		Orders:          orders(c.Model.Orders, c.Model.Seasonal),
		IncludeConstant: c.Model.IncludeConstant,
		NumStates:       c.Model.NumStates,
		Emission:        family,
		DoF:             c.Model.DoF,
		MaxIterations:   c.Model.MaxIterations,
	}
	if err := spec.Validate(); err != nil {
		return model.Spec{}, fmt.Errorf("model: %w", err)
	}
	return spec, nil
}

func orders(o, s OrdersConfig) model.Orders {
	return model.Orders{
		P: o.P, D: o.D, Q: o.Q,
		Seasonal: model.SeasonalOrders{P: s.P, D: s.D, Q: s.Q, Period: s.Period},
	}
}

// Settings converts the configuration into projection settings.
func (c *Config) Settings() (projection.Settings, error) {
	spec, err := c.ModelSpec()
	if err != nil {
		return projection.Settings{}, err
	}
	freq, err := c.Frequency()
	if err != nil {
		return projection.Settings{}, fmt.Errorf("data.frequency: %w", err)
	}
	fill, err := series.ParseFillMethod(c.Data.Fill)
	if err != nil {
		return projection.Settings{}, fmt.Errorf("data.fill: %w", err)
	}

	s := projection.Settings{
		Model:                    spec,
		Scale:                    projection.Scale(strings.ToLower(c.Model.Scale)),
		Horizon:                  c.Horizon,
		Seed:                     c.Seed,
		Stochastic:               c.Stochastic,
		FallbackToHistoricalMean: c.FallbackToHistoricalMean,
		GrowthPeriods:            c.GrowthPeriods,
		Fill:                     fill,
		IntervalLevel:            c.IntervalLevel,
	}

	if c.Model.Covariate.Kind != "" {
		kind, err := model.ParseKind(c.Model.Covariate.Kind)
		if err != nil {
			return projection.Settings{}, fmt.Errorf("model.covariate.kind: %w", err)
		}
		if !kind.TakesCovariates() {
			return projection.Settings{}, fmt.Errorf("model.covariate.kind must be ARIMA or SARIMAX")
		}
		s.CovariateModel = model.Spec{
			Kind:   kind,
			Orders: orders(c.Model.Covariate.Orders, c.Model.Covariate.Seasonal),
		}
		if err := s.CovariateModel.Validate(); err != nil {
			return projection.Settings{}, fmt.Errorf("model.covariate: %w", err)
		}
	}

	if c.Data.TrainStart != "" {
		if s.TrainStart, err = freq.Parse(c.Data.TrainStart); err != nil {
			return projection.Settings{}, fmt.Errorf("data.train_start: %w", err)
		}
	}
	if c.Data.TrainEnd != "" {
		if s.TrainEnd, err = freq.Parse(c.Data.TrainEnd); err != nil {
			return projection.Settings{}, fmt.Errorf("data.train_end: %w", err)
		}
	}

	if err := s.Validate(); err != nil {
		return projection.Settings{}, err
	}
	return s, nil
}
