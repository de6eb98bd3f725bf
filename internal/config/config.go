package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bess-intraday/internal/backtest"
	"bess-intraday/internal/model"
	"bess-intraday/internal/strategy"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	// Optional: load battery parameters from a separate YAML (e.g. configs/batteries/*.yaml).
	// If both BatteryFile and Battery are provided, Battery overrides BatteryFile.
	BatteryFile string           `yaml:"battery_file"`
	Battery     BatteryConfig    `yaml:"battery"`
	Simulation  SimulationConfig `yaml:"simulation"`
	Data        DataConfig       `yaml:"data"`
	Output      OutputConfig     `yaml:"output"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Log         LogConfig        `yaml:"log"`
}

type BatteryConfig struct {
	Name             string  `yaml:"name" json:"name,omitempty"`
	CapacityMWh      float64 `yaml:"capacity_mwh" json:"capacity_mwh"`
	CRate            float64 `yaml:"c_rate" json:"c_rate"`
	Efficiency       float64 `yaml:"efficiency" json:"efficiency"`
	MaxCyclesPerYear float64 `yaml:"max_cycles_per_year" json:"max_cycles_per_year"`
	MinTrades        int     `yaml:"min_trades" json:"min_trades"`
	DiscountRate     float64 `yaml:"discount_rate" json:"discount_rate"`
	ThresholdPct     float64 `yaml:"threshold_pct" json:"threshold_pct"`
	ThresholdAbsMin  float64 `yaml:"threshold_abs_min" json:"threshold_abs_min"`
}

type SimulationConfig struct {
	StartDate   string `yaml:"start_date"`
	EndDate     string `yaml:"end_date"`
	StepMinutes int    `yaml:"step_minutes"`
	Timezone    string `yaml:"timezone"`
	Side        string `yaml:"side"`
	// LegacyDayOffset advances the day pointer by one day and two hours,
	// which trades every other delivery day.
	LegacyDayOffset bool `yaml:"legacy_day_offset"`
	// Nil means true.
	NormalizeCapacity *bool `yaml:"normalize_capacity"`
	// SOCBasis is "step" (only the step's own trades move the state of
	// charge) or "net" (it follows the cumulative same-day position).
	SOCBasis  string `yaml:"soc_basis"`
	NodeLimit int    `yaml:"node_limit"`
}

type DataConfig struct {
	// Driver is postgres, sqlite or csv.
	Driver string      `yaml:"driver"`
	DSN    string      `yaml:"dsn"`
	Path   string      `yaml:"path"`
	Table  string      `yaml:"table"`
	Cache  CacheConfig `yaml:"cache"`
}

type CacheConfig struct {
	TTLSeconds    int    `yaml:"ttl_seconds"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
	// ResultsDriver is "", postgres or sqlite. Postgres reuses data.dsn.
	ResultsDriver string `yaml:"results_driver"`
	ResultsPath   string `yaml:"results_path"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverCSV      = "csv"
)

// Environment variables that override file values.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvRedisAddr   = "REDIS_ADDR"
	EnvMetricsAddr = "METRICS_ADDR"
	EnvLogLevel    = "LOG_LEVEL"
)

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and merges config, but does not validate it.
// Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.BatteryFile != "" {
		batteryPath := c.BatteryFile
		if !filepath.IsAbs(batteryPath) {
			// relative to the config file first, then to the working directory
			cand := filepath.Join(filepath.Dir(path), batteryPath)
			if _, err := os.Stat(cand); err == nil {
				batteryPath = cand
			}
		}
		loaded, err := LoadBatteryFile(batteryPath)
		if err != nil {
			return nil, err
		}
		c.Battery = MergeBattery(loaded, c.Battery)
	}
	return &c, nil
}

// LoadEnv reads .env style files into the process environment. Missing
// files are skipped; variables already set are kept.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

func (c *Config) ApplyDefaults() {
	b := &c.Battery
	if b.CapacityMWh == 0 {
		b.CapacityMWh = 10
	}
	if b.CRate == 0 {
		b.CRate = 0.5
	}
	if b.Efficiency == 0 {
		b.Efficiency = 0.86
	}
	if b.MaxCyclesPerYear == 0 {
		b.MaxCyclesPerYear = 365
	}
	if b.MinTrades == 0 {
		b.MinTrades = 1
	}

	s := &c.Simulation
	if s.StartDate == "" {
		s.StartDate = "2022-01-01"
	}
	if s.EndDate == "" {
		s.EndDate = "2022-01-02"
	}
	if s.StepMinutes == 0 {
		s.StepMinutes = 15
	}
	if s.Timezone == "" {
		s.Timezone = "Europe/Berlin"
	}
	if s.Side == "" {
		s.Side = string(model.SideSell)
	}
	if s.NormalizeCapacity == nil {
		t := true
		s.NormalizeCapacity = &t
	}
	if s.SOCBasis == "" {
		s.SOCBasis = strategy.BalanceStep.String()
	}

	if c.Data.Driver == "" {
		c.Data.Driver = DriverPostgres
	}
	if c.Data.Cache.Prefix == "" {
		c.Data.Cache.Prefix = "bess:vwap:"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "results"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// ApplyEnv overlays DATABASE_URL, REDIS_ADDR, METRICS_ADDR and LOG_LEVEL.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.Data.DSN = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Data.Cache.RedisAddr = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Battery.ToModelParams().Validate(); err != nil {
		return fmt.Errorf("battery config invalid: %w", err)
	}
	if _, err := c.Window(); err != nil {
		return err
	}
	if c.Simulation.StepMinutes <= 0 {
		return errors.New("simulation.step_minutes must be > 0")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := model.ParseSide(c.Simulation.Side); err != nil {
		return fmt.Errorf("simulation.side: %w", err)
	}
	if _, err := strategy.ParseBalance(c.Simulation.SOCBasis); err != nil {
		return fmt.Errorf("simulation.soc_basis: %w", err)
	}
	if c.Simulation.NodeLimit < 0 {
		return errors.New("simulation.node_limit must be >= 0")
	}
	switch c.Data.Driver {
	case DriverPostgres:
		if c.Data.DSN == "" {
			return fmt.Errorf("data.dsn (or %s) is required for the postgres driver", EnvDatabaseURL)
		}
	case DriverSQLite, DriverCSV:
		if c.Data.Path == "" {
			return fmt.Errorf("data.path is required for the %s driver", c.Data.Driver)
		}
	default:
		return fmt.Errorf("data.driver %q: expected postgres, sqlite or csv", c.Data.Driver)
	}
	if c.Data.Cache.TTLSeconds < 0 {
		return errors.New("data.cache.ttl_seconds must be >= 0")
	}
	switch c.Output.ResultsDriver {
	case "":
	case DriverPostgres:
		if c.Data.DSN == "" {
			return errors.New("output.results_driver postgres needs data.dsn")
		}
	case DriverSQLite:
		if c.Output.ResultsPath == "" {
			return errors.New("output.results_path is required for sqlite results")
		}
	default:
		return fmt.Errorf("output.results_driver %q: expected postgres or sqlite", c.Output.ResultsDriver)
	}
	return nil
}

// Location resolves simulation.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Simulation.Timezone)
	if err != nil {
		return nil, fmt.Errorf("simulation.timezone: %w", err)
	}
	return loc, nil
}

// Window parses start and end dates as midnights in the configured timezone.
func (c *Config) Window() ([2]time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return [2]time.Time{}, err
	}
	start, err := time.ParseInLocation(time.DateOnly, c.Simulation.StartDate, loc)
	if err != nil {
		return [2]time.Time{}, fmt.Errorf("simulation.start_date: %w", err)
	}
	end, err := time.ParseInLocation(time.DateOnly, c.Simulation.EndDate, loc)
	if err != nil {
		return [2]time.Time{}, fmt.Errorf("simulation.end_date: %w", err)
	}
	if !start.Before(end) {
		return [2]time.Time{}, fmt.Errorf("simulation.start_date %s must be before end_date %s", c.Simulation.StartDate, c.Simulation.EndDate)
	}
	return [2]time.Time{start, end}, nil
}

func (c *Config) Step() time.Duration {
	return time.Duration(c.Simulation.StepMinutes) * time.Minute
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Data.Cache.TTLSeconds) * time.Second
}

// Solver builds the intrinsic solver with the configured SoC basis and node limit.
func (c *Config) Solver() (*strategy.Intrinsic, error) {
	bal, err := strategy.ParseBalance(c.Simulation.SOCBasis)
	if err != nil {
		return nil, err
	}
	s := strategy.NewIntrinsic()
	s.Balance = bal
	if c.Simulation.NodeLimit > 0 {
		s.Options.MaxNodes = c.Simulation.NodeLimit
	}
	return s, nil
}

// Backtest converts the file config into an engine config. The output
// directory is derived from the parameters under output.dir.
func (c *Config) Backtest(runID string) (backtest.Config, error) {
	w, err := c.Window()
	if err != nil {
		return backtest.Config{}, err
	}
	loc, err := c.Location()
	if err != nil {
		return backtest.Config{}, err
	}
	side, err := model.ParseSide(c.Simulation.Side)
	if err != nil {
		return backtest.Config{}, err
	}
	params := c.Battery.ToModelParams()
	out := ""
	if c.Output.Dir != "" {
		out = backtest.OutputDir(c.Output.Dir, c.Step(), params)
	}
	return backtest.Config{
		Battery:           params,
		Start:             w[0],
		End:               w[1],
		Step:              c.Step(),
		Location:          loc,
		Side:              side,
		LegacyDayOffset:   c.Simulation.LegacyDayOffset,
		NormalizeCapacity: c.Simulation.NormalizeCapacity == nil || *c.Simulation.NormalizeCapacity,
		OutDir:            out,
		RunID:             runID,
	}, nil
}

func (b BatteryConfig) ToModelParams() model.BatteryParams {
	return model.BatteryParams{
		CapacityMWh:      b.CapacityMWh,
		CRate:            b.CRate,
		Efficiency:       b.Efficiency,
		MaxCyclesPerYear: b.MaxCyclesPerYear,
		MinTrades:        b.MinTrades,
		DiscountRate:     b.DiscountRate,
		ThresholdPct:     b.ThresholdPct,
		ThresholdAbsMin:  b.ThresholdAbsMin,
	}
}

type batteryFileWrapper struct {
	Battery BatteryConfig `yaml:"battery"`
}

func LoadBatteryFile(path string) (BatteryConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return BatteryConfig{}, err
	}
	var w batteryFileWrapper
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return BatteryConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if w.Battery.Name == "" {
		w.Battery.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return w.Battery, nil
}

// MergeBattery overlays non-zero fields from override onto base.
// This is used when loading a battery file and then applying overrides from the request.
func MergeBattery(base, override BatteryConfig) BatteryConfig {
	out := base
	if override.Name != "" {
		out.Name = override.Name
	}
	if override.CapacityMWh != 0 {
		out.CapacityMWh = override.CapacityMWh
	}
	if override.CRate != 0 {
		out.CRate = override.CRate
	}
	if override.Efficiency != 0 {
		out.Efficiency = override.Efficiency
	}
	if override.MaxCyclesPerYear != 0 {
		out.MaxCyclesPerYear = override.MaxCyclesPerYear
	}
	if override.MinTrades != 0 {
		out.MinTrades = override.MinTrades
	}
	// zero is a meaningful rate/threshold, so only non-zero values override
	if override.DiscountRate != 0 {
		out.DiscountRate = override.DiscountRate
	}
	if override.ThresholdPct != 0 {
		out.ThresholdPct = override.ThresholdPct
	}
	if override.ThresholdAbsMin != 0 {
		out.ThresholdAbsMin = override.ThresholdAbsMin
	}
	return out
}
