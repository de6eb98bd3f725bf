package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bess-intraday/internal/model"
	"bess-intraday/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const minimal = `
simulation:
  start_date: "2022-03-01"
  end_date: "2022-03-08"
  step_minutes: 60
data:
  driver: csv
  path: tape.csv
`

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "")
	t.Setenv(EnvMetricsAddr, "")
	t.Setenv(EnvRedisAddr, "")
	t.Setenv(EnvLogLevel, "")
	path := writeFile(t, t.TempDir(), "sim.yaml", minimal)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10.0, c.Battery.CapacityMWh)
	assert.Equal(t, 0.5, c.Battery.CRate)
	assert.Equal(t, 0.86, c.Battery.Efficiency)
	assert.Equal(t, 365.0, c.Battery.MaxCyclesPerYear)
	assert.Equal(t, 1, c.Battery.MinTrades)
	assert.Equal(t, "Europe/Berlin", c.Simulation.Timezone)
	assert.Equal(t, "SELL", c.Simulation.Side)
	assert.Equal(t, "step", c.Simulation.SOCBasis)
	require.NotNil(t, c.Simulation.NormalizeCapacity)
	assert.True(t, *c.Simulation.NormalizeCapacity)
	assert.Equal(t, time.Hour, c.Step())
	assert.Equal(t, "results", c.Output.Dir)
}

func TestLoad_BatteryFileMerge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "batteries/big.yaml", `
battery:
  capacity_mwh: 20
  c_rate: 1
  efficiency: 0.9
  min_trades: 5
`)
	path := writeFile(t, dir, "sim.yaml", `
battery_file: batteries/big.yaml
battery:
  c_rate: 0.25
`+minimal)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "big", c.Battery.Name)
	assert.Equal(t, 20.0, c.Battery.CapacityMWh)
	assert.Equal(t, 0.25, c.Battery.CRate, "inline values override the battery file")
	assert.Equal(t, 0.9, c.Battery.Efficiency)
	assert.Equal(t, 5, c.Battery.MinTrades)
}

func TestLoad_MissingBatteryFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sim.yaml", "battery_file: nope.yaml\n"+minimal)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "postgres://bess@db/intradaydb")
	t.Setenv(EnvRedisAddr, "cache:6379")
	t.Setenv(EnvMetricsAddr, ":9200")
	t.Setenv(EnvLogLevel, "debug")

	c := Default()
	c.ApplyEnv()
	assert.Equal(t, "postgres://bess@db/intradaydb", c.Data.DSN)
	assert.Equal(t, "cache:6379", c.Data.Cache.RedisAddr)
	assert.Equal(t, ":9200", c.Metrics.Addr)
	assert.Equal(t, "debug", c.Log.Level)
	require.NoError(t, c.Validate())
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	env := writeFile(t, dir, ".env", "BESS_TEST_ONLY_VAR=from-file\n")
	t.Setenv("BESS_TEST_ONLY_VAR", "")
	require.NoError(t, os.Unsetenv("BESS_TEST_ONLY_VAR"))

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), env))
	assert.Equal(t, "from-file", os.Getenv("BESS_TEST_ONLY_VAR"))
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]func(c *Config){
		"efficiency":   func(c *Config) { c.Battery.Efficiency = 1.5 },
		"dates":        func(c *Config) { c.Simulation.EndDate = c.Simulation.StartDate },
		"bad date":     func(c *Config) { c.Simulation.StartDate = "01/03/2022" },
		"timezone":     func(c *Config) { c.Simulation.Timezone = "Mars/Olympus" },
		"side":         func(c *Config) { c.Simulation.Side = "HOLD" },
		"soc basis":    func(c *Config) { c.Simulation.SOCBasis = "gross" },
		"step":         func(c *Config) { c.Simulation.StepMinutes = -5 },
		"driver":       func(c *Config) { c.Data.Driver = "mysql" },
		"postgres dsn": func(c *Config) { c.Data.Driver = DriverPostgres; c.Data.DSN = "" },
		"sqlite path":  func(c *Config) { c.Data.Driver = DriverSQLite; c.Data.Path = "" },
		"results":      func(c *Config) { c.Output.ResultsDriver = DriverSQLite },
		"ttl":          func(c *Config) { c.Data.Cache.TTLSeconds = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			c.Data.Driver = DriverCSV
			c.Data.Path = "tape.csv"
			require.NoError(t, c.Validate())
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestBacktest_Conversion(t *testing.T) {
	c := Default()
	c.Simulation.StartDate = "2022-03-26"
	c.Simulation.EndDate = "2022-03-28"
	c.Simulation.LegacyDayOffset = true
	f := false
	c.Simulation.NormalizeCapacity = &f
	c.Simulation.Side = "buy"

	bt, err := c.Backtest("run-1")
	require.NoError(t, err)
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	assert.True(t, bt.Start.Equal(time.Date(2022, 3, 26, 0, 0, 0, 0, berlin)))
	assert.True(t, bt.End.Equal(time.Date(2022, 3, 28, 0, 0, 0, 0, berlin)))
	assert.Equal(t, 15*time.Minute, bt.Step)
	assert.Equal(t, model.SideBuy, bt.Side)
	assert.True(t, bt.LegacyDayOffset)
	assert.False(t, bt.NormalizeCapacity)
	assert.Equal(t, "run-1", bt.RunID)
	assert.Equal(t, filepath.Join("results", "step15_c0.5_eff0.86_cyc365_mt1"), bt.OutDir)
	assert.NoError(t, bt.Validate())
}

func TestSolver_FromConfig(t *testing.T) {
	def, err := Default().Solver()
	require.NoError(t, err)
	assert.Equal(t, strategy.BalanceStep, def.Balance)

	c := Default()
	c.Simulation.SOCBasis = "net"
	c.Simulation.NodeLimit = 500
	s, err := c.Solver()
	require.NoError(t, err)
	assert.Equal(t, strategy.BalanceNet, s.Balance)
	assert.Equal(t, 500, s.Options.MaxNodes)
}

func TestMergeBattery(t *testing.T) {
	base := BatteryConfig{Name: "base", CapacityMWh: 10, CRate: 0.5, Efficiency: 0.86, ThresholdPct: 5}
	out := MergeBattery(base, BatteryConfig{Efficiency: 0.9, DiscountRate: 1})
	assert.Equal(t, "base", out.Name)
	assert.Equal(t, 10.0, out.CapacityMWh)
	assert.Equal(t, 0.9, out.Efficiency)
	assert.Equal(t, 1.0, out.DiscountRate)
	assert.Equal(t, 5.0, out.ThresholdPct)
}
