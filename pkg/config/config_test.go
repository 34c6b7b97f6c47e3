package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err, "内置默认配置必须能通过校验")

	assert.Equal(t, "default", cfg.Job)
	assert.Equal(t, 0.85, cfg.Trading.BuyThreshold)
	assert.Equal(t, 72, cfg.Momentum.LongWindow)
	assert.Equal(t, filepath.Join("data", "default", "trades.db"), cfg.DBPath())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
job: election
simulationMode: true
trading:
  buyThreshold: 0.80
  sellThreshold: 0.95
  maxPositions: 5
momentum:
  shortWindow: 5
  longWindow: 60
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "election", cfg.Job)
	assert.Equal(t, 0.80, cfg.Trading.BuyThreshold)
	assert.Equal(t, 5, cfg.Trading.MaxPositions)
	assert.Equal(t, 5, cfg.Momentum.ShortWindow)
	// 未覆盖的键保留默认值
	assert.Equal(t, 0.07, cfg.Trading.TakeProfitPercent)
	// 模拟模式使用独立数据库文件
	assert.Equal(t, filepath.Join("data", "election", "trades_sim.db"), cfg.DBPath())
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
job: election
trading:
  buyThreshold: 0.80
`)
	t.Setenv("POLYBOT_BUY_THRESHOLD", "0.88")
	t.Setenv("POLYBOT_JOB", "env-job")
	t.Setenv("POLYBOT_SIMULATION_MODE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.88, cfg.Trading.BuyThreshold, "环境变量优先于 yaml")
	assert.Equal(t, "env-job", cfg.Job)
	assert.True(t, cfg.SimulationMode)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"买入阈值越界":   func(c *Config) { c.Trading.BuyThreshold = 1.2 },
		"上界低于买入阈值": func(c *Config) { c.Trading.UpperBoundProbability = 0.5 },
		"卖出阈值不高于买入": func(c *Config) { c.Trading.SellThreshold = 0.85 },
		"买入金额为零":   func(c *Config) { c.Trading.BuyAmountUsd = 0 },
		"止盈为负":     func(c *Config) { c.Trading.TakeProfitPercent = -0.05 },
		"止损为正":     func(c *Config) { c.Trading.StopLossPercent = 0.10 },
		"短窗口不小于长窗口": func(c *Config) { c.Momentum.ShortWindow = 72 },
		"死叉阈值为正":   func(c *Config) { c.Momentum.DeadThreshold = 0.02 },
		"job 为空":   func(c *Config) { c.Job = "" },
		"重试次数为零":   func(c *Config) { c.Retry.MaxAttempts = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate(), "非法配置应在启动时失败")
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "显式指定的配置文件不存在应是致命错误")
}
