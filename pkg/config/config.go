// Package config 加载并校验运行配置。
// 优先级：环境变量（POLYBOT_ 前缀） > yaml 文件 > 内置默认值。
// 启动时配置非法直接失败，绝不带着坏参数进入交易周期。
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/betbot/polybot/pkg/logger"
	"github.com/betbot/polybot/pkg/retry"
)

// envPrefix 环境变量前缀
const envPrefix = "POLYBOT_"

// TradingConfig 交易参数
type TradingConfig struct {
	BuyThreshold          float64  `yaml:"buyThreshold"`
	UpperBoundProbability float64  `yaml:"upperBoundProbability"`
	SellThreshold         float64  `yaml:"sellThreshold"`
	BuyAmountUsd          float64  `yaml:"buyAmountUsd"`
	MinLiquidity          float64  `yaml:"minLiquidity"`
	TakeProfitPercent     float64  `yaml:"takeProfitPercent"`
	StopLossPercent       float64  `yaml:"stopLossPercent"`
	MaxPositions          int      `yaml:"maxPositions"` // -1 表示不限
	ExcludedCategories    []string `yaml:"excludedCategories"`
}

// MomentumConfig 动量窗口参数
type MomentumConfig struct {
	ShortWindow     int     `yaml:"shortWindow"`
	LongWindow      int     `yaml:"longWindow"`
	GoldenThreshold float64 `yaml:"goldenThreshold"`
	DeadThreshold   float64 `yaml:"deadThreshold"`
}

// APIConfig 外部接口地址
type APIConfig struct {
	GammaBaseURL    string `yaml:"gammaBaseUrl"`
	ClobBaseURL     string `yaml:"clobBaseUrl"`
	PageLimit       int    `yaml:"pageLimit"`
	FidelityMinutes int    `yaml:"fidelityMinutes"`
	HistoryHours    int    `yaml:"historyHours"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds"`
}

// RetryConfig 重试策略参数
type RetryConfig struct {
	MaxAttempts  int     `yaml:"maxAttempts"`
	BaseDelayMs  int     `yaml:"baseDelayMs"`
	MaxDelayMs   int     `yaml:"maxDelayMs"`
	JitterFactor float64 `yaml:"jitterFactor"`
}

// NotifyConfig 通知配置
type NotifyConfig struct {
	WebhookURL string `yaml:"webhookUrl"`
}

// SecretStoreConfig 凭证库配置。Key 只从环境变量读取，不进 yaml。
type SecretStoreConfig struct {
	Path string `yaml:"path"`
}

// Config 完整运行配置
type Config struct {
	Job            string            `yaml:"job"`
	SimulationMode bool              `yaml:"simulationMode"`
	DataDir        string            `yaml:"dataDir"`
	Trading        TradingConfig     `yaml:"trading"`
	Momentum       MomentumConfig    `yaml:"momentum"`
	API            APIConfig         `yaml:"api"`
	Retry          RetryConfig       `yaml:"retry"`
	Notify         NotifyConfig      `yaml:"notify"`
	SecretStore    SecretStoreConfig `yaml:"secretstore"`
	Log            logger.Config     `yaml:"log"`
}

// Load 读取配置文件并应用默认值与环境变量覆盖。
// 会先尝试加载工作目录下的 .env（不存在则忽略）。
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "读取配置文件失败: %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "解析配置文件失败: %s", path)
		}
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 内置默认配置
func Default() *Config {
	return &Config{
		Job:     "default",
		DataDir: "data",
		Trading: TradingConfig{
			BuyThreshold:          0.85,
			UpperBoundProbability: 0.97,
			SellThreshold:         0.97,
			BuyAmountUsd:          10,
			MinLiquidity:          50000,
			TakeProfitPercent:     0.07,
			StopLossPercent:       -0.10,
			MaxPositions:          -1,
			ExcludedCategories:    []string{"Sports"},
		},
		Momentum: MomentumConfig{
			ShortWindow:     3,
			LongWindow:      72,
			GoldenThreshold: 0.02,
			DeadThreshold:   -0.02,
		},
		API: APIConfig{
			GammaBaseURL:    "https://gamma-api.polymarket.com",
			ClobBaseURL:     "https://clob.polymarket.com",
			PageLimit:       100,
			FidelityMinutes: 5,
			HistoryHours:    6,
			TimeoutSeconds:  30,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			BaseDelayMs:  500,
			MaxDelayMs:   8000,
			JitterFactor: 0.25,
		},
		SecretStore: SecretStoreConfig{Path: "data/secrets"},
		Log: logger.Config{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// applyEnvOverrides 环境变量覆盖（POLYBOT_ 前缀），优先级最高
func (c *Config) applyEnvOverrides() {
	envString("JOB", &c.Job)
	envBool("SIMULATION_MODE", &c.SimulationMode)
	envString("DATA_DIR", &c.DataDir)
	envFloat("BUY_THRESHOLD", &c.Trading.BuyThreshold)
	envFloat("UPPER_BOUND_PROBABILITY", &c.Trading.UpperBoundProbability)
	envFloat("SELL_THRESHOLD", &c.Trading.SellThreshold)
	envFloat("BUY_AMOUNT_USD", &c.Trading.BuyAmountUsd)
	envFloat("MIN_LIQUIDITY", &c.Trading.MinLiquidity)
	envFloat("TAKE_PROFIT_PERCENT", &c.Trading.TakeProfitPercent)
	envFloat("STOP_LOSS_PERCENT", &c.Trading.StopLossPercent)
	envInt("MAX_POSITIONS", &c.Trading.MaxPositions)
	envInt("SHORT_WINDOW", &c.Momentum.ShortWindow)
	envInt("LONG_WINDOW", &c.Momentum.LongWindow)
	envString("WEBHOOK_URL", &c.Notify.WebhookURL)
	envString("SECRETSTORE_PATH", &c.SecretStore.Path)
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FILE", &c.Log.OutputFile)
}

// Validate 启动时的完整校验，任何一项不过都是致命错误
func (c *Config) Validate() error {
	if c.Job == "" {
		return errors.New("config: job 不能为空")
	}
	t := c.Trading
	if t.BuyThreshold <= 0 || t.BuyThreshold >= 1 {
		return errors.Errorf("config: buyThreshold 必须在 (0,1) 内，实际为 %f", t.BuyThreshold)
	}
	if t.UpperBoundProbability < t.BuyThreshold || t.UpperBoundProbability > 1 {
		return errors.Errorf("config: upperBoundProbability 必须在 [buyThreshold,1] 内，实际为 %f", t.UpperBoundProbability)
	}
	if t.SellThreshold <= t.BuyThreshold || t.SellThreshold > 1 {
		return errors.Errorf("config: sellThreshold 必须在 (buyThreshold,1] 内，实际为 %f", t.SellThreshold)
	}
	if t.BuyAmountUsd <= 0 {
		return errors.Errorf("config: buyAmountUsd 必须为正，实际为 %f", t.BuyAmountUsd)
	}
	if t.MinLiquidity < 0 {
		return errors.Errorf("config: minLiquidity 不能为负，实际为 %f", t.MinLiquidity)
	}
	if t.TakeProfitPercent <= 0 {
		return errors.Errorf("config: takeProfitPercent 必须为正，实际为 %f", t.TakeProfitPercent)
	}
	if t.StopLossPercent >= 0 {
		return errors.Errorf("config: stopLossPercent 必须为负，实际为 %f", t.StopLossPercent)
	}
	if t.MaxPositions < -1 {
		return errors.Errorf("config: maxPositions 必须 >= -1，实际为 %d", t.MaxPositions)
	}
	m := c.Momentum
	if m.ShortWindow <= 0 || m.ShortWindow >= m.LongWindow {
		return errors.Errorf("config: 窗口配置非法 short=%d long=%d", m.ShortWindow, m.LongWindow)
	}
	if m.GoldenThreshold <= 0 || m.DeadThreshold >= 0 {
		return errors.Errorf("config: 交叉阈值非法 golden=%f dead=%f", m.GoldenThreshold, m.DeadThreshold)
	}
	r := c.RetryPolicy()
	if err := r.Validate(); err != nil {
		return err
	}
	if c.API.GammaBaseURL == "" || c.API.ClobBaseURL == "" {
		return errors.New("config: api 地址不能为空")
	}
	return nil
}

// DBPath 当前 job 分区的数据库路径，模拟模式使用独立文件
func (c *Config) DBPath() string {
	name := "trades.db"
	if c.SimulationMode {
		name = "trades_sim.db"
	}
	return filepath.Join(c.DataDir, c.Job, name)
}

// RetryPolicy 转换为 retry 包的策略对象
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  c.Retry.MaxAttempts,
		BaseDelay:    time.Duration(c.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(c.Retry.MaxDelayMs) * time.Millisecond,
		JitterFactor: c.Retry.JitterFactor,
	}
}

// APITimeout 外部请求超时
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
