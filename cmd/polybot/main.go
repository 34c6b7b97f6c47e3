// polybot 动量策略交易机器人。
// 默认执行单个周期后退出，节奏交给外部调度器；
// -loop 模式下按固定间隔循环执行，直到收到退出信号。
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/polybot/internal/bot"
	"github.com/betbot/polybot/internal/exchange"
	"github.com/betbot/polybot/internal/marketdata"
	"github.com/betbot/polybot/internal/momentum"
	"github.com/betbot/polybot/internal/notify"
	"github.com/betbot/polybot/internal/scanner"
	"github.com/betbot/polybot/internal/store"
	"github.com/betbot/polybot/internal/trader"
	"github.com/betbot/polybot/pkg/config"
	"github.com/betbot/polybot/pkg/logger"
	"github.com/betbot/polybot/pkg/secretstore"
	"github.com/betbot/polybot/pkg/shutdown"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "配置文件路径（不存在时使用内置默认值）")
		jobName    = flag.String("job", "", "job 分区名，覆盖配置文件")
		simulate   = flag.Bool("simulate", false, "模拟模式：不触网下单，使用独立数据库")
		loop       = flag.Bool("loop", false, "循环模式：按 -interval 间隔持续执行周期")
		interval   = flag.Duration("interval", 5*time.Minute, "循环模式下的周期间隔")
	)
	flag.Parse()

	// 配置文件缺省时允许不存在，显式指定的路径必须有效
	path := *configPath
	if path == "config.yaml" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("配置错误: %v", err)
	}
	if *jobName != "" {
		cfg.Job = *jobName
	}
	if *simulate {
		cfg.SimulationMode = true
	}

	if err := logger.Init(cfg.Log); err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}
	log := logrus.WithField("component", "main")
	log.Infof("polybot 启动: job=%s simulate=%v db=%s", cfg.Job, cfg.SimulationMode, cfg.DBPath())

	mgr := shutdown.NewManager()

	st, err := store.Open(cfg.DBPath(), cfg.Job)
	if err != nil {
		logrus.Fatalf("打开仓位库失败: %v", err)
	}
	mgr.OnShutdown("store", func(context.Context) error { return st.Close() })

	exec, err := buildExecutor(cfg, mgr)
	if err != nil {
		logrus.Fatalf("初始化撮合端失败: %v", err)
	}

	calc := momentum.NewCalculator(momentum.Config{
		ShortWindow:     cfg.Momentum.ShortWindow,
		LongWindow:      cfg.Momentum.LongWindow,
		GoldenThreshold: cfg.Momentum.GoldenThreshold,
		DeadThreshold:   cfg.Momentum.DeadThreshold,
	})
	sc := scanner.New(calc, scanner.FilterConfig{
		BuyThreshold:       cfg.Trading.BuyThreshold,
		UpperBound:         cfg.Trading.UpperBoundProbability,
		MinLiquidity:       cfg.Trading.MinLiquidity,
		ExcludedCategories: cfg.Trading.ExcludedCategories,
	})
	tr := trader.New(trader.Config{
		BuyThreshold:      cfg.Trading.BuyThreshold,
		SellThreshold:     cfg.Trading.SellThreshold,
		BuyAmountUSD:      cfg.Trading.BuyAmountUsd,
		TakeProfitPercent: cfg.Trading.TakeProfitPercent,
		StopLossPercent:   cfg.Trading.StopLossPercent,
		MaxPositions:      cfg.Trading.MaxPositions,
	}, st, exec)
	data := marketdata.NewClient(marketdata.Config{
		GammaBaseURL:    cfg.API.GammaBaseURL,
		ClobBaseURL:     cfg.API.ClobBaseURL,
		PageLimit:       cfg.API.PageLimit,
		FidelityMinutes: cfg.API.FidelityMinutes,
		HistoryHours:    cfg.API.HistoryHours,
		Timeout:         cfg.APITimeout(),
		Retry:           cfg.RetryPolicy(),
	})

	var notifier notify.Notifier = notify.Noop{}
	if wh := notify.NewWebhook(cfg.Notify.WebhookURL); wh != nil {
		notifier = wh
	}

	b := bot.New(bot.Config{}, data, st, sc, calc, tr, notifier)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exitCode := 0
	if *loop {
		runLoop(ctx, b, *interval, log)
	} else if _, err := b.RunCycle(ctx); err != nil {
		log.Errorf("周期执行失败: %v", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mgr.Shutdown(shutdownCtx)
	os.Exit(exitCode)
}

// buildExecutor 按运行模式选择撮合端。
// 真实模式下凭证来自加密凭证库，加密 key 只从环境变量读取。
func buildExecutor(cfg *config.Config, mgr *shutdown.Manager) (trader.OrderExecutor, error) {
	if cfg.SimulationMode {
		return exchange.NewSimulator(), nil
	}

	key, err := secretstore.ParseKey(os.Getenv("POLYBOT_SECRETSTORE_KEY"))
	if err != nil {
		return nil, err
	}
	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.SecretStore.Path,
		EncryptionKey: key,
		ReadOnly:      true,
	})
	if err != nil {
		return nil, err
	}
	mgr.OnShutdown("secretstore", func(context.Context) error { return ss.Close() })

	creds, err := ss.Credentials()
	if err != nil {
		return nil, err
	}
	return exchange.NewClobExecutor(exchange.ClobConfig{
		BaseURL: cfg.API.ClobBaseURL,
		Timeout: cfg.APITimeout(),
		Retry:   cfg.RetryPolicy(),
	}, creds), nil
}

// runLoop 循环模式：固定间隔执行周期，收到信号后在周期边界退出
func runLoop(ctx context.Context, b *bot.Bot, interval time.Duration, log *logrus.Entry) {
	log.Infof("进入循环模式: 间隔 %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := b.RunCycle(ctx); err != nil {
			log.Errorf("周期执行失败: %v", err)
		}
		select {
		case <-ctx.Done():
			log.Info("收到退出信号，停止循环")
			return
		case <-ticker.C:
		}
	}
}
