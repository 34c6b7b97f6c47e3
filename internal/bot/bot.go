// Package bot 把采集、扫描、交易、清理串成一个同步周期。
// 每次 RunCycle 只跑一轮，内部不做调度：节奏交给外部
// （cron、systemd timer，或 cmd 里的可选循环模式）。
package bot

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/polybot/internal/domain"
	"github.com/betbot/polybot/internal/momentum"
	"github.com/betbot/polybot/internal/notify"
	"github.com/betbot/polybot/internal/scanner"
	"github.com/betbot/polybot/internal/store"
	"github.com/betbot/polybot/internal/trader"
)

var log = logrus.WithField("component", "bot")

// MarketData 市场数据采集端（由 marketdata 包实现）
type MarketData interface {
	Snapshots(ctx context.Context) ([]domain.MarketSnapshot, error)
}

// Storage 周期编排需要的持久化能力（由 store 包实现）
type Storage interface {
	SaveSnapshots(ctx context.Context, snaps []domain.MarketSnapshot, at time.Time) (int, error)
	CleanupSnapshots(ctx context.Context, olderThan time.Time) (int64, error)
	OpenPositions(ctx context.Context) ([]domain.Position, error)
	IsVisited(ctx context.Context, marketID string) (bool, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// Config 周期编排配置
type Config struct {
	SnapshotRetention time.Duration // 快照审计行的保留时长
}

// CycleReport 单个周期的结构化结果
type CycleReport struct {
	StartedAt        time.Time
	FinishedAt       time.Time
	Snapshots        int
	PositionsChecked int
	Sold             int
	Held             int
	Candidates       int
	Bought           int
	Skipped          int
	Failed           int
	Outcomes         []trader.Outcome
}

// Bot 周期编排器
type Bot struct {
	cfg      Config
	data     MarketData
	storage  Storage
	scanner  *scanner.Scanner
	calc     *momentum.Calculator
	trader   *trader.Trader
	notifier notify.Notifier
}

// New 创建编排器
func New(cfg Config, data MarketData, storage Storage, sc *scanner.Scanner,
	calc *momentum.Calculator, tr *trader.Trader, n notify.Notifier) *Bot {
	if cfg.SnapshotRetention <= 0 {
		cfg.SnapshotRetention = 7 * 24 * time.Hour
	}
	if n == nil {
		n = notify.Noop{}
	}
	return &Bot{
		cfg:      cfg,
		data:     data,
		storage:  storage,
		scanner:  sc,
		calc:     calc,
		trader:   tr,
		notifier: n,
	}
}

// RunCycle 执行一个完整周期：
// 拉取快照 → 记录审计 → 先查平仓 → 扫描金叉 → 执行买入 → 清理 → 统计。
// 单个市场的失败只影响该市场的结果，不中断周期；
// 只有快照拉取整体失败时周期才直接失败。
func (b *Bot) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{StartedAt: time.Now().UTC()}

	snaps, err := b.data.Snapshots(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "拉取市场快照失败")
	}
	report.Snapshots = len(snaps)

	// 审计行写失败不影响交易决策
	if _, err := b.storage.SaveSnapshots(ctx, snaps, report.StartedAt); err != nil {
		log.Errorf("记录快照审计失败: %v", err)
	}

	byMarket := make(map[string]*domain.MarketSnapshot, len(snaps))
	for i := range snaps {
		byMarket[snaps[i].MarketID] = &snaps[i]
	}

	// 先做平仓检查，再做买入：同一周期内先释放持仓额度
	b.checkSells(ctx, byMarket, report)
	b.executeBuys(ctx, snaps, report)

	if deleted, err := b.storage.CleanupSnapshots(ctx, report.StartedAt.Add(-b.cfg.SnapshotRetention)); err != nil {
		log.Errorf("清理过期快照失败: %v", err)
	} else if deleted > 0 {
		log.Debugf("清理过期快照 %d 行", deleted)
	}

	if st, err := b.storage.Stats(ctx); err != nil {
		log.Errorf("读取分区统计失败: %v", err)
	} else {
		log.Infof("分区统计: 仓位 %d (持有 %d / 已平 %d), visited %d, 累计 PnL $%s",
			st.TotalPositions, st.OpenPositions, st.ClosedPositions, st.VisitedMarkets, st.TotalPnL)
	}

	report.FinishedAt = time.Now().UTC()
	log.Infof("周期完成: 快照 %d, 平仓检查 %d (卖出 %d), 候选 %d (买入 %d, 跳过 %d), 失败 %d, 耗时 %s",
		report.Snapshots, report.PositionsChecked, report.Sold,
		report.Candidates, report.Bought, report.Skipped, report.Failed,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return report, nil
}

// checkSells 对每条 open 仓位做平仓判定
func (b *Bot) checkSells(ctx context.Context, byMarket map[string]*domain.MarketSnapshot, report *CycleReport) {
	open, err := b.storage.OpenPositions(ctx)
	if err != nil {
		log.Errorf("读取持仓失败，本周期跳过平仓检查: %v", err)
		return
	}

	for i := range open {
		pos := &open[i]
		report.PositionsChecked++

		snap, ok := byMarket[pos.MarketID]
		if !ok {
			// 本周期没拉到该市场的快照，无法判定，继续持有
			log.Warnf("持仓市场本周期无快照，继续持有: market=%s", pos.MarketID)
			report.Held++
			continue
		}

		event := domain.CrossEventNone
		if sig, err := b.calc.Signal(snap.History); err == nil {
			event = sig.Event
		} else if !errors.Is(err, momentum.ErrInsufficientData) {
			log.Errorf("计算持仓市场动量失败: market=%s err=%v", pos.MarketID, err)
		}

		// 快照每周期重选高概率一侧；持仓的一侧跌破 0.50 后快照会翻到
		// 对侧。平仓判定必须以持有 token 自己的价格为准：二元市场取
		// 补概率，交叉事件方向也随之反转（对侧金叉 = 本侧死叉）。
		probability := snap.Probability
		if snap.Outcome != pos.Outcome {
			probability = 1 - snap.Probability
			switch event {
			case domain.CrossEventGolden:
				event = domain.CrossEventDead
			case domain.CrossEventDead:
				event = domain.CrossEventGolden
			}
		}

		out := b.trader.EvaluateSell(ctx, pos, probability, event)
		report.Outcomes = append(report.Outcomes, out)
		switch {
		case out.Failed():
			report.Failed++
			log.Errorf("平仓处理失败: market=%s err=%v", out.MarketID, out.Err)
		case out.Action == trader.ActionSold:
			report.Sold++
			b.notifier.NotifySell(ctx, out.Position, domain.ExitReason(out.Detail), out.PnL)
		default:
			report.Held++
		}
	}
}

// executeBuys 扫描金叉候选并逐个执行买入
func (b *Bot) executeBuys(ctx context.Context, snaps []domain.MarketSnapshot, report *CycleReport) {
	candidates, err := b.scanner.Scan(ctx, snaps, b.storage)
	if err != nil {
		log.Errorf("扫描失败，本周期跳过买入: %v", err)
		return
	}
	report.Candidates = len(candidates)

	for _, cand := range candidates {
		out := b.trader.ExecuteBuy(ctx, cand)
		report.Outcomes = append(report.Outcomes, out)
		switch {
		case out.Failed():
			report.Failed++
			log.Errorf("买入处理失败: market=%s err=%v", out.MarketID, out.Err)
		case out.Action == trader.ActionBought:
			report.Bought++
			b.notifier.NotifyBuy(ctx, out.Position)
		default:
			report.Skipped++
		}
	}
}
