// Package trader 实现仓位状态机：UNSEEN → OPEN → CLOSED。
// 状态迁移只发生在订单确认成交之后；订单失败时状态保持原样，
// 等下一周期重新评估。状态本身不变的判定（跳过、持有）不落库。
package trader

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/polybot/internal/domain"
	"github.com/betbot/polybot/internal/scanner"
)

var log = logrus.WithField("component", "trader")

// ErrInvariant 状态机不变量被破坏。出现即说明上游存在 bug
// 或数据损坏，必须在报告中大声失败，绝不吞掉。
var ErrInvariant = errors.New("trader: 状态机不变量被破坏")

// ErrStoreInconsistent 订单已确认成交但落库失败。
// 交易所侧与本地侧已经不一致，不能静默重试（重试会重复下单），
// 只能作为已知不一致上报，等待人工或对账流程处理。
var ErrStoreInconsistent = errors.New("trader: 成交已确认但持久化失败")

// minOrderShares 交易所最小下单份额
const minOrderShares = 5

// OrderExecutor 撮合端。真实 CLOB 与模拟撮合各有一个实现。
// 返回 error 一律视为未成交；返回 Fill 即视为已确认成交。
type OrderExecutor interface {
	SubmitBuy(ctx context.Context, req domain.OrderRequest) (domain.Fill, error)
	SubmitSell(ctx context.Context, req domain.OrderRequest) (domain.Fill, error)
}

// PositionStore 状态机需要的持久化能力（由 store 包实现）
type PositionStore interface {
	IsVisited(ctx context.Context, marketID string) (bool, error)
	MarkVisited(ctx context.Context, marketID string, reason domain.VisitReason) error
	CreatePositionAndVisit(ctx context.Context, p *domain.Position) error
	ClosePosition(ctx context.Context, positionID string, exitProbability float64,
		exitTime time.Time, reason domain.ExitReason, exitOrderID string,
		realizedPnL decimal.Decimal) error
	OpenPositionCount(ctx context.Context) (int, error)
}

// Action 单个市场在本周期的处理结果分类
type Action string

const (
	ActionBought           Action = "bought"
	ActionSold             Action = "sold"
	ActionHeld             Action = "held"
	ActionSkipRapidJump    Action = "skip_rapid_jump"
	ActionSkipPriceDrop    Action = "skip_price_drop"
	ActionSkipMinSize      Action = "skip_min_size"
	ActionSkipMaxPositions Action = "skip_max_positions"
	ActionFailed           Action = "failed"
)

// Outcome 单个市场的结构化处理结果，周期报告的基本单元。
// Position 与 PnL 只在成功建仓/平仓时填充。
type Outcome struct {
	MarketID string
	Action   Action
	Detail   string
	Position *domain.Position
	PnL      decimal.Decimal
	Err      error
}

// Failed 该市场本周期是否以失败收场
func (o Outcome) Failed() bool { return o.Err != nil }

// Config 交易参数（需已通过 config 校验）
type Config struct {
	BuyThreshold      float64
	SellThreshold     float64
	BuyAmountUSD      float64
	TakeProfitPercent float64 // 正数，如 0.07
	StopLossPercent   float64 // 负数，如 -0.10
	MaxPositions      int     // -1 表示不限
}

// Trader 仓位状态机
type Trader struct {
	cfg   Config
	store PositionStore
	exec  OrderExecutor
}

// New 创建状态机
func New(cfg Config, store PositionStore, exec OrderExecutor) *Trader {
	return &Trader{cfg: cfg, store: store, exec: exec}
}

// ExecuteBuy 对一个买入候选执行 UNSEEN → OPEN 迁移。
// 下单前的守卫按顺序：visited 不变量、持仓上限、价格回落、急涨、最小份额。
// 任何守卫命中都不会下单；买单失败时市场保持 UNSEEN。
func (t *Trader) ExecuteBuy(ctx context.Context, cand scanner.Candidate) Outcome {
	snap := cand.Snapshot
	out := Outcome{MarketID: snap.MarketID}

	// 扫描器已排除 visited 市场；这里再次命中说明并发写入或上游 bug
	seen, err := t.store.IsVisited(ctx, snap.MarketID)
	if err != nil {
		out.Action, out.Err = ActionFailed, errors.Wrapf(err, "查询 visited 名单失败: market=%s", snap.MarketID)
		return out
	}
	if seen {
		out.Action = ActionFailed
		out.Err = errors.Wrapf(ErrInvariant, "visited 市场出现在买入候选中: market=%s", snap.MarketID)
		return out
	}

	if t.cfg.MaxPositions >= 0 {
		n, err := t.store.OpenPositionCount(ctx)
		if err != nil {
			out.Action, out.Err = ActionFailed, errors.Wrap(err, "查询持仓数失败")
			return out
		}
		if n >= t.cfg.MaxPositions {
			log.Infof("持仓已达上限 %d，跳过: market=%s", t.cfg.MaxPositions, snap.MarketID)
			out.Action, out.Detail = ActionSkipMaxPositions, "持仓已达上限"
			return out
		}
	}

	// 价格回落到买入阈值之下：本周期放弃，市场保持 UNSEEN，之后还可再进
	if snap.Probability < t.cfg.BuyThreshold {
		log.Debugf("概率回落到买入阈值之下，跳过: market=%s probability=%.4f", snap.MarketID, snap.Probability)
		out.Action, out.Detail = ActionSkipPriceDrop, "概率回落到买入阈值之下"
		return out
	}

	// 急涨：下单前概率已冲破卖出阈值，追进去没有留利空间。
	// 永久拉黑，防止之后在高位反复触发。
	if snap.Probability > t.cfg.SellThreshold {
		if err := t.store.MarkVisited(ctx, snap.MarketID, domain.VisitReasonRapidJump); err != nil {
			out.Action, out.Err = ActionFailed, errors.Wrapf(err, "记录 rapid_jump 失败: market=%s", snap.MarketID)
			return out
		}
		log.Warnf("概率已越过卖出阈值，放弃追高并永久排除: market=%s probability=%.4f", snap.MarketID, snap.Probability)
		out.Action, out.Detail = ActionSkipRapidJump, "概率已越过卖出阈值"
		return out
	}

	shares := decimal.NewFromFloat(t.cfg.BuyAmountUSD).
		Div(decimal.NewFromFloat(snap.Probability)).
		RoundDown(2)
	if shares.LessThan(decimal.NewFromInt(minOrderShares)) {
		log.Warnf("份额 %s 低于最小下单量 %d，跳过: market=%s", shares, minOrderShares, snap.MarketID)
		out.Action, out.Detail = ActionSkipMinSize, "份额低于最小下单量"
		return out
	}

	fill, err := t.exec.SubmitBuy(ctx, domain.OrderRequest{
		MarketID:    snap.MarketID,
		TokenID:     snap.TokenID,
		Side:        domain.OrderSideBuy,
		Shares:      shares,
		Probability: snap.Probability,
	})
	if err != nil {
		// 未成交：市场保持 UNSEEN，不写任何状态
		out.Action, out.Err = ActionFailed, errors.Wrapf(err, "买单失败: market=%s", snap.MarketID)
		return out
	}

	pos := &domain.Position{
		ID:               uuid.NewString(),
		MarketID:         snap.MarketID,
		Slug:             snap.Slug,
		Question:         snap.Question,
		Outcome:          snap.Outcome,
		TokenID:          snap.TokenID,
		EntryProbability: fill.Probability,
		EntryTime:        fill.Timestamp,
		SizeUSD:          decimal.NewFromFloat(t.cfg.BuyAmountUSD),
		Shares:           fill.Shares,
		EntryOrderID:     fill.OrderID,
		Status:           domain.PositionStatusOpen,
		LiquidityAtEntry: snap.Liquidity,
		EntrySignal:      string(cand.Signal.Event),
	}
	if err := t.store.CreatePositionAndVisit(ctx, pos); err != nil {
		// 成交已确认但本地没记下来，属于已知不一致，必须上抛
		out.Action = ActionFailed
		out.Err = errors.Wrapf(ErrStoreInconsistent,
			"market=%s order=%s: %v", snap.MarketID, fill.OrderID, err)
		return out
	}

	log.Infof("建仓成功: market=%s probability=%.4f shares=%s order=%s",
		snap.MarketID, fill.Probability, fill.Shares, fill.OrderID)
	out.Action, out.Position = ActionBought, pos
	return out
}

// EvaluateSell 对一条 open 仓位做平仓判定，命中则执行 OPEN → CLOSED。
// currentProbability 来自本周期快照；event 是本周期的交叉事件
// （历史不足以计算时传 CrossEventNone）。卖单失败时仓位保持 OPEN。
func (t *Trader) EvaluateSell(ctx context.Context, pos *domain.Position,
	currentProbability float64, event domain.CrossEvent) Outcome {

	out := Outcome{MarketID: pos.MarketID}

	if !pos.IsOpen() {
		out.Action = ActionFailed
		out.Err = errors.Wrapf(ErrInvariant, "对非 open 仓位做平仓判定: market=%s status=%s", pos.MarketID, pos.Status)
		return out
	}

	reason, hit := t.decideExit(pos, currentProbability, event)
	if !hit {
		out.Action = ActionHeld
		return out
	}

	fill, err := t.exec.SubmitSell(ctx, domain.OrderRequest{
		MarketID:    pos.MarketID,
		TokenID:     pos.TokenID,
		Side:        domain.OrderSideSell,
		Shares:      pos.Shares,
		Probability: currentProbability,
	})
	if err != nil {
		// 未成交：仓位保持 open，下一周期重新判定
		out.Action, out.Err = ActionFailed, errors.Wrapf(err, "卖单失败: market=%s reason=%s", pos.MarketID, reason)
		return out
	}

	pnl := pos.PnLAt(fill.Probability).Round(6)
	if err := t.store.ClosePosition(ctx, pos.ID, fill.Probability, fill.Timestamp,
		reason, fill.OrderID, pnl); err != nil {
		out.Action = ActionFailed
		out.Err = errors.Wrapf(ErrStoreInconsistent,
			"market=%s order=%s: %v", pos.MarketID, fill.OrderID, err)
		return out
	}

	log.Infof("平仓成功: market=%s reason=%s entry=%.4f exit=%.4f pnl=%s",
		pos.MarketID, reason, pos.EntryProbability, fill.Probability, pnl)
	out.Action, out.Detail = ActionSold, string(reason)
	out.Position, out.PnL = pos, pnl
	return out
}

// decideExit 平仓判定，多个条件同时命中时按固定优先级取第一个：
// 目标达成 > 止盈 > 止损 > 死叉。
func (t *Trader) decideExit(pos *domain.Position, currentProbability float64,
	event domain.CrossEvent) (domain.ExitReason, bool) {

	if currentProbability >= t.cfg.SellThreshold {
		return domain.ExitReasonTargetReached, true
	}
	ratio := pos.ProfitRatio(currentProbability)
	if ratio >= t.cfg.TakeProfitPercent {
		return domain.ExitReasonTakeProfit, true
	}
	if ratio <= t.cfg.StopLossPercent {
		return domain.ExitReasonStopLoss, true
	}
	if event == domain.CrossEventDead {
		return domain.ExitReasonDeadCross, true
	}
	return "", false
}
