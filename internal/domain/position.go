package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus 仓位状态
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// ExitReason 平仓原因，与四个清算触发条件一一对应（manual 保留给人工干预）
type ExitReason string

const (
	ExitReasonTargetReached ExitReason = "target_reached" // 概率达到 sellThreshold
	ExitReasonTakeProfit    ExitReason = "take_profit"    // 相对进场价收益达标
	ExitReasonStopLoss      ExitReason = "stop_loss"      // 相对进场价亏损触线
	ExitReasonDeadCross     ExitReason = "dead_cross"     // 动量反转
	ExitReasonManual        ExitReason = "manual"
)

// Position 仓位记录。同一 job 分区内，每个 marketId 至多存在一条 open 仓位。
// 仓位只会从 open 变为 closed，永不删除（保留审计历史）。
type Position struct {
	ID               string
	MarketID         string
	Slug             string
	Question         string
	Outcome          string
	TokenID          string
	EntryProbability float64
	EntryTime        time.Time
	SizeUSD          decimal.Decimal // 进场投入（USD）
	Shares           decimal.Decimal // 成交份额
	EntryOrderID     string
	Status           PositionStatus
	ExitProbability  float64
	ExitTime         time.Time
	ExitReason       ExitReason
	ExitOrderID      string
	RealizedPnL      decimal.Decimal
	LiquidityAtEntry float64
	EntrySignal      string // 进场时的信号摘要（审计用）
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsOpen 仓位是否仍然持有
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// ProfitRatio 当前概率相对进场概率的收益率
func (p *Position) ProfitRatio(currentProbability float64) float64 {
	if p.EntryProbability == 0 {
		return 0
	}
	return (currentProbability - p.EntryProbability) / p.EntryProbability
}

// PnLAt 以当前概率估算的盈亏（USD）
func (p *Position) PnLAt(currentProbability float64) decimal.Decimal {
	cur := decimal.NewFromFloat(currentProbability)
	entry := decimal.NewFromFloat(p.EntryProbability)
	return cur.Sub(entry).Mul(p.Shares)
}

// VisitReason 市场进入 visited 名单的原因
type VisitReason string

const (
	VisitReasonTraded    VisitReason = "traded"     // 已实际建仓
	VisitReasonRapidJump VisitReason = "rapid_jump" // 下单前概率已冲破卖出阈值，放弃追高
)

// VisitedMarket 永久记录：该 job 分区对这个市场出过手（或明确放弃过）。
// 一旦写入，该市场永远不再成为买入候选，即使对应仓位已平掉。
type VisitedMarket struct {
	MarketID  string
	Reason    VisitReason
	VisitedAt time.Time
}

// Fill 外部撮合端返回的成交确认
type Fill struct {
	OrderID     string
	Probability float64 // 成交概率（价格）
	Shares      decimal.Decimal
	Timestamp   time.Time
}
