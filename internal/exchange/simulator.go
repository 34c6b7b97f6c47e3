package exchange

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/betbot/polybot/internal/domain"
)

// Simulator 模拟撮合端：不触网，直接按提交时刻的快照概率成交。
// 配合独立的 trades_sim.db 分区，可在真实行情上空跑整套策略。
type Simulator struct{}

// NewSimulator 创建模拟撮合端
func NewSimulator() *Simulator {
	return &Simulator{}
}

// SubmitBuy 模拟买单，立即全额成交
func (s *Simulator) SubmitBuy(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	return s.fill(ctx, req)
}

// SubmitSell 模拟卖单，立即全额成交
func (s *Simulator) SubmitSell(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	return s.fill(ctx, req)
}

func (s *Simulator) fill(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fill{}, err
	}
	fill := domain.Fill{
		OrderID:     "sim-" + uuid.NewString(),
		Probability: req.Probability,
		Shares:      req.Shares,
		Timestamp:   time.Now().UTC(),
	}
	log.Infof("[模拟] 订单成交: market=%s side=%s shares=%s price=%.4f",
		req.MarketID, req.Side, req.Shares, req.Probability)
	return fill, nil
}
