package scanner

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/polybot/internal/domain"
	"github.com/betbot/polybot/internal/momentum"
)

var log = logrus.WithField("component", "scanner")

// VisitedChecker 查询某市场是否已在 visited 名单中（由 Position Store 实现）
type VisitedChecker interface {
	IsVisited(ctx context.Context, marketID string) (bool, error)
}

// Candidate 买入候选：通过准入规则且本周期触发金叉的市场
type Candidate struct {
	Snapshot domain.MarketSnapshot
	Signal   domain.MomentumSignal
}

// Scanner 组合准入规则与动量计算，从全部快照中筛出买入候选
type Scanner struct {
	calc *momentum.Calculator
	cfg  FilterConfig
}

// New 创建扫描器
func New(calc *momentum.Calculator, cfg FilterConfig) *Scanner {
	return &Scanner{calc: calc, cfg: cfg}
}

// Scan 返回满足以下全部条件的市场，按概率降序（同概率按 marketId）排序：
//   - 通过准入规则（Eligible）
//   - 本周期触发 golden_cross
//   - 不在 visited 名单中
//
// 历史样本不足的市场静默排除，不视为错误。
func (s *Scanner) Scan(ctx context.Context, snapshots []domain.MarketSnapshot, visited VisitedChecker) ([]Candidate, error) {
	var candidates []Candidate

	for i := range snapshots {
		snap := &snapshots[i]

		if !Eligible(snap, s.cfg) {
			continue
		}

		sig, err := s.calc.Signal(snap.History)
		if err != nil {
			if errors.Is(err, momentum.ErrInsufficientData) {
				log.Debugf("历史数据不足，跳过: market=%s 样本=%d", snap.MarketID, len(snap.History))
				continue
			}
			return nil, errors.Wrapf(err, "计算动量失败: market=%s", snap.MarketID)
		}
		if sig.Event != domain.CrossEventGolden {
			continue
		}

		seen, err := visited.IsVisited(ctx, snap.MarketID)
		if err != nil {
			return nil, errors.Wrapf(err, "查询 visited 名单失败: market=%s", snap.MarketID)
		}
		if seen {
			log.Debugf("市场已出手过，永久排除: market=%s", snap.MarketID)
			continue
		}

		candidates = append(candidates, Candidate{Snapshot: *snap, Signal: sig})
	}

	// 稳定排序：概率降序，同概率按 marketId，保证测试可复现
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Snapshot.Probability != candidates[j].Snapshot.Probability {
			return candidates[i].Snapshot.Probability > candidates[j].Snapshot.Probability
		}
		return candidates[i].Snapshot.MarketID < candidates[j].Snapshot.MarketID
	})

	log.Infof("扫描完成: 市场 %d 个, 买入候选 %d 个", len(snapshots), len(candidates))
	return candidates, nil
}
