package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/polybot/internal/domain"
)

// SaveSnapshots 把本周期的市场快照追加到审计表（离线分析用）
func (s *Store) SaveSnapshots(ctx context.Context, snaps []domain.MarketSnapshot, at time.Time) (int, error) {
	ts := at.UTC().Format(timeFormat)
	saved := 0
	for i := range snaps {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO market_snapshots (market_id, probability, liquidity, ts) VALUES (?,?,?,?)
`, snaps[i].MarketID, snaps[i].Probability, snaps[i].Liquidity, ts)
		if err != nil {
			return saved, errors.Wrapf(err, "写入快照失败: market=%s", snaps[i].MarketID)
		}
		saved++
	}
	return saved, nil
}

// CleanupSnapshots 清理早于 olderThan 的快照行，返回删除数量
func (s *Store) CleanupSnapshots(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM market_snapshots WHERE ts < ?
`, olderThan.UTC().Format(timeFormat))
	if err != nil {
		return 0, errors.Wrap(err, "清理快照失败")
	}
	return res.RowsAffected()
}

// Stats 分区聚合统计
type Stats struct {
	TotalPositions  int
	OpenPositions   int
	ClosedPositions int
	VisitedMarkets  int
	TotalPnL        decimal.Decimal
}

// Stats 返回当前分区的聚合统计（周期结束时记日志用）
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN status='open' THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN status='closed' THEN 1 ELSE 0 END), 0)
FROM positions
`).Scan(&st.TotalPositions, &st.OpenPositions, &st.ClosedPositions)
	if err != nil {
		return st, errors.Wrap(err, "统计仓位失败")
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visited_markets`).Scan(&st.VisitedMarkets); err != nil {
		return st, errors.Wrap(err, "统计 visited 失败")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT realized_pnl FROM positions WHERE realized_pnl IS NOT NULL AND realized_pnl != ''
`)
	if err != nil {
		return st, errors.Wrap(err, "统计 PnL 失败")
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return st, errors.Wrap(err, "扫描 PnL 行失败")
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return st, errors.Wrapf(err, "解析 realized_pnl 失败: %q", raw)
		}
		total = total.Add(d)
	}
	st.TotalPnL = total
	return st, rows.Err()
}
