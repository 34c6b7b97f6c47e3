package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/polybot/internal/domain"
)

// IsVisited 该市场是否已在 visited 名单中
func (s *Store) IsVisited(ctx context.Context, marketID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM visited_markets WHERE market_id=?
`, marketID).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "查询 visited 名单失败")
	}
	return n > 0, nil
}

// MarkVisited 把市场写入 visited 名单（不建仓的路径，如 rapid_jump）。
// 已存在时保持原记录不变：名单只进不出。
func (s *Store) MarkVisited(ctx context.Context, marketID string, reason domain.VisitReason) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO visited_markets (market_id, reason, visited_at) VALUES (?,?,?)
ON CONFLICT(market_id) DO NOTHING
`, marketID, string(reason), time.Now().UTC().Format(timeFormat))
	return errors.Wrap(err, "写入 visited 名单失败")
}

// VisitedMarkets 返回全部 visited 记录（状态报告用）
func (s *Store) VisitedMarkets(ctx context.Context) ([]domain.VisitedMarket, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT market_id, reason, visited_at FROM visited_markets ORDER BY visited_at ASC
`)
	if err != nil {
		return nil, errors.Wrap(err, "查询 visited 名单失败")
	}
	defer rows.Close()

	var out []domain.VisitedMarket
	for rows.Next() {
		var (
			v  domain.VisitedMarket
			r  string
			ts string
		)
		if err := rows.Scan(&v.MarketID, &r, &ts); err != nil {
			return nil, errors.Wrap(err, "扫描 visited 行失败")
		}
		v.Reason = domain.VisitReason(r)
		if v.VisitedAt, err = time.Parse(timeFormat, ts); err != nil {
			return nil, errors.Wrap(err, "解析 visited_at 失败")
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
