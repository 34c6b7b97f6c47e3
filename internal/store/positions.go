package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/betbot/polybot/internal/domain"
)

// CreatePositionAndVisit 在同一事务里写入新仓位与 visited 记录。
// 买单确认成交后才允许调用：要么两条都落库，要么都不落。
func (s *Store) CreatePositionAndVisit(ctx context.Context, p *domain.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "开启事务失败")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeFormat)
	_, err = tx.ExecContext(ctx, `
INSERT INTO positions (
  id, market_id, slug, question, outcome, token_id,
  entry_probability, entry_time, size_usd, shares, entry_order_id,
  status, liquidity_at_entry, entry_signal, created_at, updated_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
`,
		p.ID, p.MarketID, p.Slug, p.Question, p.Outcome, p.TokenID,
		p.EntryProbability, p.EntryTime.UTC().Format(timeFormat),
		p.SizeUSD.String(), p.Shares.String(), p.EntryOrderID,
		string(domain.PositionStatusOpen), p.LiquidityAtEntry, p.EntrySignal, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(ErrDuplicate, "市场 %s 已存在 open 仓位", p.MarketID)
		}
		return errors.Wrap(err, "写入仓位失败")
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO visited_markets (market_id, reason, visited_at) VALUES (?,?,?)
`, p.MarketID, string(domain.VisitReasonTraded), now)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(ErrDuplicate, "市场 %s 已在 visited 名单", p.MarketID)
		}
		return errors.Wrap(err, "写入 visited 记录失败")
	}

	return errors.Wrap(tx.Commit(), "提交事务失败")
}

// ClosePosition 把 open 仓位置为 closed 并写入平仓信息。
// 目标仓位不存在或已非 open 时返回 ErrNotFound（由调用方按不变量违规处理）。
func (s *Store) ClosePosition(ctx context.Context, positionID string, exitProbability float64, exitTime time.Time, reason domain.ExitReason, exitOrderID string, realizedPnL decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE positions
SET status=?, exit_probability=?, exit_time=?, exit_reason=?, exit_order_id=?, realized_pnl=?, updated_at=?
WHERE id=? AND status=?
`,
		string(domain.PositionStatusClosed), exitProbability,
		exitTime.UTC().Format(timeFormat), string(reason), exitOrderID,
		realizedPnL.String(), time.Now().UTC().Format(timeFormat),
		positionID, string(domain.PositionStatusOpen))
	if err != nil {
		return errors.Wrap(err, "更新仓位失败")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "读取影响行数失败")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "没有 open 状态的仓位 %s", positionID)
	}
	return nil
}

// OpenPositions 返回当前全部 open 仓位
func (s *Store) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+positionColumns+`
FROM positions
WHERE status=?
ORDER BY entry_time ASC
`, string(domain.PositionStatusOpen))
	if err != nil {
		return nil, errors.Wrap(err, "查询 open 仓位失败")
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// PositionByMarket 按市场查最近一条仓位；不存在时返回 ErrNotFound
func (s *Store) PositionByMarket(ctx context.Context, marketID string) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+positionColumns+`
FROM positions
WHERE market_id=?
ORDER BY created_at DESC
LIMIT 1
`, marketID)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "市场 %s 没有仓位", marketID)
		}
		return nil, err
	}
	return p, nil
}

// OpenPositionCount 当前 open 仓位数（maxPositions 检查用）
func (s *Store) OpenPositionCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM positions WHERE status=?
`, string(domain.PositionStatusOpen)).Scan(&n)
	return n, errors.Wrap(err, "统计 open 仓位失败")
}

const positionColumns = `
  id, market_id, slug, question, outcome, token_id,
  entry_probability, entry_time, size_usd, shares, entry_order_id,
  status, exit_probability, exit_time, exit_reason, exit_order_id,
  realized_pnl, liquidity_at_entry, entry_signal, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var (
		p          domain.Position
		slug       sql.NullString
		question   sql.NullString
		outcome    sql.NullString
		entryTime  string
		sizeUSD    string
		shares     string
		entryOrder sql.NullString
		status     string
		exitProb   sql.NullFloat64
		exitTime   sql.NullString
		exitReason sql.NullString
		exitOrder  sql.NullString
		pnl        sql.NullString
		liquidity  sql.NullFloat64
		signal     sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(
		&p.ID, &p.MarketID, &slug, &question, &outcome, &p.TokenID,
		&p.EntryProbability, &entryTime, &sizeUSD, &shares, &entryOrder,
		&status, &exitProb, &exitTime, &exitReason, &exitOrder,
		&pnl, &liquidity, &signal, &createdAt, &updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "扫描仓位行失败")
	}

	p.Slug = slug.String
	p.Question = question.String
	p.Outcome = outcome.String
	p.EntryOrderID = entryOrder.String
	p.Status = domain.PositionStatus(status)
	p.ExitOrderID = exitOrder.String
	p.EntrySignal = signal.String
	p.LiquidityAtEntry = liquidity.Float64

	var err error
	if p.EntryTime, err = time.Parse(timeFormat, entryTime); err != nil {
		return nil, errors.Wrap(err, "解析 entry_time 失败")
	}
	if p.SizeUSD, err = decimal.NewFromString(sizeUSD); err != nil {
		return nil, errors.Wrap(err, "解析 size_usd 失败")
	}
	if p.Shares, err = decimal.NewFromString(shares); err != nil {
		return nil, errors.Wrap(err, "解析 shares 失败")
	}
	if exitProb.Valid {
		p.ExitProbability = exitProb.Float64
	}
	if exitTime.Valid {
		if p.ExitTime, err = time.Parse(timeFormat, exitTime.String); err != nil {
			return nil, errors.Wrap(err, "解析 exit_time 失败")
		}
	}
	if exitReason.Valid {
		p.ExitReason = domain.ExitReason(exitReason.String)
	}
	if pnl.Valid && pnl.String != "" {
		if p.RealizedPnL, err = decimal.NewFromString(pnl.String); err != nil {
			return nil, errors.Wrap(err, "解析 realized_pnl 失败")
		}
	}
	if p.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, errors.Wrap(err, "解析 created_at 失败")
	}
	if p.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, errors.Wrap(err, "解析 updated_at 失败")
	}
	return &p, nil
}
