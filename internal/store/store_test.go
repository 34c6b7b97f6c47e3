package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/polybot/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trades.db"), "test")
	require.NoError(t, err, "打开测试库失败")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testPosition(marketID string) *domain.Position {
	return &domain.Position{
		ID:               uuid.NewString(),
		MarketID:         marketID,
		Slug:             "slug-" + marketID,
		Question:         "Will it happen?",
		Outcome:          "Yes",
		TokenID:          "tok-" + marketID,
		EntryProbability: 0.86,
		EntryTime:        time.Now().UTC(),
		SizeUSD:          decimal.NewFromInt(10),
		Shares:           decimal.RequireFromString("11.63"),
		EntryOrderID:     "ord-1",
		Status:           domain.PositionStatusOpen,
		LiquidityAtEntry: 120000,
		EntrySignal:      "golden_cross",
	}
}

func TestCreatePositionAndVisit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePositionAndVisit(ctx, testPosition("m1")))

	open, err := s.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "m1", open[0].MarketID)
	assert.Equal(t, domain.PositionStatusOpen, open[0].Status)
	assert.True(t, open[0].SizeUSD.Equal(decimal.NewFromInt(10)), "size_usd 应往返一致")

	visited, err := s.IsVisited(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, visited, "建仓的同时应写入 visited 记录")
}

func TestAtMostOneOpenPositionPerMarket(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePositionAndVisit(ctx, testPosition("m1")))

	err := s.CreatePositionAndVisit(ctx, testPosition("m1"))
	require.Error(t, err, "同一市场第二条 open 仓位必须被拒绝")
	assert.True(t, errors.Is(err, ErrDuplicate), "错误应为 ErrDuplicate，实际为 %v", err)

	open, err := s.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1, "失败的事务不应留下多余行")
}

func TestClosePosition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := testPosition("m1")
	require.NoError(t, s.CreatePositionAndVisit(ctx, p))

	pnl := decimal.RequireFromString("0.81")
	exitAt := time.Now().UTC()
	require.NoError(t, s.ClosePosition(ctx, p.ID, 0.93, exitAt, domain.ExitReasonTakeProfit, "ord-2", pnl))

	got, err := s.PositionByMarket(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, got.Status)
	assert.Equal(t, domain.ExitReasonTakeProfit, got.ExitReason)
	assert.Equal(t, 0.93, got.ExitProbability)
	assert.True(t, got.RealizedPnL.Equal(pnl))

	// 平仓后 open 仓位为零，但 visited 记录仍然在
	n, err := s.OpenPositionCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	visited, err := s.IsVisited(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, visited, "visited 名单只进不出")
}

func TestClosePositionTwiceFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := testPosition("m1")
	require.NoError(t, s.CreatePositionAndVisit(ctx, p))
	require.NoError(t, s.ClosePosition(ctx, p.ID, 0.93, time.Now(), domain.ExitReasonTakeProfit, "ord-2", decimal.Zero))

	err := s.ClosePosition(ctx, p.ID, 0.95, time.Now(), domain.ExitReasonTargetReached, "ord-3", decimal.Zero)
	require.Error(t, err, "对已平仓仓位再次平仓应失败")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMarkVisitedIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkVisited(ctx, "m1", domain.VisitReasonRapidJump))
	require.NoError(t, s.MarkVisited(ctx, "m1", domain.VisitReasonTraded), "重复标记不应报错")

	all, err := s.VisitedMarkets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, domain.VisitReasonRapidJump, all[0].Reason, "首次写入的原因应保留")
}

func TestPositionByMarketNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.PositionByMarket(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSnapshotsSaveAndCleanup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	snaps := []domain.MarketSnapshot{
		{MarketID: "m1", TokenID: "t1", Probability: 0.86, Liquidity: 100000},
		{MarketID: "m2", TokenID: "t2", Probability: 0.90, Liquidity: 200000},
	}
	old := time.Now().Add(-8 * 24 * time.Hour)
	n, err := s.SaveSnapshots(ctx, snaps, old)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.SaveSnapshots(ctx, snaps[:1], time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deleted, err := s.CleanupSnapshots(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted, "应只删除超过保留期的行")
}

func TestCleanupSnapshotsSubSecondOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// 500ms 与 510ms 在同一秒内：裁零的时间格式会让
	// "…0.5Z" 的字典序大于 "…0.51Z"，定宽格式必须保持时间序
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	snaps := []domain.MarketSnapshot{{MarketID: "m1", TokenID: "t1", Probability: 0.9, Liquidity: 1000}}

	_, err := s.SaveSnapshots(ctx, snaps, base.Add(500*time.Millisecond))
	require.NoError(t, err)
	_, err = s.SaveSnapshots(ctx, snaps, base.Add(510*time.Millisecond))
	require.NoError(t, err)

	deleted, err := s.CleanupSnapshots(ctx, base.Add(510*time.Millisecond))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted, "只应删除早于截止时刻的那一行")
}

func TestOpenPositionsSubSecondOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	p1 := testPosition("m1")
	p1.EntryTime = base.Add(510 * time.Millisecond)
	p2 := testPosition("m2")
	p2.EntryTime = base.Add(500 * time.Millisecond)
	require.NoError(t, s.CreatePositionAndVisit(ctx, p1))
	require.NoError(t, s.CreatePositionAndVisit(ctx, p2))

	open, err := s.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "m2", open[0].MarketID, "亚秒级的 entry_time 排序应与时间序一致")
	assert.True(t, open[0].EntryTime.Equal(p2.EntryTime), "时间应精确往返")
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p1 := testPosition("m1")
	p2 := testPosition("m2")
	require.NoError(t, s.CreatePositionAndVisit(ctx, p1))
	require.NoError(t, s.CreatePositionAndVisit(ctx, p2))
	require.NoError(t, s.ClosePosition(ctx, p1.ID, 0.93, time.Now(), domain.ExitReasonTakeProfit, "ord", decimal.RequireFromString("0.81")))
	require.NoError(t, s.MarkVisited(ctx, "m3", domain.VisitReasonRapidJump))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalPositions)
	assert.Equal(t, 1, st.OpenPositions)
	assert.Equal(t, 1, st.ClosedPositions)
	assert.Equal(t, 3, st.VisitedMarkets)
	assert.True(t, st.TotalPnL.Equal(decimal.RequireFromString("0.81")))
}
