// Package store 实现按 job 分区的持仓存储（sqlite）。
// 每个 job 实例独占一个 db 文件，分区之间互不重叠，因此无需跨进程加锁。
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// timeFormat 定宽时间格式，纳秒补零。时间列按字符串比较
// （ts < ?、ORDER BY），RFC3339Nano 裁掉末尾零会让亚秒级的
// 字典序偏离时间序，必须定宽。
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("store: 记录不存在")

// ErrDuplicate 唯一约束冲突（同一市场重复建仓 / 重复 visited）
var ErrDuplicate = errors.New("store: 唯一约束冲突")

// Store 持仓存储。Position 与 VisitedMarket 的唯一持有者。
type Store struct {
	db      *sql.DB
	jobName string
}

// Open 打开（必要时创建）指定路径的分区数据库并执行迁移
func Open(path, jobName string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "创建数据目录失败")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "打开 sqlite 失败")
	}
	// 周期严格串行，单连接即可，同时规避 sqlite 写锁竞争
	db.SetMaxOpenConns(1)

	s := &Store{db: db, jobName: jobName}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close 关闭底层数据库
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`
CREATE TABLE IF NOT EXISTS positions (
  id TEXT PRIMARY KEY,
  market_id TEXT NOT NULL,
  slug TEXT,
  question TEXT,
  outcome TEXT,
  token_id TEXT NOT NULL,
  entry_probability REAL NOT NULL,
  entry_time TEXT NOT NULL,
  size_usd TEXT NOT NULL,
  shares TEXT NOT NULL,
  entry_order_id TEXT,
  status TEXT NOT NULL,
  exit_probability REAL,
  exit_time TEXT,
  exit_reason TEXT,
  exit_order_id TEXT,
  realized_pnl TEXT,
  liquidity_at_entry REAL,
  entry_signal TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		// 核心不变量：每个市场至多一条 open 仓位
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open_market ON positions(market_id) WHERE status='open';`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_market ON positions(market_id);`,
		`
CREATE TABLE IF NOT EXISTS visited_markets (
  market_id TEXT PRIMARY KEY,
  reason TEXT NOT NULL,
  visited_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS market_snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  market_id TEXT NOT NULL,
  probability REAL NOT NULL,
  liquidity REAL,
  ts TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_market_snapshots_market_ts ON market_snapshots(market_id, ts DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "迁移失败: %s", firstLine(stmt))
		}
	}
	return nil
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i > 0 {
		return stmt[:i]
	}
	return stmt
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}
