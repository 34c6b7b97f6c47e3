// Package marketdata 从 Gamma API 拉取活跃市场，从 CLOB 拉取概率历史，
// 组装成带历史序列的市场快照。脏数据在这里就地拒绝，
// 不让它进入决策逻辑。
package marketdata

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/polybot/internal/domain"
	"github.com/betbot/polybot/pkg/retry"
)

var log = logrus.WithField("component", "marketdata")

// Config 数据采集端配置
type Config struct {
	GammaBaseURL    string        `yaml:"gammaBaseUrl"`
	ClobBaseURL     string        `yaml:"clobBaseUrl"`
	PageLimit       int           `yaml:"pageLimit"`       // 每页市场数
	FidelityMinutes int           `yaml:"fidelityMinutes"` // 历史采样间隔（分钟）
	HistoryHours    int           `yaml:"historyHours"`    // 拉取多长的历史
	Timeout         time.Duration `yaml:"timeout"`
	Retry           retry.Policy  `yaml:"retry"`
}

// gammaMarket Gamma API 返回的市场行
type gammaMarket struct {
	ConditionID   string  `json:"conditionId"`
	Question      string  `json:"question"`
	Slug          string  `json:"slug"`
	Category      string  `json:"category"`
	LiquidityNum  float64 `json:"liquidityNum"`
	Outcomes      string  `json:"outcomes"`      // JSON 编码的字符串数组
	OutcomePrices string  `json:"outcomePrices"` // JSON 编码的字符串数组
	ClobTokenIDs  string  `json:"clobTokenIds"`  // JSON 编码的字符串数组
}

// pricePoint CLOB prices-history 返回的采样点
type pricePoint struct {
	T int64   `json:"t"`
	P float64 `json:"p"`
}

type priceHistory struct {
	History []pricePoint `json:"history"`
}

// Client 市场数据采集端
type Client struct {
	cfg   Config
	gamma *resty.Client
	clob  *resty.Client
}

// NewClient 创建采集端。resty 会自动读取环境变量中的代理配置。
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	// ForceContentType：响应头不是 JSON 也按 JSON 解析。
	// 否则 200 + 错误 content type 会让结果保持零值，
	// 一页市场就这样无声消失。解析失败必须是错误。
	return &Client{
		cfg: cfg,
		gamma: resty.New().SetBaseURL(cfg.GammaBaseURL).SetTimeout(cfg.Timeout).
			ForceContentType("application/json"),
		clob: resty.New().SetBaseURL(cfg.ClobBaseURL).SetTimeout(cfg.Timeout).
			ForceContentType("application/json"),
	}
}

// Snapshots 拉取全部活跃市场并组装快照。
// 单个市场的数据问题（字段缺失、历史拉取失败）只记日志并跳过，
// 不让一个坏市场拖垮整个周期。
func (c *Client) Snapshots(ctx context.Context) ([]domain.MarketSnapshot, error) {
	markets, err := c.fetchActiveMarkets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "拉取市场列表失败")
	}

	var snaps []domain.MarketSnapshot
	for i := range markets {
		snap, err := c.buildSnapshot(ctx, &markets[i])
		if err != nil {
			log.Warnf("市场数据不可用，跳过: market=%s err=%v", markets[i].ConditionID, err)
			continue
		}
		if err := snap.Validate(); err != nil {
			log.Warnf("市场快照校验失败，跳过: %v", err)
			continue
		}
		snaps = append(snaps, *snap)
	}

	log.Infof("快照组装完成: 市场 %d 个, 有效快照 %d 个", len(markets), len(snaps))
	return snaps, nil
}

// fetchActiveMarkets 分页拉取未关闭的活跃市场
func (c *Client) fetchActiveMarkets(ctx context.Context) ([]gammaMarket, error) {
	var all []gammaMarket
	for offset := 0; ; offset += c.cfg.PageLimit {
		page, err := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) ([]gammaMarket, error) {
			var out []gammaMarket
			resp, err := c.gamma.R().
				SetContext(ctx).
				SetQueryParams(map[string]string{
					"active": "true",
					"closed": "false",
					"limit":  strconv.Itoa(c.cfg.PageLimit),
					"offset": strconv.Itoa(offset),
				}).
				SetResult(&out).
				Get("/markets")
			if err != nil {
				return nil, retry.Transient(err)
			}
			if resp.StatusCode() == 429 || resp.StatusCode() >= 500 {
				return nil, retry.Transient(errors.Errorf("gamma 返回 %s", resp.Status()))
			}
			if resp.IsError() {
				return nil, errors.Errorf("gamma 返回 %s: %s", resp.Status(), resp.Body())
			}
			return out, nil
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < c.cfg.PageLimit {
			return all, nil
		}
	}
}

// fetchHistory 拉取单个 token 的概率历史
func (c *Client) fetchHistory(ctx context.Context, tokenID string) ([]domain.ProbabilityPoint, error) {
	hist, err := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) (priceHistory, error) {
		var out priceHistory
		resp, err := c.clob.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"market":   tokenID,
				"fidelity": strconv.Itoa(c.cfg.FidelityMinutes),
				"startTs":  strconv.FormatInt(time.Now().Add(-time.Duration(c.cfg.HistoryHours)*time.Hour).Unix(), 10),
			}).
			SetResult(&out).
			Get("/prices-history")
		if err != nil {
			return out, retry.Transient(err)
		}
		if resp.StatusCode() == 429 || resp.StatusCode() >= 500 {
			return out, retry.Transient(errors.Errorf("clob 返回 %s", resp.Status()))
		}
		if resp.IsError() {
			return out, errors.Errorf("clob 返回 %s: %s", resp.Status(), resp.Body())
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	points := make([]domain.ProbabilityPoint, 0, len(hist.History))
	for _, p := range hist.History {
		points = append(points, domain.ProbabilityPoint{
			Timestamp:   time.Unix(p.T, 0).UTC(),
			Probability: p.P,
		})
	}
	return points, nil
}

// buildSnapshot 把 Gamma 市场行与 CLOB 历史拼成一个快照，
// 取概率更高的一侧作为操作方向。
func (c *Client) buildSnapshot(ctx context.Context, m *gammaMarket) (*domain.MarketSnapshot, error) {
	outcomes, err := decodeStringArray(m.Outcomes)
	if err != nil {
		return nil, errors.Wrap(err, "解析 outcomes 失败")
	}
	prices, err := decodeFloatArray(m.OutcomePrices)
	if err != nil {
		return nil, errors.Wrap(err, "解析 outcomePrices 失败")
	}
	tokens, err := decodeStringArray(m.ClobTokenIDs)
	if err != nil {
		return nil, errors.Wrap(err, "解析 clobTokenIds 失败")
	}
	if len(outcomes) != 2 || len(prices) != 2 || len(tokens) != 2 {
		return nil, errors.Errorf("二元市场应有两侧，实际 outcomes=%d prices=%d tokens=%d",
			len(outcomes), len(prices), len(tokens))
	}

	// 取高概率一侧
	side := 0
	if prices[1] > prices[0] {
		side = 1
	}

	history, err := c.fetchHistory(ctx, tokens[side])
	if err != nil {
		return nil, errors.Wrap(err, "拉取概率历史失败")
	}

	return &domain.MarketSnapshot{
		MarketID:    m.ConditionID,
		Slug:        m.Slug,
		Question:    m.Question,
		Outcome:     outcomes[side],
		TokenID:     tokens[side],
		Probability: prices[side],
		Liquidity:   m.LiquidityNum,
		Category:    m.Category,
		History:     history,
	}, nil
}

// decodeStringArray Gamma 把数组编码成 JSON 字符串，如 `["Yes","No"]`
func decodeStringArray(raw string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeFloatArray 价格数组元素是字符串数字，如 `["0.86","0.14"]`
func decodeFloatArray(raw string) ([]float64, error) {
	var strs []string
	if err := json.Unmarshal([]byte(raw), &strs); err != nil {
		return nil, err
	}
	out := make([]float64, len(strs))
	for i, s := range strs {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
