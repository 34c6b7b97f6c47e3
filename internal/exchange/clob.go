// Package exchange 封装撮合端：真实 CLOB 下单客户端与模拟撮合。
// 两者都实现同一套提交接口，返回错误一律视为未成交，
// 返回成交确认才允许状态机迁移。
package exchange

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/polybot/internal/domain"
	"github.com/betbot/polybot/pkg/retry"
	"github.com/betbot/polybot/pkg/secretstore"
)

var log = logrus.WithField("component", "exchange")

// ClobConfig CLOB 下单客户端配置
type ClobConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
	Retry   retry.Policy  `yaml:"retry"`
}

// ClobExecutor 真实 CLOB 撮合端。凭证在构造时注入，
// 不读进程全局环境变量。
type ClobExecutor struct {
	cfg    ClobConfig
	client *resty.Client
}

// NewClobExecutor 创建 CLOB 撮合端
func NewClobExecutor(cfg ClobConfig, creds secretstore.Credentials) *ClobExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	// ForceContentType：应答头不是 JSON 时也按 JSON 解析，
	// 解析不了就报错，不把零值应答当成订单被拒
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		ForceContentType("application/json").
		SetHeader("POLY-API-KEY", creds.APIKey).
		SetHeader("POLY-SECRET", creds.APISecret).
		SetHeader("POLY-PASSPHRASE", creds.Passphrase)
	return &ClobExecutor{cfg: cfg, client: client}
}

// orderPayload 提交给 CLOB 的市价单
type orderPayload struct {
	TokenID string `json:"tokenId"`
	Side    string `json:"side"`
	Size    string `json:"size"`
	Price   string `json:"price"`
	Type    string `json:"type"`
}

// orderResponse CLOB 的下单应答
type orderResponse struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderId"`
	Status   string `json:"status"`
	ErrorMsg string `json:"errorMsg"`
}

// SubmitBuy 提交买单
func (e *ClobExecutor) SubmitBuy(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	return e.submit(ctx, req)
}

// SubmitSell 提交卖单
func (e *ClobExecutor) SubmitSell(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	return e.submit(ctx, req)
}

func (e *ClobExecutor) submit(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	payload := orderPayload{
		TokenID: req.TokenID,
		Side:    string(req.Side),
		Size:    req.Shares.String(),
		Price:   decimalString(req.Probability),
		Type:    "FOK", // 全部成交或全部取消，避免部分成交的中间状态
	}

	out, err := retry.Do(ctx, e.cfg.Retry, func(ctx context.Context) (orderResponse, error) {
		var or orderResponse
		resp, err := e.client.R().
			SetContext(ctx).
			SetBody(payload).
			SetResult(&or).
			Post("/order")
		if err != nil {
			return or, retry.Transient(err)
		}
		if resp.StatusCode() == 429 || resp.StatusCode() >= 500 {
			return or, retry.Transient(errors.Errorf("clob 返回 %s", resp.Status()))
		}
		if resp.IsError() {
			return or, errors.Errorf("clob 返回 %s: %s", resp.Status(), resp.Body())
		}
		return or, nil
	})
	if err != nil {
		return domain.Fill{}, errors.Wrapf(err, "提交订单失败: market=%s side=%s", req.MarketID, req.Side)
	}
	if !out.Success {
		return domain.Fill{}, errors.Errorf("订单被拒绝: market=%s side=%s msg=%s", req.MarketID, req.Side, out.ErrorMsg)
	}

	log.Infof("订单成交: market=%s side=%s shares=%s price=%.4f order=%s",
		req.MarketID, req.Side, req.Shares, req.Probability, out.OrderID)
	return domain.Fill{
		OrderID:     out.OrderID,
		Probability: req.Probability,
		Shares:      req.Shares,
		Timestamp:   time.Now().UTC(),
	}, nil
}

func decimalString(p float64) string {
	return decimal.NewFromFloat(p).String()
}
