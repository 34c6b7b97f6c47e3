// Package notify 把买卖事件以 webhook 方式推送出去（Slack 兼容格式）。
// 通知是尽力而为：推送失败只记日志，绝不回滚或阻塞交易状态。
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/polybot/internal/domain"
)

var log = logrus.WithField("component", "notify")

// Notifier 事件推送接口，bot 在状态迁移完成后调用
type Notifier interface {
	NotifyBuy(ctx context.Context, pos *domain.Position)
	NotifySell(ctx context.Context, pos *domain.Position, reason domain.ExitReason, pnl decimal.Decimal)
}

// Webhook 基于 HTTP webhook 的通知端
type Webhook struct {
	url    string
	client *resty.Client
}

// NewWebhook 创建通知端。url 为空时返回 nil，调用方应改用 Noop。
func NewWebhook(url string) *Webhook {
	if url == "" {
		return nil
	}
	return &Webhook{
		url:    url,
		client: resty.New().SetTimeout(10 * time.Second),
	}
}

type webhookMessage struct {
	Text string `json:"text"`
}

// NotifyBuy 推送建仓事件
func (w *Webhook) NotifyBuy(ctx context.Context, pos *domain.Position) {
	w.post(ctx, fmt.Sprintf(":chart_with_upwards_trend: 建仓 %s (%s) @ %.4f, %s 份, $%s",
		pos.Question, pos.Outcome, pos.EntryProbability, pos.Shares, pos.SizeUSD))
}

// NotifySell 推送平仓事件
func (w *Webhook) NotifySell(ctx context.Context, pos *domain.Position, reason domain.ExitReason, pnl decimal.Decimal) {
	emoji := ":moneybag:"
	if pnl.IsNegative() {
		emoji = ":small_red_triangle_down:"
	}
	w.post(ctx, fmt.Sprintf("%s 平仓 %s (%s): %s, PnL $%s",
		emoji, pos.Question, pos.Outcome, reason, pnl))
}

func (w *Webhook) post(ctx context.Context, text string) {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(webhookMessage{Text: text}).
		Post(w.url)
	if err != nil {
		log.Warnf("推送通知失败: %v", err)
		return
	}
	if resp.IsError() {
		log.Warnf("推送通知被拒绝: %s", resp.Status())
	}
}

// Noop 空通知端，未配置 webhook 时使用
type Noop struct{}

func (Noop) NotifyBuy(context.Context, *domain.Position) {}
func (Noop) NotifySell(context.Context, *domain.Position, domain.ExitReason, decimal.Decimal) {
}
