package domain

import "github.com/shopspring/decimal"

// OrderSide 订单方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderRequest 提交给撮合端的订单。Probability 是提交时刻的市场概率，
// 真实撮合端把它当限价参考，模拟撮合端直接按它成交。
type OrderRequest struct {
	MarketID    string
	TokenID     string
	Side        OrderSide
	Shares      decimal.Decimal
	Probability float64
}
