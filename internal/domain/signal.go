package domain

// CrossState 双均线相对状态
type CrossState string

const (
	CrossStateBullish CrossState = "bullish" // 短均线显著高于长均线
	CrossStateBearish CrossState = "bearish" // 短均线显著低于长均线
	CrossStateNeutral CrossState = "neutral" // 差值在噪声带内
)

// CrossEvent 交叉事件，只在状态切换的那个采样点触发一次
type CrossEvent string

const (
	CrossEventGolden CrossEvent = "golden_cross"
	CrossEventDead   CrossEvent = "dead_cross"
	CrossEventNone   CrossEvent = "none"
)

// MomentumSignal 由概率历史推导出的方向信号（派生值，不落库）
type MomentumSignal struct {
	ShortAverage float64
	LongAverage  float64
	State        CrossState
	Event        CrossEvent
}

// Diff 短均线与长均线的差值
func (s MomentumSignal) Diff() float64 {
	return s.ShortAverage - s.LongAverage
}
