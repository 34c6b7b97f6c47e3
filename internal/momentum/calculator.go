package momentum

import (
	"github.com/pkg/errors"

	"github.com/betbot/polybot/internal/domain"
)

// ErrInsufficientData 历史样本不足以覆盖长窗口。
// 这不是故障：调用方应把该市场视为本周期不可操作，静默跳过。
var ErrInsufficientData = errors.New("momentum: 历史样本不足")

// Config 动量计算配置
type Config struct {
	ShortWindow     int     `yaml:"shortWindow"`
	LongWindow      int     `yaml:"longWindow"`
	GoldenThreshold float64 `yaml:"goldenThreshold"` // 正 epsilon，防止零附近抖动
	DeadThreshold   float64 `yaml:"deadThreshold"`   // 负 epsilon
}

// Validate 校验窗口与阈值，非法配置在启动时就失败
func (c *Config) Validate() error {
	if c.ShortWindow <= 0 {
		return errors.Errorf("momentum: shortWindow 必须为正，实际为 %d", c.ShortWindow)
	}
	if c.ShortWindow >= c.LongWindow {
		return errors.Errorf("momentum: shortWindow(%d) 必须小于 longWindow(%d)", c.ShortWindow, c.LongWindow)
	}
	if c.GoldenThreshold <= 0 {
		return errors.Errorf("momentum: goldenThreshold 必须为正 epsilon，实际为 %f", c.GoldenThreshold)
	}
	if c.DeadThreshold >= 0 {
		return errors.Errorf("momentum: deadThreshold 必须为负 epsilon，实际为 %f", c.DeadThreshold)
	}
	return nil
}

// Calculator 双窗口动量计算器。纯计算，无 I/O。
type Calculator struct {
	cfg Config
}

// NewCalculator 创建计算器（配置需已通过 Validate）
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Signal 对概率历史计算动量信号。
// 历史长度不足 longWindow 时返回 ErrInsufficientData。
// 交叉事件是边沿触发：只有状态相对上一采样点发生切换时才给出
// golden_cross / dead_cross；状态持续多个周期不会重复触发。
// 上一采样点状态不可计算（恰好只有 longWindow 个样本）时事件为 none，
// 不从未知状态凭空触发。
func (c *Calculator) Signal(history []domain.ProbabilityPoint) (domain.MomentumSignal, error) {
	n := len(history)
	if n < c.cfg.LongWindow {
		return domain.MomentumSignal{}, errors.Wrapf(ErrInsufficientData,
			"样本 %d 个，长窗口需要 %d 个", n, c.cfg.LongWindow)
	}

	shortAvg := tailMean(history, n, c.cfg.ShortWindow)
	longAvg := tailMean(history, n, c.cfg.LongWindow)
	state := c.classify(shortAvg - longAvg)

	event := domain.CrossEventNone
	if n > c.cfg.LongWindow {
		prevShort := tailMean(history, n-1, c.cfg.ShortWindow)
		prevLong := tailMean(history, n-1, c.cfg.LongWindow)
		prevState := c.classify(prevShort - prevLong)
		switch {
		case state == domain.CrossStateBullish && prevState != domain.CrossStateBullish:
			event = domain.CrossEventGolden
		case state == domain.CrossStateBearish && prevState != domain.CrossStateBearish:
			event = domain.CrossEventDead
		}
	}

	return domain.MomentumSignal{
		ShortAverage: shortAvg,
		LongAverage:  longAvg,
		State:        state,
		Event:        event,
	}, nil
}

// classify 按 epsilon 噪声带划分交叉状态
func (c *Calculator) classify(diff float64) domain.CrossState {
	switch {
	case diff > c.cfg.GoldenThreshold:
		return domain.CrossStateBullish
	case diff < c.cfg.DeadThreshold:
		return domain.CrossStateBearish
	default:
		return domain.CrossStateNeutral
	}
}

// tailMean 以 end（不含）为终点，取最近 window 个样本的算术平均
func tailMean(history []domain.ProbabilityPoint, end, window int) float64 {
	sum := 0.0
	for i := end - window; i < end; i++ {
		sum += history[i].Probability
	}
	return sum / float64(window)
}
