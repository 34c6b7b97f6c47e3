package momentum

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/polybot/internal/domain"
)

func testConfig() Config {
	return Config{
		ShortWindow:     2,
		LongWindow:      4,
		GoldenThreshold: 0.02,
		DeadThreshold:   -0.02,
	}
}

// mkHistory 按固定 5 分钟采样间隔构造概率历史
func mkHistory(probs ...float64) []domain.ProbabilityPoint {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.ProbabilityPoint, len(probs))
	for i, p := range probs {
		out[i] = domain.ProbabilityPoint{
			Timestamp:   base.Add(time.Duration(i) * 5 * time.Minute),
			Probability: p,
		}
	}
	return out
}

func TestSignalInsufficientData(t *testing.T) {
	calc := NewCalculator(testConfig())

	for _, n := range []int{0, 1, 2, 3} {
		probs := make([]float64, n)
		for i := range probs {
			probs[i] = 0.8
		}
		_, err := calc.Signal(mkHistory(probs...))
		if !errors.Is(err, ErrInsufficientData) {
			t.Errorf("样本 %d 个时应返回 ErrInsufficientData，实际为 %v", n, err)
		}
	}
}

func TestSignalGoldenCrossScenario(t *testing.T) {
	// 平稳后跳涨：短均线 0.88、长均线 0.84 → bullish；
	// 上一采样点差值 0.015 在噪声带内（neutral）→ golden_cross 触发。
	// 差值必须明显偏离阈值，贴着 0.02 会被浮点误差翻转。
	calc := NewCalculator(testConfig())

	sig, err := calc.Signal(mkHistory(0.80, 0.80, 0.80, 0.86, 0.90))
	if err != nil {
		t.Fatalf("Signal 返回错误: %v", err)
	}
	if math.Abs(sig.ShortAverage-0.88) > 1e-9 {
		t.Errorf("短均线应为 0.88，实际为 %f", sig.ShortAverage)
	}
	if math.Abs(sig.LongAverage-0.84) > 1e-9 {
		t.Errorf("长均线应为 0.84，实际为 %f", sig.LongAverage)
	}
	if sig.State != domain.CrossStateBullish {
		t.Errorf("状态应为 bullish，实际为 %s", sig.State)
	}
	if sig.Event != domain.CrossEventGolden {
		t.Errorf("事件应为 golden_cross，实际为 %s", sig.Event)
	}
}

func TestSignalGoldenCrossFiresOnce(t *testing.T) {
	// 状态持续 bullish 多个周期时，事件只在切换的那个采样点触发一次
	calc := NewCalculator(testConfig())
	probs := []float64{0.80, 0.80, 0.80, 0.80, 0.80, 0.80, 0.90, 0.90, 0.90, 0.90, 0.90, 0.90}

	golden := 0
	for k := testConfig().LongWindow; k <= len(probs); k++ {
		sig, err := calc.Signal(mkHistory(probs[:k]...))
		if err != nil {
			t.Fatalf("第 %d 个样本时 Signal 返回错误: %v", k, err)
		}
		if sig.Event == domain.CrossEventGolden {
			golden++
		}
	}
	if golden != 1 {
		t.Errorf("golden_cross 应恰好触发 1 次，实际触发 %d 次", golden)
	}
}

func TestSignalDeadCrossFiresOnce(t *testing.T) {
	calc := NewCalculator(testConfig())
	probs := []float64{0.90, 0.90, 0.90, 0.90, 0.90, 0.90, 0.78, 0.78, 0.78, 0.78, 0.78}

	dead := 0
	for k := testConfig().LongWindow; k <= len(probs); k++ {
		sig, err := calc.Signal(mkHistory(probs[:k]...))
		if err != nil {
			t.Fatalf("第 %d 个样本时 Signal 返回错误: %v", k, err)
		}
		if sig.Event == domain.CrossEventDead {
			dead++
		}
	}
	if dead != 1 {
		t.Errorf("dead_cross 应恰好触发 1 次，实际触发 %d 次", dead)
	}
}

func TestSignalNoEventAtExactLongWindow(t *testing.T) {
	// 样本数恰好等于长窗口时，上一采样点状态不可计算，不触发事件
	calc := NewCalculator(testConfig())

	sig, err := calc.Signal(mkHistory(0.70, 0.70, 0.90, 0.90))
	if err != nil {
		t.Fatalf("Signal 返回错误: %v", err)
	}
	if sig.State != domain.CrossStateBullish {
		t.Errorf("状态应为 bullish，实际为 %s", sig.State)
	}
	if sig.Event != domain.CrossEventNone {
		t.Errorf("样本恰好等于长窗口时事件应为 none，实际为 %s", sig.Event)
	}
}

func TestSignalNeutralBand(t *testing.T) {
	// 差值落在 epsilon 噪声带内时保持 neutral，不随噪声抖动
	calc := NewCalculator(testConfig())

	sig, err := calc.Signal(mkHistory(0.80, 0.80, 0.80, 0.81, 0.80))
	if err != nil {
		t.Fatalf("Signal 返回错误: %v", err)
	}
	if sig.State != domain.CrossStateNeutral {
		t.Errorf("状态应为 neutral，实际为 %s", sig.State)
	}
	if sig.Event != domain.CrossEventNone {
		t.Errorf("事件应为 none，实际为 %s", sig.Event)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := testConfig()
	if err := valid.Validate(); err != nil {
		t.Errorf("有效配置验证失败: %v", err)
	}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"短窗口为零", Config{ShortWindow: 0, LongWindow: 4, GoldenThreshold: 0.02, DeadThreshold: -0.02}},
		{"短窗口不小于长窗口", Config{ShortWindow: 4, LongWindow: 4, GoldenThreshold: 0.02, DeadThreshold: -0.02}},
		{"金叉阈值非正", Config{ShortWindow: 2, LongWindow: 4, GoldenThreshold: 0, DeadThreshold: -0.02}},
		{"死叉阈值非负", Config{ShortWindow: 2, LongWindow: 4, GoldenThreshold: 0.02, DeadThreshold: 0}},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Errorf("%s 应该验证失败", tc.name)
		}
	}
}
