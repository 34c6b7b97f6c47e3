// Package retry 把指数退避重试收敛成一个显式的策略对象，
// 注入到每个外部调用点，而不是用装饰器包裹任意调用。
// 只有被标记为 transient 的失败会触发重试；其余错误原样返回。
package retry

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/pkg/errors"
)

// Policy 重试策略：最大尝试次数、基础延迟、延迟上限、抖动系数
type Policy struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	BaseDelay    time.Duration `yaml:"baseDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
	JitterFactor float64       `yaml:"jitterFactor"`
}

// Validate 校验策略参数
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return errors.Errorf("retry: maxAttempts 必须为正，实际为 %d", p.MaxAttempts)
	}
	if p.BaseDelay <= 0 || p.MaxDelay < p.BaseDelay {
		return errors.Errorf("retry: 延迟配置非法 base=%s max=%s", p.BaseDelay, p.MaxDelay)
	}
	if p.JitterFactor < 0 || p.JitterFactor >= 1 {
		return errors.Errorf("retry: jitterFactor 必须在 [0,1) 内，实际为 %f", p.JitterFactor)
	}
	return nil
}

// transientError 标记可重试的瞬时失败（超时、限流、5xx）
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient 把错误标记为瞬时失败，使其进入重试范围
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient 错误是否为瞬时失败。
// context 超时也按瞬时处理：外部调用超时 ≠ 成功但结果未知。
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Do 按策略执行 fn。瞬时失败按指数退避 + 抖动重试，
// 次数耗尽后返回最后一次的错误；非瞬时失败立即返回。
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	rp := retrypolicy.NewBuilder[T]().
		HandleIf(func(_ T, err error) bool {
			return IsTransient(err)
		}).
		WithBackoff(p.BaseDelay, p.MaxDelay).
		WithJitterFactor(p.JitterFactor).
		WithMaxAttempts(p.MaxAttempts).
		Build()

	return failsafe.With[T](rp).WithContext(ctx).Get(func() (T, error) {
		return fn(ctx)
	})
}
