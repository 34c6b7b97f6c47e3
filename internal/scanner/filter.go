package scanner

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/betbot/polybot/internal/domain"
)

// FilterConfig 市场准入规则配置
type FilterConfig struct {
	BuyThreshold       float64  `yaml:"buyThreshold"`        // 概率下限
	UpperBound         float64  `yaml:"upperBoundProbability"` // 概率上限
	MinLiquidity       float64  `yaml:"minLiquidity"`
	ExcludedCategories []string `yaml:"excludedCategories"`
}

// Validate 校验准入规则配置
func (c *FilterConfig) Validate() error {
	if c.BuyThreshold <= 0 || c.BuyThreshold >= 1 {
		return errors.Errorf("scanner: buyThreshold 必须在 (0,1) 内，实际为 %f", c.BuyThreshold)
	}
	if c.UpperBound <= c.BuyThreshold || c.UpperBound > 1 {
		return errors.Errorf("scanner: upperBoundProbability(%f) 必须大于 buyThreshold(%f) 且不超过 1",
			c.UpperBound, c.BuyThreshold)
	}
	if c.MinLiquidity < 0 {
		return errors.Errorf("scanner: minLiquidity 不能为负，实际为 %f", c.MinLiquidity)
	}
	return nil
}

// Eligible 纯谓词：快照是否满足准入规则（概率区间、流动性下限、类别排除）。
// 无副作用、无 I/O，相同输入恒定输出。
func Eligible(snap *domain.MarketSnapshot, cfg FilterConfig) bool {
	if snap.Probability < cfg.BuyThreshold || snap.Probability > cfg.UpperBound {
		return false
	}
	if snap.Liquidity < cfg.MinLiquidity {
		return false
	}
	return !categoryExcluded(snap.Category, cfg.ExcludedCategories)
}

func categoryExcluded(category string, excluded []string) bool {
	c := strings.ToLower(strings.TrimSpace(category))
	for _, e := range excluded {
		if c == strings.ToLower(strings.TrimSpace(e)) {
			return true
		}
	}
	return false
}
