package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ProbabilityPoint 概率时间序列中的一个采样点
type ProbabilityPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Probability float64   `json:"probability"`
}

// MarketSnapshot 单个市场在某次扫描时刻的快照。
// 由市场数据采集端在每个周期重新生成，核心只保留动量计算所需的历史序列。
type MarketSnapshot struct {
	MarketID    string             `json:"marketId"` // 稳定市场标识（conditionId）
	Slug        string             `json:"slug"`
	Question    string             `json:"question"`
	Outcome     string             `json:"outcome"` // 高概率一侧，"Yes" 或 "No"
	TokenID     string             `json:"tokenId"` // 下单用 token
	Probability float64            `json:"probability"`
	Liquidity   float64            `json:"liquidity"`
	Category    string             `json:"category"`
	History     []ProbabilityPoint `json:"history"` // 固定采样间隔，时间升序，最新在最后
}

// Validate 在数据入口处校验快照字段，缺失/非法字段直接拒绝，
// 不让脏数据进入决策逻辑深处。
func (s *MarketSnapshot) Validate() error {
	if strings.TrimSpace(s.MarketID) == "" {
		return errors.New("市场快照缺少 marketId")
	}
	if strings.TrimSpace(s.TokenID) == "" {
		return errors.Errorf("市场快照缺少 tokenId: market=%s", s.MarketID)
	}
	if s.Probability < 0 || s.Probability > 1 {
		return errors.Errorf("概率超出 [0,1] 范围: market=%s probability=%f", s.MarketID, s.Probability)
	}
	if s.Liquidity < 0 {
		return errors.Errorf("流动性为负: market=%s liquidity=%f", s.MarketID, s.Liquidity)
	}
	for i := 1; i < len(s.History); i++ {
		if s.History[i].Timestamp.Before(s.History[i-1].Timestamp) {
			return errors.Errorf("概率历史未按时间升序: market=%s index=%d", s.MarketID, i)
		}
	}
	return nil
}
