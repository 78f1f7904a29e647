// Package scorer 实现两种风险评分模型：
// 基于滚动统计的加权偏差评分，以及无状态的EOS乘法规则评分
package scorer

import (
	"math"

	"neovance-monitor/internal/config"
	"neovance-monitor/internal/models"
	"neovance-monitor/internal/stats"
)

// DeviationScorer 加权偏差风险评分器
// 公式: risk = Σ W·(|x−μ|/σ)^P，σ 来自滚动统计，不足时用通道默认值
type DeviationScorer struct {
	profiles    map[models.Channel]config.RiskProfile
	breakpoints config.Breakpoints
}

// NewDeviationScorer 创建偏差评分器
func NewDeviationScorer(profiles map[models.Channel]config.RiskProfile, bp config.Breakpoints) *DeviationScorer {
	return &DeviationScorer{
		profiles:    profiles,
		breakpoints: bp,
	}
}

// Score 计算单次测量的风险分数（保留2位小数）并映射到风险等级
// 单个通道取σ失败时替换为默认标准差继续计算，不中断整体评分
func (s *DeviationScorer) Score(m *models.Measurement, rolling *stats.Rolling) (float64, models.Severity) {
	var total float64

	for _, ch := range models.Channels {
		profile, ok := s.profiles[ch]
		if !ok {
			// 未配置的通道不参与评分
			continue
		}

		sd := profile.DefaultSD
		if rolling != nil {
			if v := rolling.StdDev(ch); v > 0 && !math.IsNaN(v) {
				sd = v
			}
		}
		if sd <= 0 {
			sd = 1.0
		}

		normalized := math.Abs(m.Value(ch)-profile.Mu) / sd
		total += profile.Weight * math.Pow(normalized, profile.Power)
	}

	score := math.Round(total*100) / 100
	return score, s.Classify(score)
}

// Classify 按配置断点映射风险等级
func (s *DeviationScorer) Classify(score float64) models.Severity {
	switch {
	case score > s.breakpoints.Critical:
		return models.SeverityCritical
	case score > s.breakpoints.Warning:
		return models.SeverityWarning
	default:
		return models.SeverityOK
	}
}
