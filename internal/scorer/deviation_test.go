package scorer

import (
	"testing"
	"time"

	"neovance-monitor/internal/config"
	"neovance-monitor/internal/models"
	"neovance-monitor/internal/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScorer() *DeviationScorer {
	return NewDeviationScorer(config.DefaultProfiles(), config.Breakpoints{Warning: 10.0, Critical: 20.0})
}

func measurement(hr, spo2, rr, temp, mapVal float64) *models.Measurement {
	return &models.Measurement{
		MRN:       "B001",
		Timestamp: time.Now(),
		HeartRate: hr,
		SpO2:      spo2,
		RespRate:  rr,
		Temp:      temp,
		MAP:       mapVal,
	}
}

func TestScore_BaselineVitals_IsZero(t *testing.T) {
	s := newTestScorer()

	// 全部通道等于μ，分数为0，等级OK
	score, severity := s.Score(measurement(145, 95, 50, 37.0, 35), nil)

	assert.Equal(t, 0.0, score)
	assert.Equal(t, models.SeverityOK, severity)
}

func TestScore_MildDeviation_IsWarning(t *testing.T) {
	s := newTestScorer()

	// 手工验证值：1 + 3·1.2^4 + 1.5·0.5^2 + 1 + 2 = 10.6
	score, severity := s.Score(measurement(160, 92, 55, 37.5, 40), nil)

	assert.InDelta(t, 10.6, score, 0.01)
	assert.Equal(t, models.SeverityWarning, severity)
}

func TestScore_SepsisVitals_IsCritical(t *testing.T) {
	s := newTestScorer()

	// 血氧显著下降时其4次方项主导整体分数
	score, severity := s.Score(measurement(180, 85, 70, 36.0, 28), nil)

	assert.InDelta(t, 791.36, score, 0.01)
	assert.Equal(t, models.SeverityCritical, severity)
}

func TestScore_MonotoneInChannelDeviation(t *testing.T) {
	s := newTestScorer()

	// 固定其他通道，心率偏差逐步增大，分数单调不减
	prev := -1.0
	for _, hr := range []float64{145, 150, 155, 165, 180, 200, 220} {
		score, _ := s.Score(measurement(hr, 95, 50, 37.0, 35), nil)
		require.GreaterOrEqual(t, score, prev, "hr=%v", hr)
		prev = score
	}

	// 负方向同样单调
	prev = -1.0
	for _, spo2 := range []float64{95, 93, 90, 87, 82} {
		score, _ := s.Score(measurement(145, spo2, 50, 37.0, 35), nil)
		require.GreaterOrEqual(t, score, prev, "spo2=%v", spo2)
		prev = score
	}
}

func TestScore_UsesRollingStdDevWhenAvailable(t *testing.T) {
	s := newTestScorer()

	defaults := map[models.Channel]float64{
		models.ChannelHeartRate:       15.0,
		models.ChannelSpO2:            2.5,
		models.ChannelRespiratoryRate: 10.0,
		models.ChannelTemperature:     0.5,
		models.ChannelMAP:             5.0,
	}
	rolling := stats.NewRolling(time.Hour, defaults)
	now := time.Now()

	// 心率历史波动极小（σ≈2.1），同样的偏差被放大
	for i, v := range []float64{143, 145, 147, 144, 146, 148} {
		rolling.Record(models.ChannelHeartRate, v, now.Add(time.Duration(i)*time.Second))
	}

	withHistory, _ := s.Score(measurement(160, 95, 50, 37.0, 35), rolling)
	withDefaults, _ := s.Score(measurement(160, 95, 50, 37.0, 35), nil)

	assert.Greater(t, withHistory, withDefaults)
}

func TestScore_InsufficientHistory_FallsBackToDefaults(t *testing.T) {
	s := newTestScorer()

	rolling := stats.NewRolling(time.Hour, map[models.Channel]float64{
		models.ChannelHeartRate:       15.0,
		models.ChannelSpO2:            2.5,
		models.ChannelRespiratoryRate: 10.0,
		models.ChannelTemperature:     0.5,
		models.ChannelMAP:             5.0,
	})
	// 每通道只有1个样本，全部回退默认标准差
	now := time.Now()
	m := measurement(160, 92, 55, 37.5, 40)
	for _, ch := range models.Channels {
		rolling.Record(ch, m.Value(ch), now)
	}

	withRolling, _ := s.Score(m, rolling)
	withDefaults, _ := s.Score(m, nil)

	assert.Equal(t, withDefaults, withRolling)
}

func TestClassify_Breakpoints(t *testing.T) {
	s := newTestScorer()

	tests := []struct {
		score    float64
		expected models.Severity
	}{
		{0.0, models.SeverityOK},
		{10.0, models.SeverityOK},
		{10.01, models.SeverityWarning},
		{20.0, models.SeverityWarning},
		{20.01, models.SeverityCritical},
		{500.0, models.SeverityCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, s.Classify(tt.score), "score=%v", tt.score)
	}
}
