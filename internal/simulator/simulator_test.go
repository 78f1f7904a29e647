package simulator

import (
	"math/rand"
	"testing"
	"time"

	"neovance-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBase = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func newTestSimulator(ga float64, seed int64) *Simulator {
	return NewSimulator(ga, DefaultConfig(), rand.New(rand.NewSource(seed)), testBase)
}

func TestNewSimulator_BaselineWithinRange(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		s := newTestSimulator(36.0, seed)
		r := RangesForGA(36.0)
		cur := s.Current()

		assert.Equal(t, StateStable, s.State())
		assert.GreaterOrEqual(t, cur[models.ChannelHeartRate], r.HRMin)
		assert.LessOrEqual(t, cur[models.ChannelHeartRate], r.HRMax)
		assert.GreaterOrEqual(t, cur[models.ChannelSpO2], r.SpO2Min)
		assert.LessOrEqual(t, cur[models.ChannelSpO2], r.SpO2Max)
		assert.GreaterOrEqual(t, cur[models.ChannelTemperature], r.TempMin)
		assert.LessOrEqual(t, cur[models.ChannelTemperature], r.TempMax)
	}
}

func TestRangesForGA_Bands(t *testing.T) {
	assert.Equal(t, 120.0, RangesForGA(28.0).HRMin)
	assert.Equal(t, 115.0, RangesForGA(34.2).HRMin)
	assert.Equal(t, 110.0, RangesForGA(39.0).HRMin)
	// 边界：37.0落入足月段
	assert.Equal(t, 110.0, RangesForGA(37.0).HRMin)
}

func TestNext_StableStaysWithinHardLimits(t *testing.T) {
	s := newTestSimulator(34.2, 7)

	now := testBase
	for i := 0; i < 500; i++ {
		now = now.Add(3 * time.Second)
		vals := s.Next(now)
		for ch, v := range vals {
			lim := hardLimits[ch]
			require.GreaterOrEqual(t, v, lim.min, "channel=%s tick=%d", ch, i)
			require.LessOrEqual(t, v, lim.max, "channel=%s tick=%d", ch, i)
		}
	}
	assert.Equal(t, StateStable, s.State())
}

func TestTrigger_EntersDeteriorating(t *testing.T) {
	s := newTestSimulator(39.0, 1)

	s.Trigger(testBase)

	assert.Equal(t, StateDeteriorating, s.State())
	assert.InDelta(t, 10.0, s.MinutesSinceOnset(testBase.Add(10*time.Minute)), 0.001)
}

func TestTrigger_IsIdempotentDuringEpisode(t *testing.T) {
	s := newTestSimulator(39.0, 1)

	s.Trigger(testBase)
	// 发作中重复触发不重置发作计时
	s.Trigger(testBase.Add(20 * time.Minute))

	assert.InDelta(t, 30.0, s.MinutesSinceOnset(testBase.Add(30*time.Minute)), 0.001)
}

func TestNext_AutoEscalatesToAcute(t *testing.T) {
	s := newTestSimulator(39.0, 2)

	s.Trigger(testBase)
	s.Next(testBase.Add(44 * time.Minute))
	assert.Equal(t, StateDeteriorating, s.State())

	s.Next(testBase.Add(46 * time.Minute))
	assert.Equal(t, StateAcute, s.State())
}

func TestNext_EpisodeDrivesTachycardia(t *testing.T) {
	s := newTestSimulator(39.0, 3)
	r := RangesForGA(39.0)

	s.Trigger(testBase)

	// 发作35分钟后持续推进，心率应收敛到正常上限之上
	now := testBase.Add(35 * time.Minute)
	var hr float64
	for i := 0; i < 60; i++ {
		now = now.Add(3 * time.Second)
		hr = s.Next(now)[models.ChannelHeartRate]
	}

	assert.Greater(t, hr, r.HRMax)
}

func TestNext_TemperaturePatternFixedForEpisode(t *testing.T) {
	r := RangesForGA(39.0)

	// 多个种子下分别验证：单次发作内体温方向不翻转
	for seed := int64(0); seed < 10; seed++ {
		s := newTestSimulator(39.0, seed)
		s.Trigger(testBase)

		now := testBase.Add(35 * time.Minute)
		// 先收敛
		for i := 0; i < 60; i++ {
			now = now.Add(3 * time.Second)
			s.Next(now)
		}

		first := s.Current()[models.ChannelTemperature] > (r.TempMin+r.TempMax)/2
		for i := 0; i < 40; i++ {
			now = now.Add(3 * time.Second)
			temp := s.Next(now)[models.ChannelTemperature]
			require.Equal(t, first, temp > (r.TempMin+r.TempMax)/2,
				"seed=%d tick=%d temp=%v", seed, i, temp)
		}
	}
}

func TestNext_EpisodeCorrelationsPushHeartRateUp(t *testing.T) {
	s := newTestSimulator(30.0, 5)

	s.Trigger(testBase)

	// 极早产儿发作晚期：低氧与低血压叠加，心率逼近上限
	now := testBase.Add(40 * time.Minute)
	for i := 0; i < 80; i++ {
		now = now.Add(3 * time.Second)
		s.Next(now)
	}

	cur := s.Current()
	require.Less(t, cur[models.ChannelSpO2], 90.0)
	assert.Greater(t, cur[models.ChannelHeartRate], RangesForGA(30.0).HRMax+20)
}

func TestReset_ReturnsToStableBaseline(t *testing.T) {
	s := newTestSimulator(39.0, 4)
	r := RangesForGA(39.0)

	s.Trigger(testBase)
	now := testBase.Add(50 * time.Minute)
	for i := 0; i < 40; i++ {
		now = now.Add(3 * time.Second)
		s.Next(now)
	}
	require.Equal(t, StateAcute, s.State())

	s.Reset(now)

	assert.Equal(t, StateStable, s.State())
	assert.Equal(t, 0.0, s.MinutesSinceOnset(now))
	cur := s.Current()
	assert.GreaterOrEqual(t, cur[models.ChannelHeartRate], r.HRMin)
	assert.LessOrEqual(t, cur[models.ChannelHeartRate], r.HRMax)
}

func TestStartRecovery_OnlyFromEpisode(t *testing.T) {
	s := newTestSimulator(39.0, 6)

	// STABLE状态下无效
	s.StartRecovery(testBase)
	assert.Equal(t, StateStable, s.State())

	s.Trigger(testBase)
	s.StartRecovery(testBase.Add(10 * time.Minute))
	assert.Equal(t, StateRecovering, s.State())
}

func TestNext_RecoveryConvergesToStable(t *testing.T) {
	s := newTestSimulator(39.0, 8)

	s.Trigger(testBase)
	now := testBase.Add(30 * time.Minute)
	for i := 0; i < 40; i++ {
		now = now.Add(3 * time.Second)
		s.Next(now)
	}

	s.StartRecovery(now)
	require.Equal(t, StateRecovering, s.State())

	// 误差衰减反馈收敛后通过稳定判定回到STABLE
	recovered := false
	for i := 0; i < 300; i++ {
		now = now.Add(3 * time.Second)
		s.Next(now)
		if s.State() == StateStable {
			recovered = true
			break
		}
	}
	assert.True(t, recovered, "recovery did not converge")
}

func TestProgression_MonotoneAndBounded(t *testing.T) {
	prev := -1.0
	for m := 0.0; m <= 90.0; m += 0.5 {
		p := progression(m)
		require.GreaterOrEqual(t, p, prev, "minutes=%v", m)
		require.GreaterOrEqual(t, p, 0.0)
		require.LessOrEqual(t, p, 1.0)
		prev = p
	}

	assert.InDelta(t, 0.2, progression(5), 0.001)
	assert.InDelta(t, 0.6, progression(15), 0.001)
	assert.InDelta(t, 0.9, progression(30), 0.001)
	assert.Equal(t, 1.0, progression(60))
}
