// Package simulator 实现单个患者的临床状态机与生命体征生成
// 状态机: STABLE ⇄ DETERIORATING → ACUTE → RECOVERING → STABLE
package simulator

import (
	"math"
	"math/rand"
	"time"

	"neovance-monitor/internal/models"
)

// State 患者临床状态
type State string

const (
	StateStable        State = "stable"
	StateDeteriorating State = "deteriorating"
	StateAcute         State = "acute"
	StateRecovering    State = "recovering"
)

// 发作期体温模式，进入发作期时随机选定，整个发作期内固定不变
type episodePattern int

const (
	patternNone episodePattern = iota
	patternFever
	patternHypothermia
)

// Config 状态机与数值生成参数
type Config struct {
	AcuteAfter         time.Duration // DETERIORATING持续超过该时长自动进入ACUTE
	Momentum           float64       // 数值惯性系数，新值 = 旧值·m + 目标·(1−m)
	PlateauProbability float64       // STABLE状态下通道保持上一读数不变的概率
	RecoveryRate       float64       // RECOVERING状态的误差衰减速率
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		AcuteAfter:         45 * time.Minute,
		Momentum:           0.8,
		PlateauProbability: 0.15,
		RecoveryRate:       0.2,
	}
}

// 各通道独立噪声的标准差
var noiseStd = map[models.Channel]float64{
	models.ChannelHeartRate:       3.0,
	models.ChannelSpO2:            1.5,
	models.ChannelRespiratoryRate: 2.0,
	models.ChannelTemperature:     0.1,
	models.ChannelMAP:             1.5,
}

// RECOVERING状态的稳定判定容差，全通道同时达标才回到STABLE
var recoveryTolerance = map[models.Channel]float64{
	models.ChannelHeartRate:       5.0,
	models.ChannelSpO2:            1.5,
	models.ChannelRespiratoryRate: 4.0,
	models.ChannelTemperature:     0.3,
	models.ChannelMAP:             3.0,
}

// Simulator 单个患者的生命体征生成器
// 实例归 Population 独占持有，在患者级互斥范围内访问，自身不加锁
type Simulator struct {
	cfg    Config
	ranges VitalRanges
	rng    *rand.Rand

	state          State
	stateEnteredAt time.Time
	onsetAt        time.Time
	pattern        episodePattern
	current        map[models.Channel]float64
}

// NewSimulator 按孕周创建生成器，rng由调用方注入以便测试可重现
func NewSimulator(gaWeeks float64, cfg Config, rng *rand.Rand, now time.Time) *Simulator {
	s := &Simulator{
		cfg:            cfg,
		ranges:         RangesForGA(gaWeeks),
		rng:            rng,
		state:          StateStable,
		stateEnteredAt: now,
		pattern:        patternNone,
	}
	s.current = s.randomBaseline()
	return s
}

// State 当前临床状态
func (s *Simulator) State() State {
	return s.state
}

// Current 最近一次生成的各通道数值（副本）
func (s *Simulator) Current() map[models.Channel]float64 {
	out := make(map[models.Channel]float64, len(s.current))
	for ch, v := range s.current {
		out[ch] = v
	}
	return out
}

// MinutesSinceOnset 距发作起点的分钟数，未发作时为0
func (s *Simulator) MinutesSinceOnset(now time.Time) float64 {
	if s.onsetAt.IsZero() {
		return 0
	}
	return now.Sub(s.onsetAt).Minutes()
}

// Trigger 手动触发恶化：STABLE → DETERIORATING 并重置发作计时
// 已在发作中（DETERIORATING/ACUTE）时为幂等空操作
func (s *Simulator) Trigger(now time.Time) {
	if s.state == StateDeteriorating || s.state == StateAcute {
		return
	}
	s.state = StateDeteriorating
	s.stateEnteredAt = now
	s.onsetAt = now
	// 发热或低体温模式在进入发作期时一次性选定
	if s.rng.Float64() < 0.5 {
		s.pattern = patternFever
	} else {
		s.pattern = patternHypothermia
	}
}

// StartRecovery 外部指令进入恢复期，仅对发作中的状态有效
func (s *Simulator) StartRecovery(now time.Time) {
	if s.state != StateDeteriorating && s.state != StateAcute {
		return
	}
	s.state = StateRecovering
	s.stateEnteredAt = now
	s.onsetAt = time.Time{}
	s.pattern = patternNone
}

// Reset 强制回到STABLE并重新随机化基线数值
func (s *Simulator) Reset(now time.Time) {
	s.state = StateStable
	s.stateEnteredAt = now
	s.onsetAt = time.Time{}
	s.pattern = patternNone
	s.current = s.randomBaseline()
}

// Next 推进一个周期并返回各通道的新数值
func (s *Simulator) Next(now time.Time) map[models.Channel]float64 {
	// DETERIORATING持续超时自动升级为ACUTE
	if s.state == StateDeteriorating && now.Sub(s.stateEnteredAt) > s.cfg.AcuteAfter {
		s.state = StateAcute
		s.stateEnteredAt = now
	}

	switch s.state {
	case StateDeteriorating, StateAcute:
		s.stepEpisode(now)
	case StateRecovering:
		s.stepRecovery(now)
	default:
		s.stepStable()
	}

	return s.Current()
}

func (s *Simulator) stepStable() {
	targets := s.randomBaseline()
	for _, ch := range models.Channels {
		// 平台行为：模拟仪器离散读数，通道按概率保持上一读数
		if s.rng.Float64() < s.cfg.PlateauProbability {
			continue
		}
		s.current[ch] = s.advance(ch, targets[ch])
	}
}

func (s *Simulator) stepEpisode(now time.Time) {
	p := progression(s.MinutesSinceOnset(now))
	targets := s.episodeTargets(p)

	for _, ch := range models.Channels {
		s.current[ch] = s.advance(ch, targets[ch])
	}

	// 通道间关联在独立噪声之后施加，保证生理关联不被噪声淹没：
	// 低氧与低灌注压都推高心率
	hr := s.current[models.ChannelHeartRate]
	if spo2 := s.current[models.ChannelSpO2]; spo2 < 90 {
		hr += (90 - spo2) * 0.8
	}
	if mapVal := s.current[models.ChannelMAP]; mapVal < 30 {
		hr += (30 - mapVal) * 1.0
	}
	s.current[models.ChannelHeartRate] = round1(clampHard(models.ChannelHeartRate, hr))
}

func (s *Simulator) stepRecovery(now time.Time) {
	targets := map[models.Channel]float64{
		models.ChannelHeartRate:       s.ranges.HRMin + 20,
		models.ChannelSpO2:            s.ranges.SpO2Max - 2,
		models.ChannelRespiratoryRate: s.ranges.RRMin + 10,
		models.ChannelTemperature:     (s.ranges.TempMin + s.ranges.TempMax) / 2,
		models.ChannelMAP:             (s.ranges.MAPMin + s.ranges.MAPMax) / 2,
	}

	stable := true
	for _, ch := range models.Channels {
		// 误差衰减反馈: value += (target − value)·rate + noise
		v := s.current[ch]
		v += (targets[ch]-v)*s.cfg.RecoveryRate + s.rng.NormFloat64()*noiseStd[ch]
		v = round1(clampHard(ch, v))
		s.current[ch] = v

		if math.Abs(v-targets[ch]) > recoveryTolerance[ch] {
			stable = false
		}
	}

	if stable {
		s.state = StateStable
		s.stateEnteredAt = now
	}
}

// advance 带惯性地向目标移动并叠加独立噪声
func (s *Simulator) advance(ch models.Channel, target float64) float64 {
	m := s.cfg.Momentum
	v := s.current[ch]*m + target*(1-m) + s.rng.NormFloat64()*noiseStd[ch]
	return round1(clampHard(ch, v))
}

// episodeTargets 发作期各通道目标：心动过速、低氧、呼吸急促、
// 发热或低体温（模式固定）、低血压
func (s *Simulator) episodeTargets(p float64) map[models.Channel]float64 {
	var tempTarget float64
	if s.pattern == patternHypothermia {
		tempTarget = s.ranges.TempMin - 1.0 - p
	} else {
		tempTarget = s.ranges.TempMax + 1.5 + p
	}

	return map[models.Channel]float64{
		models.ChannelHeartRate:       s.ranges.HRMax + 20 + p*40,
		models.ChannelSpO2:            math.Max(s.ranges.SpO2Min-10-p*15, 75),
		models.ChannelRespiratoryRate: s.ranges.RRMax + 10 + p*30,
		models.ChannelTemperature:     tempTarget,
		models.ChannelMAP:             math.Max(s.ranges.MAPMin-5-p*15, 15),
	}
}

// progression 发作严重度随时间的分段线性爬升，单调不减，取值 [0, 1]
// 0–5分钟缓慢起病，5–15分钟明显恶化，15–30分钟重度恶化，30分钟后趋于危重
func progression(minutes float64) float64 {
	switch {
	case minutes < 0:
		return 0
	case minutes < 5:
		return minutes / 5.0 * 0.2
	case minutes < 15:
		return 0.2 + (minutes-5)/10.0*0.4
	case minutes < 30:
		return 0.6 + (minutes-15)/15.0*0.3
	default:
		return math.Min(0.9+(minutes-30)/30.0*0.1, 1.0)
	}
}

// randomBaseline 在正常区间内侧随机采样基线数值
func (s *Simulator) randomBaseline() map[models.Channel]float64 {
	return map[models.Channel]float64{
		models.ChannelHeartRate:       round1(s.uniform(s.ranges.HRMin+10, s.ranges.HRMax-10)),
		models.ChannelSpO2:            round1(s.uniform(s.ranges.SpO2Min+2, s.ranges.SpO2Max)),
		models.ChannelRespiratoryRate: round1(s.uniform(s.ranges.RRMin+5, s.ranges.RRMax-5)),
		models.ChannelTemperature:     round1(s.uniform(s.ranges.TempMin+0.2, s.ranges.TempMax-0.2)),
		models.ChannelMAP:             round1(s.uniform(s.ranges.MAPMin+3, s.ranges.MAPMax-3)),
	}
}

func (s *Simulator) uniform(min, max float64) float64 {
	return min + s.rng.Float64()*(max-min)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
