// Package stats 维护单个患者的时间窗滚动样本并按需计算标准差
package stats

import (
	"math"
	"time"

	"neovance-monitor/internal/models"
)

type sample struct {
	value float64
	ts    time.Time
}

// Rolling 单个患者的滚动统计（每通道一条时间窗样本序列）
// 实例由 Population 独占持有，在患者级互斥范围内访问，自身不加锁
type Rolling struct {
	window   time.Duration
	defaults map[models.Channel]float64 // 样本不足时的默认标准差
	samples  map[models.Channel][]sample
}

// NewRolling 创建滚动统计
// defaults 中每通道的默认标准差必须为正（下游用作除数）
func NewRolling(window time.Duration, defaults map[models.Channel]float64) *Rolling {
	return &Rolling{
		window:   window,
		defaults: defaults,
		samples:  make(map[models.Channel][]sample),
	}
}

// Record 追加一个样本，并惰性淘汰该通道窗口外的旧样本
// 样本按时间戳有序追加（调用方保证时间戳单调）
func (r *Rolling) Record(ch models.Channel, value float64, ts time.Time) {
	cutoff := ts.Add(-r.window)
	s := r.samples[ch]

	// 从头部淘汰过期样本
	i := 0
	for i < len(s) && s[i].ts.Before(cutoff) {
		i++
	}
	s = s[i:]

	r.samples[ch] = append(s, sample{value: value, ts: ts})
}

// StdDev 返回当前窗口的样本标准差
// 样本数不足2个、或窗口内样本完全相同（标准差为0）时，返回该通道配置的
// 默认标准差——这是契约的一部分，不是错误路径
func (r *Rolling) StdDev(ch models.Channel) float64 {
	s := r.samples[ch]
	if len(s) < 2 {
		return r.defaultSD(ch)
	}

	var sum float64
	for _, v := range s {
		sum += v.value
	}
	mean := sum / float64(len(s))

	var sqDiff float64
	for _, v := range s {
		d := v.value - mean
		sqDiff += d * d
	}
	sd := math.Sqrt(sqDiff / float64(len(s)-1))

	if sd <= 0 || math.IsNaN(sd) {
		return r.defaultSD(ch)
	}
	return sd
}

// Count 当前窗口内的样本数
func (r *Rolling) Count(ch models.Channel) int {
	return len(r.samples[ch])
}

func (r *Rolling) defaultSD(ch models.Channel) float64 {
	if sd, ok := r.defaults[ch]; ok && sd > 0 {
		return sd
	}
	// 配置缺失时退回1.0，保证永不返回0
	return 1.0
}
