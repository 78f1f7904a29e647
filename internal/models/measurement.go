package models

import (
	"time"
)

// Channel 监测通道名称（对应一项生命体征）
type Channel string

const (
	ChannelHeartRate       Channel = "hr"   // 心率（bpm）
	ChannelSpO2            Channel = "spo2" // 血氧饱和度（%）
	ChannelRespiratoryRate Channel = "rr"   // 呼吸频率（次/分钟）
	ChannelTemperature     Channel = "temp" // 体温（°C）
	ChannelMAP             Channel = "map"  // 平均动脉压（mmHg）
)

// Channels 所有监测通道（固定顺序，用于遍历）
var Channels = []Channel{
	ChannelHeartRate,
	ChannelSpO2,
	ChannelRespiratoryRate,
	ChannelTemperature,
	ChannelMAP,
}

// Measurement 一次生命体征采样（创建后不可变）
type Measurement struct {
	MRN       string    `json:"mrn"`
	Timestamp time.Time `json:"timestamp"`
	HeartRate float64   `json:"hr"`
	SpO2      float64   `json:"spo2"`
	RespRate  float64   `json:"rr"`
	Temp      float64   `json:"temp"`
	MAP       float64   `json:"map"`
}

// Value 按通道名取值
func (m *Measurement) Value(ch Channel) float64 {
	switch ch {
	case ChannelHeartRate:
		return m.HeartRate
	case ChannelSpO2:
		return m.SpO2
	case ChannelRespiratoryRate:
		return m.RespRate
	case ChannelTemperature:
		return m.Temp
	case ChannelMAP:
		return m.MAP
	}
	return 0
}

// Severity 风险等级（由数值风险分数映射）
type Severity string

const (
	SeverityOK       Severity = "OK"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// RiskAssessment 一次评分结果（写入实时缓存，供前端轮询）
type RiskAssessment struct {
	MRN       string    `json:"mrn"`
	Timestamp time.Time `json:"timestamp"`
	RiskScore float64   `json:"risk_score"`
	Severity  Severity  `json:"severity"`
	// 外部分类器的意见（不可用时为 nil）
	ClassifierProbability *float64 `json:"classifier_probability,omitempty"`
}
