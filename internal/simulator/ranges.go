package simulator

import "neovance-monitor/internal/models"

// VitalRanges 按生理年龄分段的各通道正常区间
type VitalRanges struct {
	HRMin, HRMax     float64
	SpO2Min, SpO2Max float64
	RRMin, RRMax     float64
	TempMin, TempMax float64
	MAPMin, MAPMax   float64
}

// RangesForGA 按孕周返回对应的正常区间
// 分段：<32周（极早产）、<37周（早产）、≥37周（足月）
func RangesForGA(gaWeeks float64) VitalRanges {
	switch {
	case gaWeeks < 32:
		return VitalRanges{
			HRMin: 120, HRMax: 170,
			SpO2Min: 90, SpO2Max: 98,
			RRMin: 40, RRMax: 70,
			TempMin: 36.0, TempMax: 37.0,
			MAPMin: 25, MAPMax: 40,
		}
	case gaWeeks < 37:
		return VitalRanges{
			HRMin: 115, HRMax: 165,
			SpO2Min: 92, SpO2Max: 99,
			RRMin: 35, RRMax: 65,
			TempMin: 36.2, TempMax: 37.2,
			MAPMin: 30, MAPMax: 45,
		}
	default:
		return VitalRanges{
			HRMin: 110, HRMax: 160,
			SpO2Min: 95, SpO2Max: 100,
			RRMin: 30, RRMax: 60,
			TempMin: 36.5, TempMax: 37.5,
			MAPMin: 35, MAPMax: 50,
		}
	}
}

// 任何状态下输出都要落在硬生理边界内
type hardLimit struct {
	min, max float64
}

var hardLimits = map[models.Channel]hardLimit{
	models.ChannelHeartRate:       {60, 220},
	models.ChannelSpO2:            {70, 100},
	models.ChannelRespiratoryRate: {10, 100},
	models.ChannelTemperature:     {34.0, 42.0},
	models.ChannelMAP:             {10, 80},
}

func clampHard(ch models.Channel, v float64) float64 {
	lim, ok := hardLimits[ch]
	if !ok {
		return v
	}
	if v < lim.min {
		return lim.min
	}
	if v > lim.max {
		return lim.max
	}
	return v
}
