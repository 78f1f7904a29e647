package scorer

import (
	"math"
	"strings"

	"neovance-monitor/internal/models"
)

// EOS风险分类（按临床处置建议分级）
const (
	EOSRoutineCare        = "ROUTINE_CARE"        // 常规新生儿护理
	EOSEnhancedMonitoring = "ENHANCED_MONITORING" // 加强监测，酌情用药
	EOSHighRisk           = "HIGH_RISK"           // 建议经验性抗生素
)

// EOS计算常量（Puopolo/Kaiser早发型败血症风险模型）
// 基线风险：≥35周活产儿约 0.5/1000，各风险因素按乘法叠加，上限 50/1000
const (
	eosBaseline = 0.5
	eosMaximum  = 50.0
)

// CalculateEOSRisk 计算EOS风险分数（每千名活产儿）
// 纯函数：相同输入必然产生相同输出，不依赖任何历史数据
func CalculateEOSRisk(f models.MaternalFactors) float64 {
	risk := eosBaseline

	// 孕周效应（孕周越小风险越高）
	ga := f.GADecimal()
	if ga < 37.0 {
		risk *= 2.0
	} else if ga < 39.0 {
		risk *= 1.0
	}

	// 产时发热（≥38°C）
	if f.IntrapartumTemp >= 38.0 {
		risk *= 3.0
	}

	// 破膜时间延长（>18小时）
	if f.ROMHours > 18.0 {
		risk *= 2.0
	}

	// GBS定植状态与产时抗生素是否充分
	switch f.GBSStatus {
	case models.GBSPositive:
		if adequateProphylaxis(f.AntibioticType) {
			risk *= 1.0
		} else {
			risk *= 4.0
		}
	case models.GBSUnknown:
		risk *= 1.5
	}

	// 临床查体异常（最高权重因素）
	if f.ClinicalExam == models.ExamAbnormal {
		risk *= 15.0
	}

	// 上限裁剪是既定策略，保持分数在可比较的尺度上
	risk = math.Min(risk, eosMaximum)

	return math.Round(risk*100) / 100
}

// CategorizeEOSRisk 将EOS分数映射到临床处置分类
// 查体异常为硬覆盖：无论分数高低均判为最高分类
func CategorizeEOSRisk(riskScore float64, exam models.ClinicalExam) string {
	if exam == models.ExamAbnormal {
		return EOSHighRisk
	}

	switch {
	case riskScore >= 3.0:
		return EOSHighRisk
	case riskScore >= 1.0:
		return EOSEnhancedMonitoring
	default:
		return EOSRoutineCare
	}
}

// adequateProphylaxis 产时抗生素是否对GBS充分
func adequateProphylaxis(antibiotic string) bool {
	switch strings.ToLower(antibiotic) {
	case "penicillin", "ampicillin":
		return true
	}
	return false
}
