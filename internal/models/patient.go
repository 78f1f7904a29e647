package models

// GBSStatus 母体GBS定植状态
type GBSStatus string

const (
	GBSNegative GBSStatus = "negative"
	GBSPositive GBSStatus = "positive"
	GBSUnknown  GBSStatus = "unknown"
)

// ClinicalExam 新生儿临床查体结果
type ClinicalExam string

const (
	ExamNormal   ClinicalExam = "normal"
	ExamAbnormal ClinicalExam = "abnormal"
)

// MaternalFactors EOS计算所需的母体/产时风险因素（静态，入院时采集）
type MaternalFactors struct {
	GAWeeks         int          `json:"ga_weeks" db:"ga_weeks"`
	GADays          int          `json:"ga_days" db:"ga_days"`
	IntrapartumTemp float64      `json:"temp_celsius" db:"temp_celsius"`       // 产时最高体温（°C）
	ROMHours        float64      `json:"rom_hours" db:"rom_hours"`             // 破膜时长（小时）
	GBSStatus       GBSStatus    `json:"gbs_status" db:"gbs_status"`
	AntibioticType  string       `json:"antibiotic_type" db:"antibiotic_type"` // 产时抗生素类型（"none"表示未用药）
	ClinicalExam    ClinicalExam `json:"clinical_exam" db:"clinical_exam"`
}

// GADecimal 孕周（十进制周数）
func (f MaternalFactors) GADecimal() float64 {
	return float64(f.GAWeeks) + float64(f.GADays)/7.0
}

// Patient 监测对象（一名住院新生儿）
type Patient struct {
	MRN      string          `json:"mrn" db:"mrn"`
	TenantID string          `json:"tenant_id" db:"tenant_id"`
	FullName string          `json:"full_name" db:"full_name"`
	Maternal MaternalFactors `json:"maternal"`
}

// DemoRoster 演示病区（来自演示数据库的种子数据，GA覆盖早产到足月）
func DemoRoster(tenantID string) []Patient {
	return []Patient{
		{MRN: "B001", TenantID: tenantID, FullName: "Baby of Priya Verma",
			Maternal: MaternalFactors{GAWeeks: 39, GADays: 0, IntrapartumTemp: 37.0, ROMHours: 6, GBSStatus: GBSNegative, AntibioticType: "none", ClinicalExam: ExamNormal}},
		{MRN: "B002", TenantID: tenantID, FullName: "Aarav Kumar",
			Maternal: MaternalFactors{GAWeeks: 34, GADays: 2, IntrapartumTemp: 37.5, ROMHours: 20, GBSStatus: GBSUnknown, AntibioticType: "none", ClinicalExam: ExamNormal}},
		{MRN: "B003", TenantID: tenantID, FullName: "Baby Girl of Anjali Reddy",
			Maternal: MaternalFactors{GAWeeks: 35, GADays: 6, IntrapartumTemp: 37.2, ROMHours: 10, GBSStatus: GBSNegative, AntibioticType: "none", ClinicalExam: ExamNormal}},
		{MRN: "B004", TenantID: tenantID, FullName: "Twin B of Anjali Reddy",
			Maternal: MaternalFactors{GAWeeks: 35, GADays: 6, IntrapartumTemp: 37.2, ROMHours: 10, GBSStatus: GBSNegative, AntibioticType: "none", ClinicalExam: ExamNormal}},
		{MRN: "B005", TenantID: tenantID, FullName: "Ishaan Mehta",
			Maternal: MaternalFactors{GAWeeks: 37, GADays: 1, IntrapartumTemp: 38.2, ROMHours: 14, GBSStatus: GBSPositive, AntibioticType: "penicillin", ClinicalExam: ExamNormal}},
	}
}
