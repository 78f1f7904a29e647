package models

import (
	"time"
)

// AlertStatus 报警生命周期状态
type AlertStatus string

const (
	AlertPending   AlertStatus = "pending"   // 等待医生处理
	AlertActed     AlertStatus = "acted"     // 已记录处理动作，病例尚未关闭
	AlertDismissed AlertStatus = "dismissed" // 医生静默（带静默时长）
	AlertClosed    AlertStatus = "closed"    // 终态：已记录结局
)

// IsTerminal 是否为终态（终态报警不再参与去重判断）
func (s AlertStatus) IsTerminal() bool {
	return s == AlertClosed
}

// ActionType 医生处理动作类型
type ActionType string

const (
	ActionTreat   ActionType = "Treat"   // 经验性抗生素治疗
	ActionLab     ActionType = "Lab"     // 实验室检查（血培养/CBC/CRP）
	ActionObserve ActionType = "Observe" // 加强观察
	ActionDismiss ActionType = "Dismiss" // 判定为误报并静默
)

// FeatureSnapshot 报警创建时刻的特征快照（版本化结构，创建后不可变）
// 同一结构同时作为外部分类器的输入，字段漂移在编译期暴露
type FeatureSnapshot struct {
	FeatureVersion string    `json:"feature_version"`
	Timestamp      time.Time `json:"timestamp"`

	// 当前生命体征
	HeartRate float64 `json:"hr"`
	SpO2      float64 `json:"spo2"`
	RespRate  float64 `json:"rr"`
	Temp      float64 `json:"temp"`
	MAP       float64 `json:"map"`

	// 派生标志
	Hypotension bool `json:"hypotension"`
	Tachycardia bool `json:"tachycardia"`
	Hypoxia     bool `json:"hypoxia"`
	Fever       bool `json:"fever"`
	Hypothermia bool `json:"hypothermia"`

	// 母体EOS风险因素
	GAWeeks         float64 `json:"gestational_age_weeks"`
	MaternalTemp    float64 `json:"maternal_temp_celsius"`
	ROMHours        float64 `json:"rom_hours"`
	GBSStatus       string  `json:"gbs_status"`
	AntibioticType  string  `json:"antibiotic_type"`
	ClinicalExam    string  `json:"clinical_exam"`
	EOSRiskScore    float64 `json:"eos_risk_score"`
	EOSRiskCategory string  `json:"eos_risk_category"`

	// 偏差风险评分
	RiskScore float64  `json:"risk_score"`
	Severity  Severity `json:"severity"`
}

// FeatureVersionV1 当前特征快照版本
const FeatureVersionV1 = "1.0"

// Outcome 报警结局（确认/排除 + 时间戳）
type Outcome struct {
	Confirmed  bool      `json:"confirmed"`
	OutcomeAt  time.Time `json:"outcome_at"`
	Reward     float64   `json:"reward"` // 预测与结局一致为 +1，不一致为 -1
}

// Alert 一次报警升级（每名患者同一时刻至多一条非终态记录）
// 记录从不删除，只迁移状态，作为后续监督学习的样本
type Alert struct {
	AlertID   string      `json:"alert_id" db:"alert_id"`
	TenantID  string      `json:"tenant_id" db:"tenant_id"`
	MRN       string      `json:"mrn" db:"mrn"`
	Status    AlertStatus `json:"status" db:"status"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`

	// 创建时刻的风险快照（不可变）
	Snapshot FeatureSnapshot `json:"snapshot" db:"snapshot"`

	// 医生处理记录（未处理时为零值）
	ActorID      string        `json:"actor_id,omitempty" db:"actor_id"`
	Action       ActionType    `json:"action,omitempty" db:"action"`
	ActionDetail string        `json:"action_detail,omitempty" db:"action_detail"`
	ActedAt      *time.Time    `json:"acted_at,omitempty" db:"acted_at"`
	DismissedAt  *time.Time    `json:"dismissed_at,omitempty" db:"dismissed_at"`
	DismissFor   time.Duration `json:"dismiss_for,omitempty" db:"dismiss_for"`

	// 结局（未记录时为 nil）
	Outcome *Outcome `json:"outcome,omitempty" db:"outcome"`
}

// AlertEventType 报警生命周期事件类型（发往持久化/消息边界）
type AlertEventType string

const (
	AlertEventCreated     AlertEventType = "created"
	AlertEventActed       AlertEventType = "acted"
	AlertEventDismissed   AlertEventType = "dismissed"
	AlertEventReEscalated AlertEventType = "re_escalated"
	AlertEventClosed      AlertEventType = "closed"
)

// AlertEvent 一次报警状态迁移事件（不可变，核心决策后对外发布）
type AlertEvent struct {
	EventType  AlertEventType `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Alert      Alert          `json:"alert"`
}
