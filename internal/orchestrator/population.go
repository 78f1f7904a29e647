// Package orchestrator 驱动全病区的周期评估循环
// 每个周期对每名患者执行：仿真 → 滚动统计 → 风险评分 → 报警判定，
// 再执行缓存/分类器等副作用；手动操作与周期循环共用患者级互斥
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"neovance-monitor/internal/alert"
	"neovance-monitor/internal/cache"
	"neovance-monitor/internal/classifier"
	"neovance-monitor/internal/config"
	"neovance-monitor/internal/models"
	"neovance-monitor/internal/scorer"
	"neovance-monitor/internal/simulator"
	"neovance-monitor/internal/stats"

	"go.uber.org/zap"
)

// ErrPatientNotFound 患者不在监测名单中
var ErrPatientNotFound = errors.New("patient not found")

// 派生标志阈值
const (
	hypotensionMAP  = 30.0
	tachycardiaHR   = 120.0
	hypoxiaSpO2     = 90.0
	feverTemp       = 38.0
	hypothermiaTemp = 36.0
)

// patientState 单名患者的全部运行时状态，mu 保护其中一切可变成员
type patientState struct {
	mu sync.Mutex

	patient models.Patient
	sim     *simulator.Simulator
	rolling *stats.Rolling

	// 入院时一次性计算（母体因素静态）
	eosScore    float64
	eosCategory string

	lastMeasurement models.Measurement
	lastAssessment  models.RiskAssessment
}

// PatientStatus 患者当前状态查询结果
type PatientStatus struct {
	MRN           string                `json:"mrn"`
	FullName      string                `json:"full_name"`
	ClinicalState simulator.State       `json:"clinical_state"`
	Measurement   models.Measurement    `json:"measurement"`
	Assessment    models.RiskAssessment `json:"assessment"`
	EOSRiskScore  float64               `json:"eos_risk_score"`
	EOSCategory   string                `json:"eos_category"`
	ActiveAlert   *models.Alert         `json:"active_alert,omitempty"`
}

// Population 全病区编排器
type Population struct {
	cfg      *config.Config
	tenantID string
	logger   *zap.Logger

	deviation  *scorer.DeviationScorer
	alerts     *alert.Manager
	cache      *cache.Manager     // 可为 nil
	classifier *classifier.Client // 可为 nil

	simFactory func(p models.Patient) *simulator.Simulator
	sdDefaults map[models.Channel]float64

	mu       sync.RWMutex // 保护 patients/order（入监后患者状态由各自的 patientState.mu 保护）
	patients map[string]*patientState
	order    []string // 固定遍历顺序

	now func() time.Time
}

// Option 编排器可选依赖
type Option func(*Population)

// WithCache 启用实时缓存副作用
func WithCache(c *cache.Manager) Option {
	return func(p *Population) { p.cache = c }
}

// WithClassifier 启用外部分类器
func WithClassifier(c *classifier.Client) Option {
	return func(p *Population) { p.classifier = c }
}

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(p *Population) { p.now = now }
}

// NewPopulation 创建病区编排器
// simFactory 按患者创建仿真器，调用方在其中决定随机源
func NewPopulation(
	cfg *config.Config,
	tenantID string,
	roster []models.Patient,
	simFactory func(p models.Patient) *simulator.Simulator,
	alerts *alert.Manager,
	logger *zap.Logger,
	opts ...Option,
) *Population {
	pop := &Population{
		cfg:      cfg,
		tenantID: tenantID,
		logger:   logger,
		deviation: scorer.NewDeviationScorer(
			cfg.Monitor.Profiles,
			cfg.Monitor.Breakpoints,
		),
		alerts:     alerts,
		simFactory: simFactory,
		patients:   make(map[string]*patientState, len(roster)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(pop)
	}

	pop.sdDefaults = make(map[models.Channel]float64, len(cfg.Monitor.Profiles))
	for ch, profile := range cfg.Monitor.Profiles {
		pop.sdDefaults[ch] = profile.DefaultSD
	}

	for _, patient := range roster {
		pop.enroll(patient)
	}

	return pop
}

// AddPatient 将新入院患者加入监测名单（运行中可调用）
func (p *Population) AddPatient(patient models.Patient) error {
	if patient.MRN == "" {
		return errors.New("mrn is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.patients[patient.MRN]; exists {
		return fmt.Errorf("patient %s already enrolled", patient.MRN)
	}
	p.enroll(patient)
	return nil
}

// enroll 建立患者运行时状态，EOS风险按静态母体因素一次性计算
// 构造期直接调用，运行期调用方需持有 p.mu
func (p *Population) enroll(patient models.Patient) {
	eosScore := scorer.CalculateEOSRisk(patient.Maternal)
	p.patients[patient.MRN] = &patientState{
		patient:     patient,
		sim:         p.simFactory(patient),
		rolling:     stats.NewRolling(p.cfg.Monitor.StatsWindow, p.sdDefaults),
		eosScore:    eosScore,
		eosCategory: scorer.CategorizeEOSRisk(eosScore, patient.Maternal.ClinicalExam),
	}
	p.order = append(p.order, patient.MRN)

	p.logger.Info("patient enrolled",
		zap.String("mrn", patient.MRN),
		zap.Float64("ga_weeks", patient.Maternal.GADecimal()),
		zap.Float64("eos_risk", eosScore),
		zap.String("eos_category", p.patients[patient.MRN].eosCategory))
}

// Run 启动周期评估循环，ctx取消后完成当前批次再退出
func (p *Population) Run(ctx context.Context) {
	p.mu.RLock()
	count := len(p.patients)
	p.mu.RUnlock()
	p.logger.Info("population tick loop started",
		zap.Duration("tick_interval", p.cfg.Monitor.TickInterval),
		zap.Int("patient_count", count))

	// 启动后立即评估一轮，再进入定时循环
	p.TickAll(ctx)

	ticker := time.NewTicker(p.cfg.Monitor.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("population tick loop stopped")
			return
		case <-ticker.C:
			p.TickAll(ctx)
		}
	}
}

// TickAll 对全部患者执行一个评估周期
// 单名患者的失败不中断其余患者的评估
func (p *Population) TickAll(ctx context.Context) {
	now := p.now()

	p.mu.RLock()
	batch := make([]*patientState, 0, len(p.order))
	for _, mrn := range p.order {
		batch = append(batch, p.patients[mrn])
	}
	p.mu.RUnlock()

	for _, ps := range batch {
		p.tickOne(ctx, now, ps)
	}
}

func (p *Population) tickOne(ctx context.Context, now time.Time, ps *patientState) {
	ps.mu.Lock()

	vals := ps.sim.Next(now)
	m := models.Measurement{
		MRN:       ps.patient.MRN,
		Timestamp: now,
		HeartRate: vals[models.ChannelHeartRate],
		SpO2:      vals[models.ChannelSpO2],
		RespRate:  vals[models.ChannelRespiratoryRate],
		Temp:      vals[models.ChannelTemperature],
		MAP:       vals[models.ChannelMAP],
	}

	// 先评分再记录样本，窗口内不包含当前值，突变不会稀释自身的偏差
	score, severity := p.deviation.Score(&m, ps.rolling)
	for _, ch := range models.Channels {
		ps.rolling.Record(ch, m.Value(ch), now)
	}

	assessment := models.RiskAssessment{
		MRN:       ps.patient.MRN,
		Timestamp: now,
		RiskScore: score,
		Severity:  severity,
	}

	snapshot := p.buildSnapshot(ps, &m, score, severity)
	state := ps.sim.State()

	ps.lastMeasurement = m
	ps.lastAssessment = assessment

	created := p.alerts.Evaluate(now, p.tenantID, ps.patient.MRN, severity, snapshot)

	ps.mu.Unlock()

	// 以下全部是锁外副作用，失败只记录日志
	if p.classifier != nil && severity != models.SeverityOK {
		if prob, _ := p.classifier.Predict(ctx, snapshot); prob != nil {
			assessment.ClassifierProbability = prob
			ps.mu.Lock()
			ps.lastAssessment = assessment
			ps.mu.Unlock()
		}
	}

	if p.cache != nil {
		data := &cache.RealtimeData{
			Measurement:   m,
			Assessment:    assessment,
			ClinicalState: string(state),
			EOSRiskScore:  ps.eosScore,
			EOSCategory:   ps.eosCategory,
		}
		if err := p.cache.UpdateRealtime(ctx, ps.patient.MRN, data); err != nil {
			p.logger.Error("failed to update realtime cache",
				zap.String("mrn", ps.patient.MRN),
				zap.Error(err))
		}
		if created != nil {
			if err := p.cache.UpdateActiveAlert(ctx, ps.patient.MRN, created); err != nil {
				p.logger.Error("failed to update alert cache",
					zap.String("mrn", ps.patient.MRN),
					zap.Error(err))
			}
		}
	}
}

// buildSnapshot 构造报警特征快照（调用方持有患者锁）
func (p *Population) buildSnapshot(ps *patientState, m *models.Measurement, score float64, severity models.Severity) models.FeatureSnapshot {
	f := ps.patient.Maternal
	return models.FeatureSnapshot{
		FeatureVersion: models.FeatureVersionV1,
		Timestamp:      m.Timestamp,

		HeartRate: m.HeartRate,
		SpO2:      m.SpO2,
		RespRate:  m.RespRate,
		Temp:      m.Temp,
		MAP:       m.MAP,

		Hypotension: m.MAP < hypotensionMAP,
		Tachycardia: m.HeartRate > tachycardiaHR,
		Hypoxia:     m.SpO2 < hypoxiaSpO2,
		Fever:       m.Temp > feverTemp,
		Hypothermia: m.Temp < hypothermiaTemp,

		GAWeeks:         f.GADecimal(),
		MaternalTemp:    f.IntrapartumTemp,
		ROMHours:        f.ROMHours,
		GBSStatus:       string(f.GBSStatus),
		AntibioticType:  f.AntibioticType,
		ClinicalExam:    string(f.ClinicalExam),
		EOSRiskScore:    ps.eosScore,
		EOSRiskCategory: ps.eosCategory,

		RiskScore: score,
		Severity:  severity,
	}
}

// Trigger 手动触发患者恶化（幂等）
func (p *Population) Trigger(mrn string) error {
	ps, err := p.lookup(mrn)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.sim.Trigger(p.now())

	p.logger.Warn("deterioration triggered manually", zap.String("mrn", mrn))
	return nil
}

// Reset 手动重置患者到稳定基线（幂等）
func (p *Population) Reset(mrn string) error {
	ps, err := p.lookup(mrn)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.sim.Reset(p.now())

	p.logger.Info("patient reset to stable baseline", zap.String("mrn", mrn))
	return nil
}

// StartRecovery 手动进入恢复期，仅对发作中的患者有效
func (p *Population) StartRecovery(mrn string) error {
	ps, err := p.lookup(mrn)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.sim.StartRecovery(p.now())

	p.logger.Info("patient recovery started", zap.String("mrn", mrn))
	return nil
}

// QueryState 查询患者当前状态（幂等只读）
func (p *Population) QueryState(mrn string) (*PatientStatus, error) {
	ps, err := p.lookup(mrn)
	if err != nil {
		return nil, err
	}

	ps.mu.Lock()
	status := &PatientStatus{
		MRN:           ps.patient.MRN,
		FullName:      ps.patient.FullName,
		ClinicalState: ps.sim.State(),
		Measurement:   ps.lastMeasurement,
		Assessment:    ps.lastAssessment,
		EOSRiskScore:  ps.eosScore,
		EOSCategory:   ps.eosCategory,
	}
	ps.mu.Unlock()

	if latest := p.alerts.Latest(mrn); latest != nil && !latest.Status.IsTerminal() {
		status.ActiveAlert = latest
	}

	return status, nil
}

// RecordAction 记录医生处理动作并同步报警缓存
func (p *Population) RecordAction(ctx context.Context, alertID, actorID string, action models.ActionType, detail string, dismissFor time.Duration) (*models.Alert, error) {
	a, err := p.alerts.RecordAction(p.now(), alertID, actorID, action, detail, dismissFor)
	if err != nil {
		return nil, err
	}
	p.syncAlertCache(ctx, a)
	return a, nil
}

// RecordOutcome 记录报警结局并同步报警缓存
func (p *Population) RecordOutcome(ctx context.Context, alertID string, confirmed bool) (*models.Alert, error) {
	a, err := p.alerts.RecordOutcome(p.now(), alertID, confirmed)
	if err != nil {
		return nil, err
	}
	p.syncAlertCache(ctx, a)
	return a, nil
}

func (p *Population) syncAlertCache(ctx context.Context, a *models.Alert) {
	if p.cache == nil {
		return
	}

	var err error
	if a.Status.IsTerminal() {
		err = p.cache.ClearActiveAlert(ctx, a.MRN)
	} else {
		err = p.cache.UpdateActiveAlert(ctx, a.MRN, a)
	}
	if err != nil {
		p.logger.Error("failed to sync alert cache",
			zap.String("mrn", a.MRN),
			zap.String("alert_id", a.AlertID),
			zap.Error(err))
	}
}

func (p *Population) lookup(mrn string) (*patientState, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ps, ok := p.patients[mrn]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return ps, nil
}
