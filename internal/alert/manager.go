// Package alert 实现报警生命周期管理
// 状态机: PENDING → ACTED → CLOSED，PENDING → DISMISSED，
// DISMISSED 超过静默时长后由新报警接替，ACTED 超过再升级窗口无结局时回到 PENDING
package alert

import (
	"fmt"
	"sync"
	"time"

	"neovance-monitor/internal/models"
	"neovance-monitor/internal/scorer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config 报警管理参数
type Config struct {
	// Threshold 达到该风险等级才会创建报警
	Threshold models.Severity

	// ReEscalationWindow ACTED状态无结局时回到PENDING的时限
	ReEscalationWindow time.Duration
}

// EventHandler 报警状态迁移回调，在实体锁释放后同步调用
// 副作用（持久化/发布）在内存状态迁移确定之后执行，内存决策是去重判断的唯一依据，
// 回调内可以安全回查管理器，回调阻塞不影响该患者的后续状态迁移
type EventHandler func(evt models.AlertEvent)

// Manager 报警生命周期管理器
// 每名患者持有独立互斥锁，保证"至多一条非终态报警"不依赖调用方的加锁纪律
type Manager struct {
	cfg     Config
	logger  *zap.Logger
	onEvent EventHandler

	mu     sync.Mutex
	locks  map[string]*sync.Mutex   // 患者级互斥
	latest map[string]*models.Alert // 每名患者最近一条报警
	byID   map[string]*models.Alert
}

// NewManager 创建报警管理器，onEvent 可为 nil
func NewManager(cfg Config, logger *zap.Logger, onEvent EventHandler) *Manager {
	if cfg.Threshold == "" {
		cfg.Threshold = models.SeverityCritical
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		onEvent: onEvent,
		locks:   make(map[string]*sync.Mutex),
		latest:  make(map[string]*models.Alert),
		byID:    make(map[string]*models.Alert),
	}
}

// Evaluate 在每个周期对单名患者执行报警判定
// 返回本次新建或迁移的报警；无动作时返回 nil
func (m *Manager) Evaluate(now time.Time, tenantID, mrn string, severity models.Severity, snapshot models.FeatureSnapshot) *models.Alert {
	if !m.meetsThreshold(severity) {
		return nil
	}

	lk := m.entityLock(mrn)
	lk.Lock()
	a, evt := m.evaluateLocked(now, tenantID, mrn, snapshot)
	lk.Unlock()

	m.fire(evt)
	return a
}

// evaluateLocked 在实体锁内完成判定与状态迁移，返回结果副本与待发布事件
func (m *Manager) evaluateLocked(now time.Time, tenantID, mrn string, snapshot models.FeatureSnapshot) (*models.Alert, *models.AlertEvent) {
	m.mu.Lock()
	latest := m.latest[mrn]
	m.mu.Unlock()

	switch {
	case latest == nil:
		return m.create(now, tenantID, mrn, snapshot)

	case latest.Status == models.AlertClosed:
		return m.create(now, tenantID, mrn, snapshot)

	case latest.Status == models.AlertDismissed:
		// 静默期内不打扰，静默到期的瞬间起新建报警接替旧记录
		if !now.Before(latest.DismissedAt.Add(latest.DismissFor)) {
			return m.create(now, tenantID, mrn, snapshot)
		}
		return nil, nil

	case latest.Status == models.AlertActed:
		// 处理后到达再升级窗口仍无结局，原报警回到PENDING而不是新建重复记录，
		// 保留最初的风险快照与处理历史
		if latest.Outcome == nil && !now.Before(latest.ActedAt.Add(m.cfg.ReEscalationWindow)) {
			latest.Status = models.AlertPending
			m.logger.Warn("alert re-escalated after action window expired",
				zap.String("alert_id", latest.AlertID),
				zap.String("mrn", mrn))
			return copyOf(latest), m.event(models.AlertEventReEscalated, now, latest)
		}
		return nil, nil

	default:
		// PENDING报警已覆盖该患者
		return nil, nil
	}
}

// RecordAction 记录医生处理动作
// 要求报警处于 PENDING（或 ACTED，允许补充细节）；
// dismissFor > 0 时进入 DISMISSED 并记录静默时长，否则进入 ACTED
func (m *Manager) RecordAction(now time.Time, alertID, actorID string, action models.ActionType, detail string, dismissFor time.Duration) (*models.Alert, error) {
	a, lk, err := m.lookup(alertID)
	if err != nil {
		return nil, err
	}
	lk.Lock()

	if a.Status == models.AlertClosed || a.Status == models.AlertDismissed {
		status := a.Status
		lk.Unlock()
		return nil, fmt.Errorf("record action on %s alert %s: %w", status, alertID, ErrInvalidTransition)
	}

	a.ActorID = actorID
	a.Action = action
	a.ActionDetail = detail

	ts := now
	var evt *models.AlertEvent
	if dismissFor > 0 {
		a.Status = models.AlertDismissed
		a.DismissedAt = &ts
		a.DismissFor = dismissFor
		m.logger.Info("alert dismissed",
			zap.String("alert_id", alertID),
			zap.String("actor_id", actorID),
			zap.Duration("dismiss_for", dismissFor))
		evt = m.event(models.AlertEventDismissed, now, a)
	} else {
		a.Status = models.AlertActed
		a.ActedAt = &ts
		m.logger.Info("alert acted",
			zap.String("alert_id", alertID),
			zap.String("actor_id", actorID),
			zap.String("action", string(action)))
		evt = m.event(models.AlertEventActed, now, a)
	}

	cp := copyOf(a)
	lk.Unlock()

	m.fire(evt)
	return cp, nil
}

// RecordOutcome 记录最终结局并关闭报警
// 奖励信号：创建时刻的风险判断与确认结局一致为 +1，不一致为 -1
func (m *Manager) RecordOutcome(now time.Time, alertID string, confirmed bool) (*models.Alert, error) {
	a, lk, err := m.lookup(alertID)
	if err != nil {
		return nil, err
	}
	lk.Lock()

	if a.Status == models.AlertClosed {
		lk.Unlock()
		return nil, fmt.Errorf("record outcome on closed alert %s: %w", alertID, ErrInvalidTransition)
	}

	predicted := a.Snapshot.Severity == models.SeverityCritical ||
		a.Snapshot.EOSRiskCategory == scorer.EOSHighRisk

	reward := -1.0
	if predicted == confirmed {
		reward = 1.0
	}

	a.Outcome = &models.Outcome{
		Confirmed: confirmed,
		OutcomeAt: now,
		Reward:    reward,
	}
	a.Status = models.AlertClosed

	m.logger.Info("alert closed with outcome",
		zap.String("alert_id", alertID),
		zap.Bool("confirmed", confirmed),
		zap.Float64("reward", reward))
	evt := m.event(models.AlertEventClosed, now, a)
	cp := copyOf(a)
	lk.Unlock()

	m.fire(evt)
	return cp, nil
}

// Get 按ID查询报警，返回当前快照的副本
func (m *Manager) Get(alertID string) (*models.Alert, error) {
	a, lk, err := m.lookup(alertID)
	if err != nil {
		return nil, err
	}
	lk.Lock()
	defer lk.Unlock()
	return copyOf(a), nil
}

// Latest 查询患者最近一条报警的副本，无记录时返回 nil
func (m *Manager) Latest(mrn string) *models.Alert {
	lk := m.entityLock(mrn)
	lk.Lock()
	defer lk.Unlock()

	m.mu.Lock()
	a := m.latest[mrn]
	m.mu.Unlock()
	if a == nil {
		return nil
	}
	return copyOf(a)
}

func (m *Manager) meetsThreshold(severity models.Severity) bool {
	switch m.cfg.Threshold {
	case models.SeverityWarning:
		return severity == models.SeverityWarning || severity == models.SeverityCritical
	default:
		return severity == models.SeverityCritical
	}
}

func (m *Manager) create(now time.Time, tenantID, mrn string, snapshot models.FeatureSnapshot) (*models.Alert, *models.AlertEvent) {
	a := &models.Alert{
		AlertID:   uuid.New().String(),
		TenantID:  tenantID,
		MRN:       mrn,
		Status:    models.AlertPending,
		CreatedAt: now,
		Snapshot:  snapshot,
	}

	m.mu.Lock()
	m.latest[mrn] = a
	m.byID[a.AlertID] = a
	m.mu.Unlock()

	m.logger.Warn("alert created",
		zap.String("alert_id", a.AlertID),
		zap.String("mrn", mrn),
		zap.Float64("risk_score", snapshot.RiskScore),
		zap.String("severity", string(snapshot.Severity)))
	return copyOf(a), m.event(models.AlertEventCreated, now, a)
}

// entityLock 返回该患者的互斥锁，不存在时创建
func (m *Manager) entityLock(mrn string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lk, ok := m.locks[mrn]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[mrn] = lk
	}
	return lk
}

func (m *Manager) lookup(alertID string) (*models.Alert, *sync.Mutex, error) {
	m.mu.Lock()
	a, ok := m.byID[alertID]
	m.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("alert %s: %w", alertID, ErrAlertNotFound)
	}
	return a, m.entityLock(a.MRN), nil
}

// copyOf 返回报警记录的浅副本，对外暴露的都是副本，内部记录只在实体锁内修改
func copyOf(a *models.Alert) *models.Alert {
	cp := *a
	return &cp
}

// event 在实体锁内构造状态迁移事件（携带报警副本），onEvent 为 nil 时返回 nil
func (m *Manager) event(eventType models.AlertEventType, now time.Time, a *models.Alert) *models.AlertEvent {
	if m.onEvent == nil {
		return nil
	}
	return &models.AlertEvent{
		EventType:  eventType,
		OccurredAt: now,
		Alert:      *a,
	}
}

// fire 在实体锁外调用事件回调
func (m *Manager) fire(evt *models.AlertEvent) {
	if evt == nil {
		return
	}
	m.onEvent(*evt)
}
