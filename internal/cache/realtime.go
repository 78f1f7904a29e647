// Package cache 实现实时数据与活跃报警的Redis缓存
// 缓存是评估周期的副作用，写入失败只记录日志，不影响核心决策
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"neovance-monitor/internal/config"
	"neovance-monitor/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RealtimeData 单名患者的实时监测快照（供前端轮询展示）
type RealtimeData struct {
	Measurement models.Measurement    `json:"measurement"`
	Assessment  models.RiskAssessment `json:"assessment"`

	ClinicalState string  `json:"clinical_state"`
	EOSRiskScore  float64 `json:"eos_risk_score"`
	EOSCategory   string  `json:"eos_category"`
}

// Manager Redis缓存管理器
type Manager struct {
	cfg         *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewManager 创建缓存管理器
func NewManager(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// UpdateRealtime 写入患者实时数据（带TTL，过期即视为数据中断）
func (m *Manager) UpdateRealtime(ctx context.Context, mrn string, data *RealtimeData) error {
	key := m.realtimeKey(mrn)

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal realtime data: %w", err)
	}

	err = m.redisClient.Set(
		ctx,
		key,
		jsonData,
		time.Duration(m.cfg.Cache.RealtimeTTL)*time.Second,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set realtime cache: %w", err)
	}

	m.logger.Debug("updated realtime cache",
		zap.String("mrn", mrn),
		zap.String("key", key),
	)
	return nil
}

// GetRealtime 读取患者实时数据
func (m *Manager) GetRealtime(ctx context.Context, mrn string) (*RealtimeData, error) {
	key := m.realtimeKey(mrn)

	val, err := m.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("realtime data not found for patient: %s", mrn)
		}
		return nil, fmt.Errorf("failed to get realtime cache: %w", err)
	}

	var data RealtimeData
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal realtime data: %w", err)
	}

	return &data, nil
}

// UpdateActiveAlert 写入患者当前的非终态报警（无TTL，生命周期由报警状态驱动）
func (m *Manager) UpdateActiveAlert(ctx context.Context, mrn string, alert *models.Alert) error {
	key := m.alertKey(mrn)

	jsonData, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if err := m.redisClient.Set(ctx, key, jsonData, 0).Err(); err != nil {
		return fmt.Errorf("failed to set alert cache: %w", err)
	}

	m.logger.Debug("updated active alert cache",
		zap.String("mrn", mrn),
		zap.String("alert_id", alert.AlertID),
		zap.String("status", string(alert.Status)),
	)
	return nil
}

// GetActiveAlert 读取患者当前的非终态报警，缓存未命中时返回 nil
func (m *Manager) GetActiveAlert(ctx context.Context, mrn string) (*models.Alert, error) {
	key := m.alertKey(mrn)

	val, err := m.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert cache: %w", err)
	}

	var alert models.Alert
	if err := json.Unmarshal([]byte(val), &alert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
	}

	return &alert, nil
}

// ClearActiveAlert 报警进入终态后清除缓存
func (m *Manager) ClearActiveAlert(ctx context.Context, mrn string) error {
	if err := m.redisClient.Del(ctx, m.alertKey(mrn)).Err(); err != nil {
		return fmt.Errorf("failed to clear alert cache: %w", err)
	}
	return nil
}

// ListMonitoredMRNs 扫描实时缓存键，返回当前有数据的患者列表
func (m *Manager) ListMonitoredMRNs(ctx context.Context) ([]string, error) {
	pattern := fmt.Sprintf("%s*%s",
		m.cfg.Cache.RealtimeKeyPrefix,
		m.cfg.Cache.RealtimeSuffix,
	)

	var mrns []string
	iter := m.redisClient.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		mrn := key[len(m.cfg.Cache.RealtimeKeyPrefix):]
		mrn = mrn[:len(mrn)-len(m.cfg.Cache.RealtimeSuffix)]
		mrns = append(mrns, mrn)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan realtime keys: %w", err)
	}

	return mrns, nil
}

func (m *Manager) realtimeKey(mrn string) string {
	return fmt.Sprintf("%s%s%s", m.cfg.Cache.RealtimeKeyPrefix, mrn, m.cfg.Cache.RealtimeSuffix)
}

func (m *Manager) alertKey(mrn string) string {
	return fmt.Sprintf("%s%s%s", m.cfg.Cache.RealtimeKeyPrefix, mrn, m.cfg.Cache.AlertSuffix)
}
