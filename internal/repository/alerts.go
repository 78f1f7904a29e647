// Package repository 实现报警记录与患者档案的postgres持久化
// 持久化是内存状态迁移确定之后的副作用，失败只记录日志，不回滚内存决策
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"neovance-monitor/internal/models"

	"go.uber.org/zap"
)

// AlertRepository 报警记录仓库
type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRepository 创建报警记录仓库
func NewAlertRepository(db *sql.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

// SaveEvent 持久化一次报警状态迁移：更新报警行并追加事件行
// 报警行按 alert_id 幂等覆盖，事件行只增不改
func (r *AlertRepository) SaveEvent(ctx context.Context, evt models.AlertEvent) error {
	a := evt.Alert
	if a.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if a.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}

	snapshot, err := json.Marshal(a.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO alerts (
			alert_id,
			tenant_id,
			mrn,
			status,
			created_at,
			snapshot,
			actor_id,
			action,
			action_detail,
			acted_at,
			dismissed_at,
			dismiss_for_seconds,
			outcome_confirmed,
			outcome_at,
			outcome_reward,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, CURRENT_TIMESTAMP
		)
		ON CONFLICT (alert_id) DO UPDATE SET
			status = EXCLUDED.status,
			actor_id = EXCLUDED.actor_id,
			action = EXCLUDED.action,
			action_detail = EXCLUDED.action_detail,
			acted_at = EXCLUDED.acted_at,
			dismissed_at = EXCLUDED.dismissed_at,
			dismiss_for_seconds = EXCLUDED.dismiss_for_seconds,
			outcome_confirmed = EXCLUDED.outcome_confirmed,
			outcome_at = EXCLUDED.outcome_at,
			outcome_reward = EXCLUDED.outcome_reward,
			updated_at = CURRENT_TIMESTAMP
	`

	var outcomeConfirmed sql.NullBool
	var outcomeAt sql.NullTime
	var outcomeReward sql.NullFloat64
	if a.Outcome != nil {
		outcomeConfirmed = sql.NullBool{Bool: a.Outcome.Confirmed, Valid: true}
		outcomeAt = sql.NullTime{Time: a.Outcome.OutcomeAt, Valid: true}
		outcomeReward = sql.NullFloat64{Float64: a.Outcome.Reward, Valid: true}
	}

	_, err = tx.ExecContext(ctx, upsert,
		a.AlertID,
		a.TenantID,
		a.MRN,
		string(a.Status),
		a.CreatedAt,
		snapshot,
		nullString(a.ActorID),
		nullString(string(a.Action)),
		nullString(a.ActionDetail),
		nullTime(a.ActedAt),
		nullTime(a.DismissedAt),
		int64(a.DismissFor/time.Second),
		outcomeConfirmed,
		outcomeAt,
		outcomeReward,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert alert: %w", err)
	}

	insertEvent := `
		INSERT INTO alert_events (
			alert_id,
			tenant_id,
			mrn,
			event_type,
			status,
			occurred_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`
	_, err = tx.ExecContext(ctx, insertEvent,
		a.AlertID,
		a.TenantID,
		a.MRN,
		string(evt.EventType),
		string(a.Status),
		evt.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alert event: %w", err)
	}

	return nil
}

// GetAlert 根据 alert_id 获取报警记录（需验证 tenant_id）
func (r *AlertRepository) GetAlert(ctx context.Context, tenantID, alertID string) (*models.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		SELECT
			alert_id,
			tenant_id,
			mrn,
			status,
			created_at,
			snapshot,
			actor_id,
			action,
			action_detail,
			acted_at,
			dismissed_at,
			dismiss_for_seconds,
			outcome_confirmed,
			outcome_at,
			outcome_reward
		FROM alerts
		WHERE alert_id = $1
		  AND tenant_id = $2
	`

	a, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert not found: alert_id=%s, tenant_id=%s", alertID, tenantID)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// ListAlertsByMRN 查询患者的报警历史，按创建时间倒序
func (r *AlertRepository) ListAlertsByMRN(ctx context.Context, tenantID, mrn string, limit int) ([]*models.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if mrn == "" {
		return nil, fmt.Errorf("mrn is required")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT
			alert_id,
			tenant_id,
			mrn,
			status,
			created_at,
			snapshot,
			actor_id,
			action,
			action_detail,
			acted_at,
			dismissed_at,
			dismiss_for_seconds,
			outcome_confirmed,
			outcome_at,
			outcome_reward
		FROM alerts
		WHERE tenant_id = $1
		  AND mrn = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, mrn, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}

// ListClosedAlertsWithOutcome 查询已关闭且带结局的报警，作为监督学习样本导出
func (r *AlertRepository) ListClosedAlertsWithOutcome(ctx context.Context, tenantID string, since time.Time, limit int) ([]*models.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if limit <= 0 {
		limit = 500
	}

	query := `
		SELECT
			alert_id,
			tenant_id,
			mrn,
			status,
			created_at,
			snapshot,
			actor_id,
			action,
			action_detail,
			acted_at,
			dismissed_at,
			dismiss_for_seconds,
			outcome_confirmed,
			outcome_at,
			outcome_reward
		FROM alerts
		WHERE tenant_id = $1
		  AND status = 'closed'
		  AND outcome_at IS NOT NULL
		  AND outcome_at >= $2
		ORDER BY outcome_at ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate closed alerts: %w", err)
	}

	return alerts, nil
}

// scanner 兼容 *sql.Row 和 *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(s scanner) (*models.Alert, error) {
	var a models.Alert
	var status string
	var snapshot []byte
	var actorID, action, actionDetail sql.NullString
	var actedAt, dismissedAt sql.NullTime
	var dismissForSeconds sql.NullInt64
	var outcomeConfirmed sql.NullBool
	var outcomeAt sql.NullTime
	var outcomeReward sql.NullFloat64

	err := s.Scan(
		&a.AlertID,
		&a.TenantID,
		&a.MRN,
		&status,
		&a.CreatedAt,
		&snapshot,
		&actorID,
		&action,
		&actionDetail,
		&actedAt,
		&dismissedAt,
		&dismissForSeconds,
		&outcomeConfirmed,
		&outcomeAt,
		&outcomeReward,
	)
	if err != nil {
		return nil, err
	}

	a.Status = models.AlertStatus(status)

	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &a.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
	}

	if actorID.Valid {
		a.ActorID = actorID.String
	}
	if action.Valid {
		a.Action = models.ActionType(action.String)
	}
	if actionDetail.Valid {
		a.ActionDetail = actionDetail.String
	}
	if actedAt.Valid {
		a.ActedAt = &actedAt.Time
	}
	if dismissedAt.Valid {
		a.DismissedAt = &dismissedAt.Time
	}
	if dismissForSeconds.Valid {
		a.DismissFor = time.Duration(dismissForSeconds.Int64) * time.Second
	}
	if outcomeConfirmed.Valid && outcomeAt.Valid {
		a.Outcome = &models.Outcome{
			Confirmed: outcomeConfirmed.Bool,
			OutcomeAt: outcomeAt.Time,
			Reward:    outcomeReward.Float64,
		}
	}

	return &a, nil
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
