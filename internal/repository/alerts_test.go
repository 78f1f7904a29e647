package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"neovance-monitor/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAlertDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlertRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewAlertRepository(db, zap.NewNop())
	return db, mock, repo
}

func sampleAlert(tenantID string) models.Alert {
	return models.Alert{
		AlertID:   uuid.New().String(),
		TenantID:  tenantID,
		MRN:       "B002",
		Status:    models.AlertPending,
		CreatedAt: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		Snapshot: models.FeatureSnapshot{
			FeatureVersion: models.FeatureVersionV1,
			HeartRate:      182,
			SpO2:           85,
			RiskScore:      388.12,
			Severity:       models.SeverityCritical,
		},
	}
}

func TestSaveEvent_CreatedAlert(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	a := sampleAlert(tenantID)
	evt := models.AlertEvent{
		EventType:  models.AlertEventCreated,
		OccurredAt: a.CreatedAt,
		Alert:      a,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO alerts`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO alert_events`).
		WithArgs(a.AlertID, tenantID, a.MRN, "created", "pending", evt.OccurredAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.SaveEvent(context.Background(), evt)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEvent_ClosedAlertCarriesOutcome(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	a := sampleAlert(tenantID)
	actedAt := a.CreatedAt.Add(time.Minute)
	outcomeAt := a.CreatedAt.Add(2 * time.Hour)
	a.Status = models.AlertClosed
	a.ActorID = "dr.rao"
	a.Action = models.ActionTreat
	a.ActedAt = &actedAt
	a.Outcome = &models.Outcome{Confirmed: true, OutcomeAt: outcomeAt, Reward: 1.0}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO alerts`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO alert_events`).
		WithArgs(a.AlertID, tenantID, a.MRN, "closed", "closed", outcomeAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.SaveEvent(context.Background(), models.AlertEvent{
		EventType:  models.AlertEventClosed,
		OccurredAt: outcomeAt,
		Alert:      a,
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEvent_MissingAlertID(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	err := repo.SaveEvent(context.Background(), models.AlertEvent{
		EventType: models.AlertEventCreated,
		Alert:     models.Alert{TenantID: "t1"},
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "alert_id is required")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEvent_InsertFailureRollsBack(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	a := sampleAlert(tenantID)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO alerts`).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.SaveEvent(context.Background(), models.AlertEvent{
		EventType:  models.AlertEventCreated,
		OccurredAt: a.CreatedAt,
		Alert:      a,
	})

	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func alertRowColumns() []string {
	return []string{
		"alert_id", "tenant_id", "mrn", "status", "created_at", "snapshot",
		"actor_id", "action", "action_detail", "acted_at", "dismissed_at",
		"dismiss_for_seconds", "outcome_confirmed", "outcome_at", "outcome_reward",
	}
}

func TestGetAlert_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	a := sampleAlert(tenantID)
	snapshot, err := json.Marshal(a.Snapshot)
	require.NoError(t, err)

	rows := sqlmock.NewRows(alertRowColumns()).AddRow(
		a.AlertID, tenantID, a.MRN, "pending", a.CreatedAt, snapshot,
		nil, nil, nil, nil, nil,
		0, nil, nil, nil,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(a.AlertID, tenantID).
		WillReturnRows(rows)

	got, err := repo.GetAlert(context.Background(), tenantID, a.AlertID)

	require.NoError(t, err)
	assert.Equal(t, a.AlertID, got.AlertID)
	assert.Equal(t, models.AlertPending, got.Status)
	assert.Equal(t, 388.12, got.Snapshot.RiskScore)
	assert.Equal(t, models.SeverityCritical, got.Snapshot.Severity)
	assert.Nil(t, got.Outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlert_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	alertID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(alertID, tenantID).
		WillReturnError(sql.ErrNoRows)

	got, err := repo.GetAlert(context.Background(), tenantID, alertID)

	assert.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlertsByMRN_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	a1 := sampleAlert(tenantID)
	a2 := sampleAlert(tenantID)
	snapshot, err := json.Marshal(a1.Snapshot)
	require.NoError(t, err)

	dismissedAt := a2.CreatedAt.Add(time.Minute)
	rows := sqlmock.NewRows(alertRowColumns()).
		AddRow(a2.AlertID, tenantID, "B002", "dismissed", a2.CreatedAt.Add(2*time.Hour), snapshot,
			"dr.rao", "Dismiss", "movement artifact", nil, dismissedAt, 3600, nil, nil, nil).
		AddRow(a1.AlertID, tenantID, "B002", "closed", a1.CreatedAt, snapshot,
			"dr.rao", "Treat", "", a1.CreatedAt, nil, 0, true, a1.CreatedAt.Add(time.Hour), 1.0)

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, "B002", 50).
		WillReturnRows(rows)

	alerts, err := repo.ListAlertsByMRN(context.Background(), tenantID, "B002", 0)

	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, models.AlertDismissed, alerts[0].Status)
	assert.Equal(t, time.Hour, alerts[0].DismissFor)
	require.NotNil(t, alerts[1].Outcome)
	assert.Equal(t, 1.0, alerts[1].Outcome.Reward)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListClosedAlertsWithOutcome_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	a := sampleAlert(tenantID)
	snapshot, err := json.Marshal(a.Snapshot)
	require.NoError(t, err)

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	outcomeAt := a.CreatedAt.Add(time.Hour)
	rows := sqlmock.NewRows(alertRowColumns()).AddRow(
		a.AlertID, tenantID, a.MRN, "closed", a.CreatedAt, snapshot,
		"dr.rao", "Treat", "", a.CreatedAt, nil, 0, false, outcomeAt, -1.0,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, since, 500).
		WillReturnRows(rows)

	alerts, err := repo.ListClosedAlertsWithOutcome(context.Background(), tenantID, since, 0)

	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].Outcome)
	assert.False(t, alerts[0].Outcome.Confirmed)
	assert.Equal(t, -1.0, alerts[0].Outcome.Reward)
	require.NoError(t, mock.ExpectationsWereMet())
}
