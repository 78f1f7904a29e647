package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"neovance-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSnapshot() models.FeatureSnapshot {
	return models.FeatureSnapshot{
		FeatureVersion: models.FeatureVersionV1,
		HeartRate:      178,
		SpO2:           86,
		RespRate:       70,
		Temp:           38.6,
		MAP:            27,
		Tachycardia:    true,
		Hypoxia:        true,
		RiskScore:      301.55,
		Severity:       models.SeverityCritical,
	}
}

func TestPredict_Success(t *testing.T) {
	var received models.FeatureSnapshot
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"probability":     0.87,
			"feature_version": "1.0",
			"model_version":   "gb-2026-02",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, zap.NewNop())
	p, err := c.Predict(context.Background(), testSnapshot())

	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 0.87, *p)
	// 快照原样上送
	assert.Equal(t, 178.0, received.HeartRate)
	assert.Equal(t, models.FeatureVersionV1, received.FeatureVersion)
}

func TestPredict_Unreachable_NoOpinion(t *testing.T) {
	c := NewClient("http://127.0.0.1:1/predict_risk", 500*time.Millisecond, zap.NewNop())

	p, err := c.Predict(context.Background(), testSnapshot())

	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestPredict_ServerError_NoOpinion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, zap.NewNop())
	p, err := c.Predict(context.Background(), testSnapshot())

	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestPredict_OutOfRangeProbability_NoOpinion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"probability": 1.7})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, zap.NewNop())
	p, err := c.Predict(context.Background(), testSnapshot())

	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestPredict_FeatureVersionMismatch_NoOpinion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"probability":     0.4,
			"feature_version": "0.9",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, zap.NewNop())
	p, err := c.Predict(context.Background(), testSnapshot())

	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, zap.NewNop())

	assert.NoError(t, c.Healthy(context.Background()))
	assert.Error(t, NewClient("http://127.0.0.1:1/", 500*time.Millisecond, zap.NewNop()).Healthy(context.Background()))
}
