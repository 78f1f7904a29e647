package publisher

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"neovance-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	connected bool
	failWith  error
	topics    []string
	payloads  [][]byte
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) IsConnected() bool {
	return f.connected
}

func sampleEvent() models.AlertEvent {
	return models.AlertEvent{
		EventType:  models.AlertEventCreated,
		OccurredAt: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		Alert: models.Alert{
			AlertID:  "a-1",
			TenantID: "t1",
			MRN:      "B002",
			Status:   models.AlertPending,
		},
	}
}

func TestPublishEvent_TopicAndPayload(t *testing.T) {
	fake := &fakePublisher{connected: true}
	p := NewAlertPublisher(fake, "neovance/alerts/", zap.NewNop())

	err := p.PublishEvent(sampleEvent())

	require.NoError(t, err)
	require.Len(t, fake.topics, 1)
	assert.Equal(t, "neovance/alerts/t1/B002/created", fake.topics[0])

	var got models.AlertEvent
	require.NoError(t, json.Unmarshal(fake.payloads[0], &got))
	assert.Equal(t, "a-1", got.Alert.AlertID)
	assert.Equal(t, models.AlertEventCreated, got.EventType)
}

func TestPublishEvent_NotConnected(t *testing.T) {
	fake := &fakePublisher{connected: false}
	p := NewAlertPublisher(fake, "neovance/alerts/", zap.NewNop())

	err := p.PublishEvent(sampleEvent())

	assert.Error(t, err)
	assert.Empty(t, fake.topics)
}

func TestPublishEvent_PublishFailure(t *testing.T) {
	fake := &fakePublisher{connected: true, failWith: errors.New("broker gone")}
	p := NewAlertPublisher(fake, "neovance/alerts/", zap.NewNop())

	err := p.PublishEvent(sampleEvent())

	assert.Error(t, err)
}
