// Package publisher 将报警生命周期事件发布到MQTT
// 发布失败只记录日志，事件不重发，订阅方以数据库为准
package publisher

import (
	"encoding/json"
	"fmt"

	"neovance-monitor/internal/models"

	"go.uber.org/zap"
)

// MessagePublisher 发布接口，由 internal/common/mqtt.Client 实现
type MessagePublisher interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// AlertPublisher 报警事件发布器
type AlertPublisher struct {
	client      MessagePublisher
	topicPrefix string
	logger      *zap.Logger
}

// NewAlertPublisher 创建报警事件发布器
func NewAlertPublisher(client MessagePublisher, topicPrefix string, logger *zap.Logger) *AlertPublisher {
	return &AlertPublisher{
		client:      client,
		topicPrefix: topicPrefix,
		logger:      logger,
	}
}

// PublishEvent 发布一次报警状态迁移
// 主题: <prefix><tenant_id>/<mrn>/<event_type>
func (p *AlertPublisher) PublishEvent(evt models.AlertEvent) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	topic := fmt.Sprintf("%s%s/%s/%s",
		p.topicPrefix,
		evt.Alert.TenantID,
		evt.Alert.MRN,
		evt.EventType,
	)

	if err := p.client.Publish(topic, payload); err != nil {
		return fmt.Errorf("failed to publish alert event: %w", err)
	}

	p.logger.Debug("published alert event",
		zap.String("topic", topic),
		zap.String("alert_id", evt.Alert.AlertID),
		zap.String("event_type", string(evt.EventType)),
	)
	return nil
}
