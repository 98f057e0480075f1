package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqttcommon "cuida-monitor/common/mqtt"
	"cuida-monitor/internal/models"

	"go.uber.org/zap"
)

// Ingester is the write-through entry point (service.EventService).
type Ingester interface {
	Ingest(ctx context.Context, source string, req *models.ReportEventRequest) (*models.Event, error)
}

// Subscriber is the subset of the MQTT client the consumer needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer feeds device events published on cuida/{device_id}/events
// into the ingestion service.
type MQTTConsumer struct {
	client   Subscriber
	topic    string
	qos      byte
	ingester Ingester
	logger   *zap.Logger

	ctx context.Context
}

func NewMQTTConsumer(client Subscriber, topic string, qos byte, ingester Ingester, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		client:   client,
		topic:    topic,
		qos:      qos,
		ingester: ingester,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// Start subscribes to the event topic. Messages are ingested with ctx until
// Stop is called.
func (c *MQTTConsumer) Start(ctx context.Context) error {
	c.ctx = ctx
	if err := c.client.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to event topic: %w", err)
	}

	c.logger.Info("MQTT consumer started", zap.String("topic", c.topic))
	return nil
}

func (c *MQTTConsumer) Stop() error {
	if err := c.client.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
		return err
	}
	c.logger.Info("MQTT consumer stopped")
	return nil
}

func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	deviceID, err := deviceFromTopic(topic)
	if err != nil {
		return err
	}

	var req models.ReportEventRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("invalid event payload from %s: %w", deviceID, err)
	}
	// The topic is authoritative for the device identity.
	req.DeviceID = deviceID

	if _, err := c.ingester.Ingest(c.ctx, models.SourceMQTT, &req); err != nil {
		return fmt.Errorf("failed to ingest event from %s: %w", deviceID, err)
	}
	return nil
}

// deviceFromTopic extracts {device_id} from cuida/{device_id}/events.
func deviceFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[1] == "" || parts[2] != "events" {
		return "", fmt.Errorf("invalid topic format: %s", topic)
	}
	return parts[1], nil
}
