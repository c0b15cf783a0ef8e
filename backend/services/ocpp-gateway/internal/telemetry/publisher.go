package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"ocppgateway/backend/services/ocpp-gateway/internal/models"
)

const publishTimeout = 5 * time.Second

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// MeterMessage is published for every stored meter sample.
type MeterMessage struct {
	ChargePointID string               `json:"chargePointId"`
	TransactionID models.TransactionID `json:"transactionId"`
	Timestamp     time.Time            `json:"timestamp"`
	SampledValue  json.RawMessage      `json:"sampledValue"`
}

// StatusMessage is published for every connector status update.
type StatusMessage struct {
	ChargePointID string `json:"chargePointId"`
	models.ConnectorStatus
}

// Publisher fans meter samples and connector statuses out over MQTT, QoS 0, not retained.
type Publisher struct {
	client mqttClient
	prefix string
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewPublisher builds publisher on top of a connected client.
func NewPublisher(client paho.Client, prefix string, logger *zap.Logger) *Publisher {
	return newPublisher(client, prefix, logger)
}

func newPublisher(client mqttClient, prefix string, logger *zap.Logger) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "ocpp"
	}
	return &Publisher{client: client, prefix: prefix, logger: logger}
}

// PublishMeterSample sends the sample to <prefix>/<identity>/transactions/<txId>/meter.
func (p *Publisher) PublishMeterSample(identity string, txID models.TransactionID, sample models.MeterSample) {
	topic := fmt.Sprintf("%s/%s/transactions/%s/meter", p.prefix, topicSegment(identity), topicSegment(txID.String()))
	p.publish(topic, MeterMessage{
		ChargePointID: identity,
		TransactionID: txID,
		Timestamp:     sample.Timestamp,
		SampledValue:  sample.RawValues,
	})
}

// PublishConnectorStatus sends the status to <prefix>/<identity>/connectors/<id>/status.
func (p *Publisher) PublishConnectorStatus(identity string, status models.ConnectorStatus) {
	topic := fmt.Sprintf("%s/%s/connectors/%d/status", p.prefix, topicSegment(identity), status.ConnectorID)
	p.publish(topic, StatusMessage{ChargePointID: identity, ConnectorStatus: status})
}

// Wait blocks until outstanding publish acknowledgements are observed.
func (p *Publisher) Wait() {
	p.wg.Wait()
}

func (p *Publisher) publish(topic string, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		p.logger.Warn("encode telemetry message failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	token := p.client.Publish(topic, 0, false, data)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if !token.WaitTimeout(publishTimeout) {
			p.logger.Warn("telemetry publish timed out", zap.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("telemetry publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

var topicReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

func topicSegment(s string) string {
	return topicReplacer.Replace(s)
}
