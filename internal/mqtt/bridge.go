// Package mqtt bridges an MQTT broker into the ingest path.
//
// Sensors publish JSON readings to a topic; every message is decoded and
// ingested exactly like an HTTP submission. The bridge is optional and off
// by default.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/xtxerr/meteolog/config"
	"github.com/xtxerr/meteolog/internal/constants"
	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/logging"
	"github.com/xtxerr/meteolog/internal/metrics"
	"github.com/xtxerr/meteolog/internal/reading"
	"github.com/xtxerr/meteolog/internal/service"
)

var log = logging.Component("mqtt")

const (
	connectTimeout = 10 * time.Second
	ingestTimeout  = 5 * time.Second
)

// message is the JSON payload sensors publish.
type message struct {
	Timestamp   *time.Time `json:"timestamp"`
	Temperature *float64   `json:"temperature"`
	SensorID    string     `json:"sensor_id"`
}

// decode parses a payload into a reading. Range checks are left to the
// service so both ingest paths reject the same way.
func decode(payload []byte) (reading.Reading, error) {
	var m message
	if err := json.Unmarshal(payload, &m); err != nil {
		return reading.Reading{}, fmt.Errorf("parse payload: %w", err)
	}
	if m.Temperature == nil {
		return reading.Reading{}, errors.NewMissingField("temperature")
	}
	if m.SensorID == "" {
		return reading.Reading{}, errors.NewMissingField("sensor_id")
	}

	r := reading.Reading{
		Temperature: *m.Temperature,
		SensorID:    m.SensorID,
	}
	if m.Timestamp != nil {
		r.Timestamp = *m.Timestamp
	}
	return r, nil
}

// Bridge subscribes to a broker topic and feeds the service.
type Bridge struct {
	cfg     config.MQTTConfig
	svc     *service.Service
	metrics *metrics.Metrics
	client  mqtt.Client

	received atomic.Int64
	accepted atomic.Int64
	rejected atomic.Int64
}

// New creates a bridge. Start must be called before messages flow.
func New(cfg config.MQTTConfig, svc *service.Service, m *metrics.Metrics) *Bridge {
	return &Bridge{cfg: cfg, svc: svc, metrics: m}
}

// Start connects to the broker and subscribes. The subscription is placed
// in the connect handler so it is restored after a reconnect.
func (b *Bridge) Start() error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info("connected to broker", "broker", b.cfg.Broker)
		if token := client.Subscribe(b.cfg.Topic, byte(b.cfg.QoS), b.handleMessage); !token.WaitTimeout(connectTimeout) {
			log.Warn("subscribe timed out", "topic", b.cfg.Topic)
		} else if token.Error() != nil {
			log.Warn("subscribe failed", "topic", b.cfg.Topic, "error", token.Error())
		} else {
			log.Info("subscribed", "topic", b.cfg.Topic, "qos", b.cfg.QoS)
		}
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn("connection to broker lost", "error", err)
	})

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect to %s timed out after %v", b.cfg.Broker, connectTimeout)
	} else if token.Error() != nil {
		return fmt.Errorf("connect to %s: %w", b.cfg.Broker, token.Error())
	}
	return nil
}

func (b *Bridge) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	b.received.Add(1)

	r, err := decode(msg.Payload())
	if err != nil {
		b.rejected.Add(1)
		b.metrics.MQTTMessages.WithLabelValues("invalid").Inc()
		log.Warn("dropping message", "topic", msg.Topic(), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()
	ctx = logging.ContextWithSource(ctx, constants.OriginMQTT)

	if _, err := b.svc.Ingest(ctx, r); err != nil {
		b.rejected.Add(1)
		b.metrics.MQTTMessages.WithLabelValues("error").Inc()
		log.Warn("ingest failed", "sensor", r.SensorID, "error", err)
		return
	}

	b.accepted.Add(1)
	b.metrics.MQTTMessages.WithLabelValues("ok").Inc()
	b.metrics.IngestTotal.WithLabelValues(constants.OriginMQTT).Inc()
}

// Close disconnects from the broker, giving in-flight handlers a short
// grace period.
func (b *Bridge) Close() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
	log.Info("bridge stopped",
		"received", b.received.Load(),
		"accepted", b.accepted.Load(),
		"rejected", b.rejected.Load())
}

// Stats is the bridge message accounting.
type Stats struct {
	Received int64 `json:"received"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

// Stats returns a snapshot of the message counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Received: b.received.Load(),
		Accepted: b.accepted.Load(),
		Rejected: b.rejected.Load(),
	}
}
