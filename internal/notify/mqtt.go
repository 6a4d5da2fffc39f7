package notify

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// MQTT settings.
const (
	MQTTQoS            = 1
	mqttConnectTimeout = 10 * time.Second
	mqttQuiesceMillis  = 250
)

// mqttPublisher is the part of mqtt.Client the sink uses.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes each plate as a JSON message on a topic.
type MQTTSink struct {
	client mqttPublisher
	topic  string
}

// NewMQTTSink connects to broker (tcp://host:1883). The client reconnects on
// its own after the first successful connection.
func NewMQTTSink(broker, clientID, topic string, log logrus.FieldLogger) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).WithField("broker", broker).Warn("mqtt connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}

	log.WithFields(logrus.Fields{"broker": broker, "topic": topic}).Info("connected to mqtt broker")
	return &MQTTSink{client: client, topic: topic}, nil
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Send implements Sink.
func (s *MQTTSink) Send(ctx context.Context, ev Event) error {
	msg, err := encodeMessage(ev)
	if err != nil {
		return err
	}

	token := s.client.Publish(s.topic, MQTTQoS, false, msg)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", s.topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", s.topic, ctx.Err())
	}
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(mqttQuiesceMillis)
	return nil
}
