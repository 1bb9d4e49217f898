package platform

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/durkdan/messenger-gpt/internal/config"
)

// MQTTSender publishes outbound messages to a broker that bridges to
// the messaging platform. Each recipient gets their own topic under
// the configured prefix, so the bridge can map topics back to platform
// sender ids without parsing payloads.
type MQTTSender struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// outboundMessage is the payload published for each delivery.
type outboundMessage struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
	SentAt    string `json:"sent_at"`
}

// NewMQTTSender creates a sender but does not connect. Call
// [MQTTSender.Start] before sending.
func NewMQTTSender(cfg config.MQTTConfig, logger *slog.Logger) *MQTTSender {
	return &MQTTSender{cfg: cfg, logger: logger}
}

// Start connects to the MQTT broker. autopaho reconnects in the
// background on connection loss, so a broker outage degrades delivery
// instead of crashing the process.
func (s *MQTTSender) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(s.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: s.cfg.Username,
		ConnectPassword: []byte(s.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   s.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			s.logger.Info("mqtt connected to broker", "broker", s.cfg.Broker)
			s.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			s.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "messengerd-" + s.cfg.DeviceName,
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	s.cm = cm

	// Wait briefly for the initial connection; autopaho keeps retrying
	// in the background if it is not up yet.
	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		s.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	return nil
}

// Stop publishes an offline availability message and disconnects.
func (s *MQTTSender) Stop(ctx context.Context) error {
	if s.cm == nil {
		return nil
	}
	s.publishAvailability(ctx, s.cm, "offline")
	return s.cm.Disconnect(ctx)
}

// Send publishes one message to the recipient's outbound topic.
func (s *MQTTSender) Send(ctx context.Context, senderID, text string) error {
	if s.cm == nil {
		return fmt.Errorf("mqtt sender not started")
	}

	payload, err := json.Marshal(outboundMessage{
		Recipient: senderID,
		Text:      text,
		SentAt:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	topic := s.outboundTopic(senderID)
	if _, err := s.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	s.logger.Debug("mqtt message published", "topic", topic, "text_len", len(text))
	return nil
}

func (s *MQTTSender) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   s.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		s.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	}
}

func (s *MQTTSender) baseTopic() string {
	return s.cfg.TopicPrefix + "/" + s.cfg.DeviceName
}

func (s *MQTTSender) availabilityTopic() string {
	return s.baseTopic() + "/availability"
}

func (s *MQTTSender) outboundTopic(senderID string) string {
	return s.baseTopic() + "/outbound/" + senderID
}
