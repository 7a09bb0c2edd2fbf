// Package mqtt publishes events to an MQTT broker on topics
// `<topicPrefix>/<type>/<action>`, e.g. `pgjsonapi/users/create`.
package mqtt

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/events"
)

var errNotConnected = errors.New("mqtt client not connected")

// Sink publishes to MQTT.
type Sink struct {
	client mqtt.Client
	logger *zap.Logger
	Config Config
}

func (s *Sink) Connect(config json.RawMessage, logger *zap.Logger) error {
	s.logger = logger
	if err := json.Unmarshal(config, &s.Config); err != nil {
		return fmt.Errorf("failed to unmarshal MQTT config: %w", err)
	}
	s.Config.TopicPrefix = strings.Trim(cmp.Or(s.Config.TopicPrefix, "pgjsonapi"), "/")
	if s.Config.QoS > 2 {
		return fmt.Errorf("invalid qos %d", s.Config.QoS)
	}

	opts, err := pahoOptions(&s.Config)
	if err != nil {
		return err
	}
	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("broker connection error: %w", token.Error())
	}
	return nil
}

// Topic returns the topic e is published on.
func (s *Sink) Topic(e events.Event) string {
	return s.Config.TopicPrefix + "/" + e.Type + "/" + string(e.Action)
}

// Publish waits for the broker acknowledgement or ctx, whichever is first.
func (s *Sink) Publish(ctx context.Context, e events.Event) error {
	if s.client == nil {
		return errNotConnected
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	topic := s.Topic(e)
	token := s.client.Publish(topic, s.Config.QoS, s.Config.Retained, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	s.logger.Debug("message published", zap.String("topic", topic))
	return nil
}

func (s *Sink) Close() error {
	if s.client != nil {
		s.client.Disconnect(500)
	}
	return nil
}

func init() {
	events.Register(events.ConnectorMQTT, func() events.Sink { return &Sink{logger: zap.NewNop()} })
}
