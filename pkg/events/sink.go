package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Sink publishes events to one destination.
type Sink interface {
	// Connect initializes the sink from its connector-specific config.
	Connect(config json.RawMessage, logger *zap.Logger) error
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Predefined connectors.
const (
	ConnectorClickHouse = "clickhouse"
	ConnectorDebug      = "debug"
	ConnectorKafka      = "kafka"
	ConnectorMQTT       = "mqtt"
	ConnectorNATS       = "nats"
	ConnectorWebhook    = "webhook"
)

var ErrUnknownConnector = errors.New("events: unknown connector")

var (
	mu         sync.RWMutex
	connectors = make(map[string]func() Sink)
)

// Register makes a connector available by name. It panics when called twice
// with the same name.
func Register(name string, factory func() Sink) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := connectors[name]; dup {
		panic("events: Register called twice for connector " + name)
	}
	connectors[name] = factory
}

// Connectors returns the registered connector names, sorted.
func Connectors() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(connectors))
	for n := range connectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SinkConfig configures one sink.
type SinkConfig struct {
	Name      string `mapstructure:"name" validate:"required"`
	Connector string `mapstructure:"connector" validate:"required"`
	// Config holds the connector's own settings, passed to Connect as JSON.
	Config map[string]any `mapstructure:"config"`
	Filter Filter         `mapstructure:"filter"`
}

// Open creates and connects the sink described by cfg.
func Open(cfg SinkConfig, logger *zap.Logger) (Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mu.RLock()
	factory, ok := connectors[cfg.Connector]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownConnector, cfg.Connector)
	}
	raw, err := json.Marshal(cfg.Config)
	if err != nil {
		return nil, fmt.Errorf("events: sink %s config: %w", cfg.Name, err)
	}
	s := factory()
	if err := s.Connect(raw, logger.With(zap.String("sink", cfg.Name))); err != nil {
		return nil, fmt.Errorf("events: connect sink %s: %w", cfg.Name, err)
	}
	return s, nil
}
