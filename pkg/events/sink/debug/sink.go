// Package debug provides a sink that logs every event. Useful while wiring
// up other sinks.
package debug

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/events"
)

// Sink logs events at info level.
type Sink struct {
	logger *zap.Logger
}

func (s *Sink) Connect(_ json.RawMessage, logger *zap.Logger) error {
	s.logger = logger
	return nil
}

func (s *Sink) Publish(_ context.Context, e events.Event) error {
	s.logger.Info(events.ConnectorDebug,
		zap.String("subject", e.Subject()),
		zap.String("id", e.ID),
		zap.String("resource_id", e.ResourceID),
		zap.String("relationship", e.Relationship),
	)
	return nil
}

func (s *Sink) Close() error {
	return nil
}

func init() {
	events.Register(events.ConnectorDebug, func() events.Sink { return &Sink{logger: zap.NewNop()} })
}
