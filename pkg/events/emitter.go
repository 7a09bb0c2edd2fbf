package events

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/metrics"
)

type namedSink struct {
	name   string
	sink   Sink
	filter *Filter
}

// Emitter fans events out to sinks in the background.
type Emitter struct {
	sinks   []namedSink
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewEmitter opens every configured sink. Sinks opened before a failure are
// closed again.
func NewEmitter(cfgs []SinkConfig, timeout time.Duration, logger *zap.Logger) (*Emitter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	em := &Emitter{logger: logger, timeout: cmp.Or(timeout, 10*time.Second)}
	for _, cfg := range cfgs {
		if err := cfg.Filter.Validate(); err != nil {
			_ = em.Close()
			return nil, fmt.Errorf("events: sink %s: %w", cfg.Name, err)
		}
		s, err := Open(cfg, logger)
		if err != nil {
			_ = em.Close()
			return nil, err
		}
		em.sinks = append(em.sinks, namedSink{name: cfg.Name, sink: s, filter: &cfg.Filter})
	}
	return em, nil
}

// Add attaches a connected sink receiving every event.
func (em *Emitter) Add(name string, s Sink) {
	em.sinks = append(em.sinks, namedSink{name: name, sink: s})
}

// Len returns the number of sinks.
func (em *Emitter) Len() int { return len(em.sinks) }

// Emit publishes e to every sink without blocking the caller. The publish
// outlives ctx's cancellation but not the emitter's timeout.
func (em *Emitter) Emit(ctx context.Context, e Event) {
	if em == nil {
		return
	}
	for _, ns := range em.sinks {
		if !ns.filter.Match(e) {
			continue
		}
		em.wg.Add(1)
		go func(ns namedSink) {
			defer em.wg.Done()
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), em.timeout)
			defer cancel()
			if err := ns.sink.Publish(pctx, e); err != nil {
				metrics.PublishErrors.WithLabelValues(ns.name).Inc()
				em.logger.Warn("publish event",
					zap.String("sink", ns.name),
					zap.String("subject", e.Subject()),
					zap.String("event_id", e.ID),
					zap.Error(err))
				return
			}
			metrics.PublishedEvents.WithLabelValues(ns.name).Inc()
		}(ns)
	}
}

// Close waits for in-flight publishes and closes every sink.
func (em *Emitter) Close() error {
	em.wg.Wait()
	var errs []error
	for _, ns := range em.sinks {
		if err := ns.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
