package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	closed bool
	config json.RawMessage
}

func (m *memorySink) Connect(config json.RawMessage, _ *zap.Logger) error {
	m.config = config
	return nil
}

func (m *memorySink) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("unavailable")
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return nil
}

var lastMemory *memorySink

func init() {
	Register("memory", func() Sink {
		lastMemory = &memorySink{}
		return lastMemory
	})
}

func TestEvent(t *testing.T) {
	e := New(ActionCreate, "users", "1")
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "users.create", e.Subject())
	assert.False(t, e.Time.IsZero())
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, Connectors(), "memory")
	assert.Panics(t, func() { Register("memory", func() Sink { return &memorySink{} }) })

	_, err := Open(SinkConfig{Name: "x", Connector: "nope"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrUnknownConnector)

	s, err := Open(SinkConfig{Name: "mem", Connector: "memory", Config: map[string]any{"topic": "t"}}, zap.NewNop())
	require.NoError(t, err)
	assert.JSONEq(t, `{"topic":"t"}`, string(s.(*memorySink).config))
}

func TestEmitter(t *testing.T) {
	em, err := NewEmitter([]SinkConfig{{Name: "mem", Connector: "memory"}}, time.Second, nil)
	require.NoError(t, err)
	good := lastMemory
	bad := &memorySink{fail: true}
	em.Add("bad", bad)
	assert.Equal(t, 2, em.Len())

	ctx, cancel := context.WithCancel(context.Background())
	em.Emit(ctx, New(ActionDelete, "users", "7"))
	cancel()

	require.NoError(t, em.Close())
	require.Len(t, good.events, 1)
	assert.Equal(t, "7", good.events[0].ResourceID)
	assert.True(t, good.closed)
	assert.True(t, bad.closed)

	var nilEmitter *Emitter
	assert.NotPanics(t, func() { nilEmitter.Emit(context.Background(), Event{}) })
}
