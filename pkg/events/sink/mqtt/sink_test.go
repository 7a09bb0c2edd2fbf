package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflare/pgjsonapi/pkg/events"
)

func TestTopic(t *testing.T) {
	s := &Sink{Config: Config{TopicPrefix: "audit"}}
	assert.Equal(t, "audit/users/create", s.Topic(events.New(events.ActionCreate, "users", "1")))
}

func TestPahoOptions(t *testing.T) {
	cfg := &Config{Servers: []string{"tcp://broker:1883"}, Username: "u", KeepAlive: 30, ConnectTimeout: "3s"}
	opts, err := pahoOptions(cfg)
	require.NoError(t, err)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker:1883", opts.Servers[0].Host)
	assert.Equal(t, "u", opts.Username)
	assert.NotEmpty(t, cfg.ClientID)
	assert.Equal(t, cfg.ClientID, opts.ClientID)

	_, err = pahoOptions(&Config{ConnectTimeout: "later"})
	assert.Error(t, err)

	opts, err = pahoOptions(&Config{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1883", opts.Servers[0].Host)
}
