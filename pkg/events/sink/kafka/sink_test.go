package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflare/pgjsonapi/pkg/events"
)

func TestToSaramaConfig(t *testing.T) {
	tests := []struct {
		name      string
		sasl      *SASL
		mechanism sarama.SASLMechanism
		wantErr   bool
	}{
		{name: "no sasl"},
		{name: "scram sha512", sasl: &SASL{Enable: true, Username: "u", Password: "p", Algorithm: "sha512"}, mechanism: sarama.SASLTypeSCRAMSHA512},
		{name: "scram sha256", sasl: &SASL{Enable: true, Algorithm: "sha256"}, mechanism: sarama.SASLTypeSCRAMSHA256},
		{name: "plain", sasl: &SASL{Enable: true, Algorithm: "plain"}, mechanism: sarama.SASLTypePlaintext},
		{name: "unknown", sasl: &SASL{Enable: true, Algorithm: "md5"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{SASL: tt.sasl}
			cfg.setDefaults()
			conf, err := cfg.ToSaramaConfig()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, conf.Producer.Return.Successes)
			if tt.sasl != nil {
				assert.Equal(t, tt.mechanism, conf.Net.SASL.Mechanism)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := Config{}
	cfg.setDefaults()
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, "pgjsonapi.events", cfg.Topic)
	assert.EqualValues(t, 1, cfg.Partitions)
	assert.EqualValues(t, 604800000, cfg.RetentionMS)
}

func TestMessage(t *testing.T) {
	s := &Sink{config: Config{Topic: "audit"}}
	e := events.New(events.ActionUpdate, "users", "42")
	msg, err := s.Message(e)
	require.NoError(t, err)
	assert.Equal(t, "audit", msg.Topic)
	assert.Equal(t, sarama.StringEncoder("users/42"), msg.Key)
	assert.Equal(t, []byte("users.update"), msg.Headers[0].Value)
}
