package clickhouse

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/events"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Config
		wantErr bool
	}{
		{
			name: "defaults",
			raw:  `{}`,
			want: Config{Addr: []string{"localhost:9000"}, Database: "default", Username: "default", Table: "pgjsonapi_events"},
		},
		{
			name: "explicit",
			raw:  `{"addr": ["ch:9000"], "database": "audit", "username": "u", "password": "p", "table": "changes"}`,
			want: Config{Addr: []string{"ch:9000"}, Database: "audit", Username: "u", Password: "p", Table: "changes"},
		},
		{name: "table injection", raw: `{"table": "events; DROP TABLE x"}`, wantErr: true},
		{name: "database with dot", raw: `{"database": "a.b"}`, wantErr: true},
		{name: "not json", raw: `{`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseConfig(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnectRejectsInvalidConfig(t *testing.T) {
	s := &Sink{}
	err := s.Connect(json.RawMessage(`{"table": "1bad"}`), zap.NewNop())
	assert.ErrorContains(t, err, "invalid database or table name")
	assert.Nil(t, s.conn)
}

func TestCreateTable(t *testing.T) {
	s := &Sink{config: Config{Database: "audit", Table: "changes"}}
	assert.Equal(t, "audit.changes", s.table())
	assert.Contains(t, s.createTable(), "CREATE TABLE IF NOT EXISTS audit.changes (")
	assert.Contains(t, s.createTable(), "ENGINE = MergeTree ORDER BY (type, time)")
}

func TestPublishWithoutConnection(t *testing.T) {
	s := &Sink{}
	err := s.Publish(context.Background(), events.New(events.ActionCreate, "users", "1"))
	assert.ErrorContains(t, err, "not initialized")
	assert.NoError(t, s.Close())
}
