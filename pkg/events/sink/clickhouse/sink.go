// Package clickhouse appends events to a ClickHouse audit table, created on
// connect when missing.
package clickhouse

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/events"
)

// Config configures the ClickHouse sink.
type Config struct {
	Addr     []string `json:"addr"`
	Database string   `json:"database"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Table    string   `json:"table"`
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Sink inserts one row per event.
type Sink struct {
	conn   driver.Conn
	logger *zap.Logger
	config Config
}

// parseConfig decodes raw and fills in defaults. Database and table names
// are interpolated into statements, so they must be plain identifiers.
func parseConfig(raw json.RawMessage) (Config, error) {
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("failed to parse ClickHouse config: %w", err)
	}
	if len(c.Addr) == 0 {
		c.Addr = []string{"localhost:9000"}
	}
	c.Database = cmp.Or(c.Database, "default")
	c.Username = cmp.Or(c.Username, "default")
	c.Table = cmp.Or(c.Table, "pgjsonapi_events")
	if !identRE.MatchString(c.Database) || !identRE.MatchString(c.Table) {
		return c, fmt.Errorf("invalid database or table name %s.%s", c.Database, c.Table)
	}
	return c, nil
}

func (s *Sink) Connect(config json.RawMessage, logger *zap.Logger) error {
	s.logger = logger
	cfg, err := parseConfig(config)
	if err != nil {
		return err
	}
	s.config = cfg

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: s.config.Addr,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	ctx := context.Background()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := conn.Exec(ctx, s.createTable()); err != nil {
		conn.Close()
		return fmt.Errorf("failed to create table %s: %w", s.table(), err)
	}
	s.conn = conn
	s.logger.Info("clickhouse sink initialized", zap.String("table", s.table()))
	return nil
}

func (s *Sink) table() string {
	return s.config.Database + "." + s.config.Table
}

func (s *Sink) createTable() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID,
	time DateTime64(6, 'UTC'),
	action LowCardinality(String),
	type LowCardinality(String),
	resource_id String,
	relationship String,
	payload String
) ENGINE = MergeTree ORDER BY (type, time)`, s.table())
}

// Publish inserts e. payload holds the full event as JSON.
func (s *Sink) Publish(ctx context.Context, e events.Event) error {
	if s.conn == nil {
		return fmt.Errorf("clickhouse connection not initialized")
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	err = s.conn.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (id, time, action, type, resource_id, relationship, payload) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table()),
		e.ID, e.Time, string(e.Action), e.Type, e.ResourceID, e.Relationship, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func init() {
	events.Register(events.ConnectorClickHouse, func() events.Sink { return &Sink{logger: zap.NewNop()} })
}
