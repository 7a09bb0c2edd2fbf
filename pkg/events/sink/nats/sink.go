// Package nats publishes events to a NATS JetStream stream.
//
// Subjects are `<subjectPrefix>.<type>.<action>`, e.g. `pgjsonapi.users.create`.
// The stream captures `<subjectPrefix>.>` and is created or updated on
// connect.
package nats

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/events"
)

var errConnNotInitialized = errors.New("NATS connection not initialized")

// Config represents NATS configuration
type Config struct {
	Servers       []string `json:"servers"`
	Stream        string   `json:"stream"`
	SubjectPrefix string   `json:"subjectPrefix"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
	TLS           struct {
		Enabled  bool   `json:"enabled"`
		CertFile string `json:"certFile,omitempty"`
		KeyFile  string `json:"keyFile,omitempty"`
		CAFile   string `json:"caFile,omitempty"`
	} `json:"tls,omitempty"`
}

// Sink publishes to JetStream.
type Sink struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
	Config Config
}

// Connect establishes a connection to the first reachable server and
// ensures the stream exists.
func (s *Sink) Connect(config json.RawMessage, logger *zap.Logger) error {
	s.logger = logger
	if err := json.Unmarshal(config, &s.Config); err != nil {
		return fmt.Errorf("unmarshal NATS config: %w", err)
	}
	if len(s.Config.Servers) == 0 {
		s.Config.Servers = []string{nats.DefaultURL}
	}
	s.Config.SubjectPrefix = cmp.Or(s.Config.SubjectPrefix, "pgjsonapi")
	s.Config.Stream = cmp.Or(s.Config.Stream, s.Config.SubjectPrefix+"-events")

	opts := defaultOptions(s.Config)
	var err error
	for _, server := range s.Config.Servers {
		s.nc, err = nats.Connect(server, opts...)
		if err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("connect to NATS server: %w", err)
	}

	if s.js, err = s.nc.JetStream(); err != nil {
		s.nc.Close()
		return fmt.Errorf("create JetStream context: %w", err)
	}
	if err := s.ensureStream(); err != nil {
		s.nc.Close()
		return fmt.Errorf("ensure stream: %w", err)
	}
	return nil
}

// Subject returns the subject e is published on.
func (s *Sink) Subject(e events.Event) string {
	return s.Config.SubjectPrefix + "." + e.Subject()
}

// Publish sends e as JSON. The event id doubles as the JetStream message id,
// so redelivered publishes are deduplicated by the server.
func (s *Sink) Publish(ctx context.Context, e events.Event) error {
	if s.js == nil {
		return errConnNotInitialized
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := s.js.Publish(s.Subject(e), data, nats.Context(ctx), nats.MsgId(e.ID)); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close closes the connection.
func (s *Sink) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

func (s *Sink) ensureStream() error {
	config := &nats.StreamConfig{
		Name:     s.Config.Stream,
		Subjects: []string{s.Config.SubjectPrefix + ".>"},
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	stream, err := s.js.StreamInfo(s.Config.Stream)
	if err == nil {
		if !streamConfigEqual(stream.Config, *config) {
			if _, err = s.js.UpdateStream(config); err != nil {
				return fmt.Errorf("update stream: %w", err)
			}
			s.logger.Info("updated stream", zap.String("stream", s.Config.Stream))
		}
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}
	if _, err := s.js.AddStream(config); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	s.logger.Info("created stream", zap.String("stream", s.Config.Stream))
	return nil
}

func streamConfigEqual(a, b nats.StreamConfig) bool {
	return a.Name == b.Name && a.Storage == b.Storage && a.Replicas == b.Replicas &&
		slices.Equal(a.Subjects, b.Subjects)
}

func defaultOptions(c Config) []nats.Option {
	opts := []nats.Option{
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}
	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}
	if c.TLS.Enabled {
		var tlsOpt nats.Option
		if c.TLS.CAFile != "" {
			tlsOpt = nats.RootCAs(c.TLS.CAFile)
		} else if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			tlsOpt = nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile)
		}
		if tlsOpt != nil {
			opts = append(opts, tlsOpt)
		}
	}
	return opts
}

func init() {
	events.Register(events.ConnectorNATS, func() events.Sink { return &Sink{logger: zap.NewNop()} })
}
