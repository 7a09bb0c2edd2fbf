// Package webhook POSTs events as JSON to one or more HTTP endpoints,
// retrying transport failures and 5xx responses with exponential backoff.
package webhook

import (
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/events"
	"github.com/edgeflare/pgjsonapi/pkg/httputil"
)

// AuthType represents supported authentication methods
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeAPIKey AuthType = "apikey"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeBasic  AuthType = "basic"
)

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Type       AuthType `json:"type"`
	APIKey     string   `json:"apiKey,omitempty"`
	APIKeyName string   `json:"apiKeyName,omitempty"` // header name, defaults to X-API-Key
	Username   string   `json:"username,omitempty"`
	Password   string   `json:"password,omitempty"`
	Token      string   `json:"token,omitempty"`
}

// RetryConfig holds retry settings for failed deliveries
type RetryConfig struct {
	MaxRetries  uint64 `json:"maxRetries"`
	InitialWait string `json:"initialWait"`
	MaxWait     string `json:"maxWait"`
}

// EndpointConfig represents configuration for a single endpoint
type EndpointConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
}

// Config configures the webhook sink.
type Config struct {
	Auth      AuthConfig       `json:"auth"`
	Timeout   string           `json:"timeout"`
	Endpoints []EndpointConfig `json:"endpoints"`
	Retry     RetryConfig      `json:"retry"`
}

// Sink delivers events to every configured endpoint.
type Sink struct {
	logger    *zap.Logger
	auth      AuthConfig
	endpoints []EndpointConfig
	timeout   time.Duration
	retries   uint64
	initial   time.Duration
	max       time.Duration
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

func (s *Sink) Connect(config json.RawMessage, logger *zap.Logger) error {
	s.logger = logger
	var cfg Config
	if err := json.Unmarshal(config, &cfg); err != nil {
		return fmt.Errorf("failed to unmarshal webhook config: %w", err)
	}
	if len(cfg.Endpoints) == 0 {
		return errors.New("no endpoints configured")
	}
	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].URL == "" {
			return fmt.Errorf("endpoint %d has no url", i)
		}
		cfg.Endpoints[i].Method = cmp.Or(cfg.Endpoints[i].Method, http.MethodPost)
	}

	var err error
	if s.timeout, err = parseDuration(cfg.Timeout, 30*time.Second); err != nil {
		return err
	}
	if s.initial, err = parseDuration(cfg.Retry.InitialWait, time.Second); err != nil {
		return err
	}
	if s.max, err = parseDuration(cfg.Retry.MaxWait, 30*time.Second); err != nil {
		return err
	}
	s.retries = cmp.Or(cfg.Retry.MaxRetries, 3)

	cfg.Auth.Type = cmp.Or(cfg.Auth.Type, AuthTypeNone)
	switch cfg.Auth.Type {
	case AuthTypeNone:
	case AuthTypeAPIKey:
		if cfg.Auth.APIKey == "" {
			return errors.New("API key authentication requires an API key")
		}
		cfg.Auth.APIKeyName = cmp.Or(cfg.Auth.APIKeyName, "X-API-Key")
	case AuthTypeBasic:
		if cfg.Auth.Username == "" || cfg.Auth.Password == "" {
			return errors.New("basic authentication requires both username and password")
		}
	case AuthTypeBearer:
		if cfg.Auth.Token == "" {
			return errors.New("bearer authentication requires a token")
		}
	default:
		return fmt.Errorf("unsupported auth type %q", cfg.Auth.Type)
	}

	s.auth = cfg.Auth
	s.endpoints = cfg.Endpoints
	s.logger.Info("webhook sink initialized",
		zap.Int("num_endpoints", len(cfg.Endpoints)),
		zap.String("auth_type", string(cfg.Auth.Type)),
		zap.Duration("timeout", s.timeout))
	return nil
}

// Publish delivers e to every endpoint and returns the last failure, if any.
func (s *Sink) Publish(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var lastErr error
	for _, endpoint := range s.endpoints {
		config := httputil.DefaultRequestConfig(endpoint.Method, endpoint.URL)
		config.Headers = s.headers(endpoint, e)
		config.Timeout = s.timeout
		config.Logger = s.logger
		config.MaxRetries = s.retries
		config.InitialBackoff = s.initial
		config.MaxBackoff = s.max

		if _, err := httputil.Request(ctx, config, payload); err != nil {
			lastErr = err
			s.logger.Warn("failed to deliver webhook", zap.String("endpoint", endpoint.URL), zap.Error(err))
		}
	}
	return lastErr
}

func (s *Sink) headers(endpoint EndpointConfig, e events.Event) http.Header {
	h := make(http.Header)
	for key, value := range endpoint.Headers {
		h.Set(key, value)
	}
	h.Set("X-Event-Id", e.ID)
	h.Set("X-Event-Subject", e.Subject())

	switch s.auth.Type {
	case AuthTypeAPIKey:
		h.Set(s.auth.APIKeyName, s.auth.APIKey)
	case AuthTypeBasic:
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(s.auth.Username+":"+s.auth.Password)))
	case AuthTypeBearer:
		h.Set("Authorization", "Bearer "+s.auth.Token)
	}
	return h
}

func (s *Sink) Close() error {
	return nil
}

func init() {
	events.Register(events.ConnectorWebhook, func() events.Sink { return &Sink{logger: zap.NewNop()} })
}
