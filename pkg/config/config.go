package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/edgeflare/pgjsonapi/pkg/events"
	"github.com/edgeflare/pgjsonapi/pkg/httputil/middleware"
	"github.com/edgeflare/pgjsonapi/pkg/metrics"
	pg "github.com/edgeflare/pgjsonapi/pkg/pgx"
	"github.com/edgeflare/pgjsonapi/pkg/pgx/schema"
	"github.com/edgeflare/pgjsonapi/pkg/rest"
)

const (
	EnvPrefix = "PGJSONAPI"
	FileName  = "pgjsonapi"
)

// Config holds application-wide configuration
type Config struct {
	Database   pg.PoolConfig   `mapstructure:"database"`
	Server     ServerConfig    `mapstructure:"server"`
	Schema     schema.Config   `mapstructure:"schema"`
	Pagination rest.Pagination `mapstructure:"pagination"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
	Events     EventsConfig    `mapstructure:"events"`
	Log        LogConfig       `mapstructure:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type ServerConfig struct {
	ListenAddr      string                 `mapstructure:"listenAddr" validate:"required"`
	BaseURL         string                 `mapstructure:"baseURL" validate:"omitempty,url|startswith=/"`
	Prefix          string                 `mapstructure:"prefix"`
	Version         string                 `mapstructure:"version"`
	MaxBodyBytes    int64                  `mapstructure:"maxBodyBytes" validate:"gte=0"`
	ShutdownTimeout time.Duration          `mapstructure:"shutdownTimeout"`
	CORS            middleware.CORSOptions `mapstructure:"cors"`
	TLS             TLSConfig              `mapstructure:"tls"`
}

type TLSConfig struct {
	CertFile string `mapstructure:"certFile" validate:"required_with=KeyFile"`
	KeyFile  string `mapstructure:"keyFile" validate:"required_with=CertFile"`
}

type MetricsConfig struct {
	Enabled                bool `mapstructure:"enabled"`
	metrics.PromServerOpts `mapstructure:",squash"`
}

type EventsConfig struct {
	Sinks   []events.SinkConfig `mapstructure:"sinks" validate:"dive"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// RoutePrefix returns the path resources are served under, e.g. /api/v1.
func (s ServerConfig) RoutePrefix() string {
	var parts []string
	for _, p := range []string{s.Prefix, s.Version} {
		if p = strings.Trim(p, "/"); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "/" + strings.Join(parts, "/")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.connString", "")
	v.SetDefault("database.maxConns", 0)
	v.SetDefault("database.minConns", 0)
	v.SetDefault("database.connectTimeout", 30*time.Second)
	v.SetDefault("database.vector", false)

	v.SetDefault("server.listenAddr", ":8080")
	v.SetDefault("server.baseURL", "/")
	v.SetDefault("server.prefix", "")
	v.SetDefault("server.version", "")
	v.SetDefault("server.maxBodyBytes", 1<<20)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("server.cors.allowedOrigins", []string{"*"})
	v.SetDefault("server.cors.allowedMethods", middleware.DefaultCORSOptions().AllowedMethods)
	v.SetDefault("server.cors.allowedHeaders", middleware.DefaultCORSOptions().AllowedHeaders)
	v.SetDefault("server.cors.allowCredentials", false)
	v.SetDefault("server.tls.certFile", "")
	v.SetDefault("server.tls.keyFile", "")

	v.SetDefault("schema.schemas", []string{"public"})
	v.SetDefault("schema.exclude", []string{})
	v.SetDefault("schema.watch", false)
	v.SetDefault("schema.channel", schema.DefaultChannel)

	v.SetDefault("pagination.defaultSize", 20)
	v.SetDefault("pagination.maxSize", 100)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("events.timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads config from file or environment. Environment variables take
// the form PGJSONAPI_DATABASE_CONNSTRING; list values are comma separated.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
