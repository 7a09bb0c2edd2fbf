package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// TLSOptions holds TLS configuration that can be unmarshaled from JSON.
type TLSOptions struct {
	InsecureSkipVerify bool   `json:"insecureSkipVerify"`
	ServerName         string `json:"serverName,omitempty"`
	CAFile             string `json:"caFile,omitempty"`
	CertFile           string `json:"certFile,omitempty"`
	KeyFile            string `json:"keyFile,omitempty"`
	CACert             string `json:"caCert,omitempty"`
	ClientCert         string `json:"clientCert,omitempty"`
	ClientKey          string `json:"clientKey,omitempty"`
}

// Config configures the MQTT sink.
type Config struct {
	Servers        []string    `json:"servers"`
	TopicPrefix    string      `json:"topicPrefix"`
	ClientID       string      `json:"clientID"`
	Username       string      `json:"username"`
	Password       string      `json:"password"`
	QoS            byte        `json:"qos"`
	Retained       bool        `json:"retained"`
	KeepAlive      int64       `json:"keepAlive"`      // seconds
	ConnectTimeout string      `json:"connectTimeout"` // e.g. "10s"
	TLS            *TLSOptions `json:"tls,omitempty"`
}

func createTLSConfig(tlsOpts *TLSOptions) (*tls.Config, error) {
	config := &tls.Config{
		InsecureSkipVerify: tlsOpts.InsecureSkipVerify,
		ServerName:         tlsOpts.ServerName,
	}

	if tlsOpts.CAFile != "" || tlsOpts.CACert != "" {
		caCert := []byte(tlsOpts.CACert)
		if tlsOpts.CAFile != "" {
			var err error
			if caCert, err = os.ReadFile(tlsOpts.CAFile); err != nil {
				return nil, fmt.Errorf("failed to read CA file: %w", err)
			}
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		config.RootCAs = pool
	}

	var (
		cert tls.Certificate
		err  error
	)
	switch {
	case tlsOpts.CertFile != "" && tlsOpts.KeyFile != "":
		cert, err = tls.LoadX509KeyPair(tlsOpts.CertFile, tlsOpts.KeyFile)
	case tlsOpts.ClientCert != "" && tlsOpts.ClientKey != "":
		cert, err = tls.X509KeyPair([]byte(tlsOpts.ClientCert), []byte(tlsOpts.ClientKey))
	default:
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}
	config.Certificates = []tls.Certificate{cert}
	return config, nil
}

// pahoOptions converts Config into client options. A missing broker
// defaults to tcp://127.0.0.1:1883 and a missing client id gets a random
// suffix.
func pahoOptions(cfg *Config) (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()
	if len(cfg.Servers) == 0 {
		opts.AddBroker("tcp://127.0.0.1:1883")
	}
	for _, server := range cfg.Servers {
		opts.AddBroker(server)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "pgjsonapi-" + uuid.NewString()[:8]
	}
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.TLS != nil {
		tlsConfig, err := createTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(time.Duration(cfg.KeepAlive) * time.Second)
	}
	if cfg.ConnectTimeout != "" {
		d, err := time.ParseDuration(cfg.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid connectTimeout: %w", err)
		}
		opts.SetConnectTimeout(d)
	}
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(true)
	return opts, nil
}
