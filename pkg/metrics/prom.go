package metrics

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgjsonapi_operations_total",
			Help: "Total number of resource operations by operation, resource type and outcome",
		},
		[]string{"operation", "type", "outcome"},
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgjsonapi_query_duration_seconds",
			Help:    "Duration of store statements by phase (count, window, hydrate, write)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	PublishedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgjsonapi_published_events_total",
			Help: "Total number of change events published by sink",
		},
		[]string{"sink"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgjsonapi_publish_errors_total",
			Help: "Total number of change event publish errors by sink",
		},
		[]string{"sink"},
	)

	SchemaReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgjsonapi_schema_reloads_total",
			Help: "Total number of schema registry loads by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgjsonapi_http_requests_total",
			Help: "Total number of HTTP requests by method and status code",
		},
		[]string{"method", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgjsonapi_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// Outcome labels an operation result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveQuery records the duration of one store statement since start.
func ObserveQuery(phase string, start time.Time) {
	QueryDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

type PromServerOpts struct {
	Addr              string        `mapstructure:"addr"`
	Path              string        `mapstructure:"path"`            // defaults to "/metrics"
	ShutdownTimeout   time.Duration `mapstructure:"shutdownTimeout"` // defaults to 5 seconds
	ReadHeaderTimeout time.Duration `mapstructure:"readHeaderTimeout"`
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// StartPrometheusServer serves the default registry until ctx is canceled,
// then shuts the server down gracefully. wg is done once the server stopped.
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	effectiveOpts := defaultPrometheusServerOptions()
	if opts != nil {
		effectiveOpts.Addr = cmp.Or(opts.Addr, effectiveOpts.Addr)
		effectiveOpts.Path = cmp.Or(opts.Path, effectiveOpts.Path)
		effectiveOpts.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effectiveOpts.ShutdownTimeout)
		effectiveOpts.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effectiveOpts.ReadHeaderTimeout)
	}

	mux := http.NewServeMux()
	mux.Handle(effectiveOpts.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              effectiveOpts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effectiveOpts.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})
	wg.Add(1)

	go func() {
		defer wg.Done()
		logger.Info("starting metrics server", zap.String("addr", effectiveOpts.Addr), zap.String("path", effectiveOpts.Path))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
		close(serverClosed)
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), effectiveOpts.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down metrics server", zap.Error(err))
		}

		select {
		case <-serverClosed:
			logger.Info("metrics server shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("metrics server shutdown timed out")
		}
	}()
}
