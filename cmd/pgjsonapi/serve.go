package main

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/events"
	_ "github.com/edgeflare/pgjsonapi/pkg/events/sink"
	"github.com/edgeflare/pgjsonapi/pkg/httputil"
	mw "github.com/edgeflare/pgjsonapi/pkg/httputil/middleware"
	"github.com/edgeflare/pgjsonapi/pkg/metrics"
	pg "github.com/edgeflare/pgjsonapi/pkg/pgx"
	"github.com/edgeflare/pgjsonapi/pkg/pgx/schema"
	"github.com/edgeflare/pgjsonapi/pkg/rest"
	"github.com/edgeflare/pgjsonapi/pkg/service"
	"github.com/edgeflare/pgjsonapi/pkg/transform"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON:API server",
	Long:  `Introspects the configured schemas and serves every derived resource type over HTTP`,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("listen", "l", "", "listen address, overrides server.listenAddr")
	f.Bool("watch", false, "reload the schema on NOTIFY, overrides schema.watch")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if cmd.Flags().Changed("watch") {
		cfg.Schema.Watch, _ = cmd.Flags().GetBool("watch")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	cache := schema.NewCache(pool, cfg.Schema, logger)
	if err := cache.Load(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if cfg.Schema.Watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cache.Watch(ctx); err != nil {
				logger.Error("schema watch stopped", zap.Error(err))
			}
		}()
	}

	emitter, err := events.NewEmitter(cfg.Events.Sinks, cfg.Events.Timeout, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := emitter.Close(); err != nil {
			logger.Warn("closing event sinks", zap.Error(err))
		}
	}()

	tr := transform.New(transform.Config{
		BaseURL: cfg.Server.BaseURL,
		Prefix:  cfg.Server.Prefix,
		Version: cfg.Server.Version,
	})
	svc := service.New(pool, cache, tr, service.WithLogger(logger), service.WithEmitter(emitter))

	opts := []httputil.RouterOptions{
		httputil.WithLogger(logger),
		httputil.WithServerOptions(func(s *http.Server) {
			s.ReadHeaderTimeout = 10 * time.Second
		}),
	}
	if cfg.Server.TLS.CertFile != "" {
		opts = append(opts, httputil.WithTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile))
	}
	router := httputil.NewRouter(opts...)
	router.Use(
		mw.RequestID,
		mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}),
		mw.Metrics,
		mw.CORSWithOptions(&cfg.Server.CORS),
	)

	router.HandleFunc("GET /healthz", httputil.Health(pool.Ping))

	api := router.Group(cfg.Server.RoutePrefix())
	// preflight requests are answered by the CORS middleware
	api.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	api.HandleFunc("GET /_schema", cache.Handler())
	rest.NewServer(svc, rest.Config{
		Pagination:   cfg.Pagination,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}, logger).Register(api)

	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &cfg.Metrics.PromServerOpts, logger)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := router.ListenAndServe(cfg.Server.ListenAddr); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cmp.Or(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	wg.Wait()
	logger.Info("server stopped")
	return nil
}
