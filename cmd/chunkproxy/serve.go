package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/chunkstream-go/pkg/logging"
	"github.com/ajitpratap0/chunkstream-go/pkg/observability"
	"github.com/ajitpratap0/chunkstream-go/pkg/provider"
	"github.com/ajitpratap0/chunkstream-go/pkg/proxy"
)

func serveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the streaming proxy and metrics servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, v, cfg, nil)
		},
	}
	cobra.CheckErr(bindServeFlags(v, cmd.Flags()))
	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List built-in providers and the secret each one reads",
		Run: func(cmd *cobra.Command, _ []string) {
			registry := provider.DefaultRegistry()
			for _, name := range registry.Names() {
				a, _ := registry.Lookup(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-20s %s\n", a.Name, a.SecretEnv, a.URL)
			}
		},
	}
}

// listeners lets tests bind ephemeral ports before serve starts.
type listeners struct {
	proxy   net.Listener
	metrics net.Listener
}

// serve runs until ctx is done or a server fails, then shuts both servers
// down within the configured grace period.
func serve(ctx context.Context, v *viper.Viper, cfg serveConfig, ls *listeners) error {
	logger := cfg.logger().WithFields(logging.Component("chunkproxy"))
	logging.SetGlobalLogger(logger)

	var tracing *observability.TracingProvider
	if cfg.OTLPEndpoint != "" {
		exporter, _ := cfg.exporterType()
		tp, err := observability.NewTracingProvider(observability.TracingConfig{
			ServiceName:    "chunkproxy",
			ServiceVersion: version,
			ExporterType:   exporter,
			Endpoint:       cfg.OTLPEndpoint,
			Insecure:       cfg.OTLPInsecure,
		})
		if err != nil {
			return err
		}
		tracing = tp
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("Tracing shutdown failed")
			}
		}()
	}

	registry := provider.DefaultRegistry()
	secrets, err := viperSecrets(v, registry)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewProxyMetrics(observability.MetricsConfig{Registerer: promRegistry})
	if err != nil {
		return err
	}

	handler := proxy.New(proxy.Config{
		Registry: registry,
		Secrets:  secrets,
		Logger:   logger,
		Metrics:  metrics,
		Tracing:  tracing,
	})

	servers := []*namedServer{{
		name:     "proxy",
		addr:     cfg.Addr,
		listener: listenerOrNil(ls, func(l *listeners) net.Listener { return l.proxy }),
		server:   newServer(cfg.Addr, handler, logger),
	}}
	if cfg.MetricsAddr != "" {
		mux := chi.NewRouter()
		mux.Handle("/metrics", observability.Handler(promRegistry))
		servers = append(servers, &namedServer{
			name:     "metrics",
			addr:     cfg.MetricsAddr,
			listener: listenerOrNil(ls, func(l *listeners) net.Listener { return l.metrics }),
			server:   newServer(cfg.MetricsAddr, mux, logger),
		})
	}

	for _, name := range registry.Names() {
		a, _ := registry.Lookup(name)
		if _, ok := secrets.LookupSecret(a.SecretEnv); !ok {
			logger.Debug("Provider has no secret configured", logging.String("provider", name), logging.String("secret_key", a.SecretEnv))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			logger.Info("Server listening", logging.String("server", s.name), logging.String("addr", s.addr))
			if err := s.serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", s.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, s := range servers {
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("%s server shutdown: %w", s.name, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

type namedServer struct {
	name     string
	addr     string
	listener net.Listener
	server   *http.Server
}

func (s *namedServer) serve() error {
	if s.listener != nil {
		return s.server.Serve(s.listener)
	}
	return s.server.ListenAndServe()
}

func listenerOrNil(ls *listeners, pick func(*listeners) net.Listener) net.Listener {
	if ls == nil {
		return nil
	}
	return pick(ls)
}

// newServer builds an http.Server with no write timeout.
func newServer(addr string, h http.Handler, logger logging.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          logging.NewStdLogger(logger, logging.WarnLevel),
	}
}
