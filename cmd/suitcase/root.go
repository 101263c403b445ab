package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"suitcase/internal/config"
	"suitcase/internal/metrics"
	"suitcase/internal/multiclient"
)

// app holds the global flags and the state shared by the network commands
type app struct {
	configPath  string
	rpcURLs     []string
	logLevel    string
	metricsAddr string

	cfg           *config.Config
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	metricsServer *http.Server
}

func newApp() *app {
	return &app{logger: zerolog.Nop()}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "suitcase",
		Short:        "Batched, throttled Sui reads over a pool of fullnodes",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to a JSON, YAML or TOML config file")
	flags.StringSliceVar(&a.rpcURLs, "rpc", nil, "fullnode RPC URL, repeatable; ignored when --config is set")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	root.AddCommand(
		a.newProbeCmd(),
		a.newBalancesCmd(),
		newConvertCmd(),
		newFormatCmd(),
		newExplainCmd(),
	)

	return root
}

// loadConfig reads the config file, or builds one from --rpc URLs
func (a *app) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if a.configPath != "" {
		cfg, err = config.Load(a.configPath)
	} else {
		urls := a.rpcURLs
		if len(urls) == 0 {
			urls = []string{config.DefaultMainnetRPCURL}
		}
		cfg, err = config.FromURLs(urls)
	}
	if err != nil {
		return nil, err
	}

	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	return cfg, nil
}

// newClient loads the configuration, sets up logging and metrics, and creates the client
func (a *app) newClient() (*multiclient.MultiClient, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	a.logger = setupLogger(cfg.LogLevel)

	registry := prometheus.NewRegistry()
	a.metrics = metrics.New(registry)
	if a.metricsAddr != "" {
		a.serveMetrics(registry)
	}

	a.logger.Debug().
		Str("config", a.configPath).
		Int("endpoints", len(cfg.Endpoints)).
		Int("minBatchInterval", cfg.MinBatchInterval).
		Int("maxPasses", cfg.MaxPasses).
		Msg("configuration loaded")

	return multiclient.NewFromConfig(cfg, a.metrics, a.logger)
}

func (a *app) serveMetrics(registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	a.metricsServer = &http.Server{
		Addr:              a.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info().Str("addr", a.metricsAddr).Msg("starting metrics server")
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// execute runs the command tree and then stops the metrics server,
// whether the command succeeded or not
func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)

	if shutdownErr := a.shutdown(); shutdownErr != nil {
		a.logger.Error().Err(shutdownErr).Msg("error during metrics server shutdown")
	}
	return err
}

func (a *app) shutdown() error {
	if a.metricsServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.metricsServer.Shutdown(ctx)
}
