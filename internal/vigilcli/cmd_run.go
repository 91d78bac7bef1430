package vigilcli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vigil-obs/vigil/internal/build"
	"github.com/vigil-obs/vigil/internal/config"
	"github.com/vigil-obs/vigil/internal/discovery"
	"github.com/vigil-obs/vigil/internal/health"
	"github.com/vigil-obs/vigil/internal/query"
	"github.com/vigil-obs/vigil/internal/runtime/logging"
	"github.com/vigil-obs/vigil/internal/runtime/logging/level"
	"github.com/vigil-obs/vigil/internal/samples"
	"github.com/vigil-obs/vigil/internal/scrape"
	"github.com/vigil-obs/vigil/internal/targets"
	"github.com/vigil-obs/vigil/internal/web/api"
)

func runCommand() *cobra.Command {
	r := &vigilRun{}

	cmd := &cobra.Command{
		Use:          "run [flags] file",
		Short:        "Run Vigil",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			r.configFile = args[0]
			return r.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&r.listenAddr, "server.listen-addr", r.listenAddr, "Address to listen for HTTP traffic on. Overrides server.listen_address from the configuration file.")
	cmd.Flags().StringVar(&r.logLevel, "log.level", r.logLevel, "Log level. Supported values: debug, info, warn, error. Overrides logging.level from the configuration file.")
	cmd.Flags().StringVar(&r.logFormat, "log.format", r.logFormat, "Log format. Supported values: logfmt, json. Overrides logging.format from the configuration file.")

	return cmd
}

type vigilRun struct {
	configFile string
	listenAddr string
	logLevel   string
	logFormat  string
}

func (r *vigilRun) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(r.configFile)
	if err != nil {
		return err
	}
	if r.listenAddr != "" {
		cfg.Server.ListenAddress = r.listenAddr
	}
	if r.logLevel != "" {
		cfg.Logging.Level = logging.Level(r.logLevel)
	}
	if r.logFormat != "" {
		cfg.Logging.Format = logging.Format(r.logFormat)
	}
	// Flag overrides bypass the parse-time checks, so validate again.
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.Logging)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	level.Info(logger).Log("msg", "starting Vigil", "version", build.Version, "config", r.configFile)

	reg := prometheus.DefaultRegisterer

	registry := targets.NewRegistry(logger, cfg.Registry.RemovalThreshold, reg)
	tracker := health.NewTracker(cfg.Scrape.FailureThreshold)
	buffer := samples.NewBuffer(samples.Options{
		Retention:           time.Duration(cfg.Storage.Retention),
		MaxSamplesPerTarget: cfg.Storage.MaxSamplesPerTarget,
	}, reg)
	sweeper := samples.NewSweeper(logger, buffer, time.Duration(cfg.Storage.SweepInterval))

	scraper, err := scrape.NewScraper(cfg.Scrape.HTTPClientConfig, cfg.Scrape.BodySizeLimit)
	if err != nil {
		return fmt.Errorf("building scraper: %w", err)
	}
	scheduler := scrape.NewScheduler(logger, reg, scrape.Options{
		DefaultInterval: time.Duration(cfg.Scrape.Interval),
		DefaultTimeout:  time.Duration(cfg.Scrape.Timeout),
		MaxInFlight:     cfg.Scrape.MaxInFlight,
	}, scraper, registry, tracker, buffer)

	sources, err := discovery.SourcesFromConfig(logger, cfg.Discovery)
	if err != nil {
		return fmt.Errorf("building discovery sources: %w", err)
	}
	discoverer := discovery.NewManager(logger, reg, registry, sources)

	querier := query.NewQuerier(registry, buffer, time.Duration(cfg.Scrape.Interval))

	router := mux.NewRouter()
	api.NewVigilAPI(registry, tracker, querier).RegisterRoutes("/api/v0", router)
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/-/healthy", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "Vigil is healthy.")
	})
	router.HandleFunc("/-/ready", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "Vigil is ready.")
	})

	srv := &http.Server{
		Addr:        cfg.Server.ListenAddress,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
	}

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error { return discoverer.Run(ctx) }, func(error) { cancel() })
	}
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error { return scheduler.Run(ctx) }, func(error) { cancel() })
	}
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error { return sweeper.Run(ctx) }, func(error) { cancel() })
	}
	g.Add(func() error {
		level.Info(logger).Log("msg", "now listening for http traffic", "addr", cfg.Server.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})

	err = g.Run()

	var signalErr run.SignalError
	if errors.As(err, &signalErr) {
		level.Info(logger).Log("msg", "shutting down", "signal", signalErr.Signal)
		return nil
	}
	return err
}
