package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gluk-w/webtail/internal/config"
	"github.com/gluk-w/webtail/internal/logging"
	"github.com/gluk-w/webtail/internal/relay"
)

var (
	configPath  string
	logLevel    string
	logPath     string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "webtail-client",
	Short: "Tail log files and relay them to a webtail server",
	Long: `webtail-client tails the newest file matching each configured pattern
and relays new lines to a webtail server. Connections are retried forever.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(logging.Config{
			Level:      logLevel,
			Path:       logPath,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		})
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultClientFile, "path to the source list (JSON or YAML)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.Flags().StringVar(&logPath, "log-file", "", "also write logs to this rotated file")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	defer logging.Sync()
	log := logging.L()

	sources, err := config.LoadSources(configPath)
	if err != nil {
		return err
	}
	log.Infow("loaded sources", "path", configPath, "count", len(sources))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			log.Infow("metrics listening", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	err = relay.RunAll(ctx, sources, logging.Named("relay"))
	if errors.Is(err, context.Canceled) {
		log.Infow("client stopped")
		return nil
	}
	return err
}
