package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gluk-w/webtail/internal/broadcast"
	"github.com/gluk-w/webtail/internal/config"
	"github.com/gluk-w/webtail/internal/handlers"
	"github.com/gluk-w/webtail/internal/logging"
	"github.com/gluk-w/webtail/internal/sse"
	"github.com/gluk-w/webtail/internal/supervisor"
)

var listen string

var rootCmd = &cobra.Command{
	Use:   "webtail-server",
	Short: "Relay live log lines from webtail clients to browser viewers",
	Long: `webtail-server accepts relay sessions from webtail clients and streams
each application's log lines to viewers as server-sent events.
Settings are read from WEBTAIL_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return err
		}
		return logging.Init(logging.Config{
			Level:      config.Cfg.LogLevel,
			Path:       config.Cfg.LogPath,
			MaxSize:    config.Cfg.LogMaxSize,
			MaxBackups: config.Cfg.LogMaxBackups,
			MaxAge:     config.Cfg.LogMaxAge,
			Compress:   config.Cfg.LogCompress,
		})
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides WEBTAIL_HOST and WEBTAIL_PORT")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func frontend(path string) fs.FS {
	if path == "" {
		return nil
	}
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		logging.L().Warnw("frontend directory not found, static hosting disabled", "path", path)
		return nil
	}
	return os.DirFS(path)
}

func serve(ctx context.Context) error {
	defer logging.Sync()
	log := logging.L()
	cfg := config.Cfg

	registry := broadcast.NewRegistry(cfg.BroadcastCapacity)
	sup := supervisor.New(registry, supervisor.Options{
		PingInterval:   cfg.PingInterval,
		SubscriberPoll: cfg.SubscriberPoll,
		DrainTimeout:   cfg.DrainTimeout,
	}, logging.Named("supervisor"))
	gw := sse.NewGateway(registry, logging.Named("sse"))
	api := handlers.New(registry, sup, gw, logging.Named("http"))

	router := handlers.NewRouter(api, handlers.RouterOptions{
		RelayPath:      cfg.RelayPath,
		FrontendOrigin: cfg.FrontendOrigin,
		Frontend:       frontend(cfg.FrontendPath),
	})

	addr := cfg.Addr()
	if listen != "" {
		addr = listen
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Infow("server starting", "addr", addr, "relay_path", cfg.RelayPath, "frontend_origin", cfg.FrontendOrigin)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	case <-sigCtx.Done():
	}
	log.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Infow("server stopped")
	return nil
}
