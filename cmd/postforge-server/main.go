// Command postforge-server serves the generation API over HTTP and
// WebSocket, plus Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/postforge/internal/app"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath string
		envFiles   string
		listen     string
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
	flag.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files to load")
	flag.StringVar(&listen, "listen", "", "Listen address (default "+app.DefaultListenAddr+")")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	var files []string
	for _, f := range strings.Split(envFiles, ",") {
		files = append(files, strings.TrimSpace(f))
	}
	if err := app.LoadEnvFiles(files...); err != nil {
		log.Fatal().Err(err).Msg("load env files")
	}

	cfg := app.Config{ListenAddr: listen, Verbose: verbose}
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("load config file")
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	if err := app.ApplyEnvOverrides(&cfg); err != nil {
		log.Fatal().Err(err).Msg("environment")
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}
	app.ApplyDefaults(&cfg)
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if err := app.ValidateConfig(cfg, true); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := serve(cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func serve(cfg app.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("version", app.BuildVersion).Msg("postforge-server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
