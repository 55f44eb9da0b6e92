// Command nwws-ingest runs the NWWS-OI ingest pipeline: it connects to the
// weather-alert XMPP chatroom, parses and normalizes each broadcast into
// the active-alert store, and serves that store plus a push stream of
// changes over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nwws-alert/ingest/internal/auth"
	"github.com/nwws-alert/ingest/internal/builder"
	"github.com/nwws-alert/ingest/internal/bus"
	"github.com/nwws-alert/ingest/internal/config"
	"github.com/nwws-alert/ingest/internal/geodata"
	"github.com/nwws-alert/ingest/internal/httpapi"
	"github.com/nwws-alert/ingest/internal/ingest"
	"github.com/nwws-alert/ingest/internal/store"
	"github.com/nwws-alert/ingest/internal/sweeper"
	"github.com/nwws-alert/ingest/internal/zone"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	setupLogging()

	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	geo, err := geodata.Load(cfg.GeometryPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load county geometry file")
	}

	dispatch := bus.New()
	st := store.New(cfg.StorePath, dispatch, log.Logger)

	zones := zone.New()
	b := builder.New(builder.Config{
		AllowedAlerts:   cfg.AllowedAlerts,
		AllowNoGeometry: cfg.AllowNoGeometry,
	}, geo, zones, log.Logger, nil)

	sup := ingest.New(ingest.Config{
		Username:              cfg.XMPPUsername,
		Password:              cfg.XMPPPassword,
		Resource:              cfg.NWWSOI.Resource,
		MaxReconnectAttempts:  cfg.NWWSOI.MaxReconnectAttempts,
		InitialReconnectDelay: time.Duration(cfg.NWWSOI.InitialReconnectDelay) * time.Millisecond,
	}, b, st, log.Logger)

	gate := auth.New(cfg, log.Logger)
	api := httpapi.New(st, dispatch, gate, log.Logger)
	sweep := sweeper.New(st, 45*time.Second, log.Logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ExpressPort),
		Handler: api.Router(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down gracefully")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		log.Info().Msg("starting NWWS-IO ingest supervisor")
		return sup.Run(gctx)
	})

	g.Go(func() error {
		log.Info().Msg("starting expiry sweeper")
		return sweep.Run(gctx)
	})

	g.Go(func() error {
		log.Info().Int("port", cfg.ExpressPort).Msg("starting HTTP API")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("fatal error, exiting")
	}
}

func setupLogging() {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		consoleWriter := zerolog.NewConsoleWriter()
		consoleWriter.FormatLevel = func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		}
		log.Logger = zerolog.New(consoleWriter).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
