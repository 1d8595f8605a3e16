package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gavel/go/internal/auction"
	"github.com/mcdev12/gavel/go/internal/events"
	"github.com/mcdev12/gavel/go/internal/registry"
	"github.com/mcdev12/gavel/go/internal/sched"
	"github.com/mcdev12/gavel/go/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	configPath := flag.String("config", getEnv("GAVEL_CONFIG", ""), "path to yaml config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := sched.New(clockwork.NewRealClock(), cfg.Scheduler.Workers)
	reg := registry.New()

	var mirror auction.Mirror
	if cfg.NATS.Enabled {
		pub, err := events.NewNATSPublisher(events.NATSConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect event mirror")
		}
		defer pub.Close()
		mirror = pub
	}

	engine := auction.NewEngine(reg, scheduler, time.Duration(cfg.Auction.Duration), mirror)

	srvCfg := server.DefaultConfig()
	srvCfg.ListenAddr = cfg.Server.ListenAddr
	srvCfg.SendBuffer = cfg.Server.SendBuffer
	srvCfg.MaxProtocolErrors = cfg.Server.MaxProtocolErrors
	srv := server.New(srvCfg, engine, reg)

	go func() {
		if err := scheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("scheduler failed")
		}
	}()

	httpSrv := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: srv.Routes()}
	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http server shutdown failed")
		}
	}()

	log.Info().
		Dur("auction_duration", time.Duration(cfg.Auction.Duration)).
		Bool("nats_mirror", cfg.NATS.Enabled).
		Msg("gavel starting")

	if err := srv.Serve(ctx); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("gavel stopped")
}

func setupLogging(cfg *Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
