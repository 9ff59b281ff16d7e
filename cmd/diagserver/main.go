package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/diagipc/internal/admin"
	"github.com/danmuck/diagipc/internal/diag"
	"github.com/danmuck/diagipc/internal/logging"
	"github.com/danmuck/diagipc/internal/observability"
	"github.com/danmuck/diagipc/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var startedAt = time.Now()

func main() {
	configPath := flag.String("config", "", "path to diagserver config (optional)")
	endpoint := flag.String("endpoint", "", "endpoint name or socket path (overrides config)")
	flag.Parse()

	if err := run(*configPath, *endpoint); err != nil {
		fmt.Fprintf(os.Stderr, "diagserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, endpointOverride string) error {
	observability.InitLogger("diagserver")

	cfg := defaultServiceConfig()
	if configPath != "" {
		loaded, err := loadServiceConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if endpointOverride != "" {
		cfg.Endpoint = endpointOverride
	}
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok && os.Getenv(logging.EnvLogLevel) == "" {
		zerolog.SetGlobalLevel(lvl)
	}

	name := endpointName(cfg, os.Getpid(), startedAt)
	ep, err := transport.Create(name, func(message string, code uint32) {
		log.Error().Uint32("code", code).Msg(message)
	})
	if err != nil {
		return err
	}

	srv := diag.NewServer(ep, cfg.Diag)
	srv.Handle(diag.CommandSetProcess, diag.ProcessCommandInfo, diag.ProcessInfoHandler(diag.CurrentProcessInfo(uuid.New())))
	srv.OnAccept(func(s *diag.Session) {
		s.Logger().Info().Msg("diagnostic tool attached")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AdminAddr != "" {
		a := admin.New(cfg.ID, ep.Name(), cfg.CORSOrigins, srv)
		go func() {
			if err := a.Run(ctx, cfg.AdminAddr); err != nil {
				log.Error().Err(err).Str("addr", cfg.AdminAddr).Msg("admin server stopped")
				stop()
			}
		}()
	}

	log.Info().Str("endpoint", ep.Name()).Str("id", cfg.ID).Msg("diagnostic server listening")
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("diagnostic server stopped")
	return nil
}

func endpointName(cfg serviceConfig, pid int, started time.Time) string {
	if cfg.Endpoint != "" {
		return cfg.Endpoint
	}
	return transport.DefaultName(pid, uint64(started.Unix()))
}
