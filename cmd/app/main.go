package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wichananm65/bible-streak-backend/internal/auth"
	"github.com/wichananm65/bible-streak-backend/internal/config"
	"github.com/wichananm65/bible-streak-backend/internal/database"
	"github.com/wichananm65/bible-streak-backend/internal/logger"
	"github.com/wichananm65/bible-streak-backend/internal/server"
	"github.com/wichananm65/bible-streak-backend/internal/user"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", false)
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.LogLevel, cfg.IsDevelopment())

	repo, closeRepo := mustOpenRepository(cfg, log)
	defer closeRepo()

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	service := user.NewService(repo, auth.NewPasswordHasher(cfg.BcryptCost), tokens)
	srv := server.New(cfg, log, user.NewHandler(service, log), auth.Middleware(tokens, repo, log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		if err := srv.Shutdown(shutdownTimeout); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}

func mustOpenRepository(cfg config.Config, log zerolog.Logger) (user.Repository, func()) {
	if cfg.DatabaseDriver == config.DriverMemory {
		log.Warn().Msg("using in-memory user store; data is lost on restart")
		return user.NewInMemoryRepository(nil), func() {}
	}

	db, err := database.Open(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	return user.NewGormRepository(db), func() {
		if err := database.Close(db); err != nil {
			log.Error().Err(err).Msg("closing database")
		}
	}
}
