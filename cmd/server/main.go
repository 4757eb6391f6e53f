package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/peerline/peerline/internal/adapter/driven/gateway/ws"
	repo "github.com/peerline/peerline/internal/adapter/driven/persistence/memory"
	handler "github.com/peerline/peerline/internal/adapter/driving/http"
	"github.com/peerline/peerline/internal/config"
	"github.com/peerline/peerline/internal/core/service"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()
	zlog.Logger = l

	cfg, err := config.Load()
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		l.Warn().Str("level", cfg.LogLevel).Msg("Unknown log level, keeping info")
	}

	messages := repo.NewMessageRepository(cfg.RoomLogLimit)
	hub := ws.NewHub()

	rooms := service.NewRoomRegistry(hub, messages, cfg.RoomCapacity)
	chat := service.NewChatService(messages, rooms)
	relay := service.NewRelay(hub, cfg.NegotiationTimeout, cfg.CandidateBufferLimit)
	supervisor := service.NewSupervisor(hub, hub, rooms, chat, relay, cfg.AutoCall)

	h := handler.NewHandler(supervisor, cfg.SendQueueDepth)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: h.NewRouter(),
	}

	go func() {
		l.Info().Str("addr", cfg.ListenAddr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	hub.Stop()
	l.Info().Msg("Server exited")
}
