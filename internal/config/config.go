// Package config loads the process configuration from the environment, with
// optional .env overrides for local development.
package config

import (
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`
	LogLevel   string `env:"LOG_LEVEL,default=info"`

	// NegotiationTimeout bounds how long a pair may sit without an answer
	// before both sides are failed.
	NegotiationTimeout time.Duration `env:"NEGOTIATION_TIMEOUT,default=30s"`

	// CandidateBufferLimit caps per-side buffered ICE candidates; the oldest
	// is evicted beyond this. 0 lifts the bound.
	CandidateBufferLimit int `env:"CANDIDATE_BUFFER_LIMIT,default=32"`

	// RoomCapacity is the maximum member count per room; 0 disables the cap.
	RoomCapacity int `env:"ROOM_CAPACITY,default=8"`

	// RoomLogLimit bounds the per-room chat history kept for snapshots.
	RoomLogLimit int `env:"ROOM_LOG_LIMIT,default=100"`

	// SendQueueDepth is the per-client outbound queue; clients that fall this
	// far behind are disconnected.
	SendQueueDepth int `env:"SEND_QUEUE_DEPTH,default=64"`

	// AutoCall prompts the earlier-joined member to offer when a room reaches
	// exactly two participants.
	AutoCall bool `env:"AUTO_CALL,default=true"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`
}

func Load() (Config, error) {
	// Missing .env is fine; the environment wins anyway.
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
