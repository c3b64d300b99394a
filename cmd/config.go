package main

import "time"

type Config struct {
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=8080"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	JWTKey            string        `env:"JWT_KEY,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	SessionBuffer    int           `env:"SESSION_BUFFER,default=256"`
	TransitionBuffer int           `env:"TRANSITION_BUFFER,default=1024"`
	SinkTimeout      time.Duration `env:"SINK_TIMEOUT,default=2s"`
	WriteTimeout     time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	HandshakeTimeout time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s"`
	MaxFrameBytes    int64         `env:"MAX_FRAME_BYTES,default=1048576"`
	RestartInterval  time.Duration `env:"RESTART_INTERVAL,default=200ms"`
}
