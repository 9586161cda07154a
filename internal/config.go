package internal

import "time"

// ServerConfig is the environment of the reference messaging backend.
type ServerConfig struct {
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=8080"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
}

// ClientConfig is the environment of the terminal chat client.
// Reconnect bound and delay are tunable; the defaults mirror the
// historical behavior of the chat view.
type ClientConfig struct {
	BackendURL        string        `env:"BACKEND_URL,default=http://localhost:8080"`
	SocketURL         string        `env:"SOCKET_URL,default=ws://localhost:8080/ws"`
	AuthToken         string        `env:"AUTH_TOKEN,required=true"`
	UserID            string        `env:"USER_ID,required=true"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT,default=10s"`
	ReconnectAttempts int           `env:"RECONNECT_ATTEMPTS,default=5"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY,default=1s"`
	LogLevel          string        `env:"LOG_LEVEL,required=true"`
}
