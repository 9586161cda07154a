package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// CHAT_SERVER_ADDR points the suite at an already running backend.
	// Empty means the suite boots its own in-process server.
	ServerAddr string `envconfig:"CHAT_SERVER_ADDR"`
	JWTSecret  string `envconfig:"CHAT_JWT_SECRET" default:"e2e-secret"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours  bool   `envconfig:"E2E_COLOURS" default:"true"`
	LogLevel string `envconfig:"E2E_LOG_LEVEL" default:"warn"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
