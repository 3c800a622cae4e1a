package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// parseEnv loads a .env file when present and overlays every variable that
// is set. Unset variables leave the current value untouched.
func parseEnv(config *Config) error {
	_ = godotenv.Load()
	return env.Parse(config)
}
