package config

import (
	"log/slog"

	"github.com/joho/godotenv"
)

// envFiles are tried in order; values never override the process environment.
var envFiles = []string{".env", ".env.local"}

// loadEnvFiles preloads KEY=VALUE files so ${VAR} references in the YAML resolve.
func loadEnvFiles() {
	for _, path := range envFiles {
		if err := godotenv.Load(path); err == nil {
			slog.Debug("Loaded environment file", "path", path)
		}
	}
}
