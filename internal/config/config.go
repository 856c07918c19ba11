package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

const (
	DefaultDatabasePath = "cellule_dashboard.db"
	DefaultArchivePath  = "cellule_data.zip"
	DefaultLogLevel     = "info"
	DefaultPort         = "8080"
)

// Config holds everything the tool needs at startup. It is built once and
// handed to constructors; nothing reads the environment after Load.
type Config struct {
	DatabasePath string
	ArchivePath  string
	LogLevel     string
	Port         string
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	return &Config{
		DatabasePath: getEnvOrDefault("CELLULE_DB_PATH", DefaultDatabasePath),
		ArchivePath:  getEnvOrDefault("CELLULE_ARCHIVE_PATH", DefaultArchivePath),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", DefaultLogLevel),
		Port:         getEnvOrDefault("PORT", DefaultPort),
	}
}

// Addr is the listen address for the dashboard server.
func (c *Config) Addr() string { return ":" + c.Port }

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
