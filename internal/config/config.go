// Package config loads service configuration from environment variables
// with sensible development defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/eramir/facecheck/internal/broker"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Broker   BrokerConfig
	Storage  StorageConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type BrokerConfig struct {
	Addr          string
	ConnectionMax int
	ChannelMax    int
}

type StorageConfig struct {
	ImagesDir string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "facecheck"),
			Password: getEnv("DB_PASSWORD", "facecheck"),
			DBName:   getEnv("DB_NAME", "facecheck"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Broker: BrokerConfig{
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			ConnectionMax: getEnvInt("BROKER_CONNECTION_MAX", broker.DefaultConnectionMax),
			ChannelMax:    getEnvInt("BROKER_CHANNEL_MAX", broker.DefaultChannelMax),
		},
		Storage: StorageConfig{
			ImagesDir: getEnv("IMAGES_PATH", "images"),
		},
	}
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return n
}
