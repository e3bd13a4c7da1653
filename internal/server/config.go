// Package server provides configuration helpers that define runtime defaults
// and validation for the roomchat service.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultPort            = ":3001"
	defaultOrigin          = "http://localhost:5173"
	defaultMaxMessageSize  = 16384
	defaultSendBufferSize  = 256
	defaultReapInterval    = time.Minute
	defaultShutdownTimeout = 30 * time.Second
)

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string   `envconfig:"PORT" default:":3001"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173"`
	// CORSOrigin is the single-origin form of AllowedOrigins. When set it
	// is appended to the allow-list.
	CORSOrigin      string        `envconfig:"CORS_ORIGIN"`
	MaxMessageSize  int64         `envconfig:"MAX_MESSAGE_SIZE" default:"16384"`
	SendBufferSize  int           `envconfig:"SEND_BUFFER_SIZE" default:"256"`
	RoomIdleTTL     time.Duration `envconfig:"ROOM_IDLE_TTL" default:"0s"`
	ReapInterval    time.Duration `envconfig:"REAP_INTERVAL" default:"1m"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

func defaultConfig() Config {
	return Config{
		Port:            defaultPort,
		AllowedOrigins:  []string{defaultOrigin},
		MaxMessageSize:  defaultMaxMessageSize,
		SendBufferSize:  defaultSendBufferSize,
		ReapInterval:    defaultReapInterval,
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig reads an optional dotenv file and then the process environment.
// A missing dotenv file is not an error. Values that fail to parse are.
func LoadConfig(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if file == "" {
			continue
		}
		if err := godotenv.Load(file); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	sanitized := sanitizeConfig(cfg)
	return &sanitized, nil
}

// sanitizeConfig replaces empty or non-positive settings with defaults and
// merges CORSOrigin into the allow-list.
func sanitizeConfig(cfg Config) Config {
	cfg.Port = normalizePort(cfg.Port)

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}
	if cfg.RoomIdleTTL < 0 {
		cfg.RoomIdleTTL = 0
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = defaultReapInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	origins := make([]string, 0, len(cfg.AllowedOrigins)+1)
	for _, origin := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if cors := strings.TrimSpace(cfg.CORSOrigin); cors != "" {
		origins = append(origins, cors)
	}
	if len(origins) == 0 {
		origins = append(origins, defaultOrigin)
	}
	cfg.AllowedOrigins = origins

	return cfg
}

// normalizePort turns a bare port number into a listen address.
func normalizePort(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return defaultPort
	}
	if _, err := strconv.Atoi(port); err == nil {
		return ":" + port
	}
	return port
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
