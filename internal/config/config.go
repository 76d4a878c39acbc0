package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Scan     ScanConfig
	LLM      LLMConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// AuthConfig holds JWT authentication settings. An empty secret disables
// authentication entirely; the API runs open.
type AuthConfig struct {
	JWTSecret string //nolint:gosec // G117: JWT signing secret config
	AccessTTL time.Duration
}

// ScanConfig holds content safety scanner settings.
type ScanConfig struct {
	Enabled       bool
	ChunkInterval int
	Endpoint      string
	Token         string //nolint:gosec // G117: scanner API token config
	InputProfile  string
	OutputProfile string
	AppName       string
	Timeout       time.Duration
}

// LLMConfig holds upstream model settings.
type LLMConfig struct {
	APIKey       string //nolint:gosec // G117: LLM API key config
	BaseURL      string
	Model        string
	SystemPrompt string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (scanner token, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("GUARDO_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("GUARDO_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("GUARDO_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("GUARDO_JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("GUARDO_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("GUARDO_SERVER_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	scanEnabled, err := getEnvBool("GUARDO_SCAN_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	chunkInterval, err := getEnvInt("GUARDO_SCAN_CHUNK_INTERVAL", 50)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	scanTimeout, err := getEnvDuration("GUARDO_SCAN_TIMEOUT", 8*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("GUARDO_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("GUARDO_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("GUARDO_DB_USER", "guardo"),
			Password: getEnv("GUARDO_DB_PASSWORD", ""),
			DBName:   getEnv("GUARDO_DB_NAME", "guardo_dev"),
			SSLMode:  getEnv("GUARDO_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("GUARDO_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("GUARDO_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Server: ServerConfig{
			Addr:         getEnv("GUARDO_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("GUARDO_JWT_SECRET", ""),
			AccessTTL: accessTTL,
		},
		Scan: ScanConfig{
			Enabled:       scanEnabled,
			ChunkInterval: chunkInterval,
			Endpoint:      getEnv("GUARDO_SCAN_ENDPOINT", "https://service.api.aisecurity.paloaltonetworks.com"),
			Token:         getEnv("GUARDO_SCAN_TOKEN", ""),
			InputProfile:  getEnv("GUARDO_SCAN_INPUT_PROFILE", ""),
			OutputProfile: getEnv("GUARDO_SCAN_OUTPUT_PROFILE", ""),
			AppName:       getEnv("GUARDO_SCAN_APP_NAME", "guardo"),
			Timeout:       scanTimeout,
		},
		LLM: LLMConfig{
			APIKey:       getEnv("GUARDO_OPENAI_API_KEY", ""),
			BaseURL:      getEnv("GUARDO_OPENAI_BASE_URL", ""),
			Model:        getEnv("GUARDO_LLM_MODEL", "gpt-4o-mini"),
			SystemPrompt: getEnv("GUARDO_SYSTEM_PROMPT", ""),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// Auth is optional, but a set secret must not be trivially guessable.
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return errors.New("GUARDO_JWT_SECRET must be at least 32 characters when set")
	}
	if c.Auth.AccessTTL <= 0 {
		return fmt.Errorf("GUARDO_JWT_ACCESS_TTL must be positive, got %s", c.Auth.AccessTTL)
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("GUARDO_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("GUARDO_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("GUARDO_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	// WriteTimeout zero means no deadline; SSE responses stay open for the
	// duration of a generation.
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("GUARDO_SERVER_WRITE_TIMEOUT must be >= 0, got %s", c.Server.WriteTimeout)
	}

	if c.Scan.ChunkInterval < 1 {
		return fmt.Errorf("GUARDO_SCAN_CHUNK_INTERVAL must be >= 1, got %d", c.Scan.ChunkInterval)
	}
	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("GUARDO_SCAN_TIMEOUT must be positive, got %s", c.Scan.Timeout)
	}
	if c.Scan.Enabled {
		if c.Scan.Token == "" {
			return errors.New("GUARDO_SCAN_TOKEN is required when scanning is enabled")
		}
		if c.Scan.InputProfile == "" || c.Scan.OutputProfile == "" {
			return errors.New("GUARDO_SCAN_INPUT_PROFILE and GUARDO_SCAN_OUTPUT_PROFILE are required when scanning is enabled")
		}
	}

	if c.LLM.Model == "" {
		return errors.New("GUARDO_LLM_MODEL must not be empty")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
