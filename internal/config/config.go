package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API      APIConfig
	Storage  StorageConfig
	Redis    RedisConfig
	DynamoDB DynamoDBConfig
	Session  SessionConfig
	Sandbox  SandboxConfig
	JWT      JWTConfig
}

type APIConfig struct {
	BaseURL      string
	Timeout      time.Duration
	LegacyRoutes bool
}

type StorageConfig struct {
	// Backend is one of memory, redis, dynamodb or none.
	Backend   string
	Namespace string
	TTL       time.Duration
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type SessionConfig struct {
	RegistrationPolicy string
	LandingRoute       string
	LoginRoute         string
	LogoutTimeout      time.Duration
	RenewalSkew        time.Duration
}

type SandboxConfig struct {
	Port                 string
	BasePath             string
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	RegisterIssuesTokens bool
}

type JWTConfig struct {
	SecretKey     string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

var validBackends = map[string]bool{
	"memory":   true,
	"redis":    true,
	"dynamodb": true,
	"none":     true,
}

var validPolicies = map[string]bool{
	"require-login": true,
	"sign-in":       true,
}

// LoadDotEnv reads the given .env files into the process environment.
// Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			BaseURL:      getEnv("BANK_API_BASE_URL", "http://localhost:8080/api"),
			Timeout:      getEnvAsDuration("API_TIMEOUT", 10*time.Second),
			LegacyRoutes: getEnvAsBool("API_LEGACY_ROUTES", false),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(getEnv("STORAGE_BACKEND", "memory")),
			Namespace: getEnv("SESSION_NAMESPACE", "default"),
			TTL:       getEnvAsDuration("SESSION_TTL", 0),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "BankSessionTable"),
		},
		Session: SessionConfig{
			RegistrationPolicy: strings.ToLower(getEnv("SESSION_REGISTRATION_POLICY", "require-login")),
			LandingRoute:       getEnv("SESSION_LANDING_ROUTE", "/dashboard"),
			LoginRoute:         getEnv("SESSION_LOGIN_ROUTE", "/login"),
			LogoutTimeout:      getEnvAsDuration("SESSION_LOGOUT_TIMEOUT", 5*time.Second),
			RenewalSkew:        getEnvAsDuration("SESSION_RENEWAL_SKEW", 30*time.Second),
		},
		Sandbox: SandboxConfig{
			Port:                 getEnv("PORT", "8080"),
			BasePath:             getEnv("SANDBOX_BASE_PATH", "/api"),
			ReadTimeout:          15 * time.Second,
			WriteTimeout:         15 * time.Second,
			RegisterIssuesTokens: getEnvAsBool("SANDBOX_REGISTER_ISSUES_TOKENS", false),
		},
		JWT: JWTConfig{
			SecretKey:     getEnv("JWT_SECRET_KEY", ""),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		},
	}

	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("BANK_API_BASE_URL must not be empty")
	}

	if !validBackends[cfg.Storage.Backend] {
		return nil, fmt.Errorf("STORAGE_BACKEND %q is not one of memory, redis, dynamodb, none", cfg.Storage.Backend)
	}

	if !validPolicies[cfg.Session.RegistrationPolicy] {
		return nil, fmt.Errorf("SESSION_REGISTRATION_POLICY %q is not one of require-login, sign-in", cfg.Session.RegistrationPolicy)
	}

	return cfg, nil
}

// ValidateSandbox checks the settings only the sandbox backend needs.
func (c *Config) ValidateSandbox() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}

	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
