package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server           ServerConfig           `mapstructure:"http_server"`
	Database         DatabaseConfig         `mapstructure:"database"`
	Security         SecurityConfig         `mapstructure:"security" validate:"required"`
	IdentityProvider IdentityProviderConfig `mapstructure:"identity_provider"`
	Provisioning     ProvisioningConfig     `mapstructure:"provisioning"`
	Cache            CacheConfig            `mapstructure:"cache"`
	Observability    ObservabilityConfig    `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	OpenAPISpecPath   string        `mapstructure:"openapi_spec_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret           string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	JWTIssuer           string        `mapstructure:"jwt_issuer"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" validate:"required,min=1m"`
}

// IdentityProviderConfig points at the Keycloak admin API used to manage accounts.
type IdentityProviderConfig struct {
	BaseURL      string        `mapstructure:"base_url" validate:"required,url"`
	AdminRealm   string        `mapstructure:"admin_realm"`
	ClientID     string        `mapstructure:"client_id" validate:"required"`
	ClientSecret string        `mapstructure:"client_secret" validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type ProvisioningConfig struct {
	ChunkSize    int  `mapstructure:"chunk_size" validate:"min=1"`
	AuditEnabled bool `mapstructure:"audit_enabled"`
}

type CacheConfig struct {
	Driver    string        `mapstructure:"driver" validate:"oneof=memory redis"`
	TTL       time.Duration `mapstructure:"ttl"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	Prefix    string        `mapstructure:"prefix"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

const (
	DefaultChunkSize  = 10
	DefaultIdPTimeout = 10 * time.Second
	DefaultCacheTTL   = 5 * time.Minute
)

// LoadConfigFromEnv builds the configuration for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("HTTP_ALLOWED_ORIGINS", "*"),
			OpenAPISpecPath:   getEnv("OPENAPI_SPEC_PATH", "api/openapi.yml"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Security: SecurityConfig{
			JWTSecret:           getEnv("JWT_SECRET", ""),
			JWTIssuer:           getEnv("JWT_ISSUER", "institution-management"),
			AccessTokenDuration: getEnvAsDuration("ACCESS_TOKEN_DURATION", 15*time.Minute),
		},
		IdentityProvider: IdentityProviderConfig{
			BaseURL:      getEnv("IDP_BASE_URL", ""),
			AdminRealm:   getEnv("IDP_ADMIN_REALM", "master"),
			ClientID:     getEnv("IDP_CLIENT_ID", ""),
			ClientSecret: getEnv("IDP_CLIENT_SECRET", ""),
			Timeout:      getEnvAsDuration("IDP_TIMEOUT", DefaultIdPTimeout),
		},
		Provisioning: ProvisioningConfig{
			ChunkSize:    getEnvAsInt("PROVISIONING_CHUNK_SIZE", DefaultChunkSize),
			AuditEnabled: getEnvAsBool("PROVISIONING_AUDIT_ENABLED", true),
		},
		Cache: CacheConfig{
			Driver:    getEnv("CACHE_DRIVER", "memory"),
			TTL:       getEnvAsDuration("CACHE_TTL", DefaultCacheTTL),
			RedisAddr: getEnv("CACHE_REDIS_ADDR", ""),
			RedisDB:   getEnvAsInt("CACHE_REDIS_DB", 0),
			Prefix:    getEnv("CACHE_PREFIX", "institution:"),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnvAsBool("METRICS_ENABLED", true),
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.IdentityProvider.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("identity provider config: %v", err))
	}

	if err := c.Provisioning.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("provisioning config: %v", err))
	}

	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("cache config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters")
	}
	if c.AccessTokenDuration <= 0 {
		return errors.New("access_token_duration must be positive")
	}
	return nil
}

func (c *IdentityProviderConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("client_id and client_secret are required")
	}
	if c.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	return nil
}

func (c *IdentityProviderConfig) GetTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultIdPTimeout
	}
	return c.Timeout
}

func (c *ProvisioningConfig) Validate() error {
	if c.ChunkSize < 0 {
		return errors.New("chunk_size cannot be negative")
	}
	return nil
}

// GetChunkSize falls back to the default when the value is unset.
func (c *ProvisioningConfig) GetChunkSize() int {
	if c.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return c.ChunkSize
}

func (c *CacheConfig) Validate() error {
	switch c.Driver {
	case "", "memory":
		return nil
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis_addr is required when driver is redis")
		}
		return nil
	default:
		return fmt.Errorf("unsupported cache driver %q", c.Driver)
	}
}

func (c *CacheConfig) GetTTL() time.Duration {
	if c.TTL <= 0 {
		return DefaultCacheTTL
	}
	return c.TTL
}
