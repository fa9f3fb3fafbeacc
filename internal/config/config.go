package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv    = "CONTRACTDESK_CONFIG"
	logLevelEnv      = "LOG_LEVEL"
	logFormatEnv     = "LOG_FORMAT"
	httpAddrEnv      = "HTTP_ADDR"
	corsOriginsEnv   = "CORS_ORIGINS"
	backendURLEnv    = "BACKEND_URL"
	backendTimeout   = "BACKEND_TIMEOUT"
	tokenSecretEnv   = "AUTH_TOKEN_SECRET"
	sessionStoreEnv  = "SESSION_STORE"
	redisURLEnv      = "REDIS_URL"
	sessionTTLEnv    = "SESSION_TTL"
	clearArtifactEnv = "SESSION_CLEAR_ARTIFACT_AFTER_RISK"
)

// Session store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	HTTP    HTTPConfig    `yaml:"http"`
	Backend BackendConfig `yaml:"backend"`
	Auth    AuthConfig    `yaml:"auth"`
	Session SessionConfig `yaml:"session"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HTTPConfig describes the browser-facing listener.
type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// BackendConfig points at the document-analysis backend.
type BackendConfig struct {
	BaseURL       string        `yaml:"baseUrl"`
	Timeout       time.Duration `yaml:"timeout"`
	UploadTimeout time.Duration `yaml:"uploadTimeout"`
}

// AuthConfig verifies identity tokens handed out by the identity provider.
type AuthConfig struct {
	TokenSecret string `yaml:"tokenSecret"`
	CookieName  string `yaml:"cookieName"`
}

// SessionConfig controls where per-browser sessions live and for how long.
type SessionConfig struct {
	Store                  string        `yaml:"store"`
	RedisURL               string        `yaml:"redisUrl"`
	TTL                    time.Duration `yaml:"ttl"`
	CookieName             string        `yaml:"cookieName"`
	ClearArtifactAfterRisk bool          `yaml:"clearArtifactAfterRisk"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(corsOriginsEnv); v != "" {
		c.HTTP.CORSOrigins = splitList(v)
	}
	if v := os.Getenv(backendURLEnv); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv(backendTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Backend.Timeout = d
		} else {
			log.Printf("config: %s=%q is not a duration, keeping %s", backendTimeout, v, c.Backend.Timeout)
		}
	}
	if v := os.Getenv(tokenSecretEnv); v != "" {
		c.Auth.TokenSecret = v
	}
	if v := os.Getenv(sessionStoreEnv); v != "" {
		c.Session.Store = v
	}
	if v := os.Getenv(redisURLEnv); v != "" {
		c.Session.RedisURL = v
	}
	if v := os.Getenv(sessionTTLEnv); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Session.TTL = d
		} else {
			log.Printf("config: %s=%q is not a duration, keeping %s", sessionTTLEnv, v, c.Session.TTL)
		}
	}
	if v := os.Getenv(clearArtifactEnv); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Session.ClearArtifactAfterRisk = b
		}
	}
}

func (c *Config) normalize() {
	c.Session.Store = strings.ToLower(strings.TrimSpace(c.Session.Store))
	if c.Session.Store != StoreRedis {
		c.Session.Store = StoreMemory
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = defaultConfig().Session.TTL
	}
	c.Backend.BaseURL = strings.TrimSuffix(c.Backend.BaseURL, "/")
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}
	if len(override.HTTP.CORSOrigins) > 0 {
		base.HTTP.CORSOrigins = override.HTTP.CORSOrigins
	}

	if override.Backend.BaseURL != "" {
		base.Backend.BaseURL = override.Backend.BaseURL
	}
	if override.Backend.Timeout > 0 {
		base.Backend.Timeout = override.Backend.Timeout
	}
	if override.Backend.UploadTimeout > 0 {
		base.Backend.UploadTimeout = override.Backend.UploadTimeout
	}

	if override.Auth.TokenSecret != "" {
		base.Auth.TokenSecret = override.Auth.TokenSecret
	}
	if override.Auth.CookieName != "" {
		base.Auth.CookieName = override.Auth.CookieName
	}

	if override.Session.Store != "" {
		base.Session.Store = override.Session.Store
	}
	if override.Session.RedisURL != "" {
		base.Session.RedisURL = override.Session.RedisURL
	}
	if override.Session.TTL > 0 {
		base.Session.TTL = override.Session.TTL
	}
	if override.Session.CookieName != "" {
		base.Session.CookieName = override.Session.CookieName
	}
	if override.Session.ClearArtifactAfterRisk {
		base.Session.ClearArtifactAfterRisk = true
	}

	return base
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{
			Addr:        ":8090",
			CORSOrigins: []string{"http://localhost:5173"},
		},
		Backend: BackendConfig{
			BaseURL:       "http://127.0.0.1:8000",
			Timeout:       30 * time.Second,
			UploadTimeout: 2 * time.Minute,
		},
		Auth: AuthConfig{CookieName: "id_token"},
		Session: SessionConfig{
			Store:      StoreMemory,
			RedisURL:   "redis://localhost:6379/0",
			TTL:        12 * time.Hour,
			CookieName: "contractdesk_session",
		},
	}
}
