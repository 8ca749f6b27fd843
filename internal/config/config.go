// Package config carga la configuración desde YAML y la pisa con variables
// de entorno. El YAML es opcional: con solo env la app arranca igual.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		// postgres | memory
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	JWT struct {
		Secret     string `yaml:"secret"`
		Algorithm  string `yaml:"algorithm"`
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
	} `yaml:"jwt"`

	Auth struct {
		StateTTL string `yaml:"state_ttl"`
	} `yaml:"auth"`

	Providers struct {
		Google struct {
			Enabled      bool   `yaml:"enabled"`
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
			RedirectURL  string `yaml:"redirect_url"`
		} `yaml:"google"`
		Apple struct {
			Enabled        bool   `yaml:"enabled"`
			ClientID       string `yaml:"client_id"`
			TeamID         string `yaml:"team_id"`
			KeyID          string `yaml:"key_id"`
			PrivateKey     string `yaml:"private_key"`      // PEM inline
			PrivateKeyFile string `yaml:"private_key_file"` // o ruta a archivo
			RedirectURL    string `yaml:"redirect_url"`
		} `yaml:"apple"`
	} `yaml:"providers"`
}

// Load lee el YAML (si existe), aplica defaults y pisa con env.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "1h"
	}
	if c.JWT.Algorithm == "" {
		c.JWT.Algorithm = "HS256"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "30m"
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "720h" // 30d
	}
	if c.Auth.StateTTL == "" {
		c.Auth.StateTTL = "10m"
	}

	c.applyEnvOverrides()
	return &c, nil
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("DATABASE_URL"); ok {
		c.Storage.DSN = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// JWT
	if v, ok := getEnvStr("JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := getEnvStr("JWT_ALGORITHM"); ok {
		c.JWT.Algorithm = v
	}
	if v, ok := getEnvStr("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvStr("JWT_REFRESH_TTL"); ok {
		c.JWT.RefreshTTL = v
	}

	// AUTH
	if v, ok := getEnvStr("AUTH_STATE_TTL"); ok {
		c.Auth.StateTTL = v
	}

	// GOOGLE
	if v, ok := getEnvBool("GOOGLE_ENABLED"); ok {
		c.Providers.Google.Enabled = v
	}
	if v, ok := getEnvStr("GOOGLE_CLIENT_ID"); ok {
		c.Providers.Google.ClientID = v
		c.Providers.Google.Enabled = true
	}
	if v, ok := getEnvStr("GOOGLE_CLIENT_SECRET"); ok {
		c.Providers.Google.ClientSecret = v
	}
	if v, ok := getEnvStr("GOOGLE_REDIRECT_URL"); ok {
		c.Providers.Google.RedirectURL = v
	}

	// APPLE
	if v, ok := getEnvBool("APPLE_ENABLED"); ok {
		c.Providers.Apple.Enabled = v
	}
	if v, ok := getEnvStr("APPLE_CLIENT_ID"); ok {
		c.Providers.Apple.ClientID = v
		c.Providers.Apple.Enabled = true
	}
	if v, ok := getEnvStr("APPLE_TEAM_ID"); ok {
		c.Providers.Apple.TeamID = v
	}
	if v, ok := getEnvStr("APPLE_KEY_ID"); ok {
		c.Providers.Apple.KeyID = v
	}
	if v, ok := getEnvStr("APPLE_PRIVATE_KEY"); ok {
		c.Providers.Apple.PrivateKey = v
	}
	if v, ok := getEnvStr("APPLE_PRIVATE_KEY_FILE"); ok {
		c.Providers.Apple.PrivateKeyFile = v
	}
	if v, ok := getEnvStr("APPLE_REDIRECT_URL"); ok {
		c.Providers.Apple.RedirectURL = v
	}
}

// Durations parseadas, con los defaults ya aplicados por Load.

func (c *Config) AccessTTL() time.Duration  { return mustDur(c.JWT.AccessTTL, 30*time.Minute) }
func (c *Config) RefreshTTL() time.Duration { return mustDur(c.JWT.RefreshTTL, 720*time.Hour) }
func (c *Config) StateTTL() time.Duration   { return mustDur(c.Auth.StateTTL, 10*time.Minute) }
func (c *Config) CacheDefaultTTL() time.Duration {
	return mustDur(c.Cache.Memory.DefaultTTL, time.Hour)
}

func mustDur(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ApplePrivateKeyPEM resuelve la clave inline o desde archivo.
func (c *Config) ApplePrivateKeyPEM() (string, error) {
	if c.Providers.Apple.PrivateKey != "" {
		return c.Providers.Apple.PrivateKey, nil
	}
	if c.Providers.Apple.PrivateKeyFile == "" {
		return "", fmt.Errorf("config: apple private key not configured")
	}
	b, err := os.ReadFile(c.Providers.Apple.PrivateKeyFile)
	if err != nil {
		return "", fmt.Errorf("config: read apple private key: %w", err)
	}
	return string(b), nil
}

// Validate chequea los valores críticos antes de arrancar.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("config: jwt.secret is required (JWT_SECRET)")
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn is required for postgres (DATABASE_URL)")
	}
	if !c.Providers.Google.Enabled && !c.Providers.Apple.Enabled {
		return fmt.Errorf("config: at least one provider must be enabled")
	}
	if c.Providers.Apple.Enabled {
		if c.Providers.Apple.TeamID == "" || c.Providers.Apple.KeyID == "" {
			return fmt.Errorf("config: apple provider requires team_id and key_id")
		}
		if _, err := c.ApplePrivateKeyPEM(); err != nil {
			return err
		}
	}
	return nil
}
