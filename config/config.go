// Package config loads service settings from defaults, an optional YAML file
// named by CONFIG_FILE and the environment, in increasing precedence.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

const envConfigFile = "CONFIG_FILE"

// Config holds every setting of the service. Keys match the environment
// variable names, lower-cased.
type Config struct {
	StorageConnectionString string        `mapstructure:"storage_connection_string"`
	TasksTable              string        `mapstructure:"tasks_table"`
	AuditQueue              string        `mapstructure:"audit_queue"`
	RedisConnectionString   string        `mapstructure:"redis_connection_string"`
	Auth0Domain             string        `mapstructure:"auth0_domain"`
	Auth0Audience           string        `mapstructure:"auth0_audience"`
	Auth0TestMode           bool          `mapstructure:"auth0_test_mode"`
	TestJWTSecret           string        `mapstructure:"test_jwt_secret"`
	LocalAuthMode           string        `mapstructure:"local_auth_mode"`
	LocalAuthSharedSecret   string        `mapstructure:"local_auth_shared_secret"`
	JWKSCacheTTL            time.Duration `mapstructure:"jwks_cache_ttl"`
	Debug                   bool          `mapstructure:"debug"`
	Port                    string        `mapstructure:"functions_customhandler_port"`
	DeduperTTL              time.Duration `mapstructure:"deduper_ttl"`
	IngestionURL            string        `mapstructure:"ingestion_url"`
	IngestionTimeout        time.Duration `mapstructure:"ingestion_timeout"`
	WorkspaceTTL            time.Duration `mapstructure:"workspace_ttl"`
	CommitLockTTL           time.Duration `mapstructure:"commit_lock_ttl"`
	TasksCacheTTL           time.Duration `mapstructure:"tasks_cache_ttl"`
	TraceSampleRatio        float64       `mapstructure:"trace_sample_ratio"`
	TraceExport             bool          `mapstructure:"trace_export"`
	PprofEnabled            bool          `mapstructure:"pprof_enabled"`
	LogFormat               string        `mapstructure:"log_format"`
}

func defaults() map[string]any {
	return map[string]any{
		"storage_connection_string":    "",
		"tasks_table":                  "Tasks",
		"audit_queue":                  "task-audit",
		"redis_connection_string":      "",
		"auth0_domain":                 "",
		"auth0_audience":               "",
		"auth0_test_mode":              false,
		"test_jwt_secret":              "",
		"local_auth_mode":              "",
		"local_auth_shared_secret":     "",
		"jwks_cache_ttl":               15 * time.Minute,
		"debug":                        false,
		"functions_customhandler_port": "8080",
		"deduper_ttl":                  24 * time.Hour,
		"ingestion_url":                "",
		"ingestion_timeout":            60 * time.Second,
		"workspace_ttl":                24 * time.Hour,
		"commit_lock_ttl":              2 * time.Minute,
		"tasks_cache_ttl":              5 * time.Minute,
		"trace_sample_ratio":           1.0,
		"trace_export":                 false,
		"pprof_enabled":                false,
		"log_format":                   "text",
	}
}

// Load reads the configuration. It does not validate it.
func Load() (*Config, error) {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if path := os.Getenv(envConfigFile); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// TestMode reports whether tokens are verified with a shared HS256 secret
// instead of the Auth0 JWKS.
func (c *Config) TestMode() bool {
	return c.LocalAuthMode != "" || c.Auth0TestMode
}

// TestSecret is the HS256 secret used in test mode.
func (c *Config) TestSecret() []byte {
	if strings.EqualFold(c.LocalAuthMode, "hs256") {
		return []byte(c.LocalAuthSharedSecret)
	}
	if c.Auth0TestMode {
		return []byte(c.TestJWTSecret)
	}
	return nil
}

// Validate reports every missing or invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.StorageConnectionString == "" || c.TasksTable == "" || c.AuditQueue == "" {
		errs = append(errs, errors.New("missing storage config"))
	}
	if c.RedisConnectionString == "" {
		errs = append(errs, errors.New("missing redis config"))
	}
	if c.IngestionURL == "" {
		errs = append(errs, errors.New("missing INGESTION_URL"))
	}
	switch {
	case c.LocalAuthMode != "" && !strings.EqualFold(c.LocalAuthMode, "hs256"):
		errs = append(errs, errors.New("unsupported LOCAL_AUTH_MODE value"))
	case strings.EqualFold(c.LocalAuthMode, "hs256") && c.LocalAuthSharedSecret == "":
		errs = append(errs, errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256"))
	case c.LocalAuthMode == "" && c.Auth0TestMode && c.TestJWTSecret == "":
		errs = append(errs, errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1"))
	case !c.TestMode() && (c.Auth0Domain == "" || c.Auth0Audience == ""):
		errs = append(errs, errors.New("missing Auth0 config"))
	}
	for name, d := range map[string]time.Duration{
		"DEDUPER_TTL":       c.DeduperTTL,
		"INGESTION_TIMEOUT": c.IngestionTimeout,
		"WORKSPACE_TTL":     c.WorkspaceTTL,
		"COMMIT_LOCK_TTL":   c.CommitLockTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s: must be greater than zero", name))
		}
	}
	if c.TasksCacheTTL < 0 {
		errs = append(errs, errors.New("invalid TASKS_CACHE_TTL: must not be negative"))
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, errors.New("invalid TRACE_SAMPLE_RATIO: must be within [0, 1]"))
	}
	return errors.Join(errs...)
}

// ListenAddr is the HTTP listen address.
func (c *Config) ListenAddr() string {
	return ":" + c.Port
}

// RedisOptions parses the Redis connection string. Both redis:// URLs and the
// Azure "host:port,password=...,ssl=True" form are accepted.
func (c *Config) RedisOptions() *redis.Options {
	redisOpts, err := redis.ParseURL(c.RedisConnectionString)
	if err == nil {
		return redisOpts
	}
	parts := strings.Split(c.RedisConnectionString, ",")
	redisOpts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			redisOpts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				redisOpts.TLSConfig = &tls.Config{}
			}
		}
	}
	return redisOpts
}
