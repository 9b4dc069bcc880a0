// Package config loads gatewayd's runtime configuration from
// environment variables (prefixed JOB_GATEWAY_) and an optional config
// file, with cobra flag overrides taking precedence over both.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully-resolved runtime configuration for gatewayd.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthSecret string

	LogLevel  string
	LogJSON   bool

	SnapshotScanBatch int
	CompletionDelay   time.Duration
	OrphanMaxAgeMins  int
}

// Defaults mirrors the compiled-in fallback values used when neither a
// flag nor an environment variable supplies one.
func Defaults() Config {
	return Config{
		ListenAddr:        ":8189",
		AllowedOrigins:    []string{"*"},
		RedisAddr:         "localhost:6379",
		RedisDB:           0,
		AuthSecret:        "development-only-secret-change-me",
		LogLevel:          "info",
		LogJSON:           false,
		SnapshotScanBatch: 100,
		CompletionDelay:   100 * time.Millisecond,
		OrphanMaxAgeMins:  30,
	}
}

// Load resolves a Config from, in ascending priority: compiled
// defaults, an optional config file, JOB_GATEWAY_-prefixed environment
// variables, then any bound cobra flags already set on fs.
func Load(fs *pflag.FlagSet, configFile string) (Config, error) {
	v := viper.New()
	d := Defaults()

	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("allowed_origins", d.AllowedOrigins)
	v.SetDefault("redis_addr", d.RedisAddr)
	v.SetDefault("redis_password", d.RedisPassword)
	v.SetDefault("redis_db", d.RedisDB)
	v.SetDefault("auth_secret", d.AuthSecret)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_json", d.LogJSON)
	v.SetDefault("snapshot_scan_batch", d.SnapshotScanBatch)
	v.SetDefault("completion_delay_ms", d.CompletionDelay.Milliseconds())
	v.SetDefault("orphan_max_age_minutes", d.OrphanMaxAgeMins)

	v.SetEnvPrefix("job_gateway")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	// Flags use hyphenated names per cobra convention; bind each to its
	// underscored viper key explicitly rather than BindPFlags, which
	// would register "listen-addr" and never match "listen_addr".
	bindFlag := func(key, flag string) error {
		if fs == nil {
			return nil
		}
		if f := fs.Lookup(flag); f != nil {
			return v.BindPFlag(key, f)
		}
		return nil
	}
	for key, flag := range map[string]string{
		"listen_addr": "listen-addr",
		"redis_addr":  "redis-addr",
		"auth_secret": "auth-secret",
	} {
		if err := bindFlag(key, flag); err != nil {
			return Config{}, err
		}
	}

	return Config{
		ListenAddr:        v.GetString("listen_addr"),
		AllowedOrigins:    v.GetStringSlice("allowed_origins"),
		RedisAddr:         v.GetString("redis_addr"),
		RedisPassword:     v.GetString("redis_password"),
		RedisDB:           v.GetInt("redis_db"),
		AuthSecret:        v.GetString("auth_secret"),
		LogLevel:          v.GetString("log_level"),
		LogJSON:           v.GetBool("log_json"),
		SnapshotScanBatch: v.GetInt("snapshot_scan_batch"),
		CompletionDelay:   time.Duration(v.GetInt64("completion_delay_ms")) * time.Millisecond,
		OrphanMaxAgeMins:  v.GetInt("orphan_max_age_minutes"),
	}, nil
}
