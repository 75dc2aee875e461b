// Package config loads engine settings from config files, .env files and
// the environment.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem config and .env files are read from.
var AppFs = afero.NewOsFs()

const (
	configName = ".prisma-engine"
	envPrefix  = "PRISMA_ENGINE"
)

// Config holds the engine configuration
type Config struct {
	DatasourceURL string
	Driver        string

	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	HealthCheckInterval time.Duration

	MaxDepth      int
	BatchSize     int
	PlanCacheSize int

	LogQueries bool
	LogLevel   string
	LogFormat  string

	TxMaxWait        time.Duration
	TxTimeout        time.Duration
	TxIsolationLevel string
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		MaxOpenConns:        25,
		MaxIdleConns:        5,
		ConnMaxLifetime:     30 * time.Minute,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: time.Minute,
		MaxDepth:            5,
		BatchSize:           1000,
		PlanCacheSize:       512,
		LogLevel:            "off",
		LogFormat:           "text",
		TxMaxWait:           2 * time.Second,
		TxTimeout:           5 * time.Second,
	}
}

// Load reads the configuration. Sources in increasing priority: defaults,
// .prisma-engine.yaml (in ., $HOME or $HOME/.config/prisma-engine), .env,
// .env.local, then PRISMA_ENGINE_* environment variables. The datasource
// URL falls back to DATABASE_URL.
func Load() (*Config, error) {
	v := viper.New()
	v.SetFs(AppFs)

	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "prisma-engine"))

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("driver", "")
	v.SetDefault("max_open_conns", d.MaxOpenConns)
	v.SetDefault("max_idle_conns", d.MaxIdleConns)
	v.SetDefault("conn_max_lifetime", d.ConnMaxLifetime)
	v.SetDefault("conn_max_idle_time", d.ConnMaxIdleTime)
	v.SetDefault("health_check_interval", d.HealthCheckInterval)
	v.SetDefault("max_depth", d.MaxDepth)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("plan_cache_size", d.PlanCacheSize)
	v.SetDefault("log_queries", false)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("tx_max_wait", d.TxMaxWait)
	v.SetDefault("tx_timeout", d.TxTimeout)
	v.SetDefault("tx_isolation_level", "")
	v.SetDefault("datasource_url", "")

	if err := v.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing {
			return nil, err
		}
	}

	if err := loadEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		DatasourceURL:       v.GetString("datasource_url"),
		Driver:              v.GetString("driver"),
		MaxOpenConns:        v.GetInt("max_open_conns"),
		MaxIdleConns:        v.GetInt("max_idle_conns"),
		ConnMaxLifetime:     v.GetDuration("conn_max_lifetime"),
		ConnMaxIdleTime:     v.GetDuration("conn_max_idle_time"),
		HealthCheckInterval: v.GetDuration("health_check_interval"),
		MaxDepth:            v.GetInt("max_depth"),
		BatchSize:           v.GetInt("batch_size"),
		PlanCacheSize:       v.GetInt("plan_cache_size"),
		LogQueries:          v.GetBool("log_queries"),
		LogLevel:            v.GetString("log_level"),
		LogFormat:           v.GetString("log_format"),
		TxMaxWait:           v.GetDuration("tx_max_wait"),
		TxTimeout:           v.GetDuration("tx_timeout"),
		TxIsolationLevel:    v.GetString("tx_isolation_level"),
	}
	if cfg.DatasourceURL == "" {
		cfg.DatasourceURL = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}

// loadEnv loads .env, then lets .env.local override it. Variables already
// set in the process environment win over .env.
func loadEnv() error {
	if ok, _ := afero.Exists(AppFs, ".env"); ok {
		env, err := readEnv(".env")
		if err != nil {
			return err
		}
		for k, val := range env {
			if _, set := os.LookupEnv(k); !set {
				os.Setenv(k, val)
			}
		}
	}
	if ok, _ := afero.Exists(AppFs, ".env.local"); ok {
		env, err := readEnv(".env.local")
		if err != nil {
			return err
		}
		for k, val := range env {
			os.Setenv(k, val)
		}
	}
	return nil
}

func readEnv(path string) (map[string]string, error) {
	f, err := AppFs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return godotenv.Parse(f)
}
