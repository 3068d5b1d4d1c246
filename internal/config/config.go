// Package config loads colstore settings and builds a database from them.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/eigerco/colstore/pkg/db"
	"github.com/eigerco/colstore/pkg/db/boltdb"
	"github.com/eigerco/colstore/pkg/db/memory"
	"github.com/eigerco/colstore/pkg/db/metrics"
	"github.com/eigerco/colstore/pkg/db/pebble"
	"github.com/eigerco/colstore/pkg/errors"
	"github.com/eigerco/colstore/pkg/log"
	"github.com/eigerco/colstore/pkg/store"
)

const envPrefix = "COLSTORE"

// DefaultPath is the data directory used when no path is configured.
const DefaultPath = "colstore-data"

const (
	BackendPebble = "pebble"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

type Config struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Pebble struct {
		CacheSize    int64  `mapstructure:"cache_size"`
		MemTableSize uint64 `mapstructure:"memtable_size"`
		Sync         bool   `mapstructure:"sync"`
	} `mapstructure:"pebble"`

	Bolt struct {
		Timeout  time.Duration `mapstructure:"timeout"`
		PageSize int           `mapstructure:"page_size"`
		NoSync   bool          `mapstructure:"no_sync"`
	} `mapstructure:"bolt"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendPebble)
	v.SetDefault("path", DefaultPath)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("pebble.cache_size", 64<<20)
	v.SetDefault("pebble.memtable_size", 32<<20)
	v.SetDefault("pebble.sync", true)
	v.SetDefault("bolt.timeout", time.Second)
	v.SetDefault("bolt.page_size", 256)
	v.SetDefault("bolt.no_sync", false)
	v.SetDefault("metrics.enabled", false)
}

// Load reads the YAML file at path, if path is not empty, on top of the
// defaults. Environment variables such as COLSTORE_BOLT_PAGE_SIZE override
// both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendPebble, BackendBolt:
		// An empty pebble path would open a throwaway in-memory store.
		if c.Path == "" {
			return fmt.Errorf("config: backend %q needs a path", c.Backend)
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if _, err := log.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log level: %w", err)
	}
	if _, err := log.ParseLoggerType(c.Log.Format); err != nil {
		return fmt.Errorf("config: log format: %w", err)
	}
	return nil
}

// InitLogging configures the component loggers.
func (c *Config) InitLogging() error {
	level, err := log.ParseLogLevel(c.Log.Level)
	if err != nil {
		return err
	}
	typ, err := log.ParseLoggerType(c.Log.Format)
	if err != nil {
		return err
	}
	log.Init(log.Options{LogLevel: level, Type: typ, Output: os.Stderr})
	return nil
}

// OpenBackend opens the configured backend, wrapped with metrics registered
// on reg when enabled.
func (c *Config) OpenBackend(reg prometheus.Registerer) (db.Backend, error) {
	var (
		backend db.Backend
		err     error
	)
	switch c.Backend {
	case BackendMemory:
		backend = memory.New()
	case BackendPebble:
		if c.Path == "" {
			return nil, errors.Newf(errors.ErrBackendUnavailable, "backend %q needs a path", c.Backend)
		}
		backend, err = pebble.NewKVStore(
			pebble.WithPath(c.Path),
			pebble.WithCacheSize(c.Pebble.CacheSize),
			pebble.WithMemTableSize(c.Pebble.MemTableSize),
			pebble.WithSync(c.Pebble.Sync),
		)
	case BackendBolt:
		backend, err = boltdb.Open(boltFile(c.Path),
			boltdb.WithTimeout(c.Bolt.Timeout),
			boltdb.WithPageSize(c.Bolt.PageSize),
			boltdb.WithNoSync(c.Bolt.NoSync),
		)
	default:
		return nil, errors.Newf(errors.ErrBackendUnavailable, "unknown backend %q", c.Backend)
	}
	if err != nil {
		return nil, err
	}

	if c.Metrics.Enabled && reg != nil {
		wrapped, err := metrics.Wrap(backend, reg)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		return wrapped, nil
	}
	return backend, nil
}

// boltFile treats a path without an extension as a directory holding the
// database file.
func boltFile(path string) string {
	if filepath.Ext(path) != "" {
		return path
	}
	return filepath.Join(path, "colstore.boltdb")
}

// OpenDatabase opens the configured backend and the database over it.
func (c *Config) OpenDatabase(ctx context.Context, reg prometheus.Registerer) (*store.Database, error) {
	backend, err := c.OpenBackend(reg)
	if err != nil {
		return nil, err
	}
	d, err := store.Open(ctx, backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return d, nil
}
