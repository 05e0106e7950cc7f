// Package config loads the calendar tools' settings.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// a .env file in the project directory, then the process environment.
// Later layers win. All file locations are resolved inside the project
// directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JamesPrial/visual-calendar/internal/pathutil"
	"github.com/JamesPrial/visual-calendar/internal/storage"
)

// Environment variables.
const (
	EnvConfigFile     = "CALENDAR_CONFIG"
	EnvBackend        = "CALENDAR_STORAGE_BACKEND"
	EnvJSONPath       = "CALENDAR_JSON_PATH"
	EnvSQLitePath     = "CALENDAR_SQLITE_PATH"
	EnvPostgresURL    = "CALENDAR_POSTGRES_URL"
	EnvRedisAddr      = "CALENDAR_REDIS_ADDR"
	EnvRedisPassword  = "CALENDAR_REDIS_PASSWORD"
	EnvRedisDB        = "CALENDAR_REDIS_DB"
	EnvRedisNamespace = "CALENDAR_REDIS_NAMESPACE"
	EnvQuota          = "CALENDAR_QUOTA_BYTES"
	EnvRetention      = "CALENDAR_RETENTION"
	EnvLogDir         = "CALENDAR_LOG_DIR"
	EnvSnapshots      = "CALENDAR_SNAPSHOTS"
	EnvChromePath     = "CALENDAR_CHROME_PATH"
	EnvDebug          = "DEBUG"
)

// Defaults.
const (
	DefaultDir          = ".calendar"
	DefaultConfigFile   = ".calendar/config.yaml"
	DefaultJSONPath     = ".calendar/calendars.json"
	DefaultSQLitePath   = ".calendar/calendars.db"
	DefaultLogDir       = ".calendar/logs"
	DefaultQuota        = "5MiB"
	DefaultRetention    = 5
	DefaultSnapshotWait = 15 * time.Second
)

// StorageConfig selects the storage engine.
type StorageConfig struct {
	// Backend is one of memory, json, sqlite, postgres, redis.
	Backend string `yaml:"backend"`

	JSONPath       string `yaml:"json_path"`
	SQLitePath     string `yaml:"sqlite_path"`
	PostgresURL    string `yaml:"postgres_url"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
	RedisNamespace string `yaml:"redis_namespace"`

	// Quota caps the stored bytes, e.g. "5MiB" or "5000000". "0" is
	// unlimited.
	Quota string `yaml:"quota"`
}

// SnapshotConfig controls preview thumbnails.
type SnapshotConfig struct {
	Enabled    bool          `yaml:"enabled"`
	ChromePath string        `yaml:"chrome_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Config is the resolved configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`

	// Retention is how many calendars survive a cleanup.
	Retention int `yaml:"retention"`

	// LogDir holds the rotating log file. Empty logs to stderr only.
	LogDir string `yaml:"log_dir"`

	Debug    bool           `yaml:"debug"`
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// ProjectDir is the absolute directory every path is resolved in.
	ProjectDir string `yaml:"-"`

	// QuotaBytes is Storage.Quota parsed.
	QuotaBytes int64 `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:    storage.BackendJSON,
			JSONPath:   DefaultJSONPath,
			SQLitePath: DefaultSQLitePath,
			Quota:      DefaultQuota,
		},
		Retention: DefaultRetention,
		LogDir:    DefaultLogDir,
		Snapshot:  SnapshotConfig{Timeout: DefaultSnapshotWait},
	}
}

// Load reads the configuration for projectDir.
func Load(projectDir string) (*Config, error) {
	if strings.TrimSpace(projectDir) == "" {
		return nil, errors.New("project directory is empty")
	}
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	env, err := newEnv(abs)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.ProjectDir = abs
	if err := cfg.loadFile(env); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges the YAML file named by CALENDAR_CONFIG, or the default
// file when present. A file named explicitly must exist.
func (c *Config) loadFile(env env) error {
	name, explicit := env.lookup(EnvConfigFile)
	if !explicit {
		name, explicit = DefaultConfigFile, false
	}
	path, err := pathutil.ResolveSafePath(c.ProjectDir, name)
	if err != nil {
		return fmt.Errorf("invalid config file path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(env env) error {
	env.str(EnvBackend, &c.Storage.Backend)
	env.str(EnvJSONPath, &c.Storage.JSONPath)
	env.str(EnvSQLitePath, &c.Storage.SQLitePath)
	env.str(EnvPostgresURL, &c.Storage.PostgresURL)
	env.str(EnvRedisAddr, &c.Storage.RedisAddr)
	env.str(EnvRedisPassword, &c.Storage.RedisPassword)
	env.str(EnvRedisNamespace, &c.Storage.RedisNamespace)
	env.str(EnvQuota, &c.Storage.Quota)
	env.str(EnvChromePath, &c.Snapshot.ChromePath)
	env.str(EnvLogDir, &c.LogDir)
	if _, ok := env.lookup(EnvDebug); ok {
		c.Debug = true
	}

	if err := env.integer(EnvRedisDB, &c.Storage.RedisDB); err != nil {
		return err
	}
	if err := env.integer(EnvRetention, &c.Retention); err != nil {
		return err
	}
	if v, ok := env.lookup(EnvSnapshots); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvSnapshots, v, err)
		}
		c.Snapshot.Enabled = enabled
	}
	return nil
}

// resolve normalizes values and validates paths and sizes.
func (c *Config) resolve() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = storage.BackendJSON
	}

	var err error
	if c.Storage.JSONPath, err = c.resolvePath(c.Storage.JSONPath, DefaultJSONPath); err != nil {
		return fmt.Errorf("invalid json store path: %w", err)
	}
	if c.Storage.SQLitePath, err = c.resolvePath(c.Storage.SQLitePath, DefaultSQLitePath); err != nil {
		return fmt.Errorf("invalid sqlite database path: %w", err)
	}
	if c.LogDir != "" {
		if c.LogDir, err = pathutil.ResolveSafePath(c.ProjectDir, c.LogDir); err != nil {
			return fmt.Errorf("invalid log directory: %w", err)
		}
	}

	quota := strings.TrimSpace(c.Storage.Quota)
	if quota == "" {
		quota = "0"
	}
	n, err := humanize.ParseBytes(quota)
	if err != nil {
		return fmt.Errorf("invalid quota %q: %w", c.Storage.Quota, err)
	}
	if n > uint64(1<<62) {
		return fmt.Errorf("invalid quota %q: too large", c.Storage.Quota)
	}
	c.QuotaBytes = int64(n)

	if c.Retention < 1 {
		return fmt.Errorf("invalid retention %d: must be at least 1", c.Retention)
	}
	if c.Snapshot.Timeout <= 0 {
		c.Snapshot.Timeout = DefaultSnapshotWait
	}
	return nil
}

func (c *Config) resolvePath(p, fallback string) (string, error) {
	if strings.TrimSpace(p) == "" {
		p = fallback
	}
	return pathutil.ResolveSafePath(c.ProjectDir, p)
}

// StorageOptions returns the options for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:        c.Storage.Backend,
		JSONPath:       c.Storage.JSONPath,
		SQLitePath:     c.Storage.SQLitePath,
		PostgresURL:    c.Storage.PostgresURL,
		RedisAddr:      c.Storage.RedisAddr,
		RedisPassword:  c.Storage.RedisPassword,
		RedisDB:        c.Storage.RedisDB,
		RedisNamespace: c.Storage.RedisNamespace,
		QuotaBytes:     c.QuotaBytes,
	}
}

// env looks variables up in the process environment first and the
// project's .env file second. Empty values count as unset. The process
// environment is never modified.
type env struct {
	dotenv map[string]string
}

func newEnv(projectDir string) (env, error) {
	path := filepath.Join(projectDir, ".env")
	if _, err := os.Stat(path); err != nil {
		return env{}, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return env{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return env{dotenv: vars}, nil
}

func (e env) lookup(key string) (string, bool) {
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	v := e.dotenv[key]
	return v, v != ""
}

func (e env) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func (e env) integer(key string, dst *int) error {
	v, ok := e.lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}
