package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JamesPrial/visual-calendar/internal/config"
	"github.com/JamesPrial/visual-calendar/internal/storage"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

var allEnv = []string{
	config.EnvConfigFile, config.EnvBackend, config.EnvJSONPath, config.EnvSQLitePath,
	config.EnvPostgresURL, config.EnvRedisAddr, config.EnvRedisPassword, config.EnvRedisDB,
	config.EnvRedisNamespace, config.EnvQuota, config.EnvRetention, config.EnvLogDir,
	config.EnvSnapshots, config.EnvChromePath, config.EnvDebug,
}

// isolate blanks every variable Load reads. Empty values count as unset.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range allEnv {
		t.Setenv(key, "")
	}
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustLoad(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func Test_Load_Defaults(t *testing.T) {
	dir := isolate(t)
	cfg := mustLoad(t, dir)

	if cfg.Storage.Backend != storage.BackendJSON {
		t.Errorf("Backend = %q, want json", cfg.Storage.Backend)
	}
	if want := filepath.Join(dir, ".calendar", "calendars.json"); cfg.Storage.JSONPath != want {
		t.Errorf("JSONPath = %q, want %q", cfg.Storage.JSONPath, want)
	}
	if want := filepath.Join(dir, ".calendar", "calendars.db"); cfg.Storage.SQLitePath != want {
		t.Errorf("SQLitePath = %q, want %q", cfg.Storage.SQLitePath, want)
	}
	if want := filepath.Join(dir, ".calendar", "logs"); cfg.LogDir != want {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, want)
	}
	if cfg.QuotaBytes != 5<<20 {
		t.Errorf("QuotaBytes = %d, want %d", cfg.QuotaBytes, 5<<20)
	}
	if cfg.Retention != config.DefaultRetention {
		t.Errorf("Retention = %d, want %d", cfg.Retention, config.DefaultRetention)
	}
	if cfg.Debug || cfg.Snapshot.Enabled {
		t.Errorf("Debug/Snapshots enabled by default: %+v", cfg)
	}
}

func Test_Load_YAMLFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, config.DefaultConfigFile), `
storage:
  backend: SQLite
  sqlite_path: data/cal.db
  quota: 2 MB
retention: 3
debug: true
snapshot:
  enabled: true
  timeout: 5s
`)
	cfg := mustLoad(t, dir)

	if cfg.Storage.Backend != storage.BackendSQLite {
		t.Errorf("Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if want := filepath.Join(dir, "data", "cal.db"); cfg.Storage.SQLitePath != want {
		t.Errorf("SQLitePath = %q, want %q", cfg.Storage.SQLitePath, want)
	}
	if cfg.QuotaBytes != 2_000_000 {
		t.Errorf("QuotaBytes = %d, want 2000000", cfg.QuotaBytes)
	}
	if cfg.Retention != 3 || !cfg.Debug {
		t.Errorf("Retention/Debug = %d/%v, want 3/true", cfg.Retention, cfg.Debug)
	}
	if !cfg.Snapshot.Enabled || cfg.Snapshot.Timeout != 5*time.Second {
		t.Errorf("Snapshot = %+v, want enabled with 5s timeout", cfg.Snapshot)
	}
}

func Test_Load_Precedence(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "custom.yaml"), "storage:\n  backend: sqlite\n  redis_namespace: from-yaml\nretention: 2\n")
	writeFile(t, filepath.Join(dir, ".env"), strings.Join([]string{
		config.EnvConfigFile + "=custom.yaml",
		config.EnvBackend + "=redis",
		config.EnvRedisAddr + "=localhost:6379",
		config.EnvRetention + "=4",
	}, "\n"))
	t.Setenv(config.EnvRetention, "7")
	t.Setenv(config.EnvDebug, "1")

	cfg := mustLoad(t, dir)

	if cfg.Storage.Backend != storage.BackendRedis {
		t.Errorf("Backend = %q, want .env value redis", cfg.Storage.Backend)
	}
	if cfg.Storage.RedisNamespace != "from-yaml" {
		t.Errorf("RedisNamespace = %q, want yaml value", cfg.Storage.RedisNamespace)
	}
	if cfg.Retention != 7 {
		t.Errorf("Retention = %d, want process env value 7", cfg.Retention)
	}
	if !cfg.Debug {
		t.Error("DEBUG=1 did not enable debug")
	}
	if _, set := os.LookupEnv(config.EnvRedisAddr); set && os.Getenv(config.EnvRedisAddr) != "" {
		t.Error(".env values leaked into the process environment")
	}
}

func Test_Load_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		file    string
		wantErr string
	}{
		{name: "missing explicit config file", env: map[string]string{config.EnvConfigFile: "nope.yaml"}, wantErr: "config file"},
		{name: "config file outside project", env: map[string]string{config.EnvConfigFile: "../x.yaml"}, wantErr: "config file path"},
		{name: "malformed yaml", file: "storage: [unclosed", wantErr: "parse config"},
		{name: "store path escapes project", env: map[string]string{config.EnvJSONPath: "../../calendars.json"}, wantErr: "json store path"},
		{name: "sqlite path escapes project", env: map[string]string{config.EnvSQLitePath: "/etc/cal.db"}, wantErr: "sqlite database path"},
		{name: "bad quota", env: map[string]string{config.EnvQuota: "lots"}, wantErr: "invalid quota"},
		{name: "bad retention", env: map[string]string{config.EnvRetention: "five"}, wantErr: config.EnvRetention},
		{name: "zero retention", env: map[string]string{config.EnvRetention: "0"}, wantErr: "retention"},
		{name: "bad snapshots flag", env: map[string]string{config.EnvSnapshots: "sometimes"}, wantErr: config.EnvSnapshots},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.file != "" {
				writeFile(t, filepath.Join(dir, config.DefaultConfigFile), tt.file)
			}
			_, err := config.Load(dir)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func Test_Load_EmptyProjectDir(t *testing.T) {
	if _, err := config.Load("  "); err == nil {
		t.Error("Load(blank): want error")
	}
}

func Test_Load_UnlimitedQuota(t *testing.T) {
	dir := isolate(t)
	t.Setenv(config.EnvQuota, "0")
	if cfg := mustLoad(t, dir); cfg.QuotaBytes != 0 {
		t.Errorf("QuotaBytes = %d, want 0", cfg.QuotaBytes)
	}
}

// ---------------------------------------------------------------------------
// StorageOptions
// ---------------------------------------------------------------------------

func Test_StorageOptions_OpensEngine(t *testing.T) {
	dir := isolate(t)
	t.Setenv(config.EnvQuota, "64KiB")
	cfg := mustLoad(t, dir)

	opts := cfg.StorageOptions()
	if opts.QuotaBytes != 64*1024 || opts.JSONPath != cfg.Storage.JSONPath {
		t.Fatalf("StorageOptions = %+v", opts)
	}

	engine, err := storage.Open(t.Context(), opts)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer func() { _ = engine.Close() }()
	if engine.Quota() != 64*1024 {
		t.Errorf("engine quota = %d, want %d", engine.Quota(), 64*1024)
	}
}
