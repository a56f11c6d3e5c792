package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine.Backend != BackendPebble {
		t.Errorf("Engine.Backend = %q, want %q", cfg.Engine.Backend, BackendPebble)
	}
	if !cfg.Engine.SyncWrites {
		t.Error("SyncWrites should be true by default")
	}
	if cfg.Engine.Badger.ValueLogFileSize != 64<<20 {
		t.Errorf("Badger.ValueLogFileSize = %d, want %d", cfg.Engine.Badger.ValueLogFileSize, 64<<20)
	}
	if cfg.Cache.NodeCacheSize != 10000 {
		t.Errorf("Cache.NodeCacheSize = %d, want 10000", cfg.Cache.NodeCacheSize)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"memory", func(c *Config) { c.Engine.Backend = BackendMemory }, false},
		{"badger on disk", func(c *Config) { c.Engine.Backend = BackendBadger; c.Engine.Path = "/tmp/x" }, false},
		{"empty backend", func(c *Config) { c.Engine.Backend = "" }, true},
		{"unknown backend", func(c *Config) { c.Engine.Backend = "rocksdb" }, true},
		{"memory with path", func(c *Config) { c.Engine.Backend = BackendMemory; c.Engine.Path = "/tmp/x" }, true},
		{"read-only in memory", func(c *Config) { c.Engine.ReadOnly = true }, true},
		{"negative cache", func(c *Config) { c.Cache.NodeCacheSize = -1 }, true},
		{"negative badger", func(c *Config) { c.Engine.Badger.NumMemtables = -1 }, true},
		{"negative badger vlog", func(c *Config) { c.Engine.Badger.ValueLogFileSize = -1 }, true},
		{"negative pebble files", func(c *Config) { c.Engine.Pebble.MaxOpenFiles = -5 }, true},
		{"negative leveldb cache", func(c *Config) { c.Engine.LevelDB.BlockCacheCapacity = -1 }, true},
		{"negative leveldb buffer", func(c *Config) { c.Engine.LevelDB.WriteBuffer = -1 }, true},
		{"zero tuning uses engine defaults", func(c *Config) {
			c.Engine.Pebble.MaxOpenFiles = 0
			c.Engine.LevelDB.WriteBuffer = 0
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	data := `
engine:
  backend: leveldb
  path: /var/lib/jmt
  leveldb:
    block_cache_capacity: 1024
cache:
  node_cache_size: 0
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Engine.Backend != BackendLevelDB || cfg.Engine.Path != "/var/lib/jmt" {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Engine.LevelDB.BlockCacheCapacity != 1024 {
		t.Errorf("BlockCacheCapacity = %d, want 1024", cfg.Engine.LevelDB.BlockCacheCapacity)
	}
	// missing fields keep their defaults
	if cfg.Engine.LevelDB.WriteBuffer != 4<<20 {
		t.Errorf("WriteBuffer = %d, want default", cfg.Engine.LevelDB.WriteBuffer)
	}
	if !cfg.Engine.SyncWrites {
		t.Error("SyncWrites should keep its default")
	}
	if cfg.Cache.NodeCacheSize != 0 {
		t.Errorf("NodeCacheSize = %d, want 0", cfg.Cache.NodeCacheSize)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadFromFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("engine: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("malformed yaml should fail")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("engine:\n  backend: rocksdb\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(invalid); err == nil {
		t.Error("unknown backend should fail validation")
	}
}
