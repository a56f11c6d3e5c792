// config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// kv.Open 支持的存储引擎
const (
	BackendPebble  = "pebble"
	BackendBadger  = "badger"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// Config 主配置结构
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig 有序 KV 引擎的选择与调优
type EngineConfig struct {
	Backend    string `yaml:"backend"`     // "pebble"
	Path       string `yaml:"path"`        // "" => 内存模式（后端支持时）
	ReadOnly   bool   `yaml:"read_only"`   // false
	SyncWrites bool   `yaml:"sync_writes"` // true

	Badger  BadgerConfig  `yaml:"badger"`
	Pebble  PebbleConfig  `yaml:"pebble"`
	LevelDB LevelDBConfig `yaml:"leveldb"`
}

// BadgerConfig BadgerDB 调优参数
type BadgerConfig struct {
	ValueLogFileSize int64 `yaml:"value_log_file_size"` // 64 << 20 (64MB)
	NumMemtables     int   `yaml:"num_memtables"`       // 5
}

// PebbleConfig Pebble 调优参数
type PebbleConfig struct {
	MaxOpenFiles int `yaml:"max_open_files"` // 500
}

// LevelDBConfig goleveldb 调优参数
type LevelDBConfig struct {
	BlockCacheCapacity int `yaml:"block_cache_capacity"` // 8 << 20 (8MB)
	WriteBuffer        int `yaml:"write_buffer"`         // 4 << 20 (4MB)
}

// CacheConfig 节点缓存配置
type CacheConfig struct {
	// NodeCacheSize LRU 中缓存的编码节点数，0 表示关闭缓存
	NodeCacheSize int `yaml:"node_cache_size"` // 10000
}

// MetricsConfig prometheus 指标配置
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`   // false
	Namespace string `yaml:"namespace"` // "jmtstore"
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"` // "info"
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Backend:    BackendPebble,
			SyncWrites: true,
			Badger: BadgerConfig{
				ValueLogFileSize: 64 << 20,
				NumMemtables:     5,
			},
			Pebble: PebbleConfig{
				MaxOpenFiles: 500,
			},
			LevelDB: LevelDBConfig{
				BlockCacheCapacity: 8 << 20,
				WriteBuffer:        4 << 20,
			},
		},
		Cache: CacheConfig{
			NodeCacheSize: 10000,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "jmtstore",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile 从 YAML 文件加载配置，文件中未出现的字段保留默认值
func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 验证配置合法性
func (c *Config) Validate() error {
	switch c.Engine.Backend {
	case BackendPebble, BackendBadger, BackendLevelDB, BackendMemory:
	case "":
		return fmt.Errorf("engine backend must be set")
	default:
		return fmt.Errorf("unknown engine backend %q", c.Engine.Backend)
	}
	if c.Engine.Backend == BackendMemory && c.Engine.Path != "" {
		return fmt.Errorf("memory backend does not take a path (got %q)", c.Engine.Path)
	}
	if c.Engine.ReadOnly && c.Engine.Path == "" {
		return fmt.Errorf("read-only mode requires an on-disk path")
	}
	if c.Cache.NodeCacheSize < 0 {
		return fmt.Errorf("NodeCacheSize must not be negative")
	}
	if c.Engine.Badger.ValueLogFileSize < 0 || c.Engine.Badger.NumMemtables < 0 {
		return fmt.Errorf("badger tuning values must not be negative")
	}
	if c.Engine.Pebble.MaxOpenFiles < 0 {
		return fmt.Errorf("pebble MaxOpenFiles must not be negative")
	}
	if c.Engine.LevelDB.BlockCacheCapacity < 0 || c.Engine.LevelDB.WriteBuffer < 0 {
		return fmt.Errorf("leveldb tuning values must not be negative")
	}
	return nil
}
