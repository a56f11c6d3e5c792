package jmt

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"jmtstore/config"
	"jmtstore/kv"
	"jmtstore/logs"
)

// Store persists JMT nodes, versioned values and preimages on an ordered kv.Engine.
//
// Store keeps no locks of its own: concurrent readers and a single writer stream are
// safe as far as the engine handle is. Callers serialize tree updates so that two
// updates never claim the same version.
type Store struct {
	db      kv.Engine
	ownsDB  bool
	log     *logs.Logger
	metrics *storeMetrics

	// encoded node bytes by encoded node key; nodes are immutable, so entries never go stale
	nodeCache *lru.Cache[string, []byte]
}

// NewStore wraps an already opened engine. cfg may be nil for defaults.
// The engine is not closed by Store.Close.
func NewStore(db kv.Engine, cfg *config.Config) (*Store, error) {
	if db == nil {
		return nil, errors.New("jmt: nil engine")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Store{
		db:      db,
		log:     logs.Component("jmt"),
		metrics: newStoreMetrics(cfg.Metrics.Namespace),
	}
	if cfg.Cache.NodeCacheSize > 0 {
		cache, err := lru.New[string, []byte](cfg.Cache.NodeCacheSize)
		if err != nil {
			return nil, fmt.Errorf("node cache: %w", err)
		}
		s.nodeCache = cache
	}
	if cfg.Metrics.Enabled {
		if err := s.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// OpenStore opens the engine described by cfg and wraps it. Close closes the engine.
func OpenStore(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lvl, err := logs.ParseLevel(cfg.Log.Level); err == nil {
		logs.SetLevel(lvl)
	}
	db, err := kv.Open(cfg.Engine)
	if err != nil {
		return nil, err
	}
	s, err := NewStore(db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	s.log.Info("opened %s store at %q (node cache %d)", cfg.Engine.Backend, cfg.Engine.Path, cfg.Cache.NodeCacheSize)
	return s, nil
}

// Engine exposes the underlying engine for diagnostics.
func (s *Store) Engine() kv.Engine {
	return s.db
}

func (s *Store) Close() error {
	if s.nodeCache != nil {
		s.nodeCache.Purge()
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *Store) cacheNode(key, encoded []byte) {
	if s.nodeCache != nil {
		s.nodeCache.Add(string(key), encoded)
	}
}

func (s *Store) cachedNode(key []byte) ([]byte, bool) {
	if s.nodeCache == nil {
		return nil, false
	}
	return s.nodeCache.Get(string(key))
}

func (s *Store) reportCorruption(what string, key []byte, err error) {
	s.metrics.corruptions.Inc()
	s.log.Error("corrupted %s at key %x: %v", what, key, err)
}

func isNotFound(err, sentinel error) bool {
	return errors.Is(err, sentinel) || errors.Is(err, kv.ErrNotFound)
}
