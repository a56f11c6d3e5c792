package kv

import (
	"errors"
	"fmt"

	"jmtstore/config"
)

// ErrNotFound is returned by Engine.Get when the key is absent.
var ErrNotFound = errors.New("kv key not found")

// ErrStop may be returned from an Iterate callback to end the scan early without error.
var ErrStop = errors.New("kv iteration stopped")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("kv engine closed")

// Engine is an ordered byte-string key-value store with atomic batched writes.
//
// Iteration order is byte-lexicographic ascending (or descending when reverse is set).
// Keys and values handed to callbacks are copies and may be retained.
type Engine interface {
	// Get returns ErrNotFound when key is absent.
	Get(key []byte) ([]byte, error)
	// Iterate visits every key in [lower, upper). A nil bound is unbounded on that side.
	Iterate(lower, upper []byte, reverse bool, fn func(key, value []byte) error) error
	// Write applies every put in b, or none of them.
	Write(b *Batch) error
	Close() error
}

// Open builds the engine selected by cfg.Backend.
func Open(cfg config.EngineConfig) (Engine, error) {
	switch cfg.Backend {
	case config.BackendBadger:
		return OpenBadger(cfg)
	case config.BackendPebble, "":
		return OpenPebble(cfg)
	case config.BackendLevelDB:
		return OpenLevelDB(cfg)
	case config.BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown kv backend %q", cfg.Backend)
}

// PrefixUpperBound returns the smallest key greater than every key with the given prefix,
// or nil when no such key exists (prefix is all 0xff).
func PrefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}

func stopped(err error) error {
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}
