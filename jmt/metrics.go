package jmt

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK    = "ok"
	resultError = "error"

	sourceCache  = "cache"
	sourceEngine = "engine"

	lookupFound     = "found"
	lookupTombstone = "tombstone"
	lookupMissing   = "missing"
)

type storeMetrics struct {
	nodeReads     *prometheus.CounterVec // source=cache|engine
	nodeMisses    prometheus.Counter
	valueReads    *prometheus.CounterVec // result=found|tombstone|missing
	preimageReads *prometheus.CounterVec // result=found|missing
	batchCommits  *prometheus.CounterVec // result=ok|error
	batchEntries  prometheus.Counter
	batchBytes    prometheus.Counter
	corruptions   prometheus.Counter
}

func newStoreMetrics(namespace string) *storeMetrics {
	if namespace == "" {
		namespace = "jmtstore"
	}
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: namespace, Subsystem: "store", Name: name, Help: help}
	}
	return &storeMetrics{
		nodeReads:     prometheus.NewCounterVec(opts("node_reads_total", "Nodes served, by source."), []string{"source"}),
		nodeMisses:    prometheus.NewCounter(opts("node_misses_total", "Node lookups that found nothing.")),
		valueReads:    prometheus.NewCounterVec(opts("value_reads_total", "Versioned value lookups, by result."), []string{"result"}),
		preimageReads: prometheus.NewCounterVec(opts("preimage_reads_total", "Preimage lookups, by result."), []string{"result"}),
		batchCommits:  prometheus.NewCounterVec(opts("batch_commits_total", "Atomic batch commits, by result."), []string{"result"}),
		batchEntries:  prometheus.NewCounter(opts("batch_entries_total", "Key-value pairs committed.")),
		batchBytes:    prometheus.NewCounter(opts("batch_bytes_total", "Key and value bytes committed.")),
		corruptions:   prometheus.NewCounter(opts("corruptions_total", "Stored records that failed to decode.")),
	}
}

// RegisterMetrics registers the store's collectors on reg. When reg already holds an
// identical collector, typically from another store with the same namespace, the store
// switches to it so both count into the exported series. Counts taken before the switch
// are not carried over, so call it before the store serves traffic.
func (s *Store) RegisterMetrics(reg prometheus.Registerer) error {
	m := s.metrics
	return errors.Join(
		register(reg, &m.nodeReads),
		register(reg, &m.nodeMisses),
		register(reg, &m.valueReads),
		register(reg, &m.preimageReads),
		register(reg, &m.batchCommits),
		register(reg, &m.batchEntries),
		register(reg, &m.batchBytes),
		register(reg, &m.corruptions),
	)
}

// register adopts the collector reg already holds for *c, if any.
func register[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			*c = existing
			return nil
		}
	}
	return err
}
