package jmt

import (
	"fmt"

	"jmtstore/kv"
)

// GetValue returns the entry for kh with the largest version <= maxVersion.
//
// ErrValueNotFound means kh has no entry at or below maxVersion. A key deleted at or
// below maxVersion returns its tombstone (Deleted set, Payload nil) and a nil error, so
// callers can tell "never written" from "explicitly deleted".
//
// The lookup is one bounded reverse scan over kh's own versions: its cost depends on the
// history of kh, not on the size of the store.
func (s *Store) GetValue(kh KeyHash, maxVersion Version) (ValueEntry, error) {
	var (
		entry ValueEntry
		found bool
	)
	err := s.db.Iterate(EncodeValueKey(kh, 0), valueUpperBound(kh, maxVersion), true, func(key, value []byte) error {
		storedKH, version, err := DecodeValueKey(key)
		if err != nil {
			s.reportCorruption("value key", key, err)
			return err
		}
		if storedKH != kh || version > maxVersion {
			err := fmt.Errorf("%w: scan for %s@%d returned %s@%d", ErrCorruption, kh, maxVersion, storedKH, version)
			s.reportCorruption("value key", key, err)
			return err
		}
		payload, deleted, err := decodeValue(value)
		if err != nil {
			s.reportCorruption("value record", key, err)
			return fmt.Errorf("value %s@%d: %w", kh, version, err)
		}
		entry = ValueEntry{KeyHash: kh, Version: version, Payload: payload, Deleted: deleted}
		found = true
		return kv.ErrStop
	})
	if err != nil {
		return ValueEntry{}, fmt.Errorf("get value %s@%d: %w", kh, maxVersion, err)
	}
	switch {
	case !found:
		s.metrics.valueReads.WithLabelValues(lookupMissing).Inc()
		return ValueEntry{}, fmt.Errorf("%w: %s at or before version %d", ErrValueNotFound, kh, maxVersion)
	case entry.Deleted:
		s.metrics.valueReads.WithLabelValues(lookupTombstone).Inc()
	default:
		s.metrics.valueReads.WithLabelValues(lookupFound).Inc()
	}
	return entry, nil
}

// GetValueVersions lists every version at which kh was written or deleted, ascending.
func (s *Store) GetValueVersions(kh KeyHash) ([]Version, error) {
	var versions []Version
	prefix := valuePrefix(kh)
	err := s.db.Iterate(prefix, kv.PrefixUpperBound(prefix), false, func(key, _ []byte) error {
		_, version, err := DecodeValueKey(key)
		if err != nil {
			s.reportCorruption("value key", key, err)
			return err
		}
		versions = append(versions, version)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("value versions %s: %w", kh, err)
	}
	return versions, nil
}

// GetLatestVersion returns the newest version with an entry for kh, tombstones included.
func (s *Store) GetLatestVersion(kh KeyHash) (Version, error) {
	entry, err := s.GetValue(kh, ^Version(0))
	if err != nil {
		return 0, err
	}
	return entry.Version, nil
}
