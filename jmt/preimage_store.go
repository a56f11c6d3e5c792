package jmt

import (
	"bytes"
	"fmt"

	"jmtstore/kv"
)

// GetPreimage returns the original bytes behind kh, or ErrPreimageNotFound.
func (s *Store) GetPreimage(kh KeyHash) ([]byte, error) {
	raw, err := s.db.Get(EncodePreimageKey(kh))
	if err != nil {
		if isNotFound(err, ErrPreimageNotFound) {
			s.metrics.preimageReads.WithLabelValues(lookupMissing).Inc()
			return nil, fmt.Errorf("%w: %s", ErrPreimageNotFound, kh)
		}
		return nil, fmt.Errorf("get preimage %s: %w", kh, err)
	}
	s.metrics.preimageReads.WithLabelValues(lookupFound).Inc()
	return raw, nil
}

// WritePreimage stores raw as the preimage of kh. Writing the same bytes again is a
// no-op; different bytes for a stored hash fail with ErrIntegrityViolation and the
// stored bytes are kept.
//
// The check and the write are not one transaction; like every other write it relies on
// the caller's single writer stream.
func (s *Store) WritePreimage(kh KeyHash, raw []byte) error {
	existing, err := s.GetPreimage(kh)
	switch {
	case err == nil:
		if bytes.Equal(existing, raw) {
			return nil
		}
		s.log.Warn("preimage conflict for %s: stored %d bytes, got %d", kh, len(existing), len(raw))
		return fmt.Errorf("%w: preimage for %s already stored with different bytes", ErrIntegrityViolation, kh)
	case isNotFound(err, ErrPreimageNotFound):
	default:
		return err
	}
	b := kv.NewBatch()
	b.Put(EncodePreimageKey(kh), raw)
	if err := s.db.Write(b); err != nil {
		return fmt.Errorf("write preimage %s: %w", kh, err)
	}
	return nil
}
