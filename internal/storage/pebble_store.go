package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"
)

// tableSep separates a table prefix from its keys. It sorts below every
// printable byte a caller would use in a key, so a table's keyspace never
// bleeds into a neighboring table's.
const tableSep = 0x00

// PebbleStore is an embedded on-disk LSM-tree backed Storage, used for the
// engine's durable tables (models, positions, the order WAL).
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) a pebble database rooted at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("storage: open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func tableKey(table string, key []byte) []byte {
	out := make([]byte, 0, len(table)+1+len(key))
	out = append(out, []byte(table)...)
	out = append(out, tableSep)
	out = append(out, key...)
	return out
}

func tablePrefix(table string) []byte {
	out := make([]byte, 0, len(table)+1)
	out = append(out, []byte(table)...)
	out = append(out, tableSep)
	return out
}

// keyUpperBound returns the smallest key that sorts strictly after every
// key with the given prefix, for use as an IterOptions.UpperBound.
func keyUpperBound(prefix []byte) []byte {
	out := make([]byte, len(prefix))
	copy(out, prefix)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	// prefix was all 0xFF bytes: no finite upper bound, scan to the end.
	return nil
}

func (s *PebbleStore) EnsureTable(table string) error { return nil }

func (s *PebbleStore) Put(table string, key, value []byte) error {
	if err := s.db.Set(tableKey(table, key), value, pebble.Sync); err != nil {
		return fmt.Errorf("storage: put %s/%x: %w", table, key, err)
	}
	return nil
}

func (s *PebbleStore) Get(table string, key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(tableKey(table, key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %s/%x: %w", table, key, err)
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *PebbleStore) GetRange(table string, from, to []byte) ([]KeyValue, error) {
	prefix := tablePrefix(table)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: tableKey(table, from),
		UpperBound: tableKey(table, to),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: range %s: %w", table, err)
	}
	defer iter.Close()

	var out []KeyValue
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()[len(prefix):]
		kCopy := make([]byte, len(key))
		copy(kCopy, key)
		vCopy := make([]byte, len(iter.Value()))
		copy(vCopy, iter.Value())
		out = append(out, KeyValue{Key: kCopy, Value: vCopy})
	}
	return out, nil
}

func (s *PebbleStore) GetAll(table string) ([]KeyValue, error) {
	prefix := tablePrefix(table)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan %s: %w", table, err)
	}
	defer iter.Close()

	var out []KeyValue
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()[len(prefix):]
		kCopy := make([]byte, len(key))
		copy(kCopy, key)
		vCopy := make([]byte, len(iter.Value()))
		copy(vCopy, iter.Value())
		out = append(out, KeyValue{Key: kCopy, Value: vCopy})
	}
	return out, nil
}

func (s *PebbleStore) Delete(table string, key []byte) error {
	if err := s.db.Delete(tableKey(table, key), pebble.Sync); err != nil {
		return fmt.Errorf("storage: delete %s/%x: %w", table, key, err)
	}
	return nil
}

func (s *PebbleStore) DeleteRange(table string, from, to []byte) error {
	if err := s.db.DeleteRange(tableKey(table, from), tableKey(table, to), pebble.Sync); err != nil {
		return fmt.Errorf("storage: delete range %s: %w", table, err)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	return nil
}

var _ Storage = (*PebbleStore)(nil)
