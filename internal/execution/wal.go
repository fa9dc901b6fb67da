// Package execution implements the order manager: a transaction state
// machine over a compacted write-ahead log, reconciled against the
// exchange on startup.
package execution

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/atlas-desktop/trading-engine/internal/storage"
)

// walKeySep separates an order id from its nanosecond timestamp in a WAL
// key. Unlike a naive "<id>|<ts>" string, the timestamp here is
// zero-padded to a fixed width so that byte-sort order matches numeric
// (chronological) order; an unpadded decimal string would sort "10"
// before "9".
const walKeySep = "|"
const walTsWidth = 20

// WalCmp orders two values of the same record type so the WAL can decide
// which of two records for the same key is more recent.
type WalCmp[T any] interface {
	IsBefore(other T) bool
}

// Wal is an append-only, per-(record-id) write-ahead log. Every write is
// keyed "<id>|<zero-padded-nanos>", so all records for one id sort
// together and in time order within that id's range.
type Wal[T WalCmp[T]] struct {
	backend storage.Storage
	table   string
}

// NewWal ensures table exists and returns a log over it.
func NewWal[T WalCmp[T]](backend storage.Storage, table string) (*Wal[T], error) {
	if err := backend.EnsureTable(table); err != nil {
		return nil, fmt.Errorf("execution: ensure wal table %s: %w", table, err)
	}
	return &Wal[T]{backend: backend, table: table}, nil
}

func walKey(id string, nanos int64) []byte {
	return []byte(fmt.Sprintf("%s%s%0*d", id, walKeySep, walTsWidth, nanos))
}

func splitWalKey(key []byte) (id string, nanos int64, ok bool) {
	s := string(key)
	idx := strings.LastIndex(s, walKeySep)
	if idx < 0 {
		return "", 0, false
	}
	ts, err := strconv.ParseInt(s[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return s[:idx], ts, true
}

// AppendRaw writes t under id at the given nanosecond timestamp.
func (w *Wal[T]) AppendRaw(id string, nanos int64, t T) error {
	return storage.PutJSON(w.backend, w.table, walKey(id, nanos), t)
}

// GetAllCompacted scans the entire table and keeps, per id, only the
// is_before-maximal (most advanced) record.
func (w *Wal[T]) GetAllCompacted() (map[string]T, error) {
	kvs, err := w.backend.GetAll(w.table)
	if err != nil {
		return nil, fmt.Errorf("execution: scan wal %s: %w", w.table, err)
	}
	records := make(map[string]T)
	for _, kv := range kvs {
		id, _, ok := splitWalKey(kv.Key)
		if !ok {
			continue
		}
		var v T
		if err := json.Unmarshal(kv.Value, &v); err != nil {
			continue
		}
		if existing, present := records[id]; !present || existing.IsBefore(v) {
			records[id] = v
		}
	}
	return records, nil
}

// GetAllK returns every record written for id, in chronological order.
func (w *Wal[T]) GetAllK(id string) ([]T, error) {
	from := []byte(id + walKeySep)
	to := []byte(fmt.Sprintf("%s%s%0*d", id, walKeySep, walTsWidth, int64(1)<<62))
	// to is an exclusive upper bound; the fixed width guarantees it sorts
	// after every real timestamp written for this id.
	kvs, err := w.backend.GetRange(w.table, from, to)
	if err != nil {
		return nil, fmt.Errorf("execution: range wal %s/%s: %w", w.table, id, err)
	}
	out := make([]T, 0, len(kvs))
	for _, kv := range kvs {
		if !bytes.HasPrefix(kv.Key, from) {
			continue
		}
		var v T
		if err := json.Unmarshal(kv.Value, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
