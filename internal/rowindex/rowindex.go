// Package rowindex implements the per-table secondary index manager of
// spec.md §4.6: a Hash-variant composite-key → ordinal map, persisted for
// durability by its own private MapShard independent of the row MapShard.
package rowindex

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/charmful0x/schema-js/internal/mapshard"
	"github.com/charmful0x/schema-js/internal/rowcodec"
	"github.com/charmful0x/schema-js/internal/schema"
)

// KeyPart is one (column_name, stringified_value) pair of a CompositeKey, in
// the order spec.md §4.6 requires: index.member order.
type KeyPart struct {
	Column string
	Value  string
}

// ToKey produces the stable byte encoding spec.md §4.6 requires: equal
// CompositeKeys (same parts, same order) always encode to equal bytes.
// Exposed standalone so the query planner builds identical keys to the ones
// Put stored under.
func ToKey(parts []KeyPart) []byte {
	var out []byte
	for _, p := range parts {
		out = appendLenPrefixed(out, p.Column)
		out = appendLenPrefixed(out, p.Value)
	}
	return out
}

func appendLenPrefixed(dst []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	dst = append(dst, lenBuf[:]...)
	dst = append(dst, s...)
	return dst
}

// Coerce renders a document field value in its canonical textual form per
// spec.md §4.6: booleans become "true"/"false", strings pass through
// unchanged, float64 values use their shortest decimal form ("42", "1.5").
// nil and any other type render as "".
func Coerce(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return ""
	}
}

// KeyPartsFor builds the CompositeKey for idx from a decoded row, in
// index.Members order.
func KeyPartsFor(idx schema.Index, row rowcodec.Row) []KeyPart {
	parts := make([]KeyPart, len(idx.Members))
	for i, col := range idx.Members {
		v, _ := row.Field(col)
		parts[i] = KeyPart{Column: col, Value: Coerce(v)}
	}
	return parts
}

// entry is one persisted (key, ordinal) pair, and is also what backs the
// manager's private MapShard so the index can be rebuilt from that shard
// alone on restart.
type entry struct {
	key     []byte
	ordinal uint64
}

func encodeEntry(key []byte, ordinal uint64) []byte {
	var ordBuf [8]byte
	binary.LittleEndian.PutUint64(ordBuf[:], ordinal)
	out := make([]byte, 0, 8+len(key))
	out = append(out, ordBuf[:]...)
	out = append(out, key...)
	return out
}

func decodeEntry(b []byte) entry {
	ordinal := binary.LittleEndian.Uint64(b[:8])
	key := make([]byte, len(b)-8)
	copy(key, b[8:])
	return entry{key: key, ordinal: ordinal}
}

// Manager holds one Hash index's in-memory map, persisted append-only to a
// private MapShard. Bucketing by xxhash keeps the in-memory structure a
// plain map[uint64][]entry instead of a tree, matching the teacher's
// compactindexsized bucket-by-hash approach (compactindex.go) without its
// fixed bucket-count tuning, since this index is expected to stay in memory
// for the process lifetime rather than be mmap-queried cold.
type Manager struct {
	mu      sync.RWMutex
	name    string
	store   *mapshard.MapShard
	buckets map[uint64][]entry
}

// Open loads (or creates) the private MapShard backing the named index under
// dir, and replays its entries to rebuild the in-memory map.
func Open(dir, name string) (*Manager, error) {
	store, err := mapshard.Open(mapshard.Config{
		Dir:    dir,
		Prefix: "idx_",
	})
	if err != nil {
		return nil, fmt.Errorf("rowindex: open store for index %q: %w", name, err)
	}
	m := &Manager{name: name, store: store, buckets: make(map[uint64][]entry)}
	if err := m.replay(); err != nil {
		store.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manager) replay() error {
	n := m.store.Len()
	for i := uint64(0); i < n; i++ {
		b, err := m.store.GetElement(i)
		if err != nil {
			return fmt.Errorf("rowindex: replay index %q entry %d: %w", m.name, i, err)
		}
		e := decodeEntry(b)
		m.applyLocked(e)
	}
	return nil
}

func bucketOf(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// applyLocked enforces last-write-wins within one bucket: an existing entry
// with the same key is replaced, not appended beside.
func (m *Manager) applyLocked(e entry) {
	bucket := bucketOf(e.key)
	slot := m.buckets[bucket]
	for i, existing := range slot {
		if string(existing.key) == string(e.key) {
			slot[i] = e
			return
		}
	}
	m.buckets[bucket] = append(slot, e)
}

// Put records ordinal as the current match for key, last-write-wins on
// collision (spec.md §4.6 Hash index invariant). Persisted to the private
// MapShard before the in-memory map is updated so a crash between the two
// never loses a durable write without the in-memory state matching it on
// replay.
func (m *Manager) Put(key []byte, ordinal uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.store.Append(encodeEntry(key, ordinal)); err != nil {
		return fmt.Errorf("rowindex: put into index %q: %w", m.name, err)
	}
	m.applyLocked(entry{key: key, ordinal: ordinal})
	return nil
}

// Get returns the latest ordinal stored under key, if any.
func (m *Manager) Get(key []byte) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.buckets[bucketOf(key)] {
		if string(e.key) == string(key) {
			return e.ordinal, true
		}
	}
	return 0, false
}

// Close releases the private MapShard's file handles.
func (m *Manager) Close() error {
	return m.store.Close()
}

// Table owns one Manager per declared Index of a schema.Table, keyed by
// index name.
type Table struct {
	managers map[string]*Manager
}

// OpenTable opens (or creates) one private index store per index declared on
// tbl, each under its own subdirectory of dir named after the index.
func OpenTable(dir string, tbl *schema.Table) (*Table, error) {
	t := &Table{managers: make(map[string]*Manager, len(tbl.Indexes))}
	for _, idx := range tbl.Indexes {
		mgr, err := Open(indexDir(dir, idx.Name), idx.Name)
		if err != nil {
			return nil, err
		}
		t.managers[idx.Name] = mgr
	}
	return t, nil
}

func indexDir(dir, indexName string) string {
	return dir + "/index/" + indexName
}

// IndexAll applies one row's contribution to every index declared on tbl,
// called once per row migrated out of a TempMapShard during reconciliation
// (spec.md §4.6 "index upkeep is driven by reconciliation").
func (t *Table) IndexAll(tbl *schema.Table, row rowcodec.Row, ordinal uint64) error {
	for _, idx := range tbl.Indexes {
		mgr, ok := t.managers[idx.Name]
		if !ok {
			continue
		}
		key := ToKey(KeyPartsFor(idx, row))
		if err := mgr.Put(key, ordinal); err != nil {
			return err
		}
	}
	return nil
}

// Lookup resolves a single index by name.
func (t *Table) Lookup(indexName string) (*Manager, bool) {
	mgr, ok := t.managers[indexName]
	return mgr, ok
}

// IndexForMembers returns the declared index (and its Manager) whose member
// list, order-insensitively, exactly equals members — used by the planner's
// coverage test.
func (t *Table) IndexForMembers(tbl *schema.Table, members []string) (schema.Index, *Manager, bool) {
	want := append([]string(nil), members...)
	sort.Strings(want)
	for _, idx := range tbl.Indexes {
		have := append([]string(nil), idx.Members...)
		sort.Strings(have)
		if len(have) != len(want) {
			continue
		}
		match := true
		for i := range have {
			if have[i] != want[i] {
				match = false
				break
			}
		}
		if match {
			mgr := t.managers[idx.Name]
			return idx, mgr, true
		}
	}
	return schema.Index{}, nil, false
}

// Close releases every index's private MapShard.
func (t *Table) Close() error {
	var firstErr error
	for _, mgr := range t.managers {
		if err := mgr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
