// Package tempshard implements TempMapShard: a bounded-capacity staging
// layer that lets writers append records without paying the cost of
// extending the primary MapShard's trailer on every call, and a
// reconciliation routine that drains staged records into the primary
// MapShard in FIFO order.
package tempshard

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/charmful0x/schema-js/internal/mapshard"
	"github.com/charmful0x/schema-js/internal/shardfile"
)

// maxConcurrentDrainReads bounds how many records of one temp shard are read
// concurrently while preparing a drain batch; the records themselves still
// land in the parent MapShard in order via AppendBatch.
const maxConcurrentDrainReads = 8

// DefaultPrefix is the filename prefix spec.md §6 assigns to staging shards.
const DefaultPrefix = "datatemp-"

const seqWidth = 6

// Capacity bounds how many records a single temp shard may hold before a
// new one is started. The zero value is not valid; use Custom or Unlimited.
type Capacity struct {
	unlimited bool
	n         uint64
}

// Unlimited allows a temp shard to grow without a record-count bound.
func Unlimited() Capacity { return Capacity{unlimited: true} }

// Custom bounds a temp shard to n records.
func Custom(n uint64) Capacity { return Capacity{n: n} }

// DefaultCapacity is the 1000-record-per-shard default named in spec.md §4.3.
var DefaultCapacity = Custom(1000)

func (c Capacity) reached(count uint64) bool {
	if c.unlimited {
		return false
	}
	return count >= c.n
}

// OnReconciled is invoked once per migrated record, in the order records
// were appended, with the raw record bytes and the ordinal they were
// finally assigned in the parent MapShard. Callers use this to update
// secondary indexes.
type OnReconciled func(record []byte, ordinal uint64) error

// TempMapShard stages writes in a sequence of capacity-bounded Shards and
// drains them into a parent MapShard on ReconcileAll.
type TempMapShard struct {
	mu       sync.Mutex
	dir      string
	prefix   string
	capacity Capacity
	parent   *mapshard.MapShard

	shards []*shardfile.Shard // creation order; shards[len-1] is active
	seq    int
}

// Open discovers any existing staging shards under dir (e.g. left over from
// a prior process that exited before reconciling) and prepares to accept
// new inserts against them.
func Open(dir, prefix string, capacity Capacity, parent *mapshard.MapShard) (*TempMapShard, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tempshard: create dir %s: %w", dir, err)
	}
	seqs, err := discoverSeqs(dir, prefix)
	if err != nil {
		return nil, err
	}
	t := &TempMapShard{dir: dir, prefix: prefix, capacity: capacity, parent: parent}
	for _, seq := range seqs {
		s, err := shardfile.Open(pathFor(dir, prefix, seq))
		if err != nil {
			return nil, err
		}
		t.shards = append(t.shards, s)
		if seq >= t.seq {
			t.seq = seq + 1
		}
	}
	return t, nil
}

func discoverSeqs(dir, prefix string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("tempshard: read dir %s: %w", dir, err)
	}
	var seqs []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".lock") || !strings.HasPrefix(name, prefix) {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	return seqs, nil
}

func pathFor(dir, prefix string, seq int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%0*d", prefix, seqWidth, seq))
}

// activeShard returns the current temp shard, opening the first one if none
// exists yet. Held only long enough to read/mutate the shard list.
func (t *TempMapShard) activeShard() (*shardfile.Shard, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.shards) == 0 {
		return t.openNewActiveLocked()
	}
	return t.shards[len(t.shards)-1], nil
}

func (t *TempMapShard) openNewActiveLocked() (*shardfile.Shard, error) {
	s, err := shardfile.Open(pathFor(t.dir, t.prefix, t.seq))
	if err != nil {
		return nil, err
	}
	t.seq++
	t.shards = append(t.shards, s)
	return s, nil
}

// InsertRow appends record to the active temp shard. It does not return an
// ordinal: the record's final ordinal is only defined once ReconcileAll has
// migrated it into the parent MapShard.
//
// NOTE: a writer that obtains the active shard just before a concurrent
// ReconcileAll forces a rollover may still append to a shard that is
// already queued for draining. Per spec.md §7 this kind of at-least-once /
// best-effort edge case is explicitly permitted; callers that need strict
// exclusion should serialize their own inserts against reconciliation.
func (t *TempMapShard) InsertRow(record []byte) error {
	active, err := t.activeShard()
	if err != nil {
		return err
	}
	ordinal, err := active.Append(record)
	if err != nil {
		return err
	}
	if t.capacity.reached(ordinal + 1) {
		t.mu.Lock()
		if len(t.shards) > 0 && t.shards[len(t.shards)-1] == active {
			if _, err := t.openNewActiveLocked(); err != nil {
				t.mu.Unlock()
				return err
			}
		}
		t.mu.Unlock()
	}
	return nil
}

// ReconcileAll drains every temp shard into the parent MapShard in creation
// order, invoking onRecord for each migrated record with its final ordinal,
// then deletes the drained temp shard's file. A new active shard is opened
// first so that concurrent InsertRow calls land in a shard that will not be
// part of this drain.
func (t *TempMapShard) ReconcileAll(onRecord OnReconciled) error {
	t.mu.Lock()
	toDrain := t.shards
	t.shards = nil
	if _, err := t.openNewActiveLocked(); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	for _, shard := range toDrain {
		if err := t.drainOne(shard, onRecord); err != nil {
			return fmt.Errorf("tempshard: reconcile %s: %w", shard.Path(), err)
		}
	}
	return nil
}

// drainOne migrates one temp shard's records into the parent MapShard under
// a single exclusive lease (via AppendBatch), then deletes the temp file.
func (t *TempMapShard) drainOne(shard *shardfile.Shard, onRecord OnReconciled) error {
	n := shard.Len()
	if n == 0 {
		return shard.Remove()
	}
	records := make([][]byte, n)
	var g errgroup.Group
	g.SetLimit(maxConcurrentDrainReads)
	for i := uint64(0); i < n; i++ {
		i := i
		g.Go(func() error {
			rec, err := shard.Get(i)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ordinals, err := t.parent.AppendBatch(records)
	if err != nil {
		return err
	}
	for i, rec := range records {
		if onRecord != nil {
			if err := onRecord(rec, ordinals[i]); err != nil {
				return err
			}
		}
	}
	klog.V(2).Infof("tempshard: reconciled %d records from %s", n, shard.Path())
	return shard.Remove()
}

// Close releases all open temp shard file handles without deleting them.
func (t *TempMapShard) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, s := range t.shards {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
