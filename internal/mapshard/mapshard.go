// Package mapshard implements MapShard: a sequence of shardfile.Shard files
// sharing one filename prefix in one directory, exposed as a single logical
// ordinal space. The current (last) shard accepts appends; earlier shards
// are sealed and opened read-only via mmap.
package mapshard

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/allegro/bigcache/v3"
	"github.com/charmful0x/schema-js/internal/shardfile"
	"k8s.io/klog/v2"
)

const (
	// DefaultMaxRecordsPerShard bounds how many records a single underlying
	// shard file may hold before a new current shard is started.
	DefaultMaxRecordsPerShard = 1_000_000
	// DefaultMaxShardBytes bounds the byte size of a single underlying
	// shard file before a new current shard is started.
	DefaultMaxShardBytes = 64 * 1024 * 1024

	seqWidth = 6
)

// Config controls how a MapShard is opened.
type Config struct {
	Dir    string // directory holding the shard files
	Prefix string // e.g. "data_" or "datatemp-"

	MaxRecordsPerShard uint64 // 0 means DefaultMaxRecordsPerShard
	MaxShardBytes      uint64 // 0 means DefaultMaxShardBytes

	// Cache, if non-nil, is used as a hot read-through cache keyed by
	// ordinal. Entries are immutable once appended so no invalidation
	// path is needed.
	Cache *bigcache.BigCache
}

// MapShard is a sequence of Shards sharing one prefix, presenting a single
// strictly-increasing ordinal space across all of them.
type MapShard struct {
	mu  sync.RWMutex
	dir string
	cfg Config

	sealed    []*shardfile.SealedShard
	sealedCum []uint64 // sealedCum[i] = total records in sealed[0..i]
	current   *shardfile.Shard
	currentSeq int
}

// Open scans dir for files named <prefix><seq>, opening all but the
// highest-numbered one read-only (sealed) and the highest-numbered one (or
// a fresh shard 0 if none exist) for both reads and appends.
func Open(cfg Config) (*MapShard, error) {
	if cfg.MaxRecordsPerShard == 0 {
		cfg.MaxRecordsPerShard = DefaultMaxRecordsPerShard
	}
	if cfg.MaxShardBytes == 0 {
		cfg.MaxShardBytes = DefaultMaxShardBytes
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("mapshard: create dir %s: %w", cfg.Dir, err)
	}

	seqs, err := discoverSeqs(cfg.Dir, cfg.Prefix)
	if err != nil {
		return nil, err
	}

	ms := &MapShard{dir: cfg.Dir, cfg: cfg}

	if len(seqs) == 0 {
		cur, err := shardfile.Open(pathFor(cfg.Dir, cfg.Prefix, 0))
		if err != nil {
			return nil, err
		}
		ms.current = cur
		ms.currentSeq = 0
		return ms, nil
	}

	for _, seq := range seqs[:len(seqs)-1] {
		sealed, err := shardfile.OpenSealed(pathFor(cfg.Dir, cfg.Prefix, seq))
		if err != nil {
			return nil, err
		}
		ms.sealed = append(ms.sealed, sealed)
		prev := uint64(0)
		if n := len(ms.sealedCum); n > 0 {
			prev = ms.sealedCum[n-1]
		}
		ms.sealedCum = append(ms.sealedCum, prev+sealed.Len())
	}

	lastSeq := seqs[len(seqs)-1]
	cur, err := shardfile.Open(pathFor(cfg.Dir, cfg.Prefix, lastSeq))
	if err != nil {
		return nil, err
	}
	ms.current = cur
	ms.currentSeq = lastSeq
	return ms, nil
}

func discoverSeqs(dir, prefix string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("mapshard: read dir %s: %w", dir, err)
	}
	var seqs []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".lock") {
			continue
		}
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		seqStr := strings.TrimPrefix(name, prefix)
		seq, err := strconv.Atoi(seqStr)
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

func (ms *MapShard) sealedTotal() uint64 {
	if len(ms.sealedCum) == 0 {
		return 0
	}
	return ms.sealedCum[len(ms.sealedCum)-1]
}

// Append writes record to the current shard, rolling over to a freshly
// created shard first if the current one has reached its capacity.
func (ms *MapShard) Append(record []byte) (uint64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.current.Len() >= ms.cfg.MaxRecordsPerShard || ms.current.Size() >= ms.cfg.MaxShardBytes {
		if err := ms.rolloverLocked(); err != nil {
			return 0, err
		}
	}

	local, err := ms.current.Append(record)
	if err != nil {
		return 0, err
	}
	ordinal := ms.sealedTotal() + local

	if ms.cfg.Cache != nil {
		ms.cfg.Cache.Set(cacheKey(ordinal), record)
	}
	return ordinal, nil
}

// AppendBatch appends records to the current shard one at a time under a
// single lock acquisition, returning their assigned ordinals in order. This
// is what reconciliation uses to drain one temp shard: the whole batch (one
// temp shard's worth of records) is appended under one exclusive lease, and
// the lease is released before the next temp shard is drained, per the
// reconciliation locking rule (fine-grained between shards, exclusive within
// one).
func (ms *MapShard) AppendBatch(records [][]byte) ([]uint64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ordinals := make([]uint64, len(records))
	for i, record := range records {
		if ms.current.Len() >= ms.cfg.MaxRecordsPerShard || ms.current.Size() >= ms.cfg.MaxShardBytes {
			if err := ms.rolloverLocked(); err != nil {
				return nil, err
			}
		}
		local, err := ms.current.Append(record)
		if err != nil {
			return nil, err
		}
		ordinal := ms.sealedTotal() + local
		ordinals[i] = ordinal
		if ms.cfg.Cache != nil {
			ms.cfg.Cache.Set(cacheKey(ordinal), record)
		}
	}
	return ordinals, nil
}

func (ms *MapShard) rolloverLocked() error {
	oldPath := ms.current.Path()
	oldLen := ms.current.Len()
	if err := ms.current.Close(); err != nil {
		return fmt.Errorf("mapshard: close shard %s before rollover: %w", oldPath, err)
	}
	sealed, err := shardfile.OpenSealed(oldPath)
	if err != nil {
		return err
	}
	ms.sealed = append(ms.sealed, sealed)
	ms.sealedCum = append(ms.sealedCum, ms.sealedTotal()+oldLen)

	ms.currentSeq++
	cur, err := shardfile.Open(pathFor(ms.dir, ms.cfg.Prefix, ms.currentSeq))
	if err != nil {
		return err
	}
	ms.current = cur
	klog.V(2).Infof("mapshard: rolled over %s to seq %d", ms.dir, ms.currentSeq)
	return nil
}

// GetElement resolves a global ordinal to (shard, local ordinal) and returns
// the stored bytes.
func (ms *MapShard) GetElement(ordinal uint64) ([]byte, error) {
	if ms.cfg.Cache != nil {
		if b, err := ms.cfg.Cache.Get(cacheKey(ordinal)); err == nil {
			return b, nil
		}
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	shardIdx := sort.Search(len(ms.sealedCum), func(i int) bool { return ordinal < ms.sealedCum[i] })
	var (
		b   []byte
		err error
	)
	if shardIdx < len(ms.sealed) {
		prev := uint64(0)
		if shardIdx > 0 {
			prev = ms.sealedCum[shardIdx-1]
		}
		b, err = ms.sealed[shardIdx].Get(ordinal - prev)
	} else {
		b, err = ms.current.Get(ordinal - ms.sealedTotal())
	}
	if err != nil {
		return nil, err
	}
	if ms.cfg.Cache != nil {
		ms.cfg.Cache.Set(cacheKey(ordinal), b)
	}
	return b, nil
}

// Len returns the total number of records across all shards.
func (ms *MapShard) Len() uint64 {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.sealedTotal() + ms.current.Len()
}

// Close releases all underlying shard file handles.
func (ms *MapShard) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var firstErr error
	for _, s := range ms.sealed {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := ms.current.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func cacheKey(ordinal uint64) string {
	return "ord-" + strconv.FormatUint(ordinal, 10)
}
