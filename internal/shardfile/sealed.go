package shardfile

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/mmap"
)

// SealedShard is a read-only, memory-mapped view of a shard file that will
// never be appended to again. MapShard opens shards this way once they have
// been superseded by a new current shard, matching the teacher's approach
// of mmapping local index/CAR files for random-access reads
// (see storage.go's openMMapFile).
type SealedShard struct {
	ra      *mmap.ReaderAt
	path    string
	offsets []uint64
	dataEnd uint64
}

// OpenSealed memory-maps path and parses its offset trailer for read-only use.
func OpenSealed(path string) (*SealedShard, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("shardfile: mmap open %s: %w", path, err)
	}
	s := &SealedShard{ra: ra, path: path}
	if err := s.loadTrailer(); err != nil {
		ra.Close()
		return nil, err
	}
	return s, nil
}

func (s *SealedShard) loadTrailer() error {
	size := int64(s.ra.Len())
	if size == 0 {
		return nil
	}
	if size < trailerCountSize {
		return fmt.Errorf("shardfile: sealed shard %s is truncated (size %d)", s.path, size)
	}
	countBuf := make([]byte, trailerCountSize)
	if _, err := s.ra.ReadAt(countBuf, size-trailerCountSize); err != nil {
		return fmt.Errorf("shardfile: read sealed trailer count of %s: %w", s.path, err)
	}
	count := binary.LittleEndian.Uint64(countBuf)
	offsetsBytes := int64(count) * 8
	trailerStart := size - trailerCountSize - offsetsBytes
	if trailerStart < 0 {
		return fmt.Errorf("shardfile: sealed shard %s trailer (count=%d) exceeds file size %d", s.path, count, size)
	}
	buf := make([]byte, offsetsBytes)
	if offsetsBytes > 0 {
		if _, err := s.ra.ReadAt(buf, trailerStart); err != nil {
			return fmt.Errorf("shardfile: read sealed trailer offsets of %s: %w", s.path, err)
		}
	}
	offsets := make([]uint64, count)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	s.offsets = offsets
	s.dataEnd = uint64(trailerStart)
	return nil
}

// Get returns the exact bytes previously appended as ordinal.
func (s *SealedShard) Get(ordinal uint64) ([]byte, error) {
	if ordinal >= uint64(len(s.offsets)) {
		return nil, ErrOutOfRange
	}
	start := s.offsets[ordinal]
	var end uint64
	if ordinal+1 < uint64(len(s.offsets)) {
		end = s.offsets[ordinal+1]
	} else {
		end = s.dataEnd
	}
	buf := make([]byte, end-start)
	if _, err := s.ra.ReadAt(buf, int64(start)); err != nil {
		return nil, fmt.Errorf("shardfile: read sealed ordinal %d from %s: %w", ordinal, s.path, err)
	}
	return buf, nil
}

// Len returns the number of records stored in the shard.
func (s *SealedShard) Len() uint64 {
	return uint64(len(s.offsets))
}

// Close unmaps the underlying file.
func (s *SealedShard) Close() error {
	return s.ra.Close()
}
