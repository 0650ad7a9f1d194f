// Package shardfile implements the on-disk append-only record log described
// by the shard component of the schema-js storage engine: a file of
// length-implicit records followed by a suffix-anchored offset directory.
package shardfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"k8s.io/klog/v2"
)

// ErrOutOfRange is returned by Get when the requested ordinal has never
// been appended to the shard.
var ErrOutOfRange = errors.New("shardfile: ordinal out of range")

const trailerCountSize = 8 // uint64 LE record count

// Shard is a single binary file holding a sequence of opaque byte records
// plus a trailing offset directory. See package doc for the wire format.
//
// A Shard is safe for concurrent use: appends take an exclusive in-process
// lock (and, for the duration of the write+trailer rewrite, an exclusive
// file-level lock via flock so that a second process touching the same
// path cannot interleave), reads take a shared lock.
type Shard struct {
	mu   sync.RWMutex
	flk  *flock.Flock
	file *os.File
	path string

	offsets []uint64 // absolute byte offset of each record's start
	dataEnd uint64    // byte offset immediately after the last record (trailer start)
}

// Open opens the shard file at path, creating it if it does not exist, and
// rebuilds the in-memory offset directory from the trailing bytes.
func Open(path string) (*Shard, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shardfile: open %s: %w", path, err)
	}
	s := &Shard{
		file: f,
		path: path,
		flk:  flock.New(path + ".lock"),
	}
	if err := s.loadTrailer(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Shard) loadTrailer() error {
	fi, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("shardfile: stat %s: %w", s.path, err)
	}
	size := uint64(fi.Size())
	if size == 0 {
		s.dataEnd = 0
		s.offsets = nil
		return nil
	}
	if size < trailerCountSize {
		return fmt.Errorf("shardfile: %s is truncated (size %d)", s.path, size)
	}
	countBuf := make([]byte, trailerCountSize)
	if _, err := s.file.ReadAt(countBuf, int64(size-trailerCountSize)); err != nil {
		return fmt.Errorf("shardfile: read trailer count of %s: %w", s.path, err)
	}
	count := binary.LittleEndian.Uint64(countBuf)
	offsetsBytes := count * 8
	trailerStart := size - trailerCountSize - offsetsBytes
	if size < trailerCountSize+offsetsBytes {
		return fmt.Errorf("shardfile: %s trailer (count=%d) exceeds file size %d", s.path, count, size)
	}
	buf := make([]byte, offsetsBytes)
	if offsetsBytes > 0 {
		if _, err := s.file.ReadAt(buf, int64(trailerStart)); err != nil {
			return fmt.Errorf("shardfile: read trailer offsets of %s: %w", s.path, err)
		}
	}
	offsets := make([]uint64, count)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	s.offsets = offsets
	s.dataEnd = trailerStart
	return nil
}

// Append writes record to the end of the shard's data region, overwrites the
// trailer, and returns the 0-based ordinal the record was assigned.
func (s *Shard) Append(record []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flk.Lock(); err != nil {
		return 0, fmt.Errorf("shardfile: acquire file lock for %s: %w", s.path, err)
	}
	defer s.flk.Unlock()

	start := s.dataEnd
	if _, err := s.file.WriteAt(record, int64(start)); err != nil {
		return 0, fmt.Errorf("shardfile: write record at %d in %s: %w", start, s.path, err)
	}
	s.offsets = append(s.offsets, start)
	s.dataEnd = start + uint64(len(record))
	ordinal := uint64(len(s.offsets) - 1)

	if err := s.writeTrailerLocked(); err != nil {
		return 0, err
	}
	klog.V(2).Infof("shardfile: appended ordinal %d (%d bytes) to %s", ordinal, len(record), s.path)
	return ordinal, nil
}

func (s *Shard) writeTrailerLocked() error {
	buf := make([]byte, len(s.offsets)*8+trailerCountSize)
	for i, off := range s.offsets {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], off)
	}
	binary.LittleEndian.PutUint64(buf[len(s.offsets)*8:], uint64(len(s.offsets)))
	if _, err := s.file.WriteAt(buf, int64(s.dataEnd)); err != nil {
		return fmt.Errorf("shardfile: write trailer of %s: %w", s.path, err)
	}
	if err := s.file.Truncate(int64(s.dataEnd) + int64(len(buf))); err != nil {
		return fmt.Errorf("shardfile: truncate trailer of %s: %w", s.path, err)
	}
	return nil
}

// Get returns the exact bytes previously appended as ordinal.
func (s *Shard) Get(ordinal uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

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
	if _, err := s.file.ReadAt(buf, int64(start)); err != nil {
		return nil, fmt.Errorf("shardfile: read ordinal %d from %s: %w", ordinal, s.path, err)
	}
	return buf, nil
}

// Len returns the number of records stored in the shard.
func (s *Shard) Len() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.offsets))
}

// Size returns the total byte size of the shard file, including the trailer.
func (s *Shard) Size() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataEnd + uint64(len(s.offsets))*8 + trailerCountSize
}

// Path returns the filesystem path backing this shard.
func (s *Shard) Path() string {
	return s.path
}

// Close flushes and releases the shard's file handle.
func (s *Shard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Remove closes and deletes the shard file from disk. Used by reconciliation
// to drop a temp shard once it has been fully drained into a MapShard.
func (s *Shard) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shardfile: remove %s: %w", s.path, err)
	}
	os.Remove(s.path + ".lock")
	return nil
}
