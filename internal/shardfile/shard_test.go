package shardfile_test

import (
	"path/filepath"
	"testing"

	"github.com/charmful0x/schema-js/internal/shardfile"
	"github.com/stretchr/testify/require"
)

func TestShard_AppendAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_000000")
	s, err := shardfile.Open(path)
	require.NoError(t, err)
	defer s.Close()

	records := [][]byte{
		[]byte("hello"),
		[]byte(""),
		[]byte("world-of-schema-js"),
	}
	for i, r := range records {
		ordinal, err := s.Append(r)
		require.NoError(t, err)
		require.Equal(t, uint64(i), ordinal)
	}

	require.Equal(t, uint64(len(records)), s.Len())
	for i, want := range records {
		got, err := s.Get(uint64(i))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err = s.Get(uint64(len(records)))
	require.ErrorIs(t, err, shardfile.ErrOutOfRange)
}

func TestShard_ReopenRebuildsTrailer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_000000")
	s, err := shardfile.Open(path)
	require.NoError(t, err)

	for _, r := range [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")} {
		_, err := s.Append(r)
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	reopened, err := shardfile.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint64(3), reopened.Len())
	got, err := reopened.Get(2)
	require.NoError(t, err)
	require.Equal(t, []byte("ccc"), got)

	// appends after reopening continue the ordinal sequence
	ordinal, err := reopened.Append([]byte("dddd"))
	require.NoError(t, err)
	require.Equal(t, uint64(3), ordinal)
}

func TestShard_OrdinalsMonotone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_000000")
	s, err := shardfile.Open(path)
	require.NoError(t, err)
	defer s.Close()

	const n = 500
	for i := 0; i < n; i++ {
		ordinal, err := s.Append([]byte{byte(i)})
		require.NoError(t, err)
		require.Equal(t, uint64(i), ordinal)
	}
	require.Equal(t, uint64(n), s.Len())
	for i := 0; i < n; i++ {
		got, err := s.Get(uint64(i))
		require.NoError(t, err)
		require.Equal(t, []byte{byte(i)}, got)
	}
}
