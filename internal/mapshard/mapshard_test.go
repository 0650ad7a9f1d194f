package mapshard_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/charmful0x/schema-js/internal/mapshard"
	"github.com/stretchr/testify/require"
)

func TestMapShard_AppendAndGet(t *testing.T) {
	ms, err := mapshard.Open(mapshard.Config{
		Dir:    t.TempDir(),
		Prefix: "data_",
	})
	require.NoError(t, err)
	defer ms.Close()

	const n = 2500
	for i := 0; i < n; i++ {
		ordinal, err := ms.Append([]byte(fmt.Sprintf("row-%d", i)))
		require.NoError(t, err)
		require.Equal(t, uint64(i), ordinal)
	}
	require.Equal(t, uint64(n), ms.Len())
	for i := 0; i < n; i++ {
		got, err := ms.GetElement(uint64(i))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("row-%d", i), string(got))
	}
}

func TestMapShard_RolloverAcrossShards(t *testing.T) {
	dir := t.TempDir()
	ms, err := mapshard.Open(mapshard.Config{
		Dir:                dir,
		Prefix:             "data_",
		MaxRecordsPerShard: 10,
	})
	require.NoError(t, err)

	const n = 35
	for i := 0; i < n; i++ {
		ordinal, err := ms.Append([]byte(fmt.Sprintf("r%d", i)))
		require.NoError(t, err)
		require.Equal(t, uint64(i), ordinal)
	}
	require.NoError(t, ms.Close())

	// Reopening must discover all shards and preserve the ordinal space.
	reopened, err := mapshard.Open(mapshard.Config{
		Dir:                dir,
		Prefix:             "data_",
		MaxRecordsPerShard: 10,
	})
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint64(n), reopened.Len())
	for i := 0; i < n; i++ {
		got, err := reopened.GetElement(uint64(i))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("r%d", i), string(got))
	}

	ordinal, err := reopened.Append([]byte("tail"))
	require.NoError(t, err)
	require.Equal(t, uint64(n), ordinal)
}

func TestMapShard_CacheServesHotReads(t *testing.T) {
	cache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(10*time.Minute))
	require.NoError(t, err)

	ms, err := mapshard.Open(mapshard.Config{
		Dir:    t.TempDir(),
		Prefix: "data_",
		Cache:  cache,
	})
	require.NoError(t, err)
	defer ms.Close()

	ordinal, err := ms.Append([]byte("cached-row"))
	require.NoError(t, err)

	got, err := ms.GetElement(ordinal)
	require.NoError(t, err)
	require.Equal(t, "cached-row", string(got))
}
