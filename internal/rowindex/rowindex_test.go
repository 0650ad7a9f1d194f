package rowindex_test

import (
	"testing"

	"github.com/charmful0x/schema-js/internal/rowcodec"
	"github.com/charmful0x/schema-js/internal/rowindex"
	"github.com/charmful0x/schema-js/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestToKey_StableForEqualParts(t *testing.T) {
	a := rowindex.ToKey([]rowindex.KeyPart{{Column: "id", Value: "1"}, {Column: "enabled", Value: "true"}})
	b := rowindex.ToKey([]rowindex.KeyPart{{Column: "id", Value: "1"}, {Column: "enabled", Value: "true"}})
	require.Equal(t, a, b)

	c := rowindex.ToKey([]rowindex.KeyPart{{Column: "enabled", Value: "true"}, {Column: "id", Value: "1"}})
	require.NotEqual(t, a, c, "member order changes the encoding")
}

func TestCoerce(t *testing.T) {
	require.Equal(t, "true", rowindex.Coerce(true))
	require.Equal(t, "false", rowindex.Coerce(false))
	require.Equal(t, "abc", rowindex.Coerce("abc"))
	require.Equal(t, "", rowindex.Coerce(nil))
}

func TestManager_PutGet_LastWriteWins(t *testing.T) {
	dir := t.TempDir()
	mgr, err := rowindex.Open(dir, "by_id")
	require.NoError(t, err)
	defer mgr.Close()

	key := rowindex.ToKey([]rowindex.KeyPart{{Column: "id", Value: "1"}})
	require.NoError(t, mgr.Put(key, 10))
	ord, ok := mgr.Get(key)
	require.True(t, ok)
	require.Equal(t, uint64(10), ord)

	require.NoError(t, mgr.Put(key, 42))
	ord, ok = mgr.Get(key)
	require.True(t, ok)
	require.Equal(t, uint64(42), ord)
}

func TestManager_ReplayAfterReopen(t *testing.T) {
	dir := t.TempDir()
	mgr, err := rowindex.Open(dir, "by_id")
	require.NoError(t, err)
	key := rowindex.ToKey([]rowindex.KeyPart{{Column: "id", Value: "7"}})
	require.NoError(t, mgr.Put(key, 3))
	require.NoError(t, mgr.Close())

	reopened, err := rowindex.Open(dir, "by_id")
	require.NoError(t, err)
	defer reopened.Close()
	ord, ok := reopened.Get(key)
	require.True(t, ok)
	require.Equal(t, uint64(3), ord)
}

func TestTable_IndexAllAndLookup(t *testing.T) {
	dir := t.TempDir()
	tbl, err := schema.NewTable("users",
		[]schema.Column{
			{Name: "id", DataType: schema.TypeString, Required: true, PrimaryKey: true},
		},
		[]schema.Index{
			{Name: "by_id", Members: []string{"id"}, Kind: schema.IndexHash},
		},
		"id",
	)
	require.NoError(t, err)

	idxTable, err := rowindex.OpenTable(dir, tbl)
	require.NoError(t, err)
	defer idxTable.Close()

	row := &rowcodec.DocumentRow{Table: "users", Doc: schema.Document{"id": "1"}}
	require.NoError(t, idxTable.IndexAll(tbl, row, 99))

	idx, mgr, ok := idxTable.IndexForMembers(tbl, []string{"id"})
	require.True(t, ok)
	require.Equal(t, "by_id", idx.Name)
	key := rowindex.ToKey(rowindex.KeyPartsFor(idx, row))
	ord, ok := mgr.Get(key)
	require.True(t, ok)
	require.Equal(t, uint64(99), ord)
}
