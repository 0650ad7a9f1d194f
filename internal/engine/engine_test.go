package engine_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmful0x/schema-js/internal/engine"
	"github.com/charmful0x/schema-js/internal/query"
	"github.com/charmful0x/schema-js/internal/schema"
	"github.com/stretchr/testify/require"
)

func usersTable(t *testing.T) *schema.Table {
	t.Helper()
	tbl, err := schema.NewTable("users",
		[]schema.Column{
			{Name: "id", DataType: schema.TypeString, Required: true, PrimaryKey: true},
			{Name: "country", DataType: schema.TypeString},
		},
		[]schema.Index{
			{Name: "by_id", Members: []string{"id"}, Kind: schema.IndexHash},
		},
		"id",
	)
	require.NoError(t, err)
	return tbl
}

func TestEngine_AddDatabaseIdempotentByName(t *testing.T) {
	e := engine.New()
	dir := t.TempDir()
	a, err := e.AddDatabase("app", dir)
	require.NoError(t, err)
	b, err := e.AddDatabase("app", "/some/other/path")
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestEngine_InsertNotVisibleUntilReconcile(t *testing.T) {
	e := engine.New()
	db, err := e.AddDatabase("app", t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.RegisterTables([]*schema.Table{usersTable(t)}))

	require.NoError(t, db.Insert("users", schema.Document{"id": "1", "country": "FR"}))

	docs, err := db.Search("users", query.Condition{Key: "id", Op: query.Eq, Value: "1"})
	require.NoError(t, err)
	require.Empty(t, docs, "rows in staging must not be visible before reconciliation")

	require.NoError(t, db.Reconcile("users"))

	docs, err = db.Search("users", query.Condition{Key: "id", Op: query.Eq, Value: "1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "FR", docs[0]["country"])
}

func TestEngine_InsertAssignsUIDWhenAbsent(t *testing.T) {
	e := engine.New()
	db, err := e.AddDatabase("app", t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.RegisterTables([]*schema.Table{usersTable(t)}))

	doc := schema.Document{"id": "2", "country": "DE"}
	require.NoError(t, db.Insert("users", doc))
	require.NotEmpty(t, doc["_uid"])

	require.NoError(t, db.Reconcile("users"))
	docs, err := db.Search("users", query.Condition{Key: "id", Op: query.Eq, Value: "2"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, doc["_uid"], docs[0]["_uid"])
}

func TestEngine_InsertRejectsInvalidDocument(t *testing.T) {
	e := engine.New()
	db, err := e.AddDatabase("app", t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.RegisterTables([]*schema.Table{usersTable(t)}))

	err = db.Insert("users", schema.Document{"country": "FR"})
	require.Error(t, err)
}

func TestEngine_ReconcileAllCoversEveryTable(t *testing.T) {
	e := engine.New()
	db, err := e.AddDatabase("app", t.TempDir())
	require.NoError(t, err)

	orders, err := schema.NewTable("orders",
		[]schema.Column{{Name: "id", DataType: schema.TypeString, Required: true, PrimaryKey: true}},
		[]schema.Index{{Name: "by_id", Members: []string{"id"}, Kind: schema.IndexHash}},
		"id",
	)
	require.NoError(t, err)
	require.NoError(t, db.RegisterTables([]*schema.Table{usersTable(t), orders}))

	require.NoError(t, db.Insert("users", schema.Document{"id": "1", "country": "FR"}))
	require.NoError(t, db.Insert("orders", schema.Document{"id": "o1"}))

	require.NoError(t, db.ReconcileAll())

	users, err := db.Search("users", query.Condition{Key: "id", Op: query.Eq, Value: "1"})
	require.NoError(t, err)
	require.Len(t, users, 1)

	ordersFound, err := db.Search("orders", query.Condition{Key: "id", Op: query.Eq, Value: "o1"})
	require.NoError(t, err)
	require.Len(t, ordersFound, 1)
}

func TestEngine_FindByNameMissing(t *testing.T) {
	e := engine.New()
	_, err := e.FindByName("nope")
	require.Error(t, err)
}

func TestEngine_LoadDatabaseSchemaDiscoversSpecifiersWithoutEvaluating(t *testing.T) {
	root := t.TempDir()
	dbDir := filepath.Join(root, "app")
	require.NoError(t, os.MkdirAll(filepath.Join(dbDir, "tables", "users"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dbDir, "tables", "orders"), 0o755))
	// A stray file alongside the table directories must not be treated as a
	// table specifier.
	require.NoError(t, os.WriteFile(filepath.Join(dbDir, "tables", "README"), []byte("n/a"), 0o644))

	e := engine.New()
	name, specifiers, err := e.LoadDatabaseSchema(dbDir)
	require.NoError(t, err)
	require.Equal(t, "app", name)

	got := make(map[string]string, len(specifiers))
	for _, spec := range specifiers {
		got[spec.Name] = spec.Dir
	}
	require.Len(t, got, 2)
	require.Equal(t, filepath.Join(dbDir, "tables", "users"), got["users"])
	require.Equal(t, filepath.Join(dbDir, "tables", "orders"), got["orders"])

	// LoadDatabaseSchema's add_database side effect makes the database
	// immediately findable, with no tables registered yet.
	db, err := e.FindByName("app")
	require.NoError(t, err)
	_, err = db.Search("users", query.Condition{Key: "id", Op: query.Eq, Value: "1"})
	require.Error(t, err, "no table has been registered via RegisterTables yet")
}

func TestEngine_LoadDatabaseSchemaMissingPathErrors(t *testing.T) {
	e := engine.New()
	_, _, err := e.LoadDatabaseSchema(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestEngine_LoadDatabaseSchemaNoTablesDirReturnsEmpty(t *testing.T) {
	dbDir := t.TempDir()
	e := engine.New()
	name, specifiers, err := e.LoadDatabaseSchema(dbDir)
	require.NoError(t, err)
	require.Equal(t, filepath.Base(dbDir), name)
	require.Empty(t, specifiers)
}
