// Package engine provides the outward-facing facade of spec.md §4.8/§6: a
// registry of named Databases, each a registry of named Tables, wired
// together with the row codec, tempshard staging, row-level MapShard
// storage, the per-table index manager, and the query executor.
//
// Modeled on the teacher's MultiEpoch (multiepoch.go): a sync.RWMutex
// guarding a map[string]*Database, idempotent-by-name Add, and an explicit
// Find lookup rather than scripting-style dynamic dispatch.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"k8s.io/klog/v2"

	"github.com/charmful0x/schema-js/internal/mapshard"
	"github.com/charmful0x/schema-js/internal/query"
	"github.com/charmful0x/schema-js/internal/rowcodec"
	"github.com/charmful0x/schema-js/internal/rowindex"
	"github.com/charmful0x/schema-js/internal/schema"
	"github.com/charmful0x/schema-js/internal/tempshard"
	"github.com/charmful0x/schema-js/internal/uid"
)

// Engine is the top-level catalog: a registry of Databases keyed by name.
type Engine struct {
	mu sync.RWMutex
	db map[string]*Database
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{db: make(map[string]*Database)}
}

// AddDatabase creates an empty database rooted at dir, or returns the
// already-registered one if name was added before (spec.md §4.8:
// "idempotent by name").
func (e *Engine) AddDatabase(name, dir string) (*Database, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.db[name]; ok {
		return existing, nil
	}
	d := &Database{
		name:   name,
		dir:    dir,
		tables: make(map[string]*tableHandle),
	}
	e.db[name] = d
	klog.Infof("engine: added database %q at %s", name, dir)
	return d, nil
}

// TableSpecifier is an opaque handle to one table definition discovered by
// LoadDatabaseSchema: a name and the directory that holds its definition.
// Spec.md §4.8 draws a hard line between discovering a database's tables and
// evaluating them — load_database_schema hands back specifiers for an
// external loader to turn into schema.Table values before ever calling
// RegisterTables, the same separation the original keeps between
// SchemeJsEngine::load_database_schema (which only ever produces
// ModuleSpecifier values) and SchemeJsRuntime::load_table (which is the one
// that evaluates a specifier into a Table).
type TableSpecifier struct {
	Name string
	Dir  string
}

// LoadDatabaseSchema reads path's basename as a database name, adds that
// database (idempotently, via AddDatabase), and walks path's "tables"
// subdirectory for one entry per table, returning a specifier for each
// without evaluating its definition.
//
// Grounded in original_source's SchemeJsEngine::load_database_schema
// (crates/engine/src/engine.rs:26-56): it resolves the schema name from the
// path's file name, calls add_database as a side effect, walks path/tables
// with WalkDir, and collects a ModuleSpecifier per table file — the actual
// module loading and evaluation into a Table happens later, in
// SchemeJsRuntime::load (crates/base/src/runtime.rs:110-136), which is
// exactly the split cmd/schemejsd's bootstrap preserves: this function only
// enumerates, the CLI's own schemastore evaluates each specifier's
// schema.json into a *schema.Table before calling RegisterTables.
func (e *Engine) LoadDatabaseSchema(path string) (string, []TableSpecifier, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, fmt.Errorf("engine: load database schema at %s: %w", path, err)
	}
	if !info.IsDir() {
		return "", nil, fmt.Errorf("engine: load database schema: %s is not a directory", path)
	}

	name := filepath.Base(path)
	if _, err := e.AddDatabase(name, path); err != nil {
		return "", nil, err
	}

	tablesDir := filepath.Join(path, "tables")
	entries, err := os.ReadDir(tablesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return name, nil, nil
		}
		return "", nil, fmt.Errorf("engine: read %s: %w", tablesDir, err)
	}

	var specifiers []TableSpecifier
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		specifiers = append(specifiers, TableSpecifier{
			Name: entry.Name(),
			Dir:  filepath.Join(tablesDir, entry.Name()),
		})
	}
	klog.Infof("engine: discovered %d table specifier(s) for database %q at %s", len(specifiers), name, path)
	return name, specifiers, nil
}

// FindByName returns the database registered under name.
func (e *Engine) FindByName(name string) (*Database, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.db[name]
	if !ok {
		return nil, fmt.Errorf("engine: database %q not found", name)
	}
	return d, nil
}

// Database is one named collection of Tables sharing a directory, per
// spec.md §3.
type Database struct {
	mu     sync.RWMutex
	name   string
	dir    string
	tables map[string]*tableHandle
}

// tableHandle bundles one Table's schema with all of the storage it owns:
// primary row storage, staging shard, index manager, and query executor.
type tableHandle struct {
	schema  *schema.Table
	rows    *mapshard.MapShard
	staging *tempshard.TempMapShard
	indexes *rowindex.Table
	exec    *query.Executor
}

// RegisterTables appends tables into db, opening their backing storage under
// db's directory. Spec.md §4.8: "appends tables into the named database."
func (d *Database) RegisterTables(tables []*schema.Table) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, tbl := range tables {
		if _, exists := d.tables[tbl.Name]; exists {
			continue
		}
		handle, err := openTable(d.dir, tbl)
		if err != nil {
			return fmt.Errorf("engine: register table %q: %w", tbl.Name, err)
		}
		d.tables[tbl.Name] = handle
		klog.Infof("engine: registered table %q in database %q", tbl.Name, d.name)
	}
	return nil
}

func openTable(dbDir string, tbl *schema.Table) (*tableHandle, error) {
	tblDir := filepath.Join(dbDir, "tables", tbl.Name)

	cache, err := bigcache.New(context.Background(), bigcache.DefaultConfig(10*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("open hot-row cache: %w", err)
	}

	rows, err := mapshard.Open(mapshard.Config{
		Dir:    filepath.Join(tblDir, "rows"),
		Prefix: "data_",
		Cache:  cache,
	})
	if err != nil {
		return nil, fmt.Errorf("open row storage: %w", err)
	}

	staging, err := tempshard.Open(filepath.Join(tblDir, "temp"), tempshard.DefaultPrefix, tempshard.DefaultCapacity, rows)
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("open staging storage: %w", err)
	}

	indexes, err := rowindex.OpenTable(tblDir, tbl)
	if err != nil {
		staging.Close()
		rows.Close()
		return nil, fmt.Errorf("open index storage: %w", err)
	}

	handle := &tableHandle{
		schema:  tbl,
		rows:    rows,
		staging: staging,
		indexes: indexes,
	}
	handle.exec = &query.Executor{Table: tbl, Indexes: indexes, Rows: rows}
	return handle, nil
}

func (d *Database) table(name string) (*tableHandle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.tables[name]
	if !ok {
		return nil, fmt.Errorf("engine: table %q not found in database %q", name, d.name)
	}
	return h, nil
}

// Insert validates doc against table's schema, fills in _uid if absent, and
// stages it for later reconciliation (spec.md §4.8/§6: insert is a staging
// write, not an immediately-searchable one — see spec.md §5's ordering
// guarantee).
func (d *Database) Insert(table string, doc schema.Document) error {
	h, err := d.table(table)
	if err != nil {
		return err
	}
	if _, present := doc[uid.Field]; !present {
		doc[uid.Field] = uid.New()
	}
	if err := schema.Validate(h.schema, doc); err != nil {
		return fmt.Errorf("engine: insert into %q: %w", table, err)
	}
	record, err := rowcodec.Encode(doc)
	if err != nil {
		return fmt.Errorf("engine: encode row for %q: %w", table, err)
	}
	if err := h.staging.InsertRow(record); err != nil {
		return fmt.Errorf("engine: stage row for %q: %w", table, err)
	}
	return nil
}

// Search compiles and executes pred against table's rows.
func (d *Database) Search(table string, pred query.Predicate) ([]schema.Document, error) {
	h, err := d.table(table)
	if err != nil {
		return nil, err
	}
	return h.exec.Search(pred)
}

// Reconcile drains table's staging shard into its primary MapShard, updating
// every declared index for each migrated row (spec.md §4.3/§4.6).
func (d *Database) Reconcile(table string) error {
	h, err := d.table(table)
	if err != nil {
		return err
	}
	return h.staging.ReconcileAll(func(record []byte, ordinal uint64) error {
		doc, err := rowcodec.Decode(record)
		if err != nil {
			return fmt.Errorf("engine: decode migrated row in %q: %w", table, err)
		}
		row := &rowcodec.DocumentRow{Table: table, Doc: doc}
		return h.indexes.IndexAll(h.schema, row, ordinal)
	})
}

// ReconcileAll reconciles every table of db one at a time; the order in which
// tables are visited is not defined (spec.md §4.8/§6 names reconcile_all(db)
// without defining its fan-out; sequential per-table reconciliation honors
// the "at most one reconciliation in flight per table" rule of spec.md §5
// without introducing an undocumented scheduler).
func (d *Database) ReconcileAll() error {
	d.mu.RLock()
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	d.mu.RUnlock()

	for _, name := range names {
		if err := d.Reconcile(name); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every table's storage handles.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, h := range d.tables {
		if err := h.indexes.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := h.staging.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := h.rows.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
