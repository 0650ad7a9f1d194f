package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmful0x/schema-js/internal/engine"
	"github.com/charmful0x/schema-js/internal/schema"
)

// columnDef and indexDef are the JSON-friendly mirror of schema.Column and
// schema.Index; the CLI is the one place in this repository that needs to
// persist a table definition across separate process invocations, since the
// scripting host that would otherwise hold it for the process lifetime is
// out of scope (spec.md §1).
type columnDef struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Required   bool   `json:"required"`
	PrimaryKey bool   `json:"primary_key"`
}

type indexDef struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type tableDef struct {
	Name       string      `json:"name"`
	Columns    []columnDef `json:"columns"`
	Indexes    []indexDef  `json:"indexes"`
	PrimaryKey string      `json:"primary_key"`
}

func tableDefPath(dataRoot, database, table string) string {
	return filepath.Join(dataRoot, database, "tables", table, "schema.json")
}

func saveTableDef(dataRoot, database string, tbl *schema.Table) error {
	def := tableDef{Name: tbl.Name, PrimaryKey: tbl.PrimaryKey}
	for _, col := range tbl.Columns {
		def.Columns = append(def.Columns, columnDef{
			Name:       col.Name,
			Type:       col.DataType.String(),
			Required:   col.Required,
			PrimaryKey: col.PrimaryKey,
		})
	}
	for _, idx := range tbl.Indexes {
		def.Indexes = append(def.Indexes, indexDef{Name: idx.Name, Members: idx.Members})
	}

	path := tableDefPath(dataRoot, database, tbl.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("schemastore: create %s: %w", filepath.Dir(path), err)
	}
	raw, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("schemastore: marshal table %q: %w", tbl.Name, err)
	}
	return os.WriteFile(path, raw, 0o644)
}

// loadTableDefAt evaluates one specifier's schema.json into a *schema.Table.
// This is the evaluation step spec.md §4.8 keeps out of
// internal/engine.LoadDatabaseSchema: that function only enumerates the
// specifiers an opaque TableSpecifier names, and cmd/schemejsd, as the
// external loader, is the one that knows how to turn one into a Table.
func loadTableDefAt(path string) (*schema.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schemastore: read %s: %w", path, err)
	}
	var def tableDef
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("schemastore: parse %s: %w", path, err)
	}

	columns := make([]schema.Column, len(def.Columns))
	for i, c := range def.Columns {
		dt := schema.TypeString
		if c.Type == "boolean" {
			dt = schema.TypeBoolean
		}
		columns[i] = schema.Column{Name: c.Name, DataType: dt, Required: c.Required, PrimaryKey: c.PrimaryKey}
	}
	indexes := make([]schema.Index, len(def.Indexes))
	for i, idx := range def.Indexes {
		indexes[i] = schema.Index{Name: idx.Name, Members: idx.Members, Kind: schema.IndexHash}
	}
	return schema.NewTable(def.Name, columns, indexes, def.PrimaryKey)
}

// loadTableDefsFromSpecifiers evaluates every specifier
// internal/engine.LoadDatabaseSchema discovered, skipping any whose
// schema.json is missing or malformed (a table registered but never
// persisted, or mid-write).
func loadTableDefsFromSpecifiers(specifiers []engine.TableSpecifier) ([]*schema.Table, error) {
	var tables []*schema.Table
	for _, spec := range specifiers {
		tbl, err := loadTableDefAt(filepath.Join(spec.Dir, "schema.json"))
		if err != nil {
			continue
		}
		tables = append(tables, tbl)
	}
	return tables, nil
}
