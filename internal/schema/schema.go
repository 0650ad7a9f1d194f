// Package schema holds the table/column/index model and row validator:
// spec.md §3 (Column, Index, Table) and §4.5 (validator).
package schema

import "fmt"

// DataType enumerates the scalar column types this spec supports.
type DataType int

const (
	TypeString DataType = iota
	TypeBoolean
)

func (d DataType) String() string {
	switch d {
	case TypeString:
		return "string"
	case TypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Column describes one declared field of a Table.
type Column struct {
	Name       string
	DataType   DataType
	Required   bool
	Default    any
	Comment    string
	PrimaryKey bool
}

// IndexKind enumerates the supported index variants. Hash is the only
// mandatory variant per spec.md §3; the type exists so future variants
// (e.g. a range-capable Btree) slot in without touching callers that only
// care about coverage, per Design Note §9.
type IndexKind int

const (
	IndexHash IndexKind = iota
)

// Index declares a composite-key secondary index over an ordered list of
// column names.
type Index struct {
	Name    string
	Members []string
	Kind    IndexKind
}

// Document is a self-describing field → scalar mapping; the row value of
// spec.md §3. Every document is expected to carry a uid.Field entry once it
// reaches storage.
type Document map[string]any

// Table is the schema/metadata unit of spec.md §3. PrimaryKey may be empty,
// meaning "use the synthetic _uid" (spec.md §9's open question, resolved
// explicitly here).
type Table struct {
	Name       string
	Columns    map[string]Column
	Indexes    []Index
	PrimaryKey string
	Metadata   map[string]any
}

// NewTable validates that every index's members name an existing column and
// that column/index names are unique, then returns the assembled Table.
func NewTable(name string, columns []Column, indexes []Index, primaryKey string) (*Table, error) {
	colMap := make(map[string]Column, len(columns))
	for _, c := range columns {
		if _, exists := colMap[c.Name]; exists {
			return nil, fmt.Errorf("schema: table %q declares column %q twice", name, c.Name)
		}
		colMap[c.Name] = c
	}

	seenIdx := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		if _, exists := seenIdx[idx.Name]; exists {
			return nil, fmt.Errorf("schema: table %q declares index %q twice", name, idx.Name)
		}
		seenIdx[idx.Name] = struct{}{}
		if len(idx.Members) == 0 {
			return nil, fmt.Errorf("schema: index %q on table %q has no members", idx.Name, name)
		}
		for _, m := range idx.Members {
			if _, ok := colMap[m]; !ok {
				return nil, fmt.Errorf("schema: index %q on table %q references unknown column %q", idx.Name, name, m)
			}
		}
	}

	if primaryKey != "" {
		if _, ok := colMap[primaryKey]; !ok {
			return nil, fmt.Errorf("schema: table %q declares unknown primary key column %q", name, primaryKey)
		}
	}

	return &Table{
		Name:       name,
		Columns:    colMap,
		Indexes:    indexes,
		PrimaryKey: primaryKey,
		Metadata:   make(map[string]any),
	}, nil
}

// EffectivePrimaryKey returns PrimaryKey, or uidField when PrimaryKey is
// empty. The uid field name is a parameter (callers pass uid.Field) so this
// package does not import internal/uid.
func (t *Table) EffectivePrimaryKey(uidField string) string {
	if t.PrimaryKey != "" {
		return t.PrimaryKey
	}
	return uidField
}

// IndexByName returns the declared index with the given name, if any.
func (t *Table) IndexByName(name string) (Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}
