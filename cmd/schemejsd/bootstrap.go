package main

import (
	"path/filepath"

	"github.com/charmful0x/schema-js/internal/engine"
)

// openDatabase wires a fresh Engine and loads the named database rooted
// under dataRoot: LoadDatabaseSchema discovers the database and its table
// specifiers (spec.md §4.8), this CLI evaluates each specifier's schema.json
// as the external loader the contract calls for, and the resulting tables
// are registered in one RegisterTables call.
func openDatabase(dataRoot, database string) (*engine.Engine, *engine.Database, error) {
	e := engine.New()
	name, specifiers, err := e.LoadDatabaseSchema(filepath.Join(dataRoot, database))
	if err != nil {
		return nil, nil, err
	}
	db, err := e.FindByName(name)
	if err != nil {
		return nil, nil, err
	}
	tables, err := loadTableDefsFromSpecifiers(specifiers)
	if err != nil {
		return nil, nil, err
	}
	if len(tables) > 0 {
		if err := db.RegisterTables(tables); err != nil {
			return nil, nil, err
		}
	}
	return e, db, nil
}
