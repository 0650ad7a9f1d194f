// Package config resolves a SchemeJS.toml workspace listing: given either a
// directory or a direct path to a TOML file, it locates the file, parses it,
// and hands back the listed database names for the caller to drive
// engine.AddDatabase/RegisterTables with. Spec.md §1 places the scripting
// host and its configuration format out of scope for the CORE's
// consumption; scenarios S1 and S6 (§8) still require this resolution
// behavior to be demonstrable, hence this narrow package.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// DefaultFileName is the workspace config file spec.md's scenarios name.
const DefaultFileName = "SchemeJS.toml"

// TableDef is one table listing inside a database entry. Column/index
// definitions are evaluated by the out-of-scope scripting host; this
// package only carries the table name through.
type TableDef struct {
	Name string `toml:"name"`
}

// DatabaseDef is one `[[databases]]` entry.
type DatabaseDef struct {
	Name   string     `toml:"name"`
	Tables []TableDef `toml:"tables"`
}

// Document is the parsed contents of a SchemeJS.toml file.
type Document struct {
	Databases []DatabaseDef `toml:"databases"`
}

// Workspace is the result of resolving a path per spec.md scenarios S1/S6.
type Workspace struct {
	CurrentFolder string
	ConfigFile    string
	Doc           Document
}

// Resolve accepts either a directory (config_file becomes
// <path>/SchemeJS.toml, matching S1) or a path to a .toml file directly
// (current_folder becomes its parent directory, matching S6), parses the
// file, and returns the resolved Workspace.
//
// The directory-vs-file branch is lifted from
// original_source's SchemeJsRuntime::new
// (crates/base/src/runtime.rs:44-56): base_path.is_dir() picks
// (base_path, base_path.join("SchemeJS.toml")), and the else branch derives
// current_folder from base_path.parent() while keeping config_file as
// base_path itself.
func Resolve(path string) (*Workspace, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	var currentFolder, configFile string
	if info.IsDir() {
		currentFolder = path
		configFile = filepath.Join(path, DefaultFileName)
	} else {
		currentFolder = filepath.Dir(path)
		configFile = path
	}

	raw, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", configFile, err)
	}
	var doc Document
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", configFile, err)
	}

	return &Workspace{
		CurrentFolder: currentFolder,
		ConfigFile:    configFile,
		Doc:           doc,
	}, nil
}
