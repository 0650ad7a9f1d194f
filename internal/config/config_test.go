package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmful0x/schema-js/internal/config"
	"github.com/stretchr/testify/require"
)

const sample = `
[[databases]]
name = "public"

  [[databases.tables]]
  name = "users"
`

func TestResolve_ConfigAsFolder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SchemeJS.toml"), []byte(sample), 0o644))

	ws, err := config.Resolve(dir)
	require.NoError(t, err)
	require.Equal(t, dir, ws.CurrentFolder)
	require.Equal(t, filepath.Join(dir, "SchemeJS.toml"), ws.ConfigFile)
	require.Len(t, ws.Doc.Databases, 1)
	require.Equal(t, "public", ws.Doc.Databases[0].Name)
	require.Equal(t, "users", ws.Doc.Databases[0].Tables[0].Name)
}

func TestResolve_ConfigAsFile(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, "CustomSchemeJS.toml")
	require.NoError(t, os.WriteFile(custom, []byte(sample), 0o644))

	ws, err := config.Resolve(custom)
	require.NoError(t, err)
	require.Equal(t, dir, ws.CurrentFolder)
	require.Equal(t, custom, ws.ConfigFile)
	require.Len(t, ws.Doc.Databases, 1)
}

func TestResolve_MissingFile(t *testing.T) {
	_, err := config.Resolve(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
