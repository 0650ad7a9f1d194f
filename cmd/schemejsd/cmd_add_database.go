package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/charmful0x/schema-js/internal/engine"
)

func newCmd_AddDatabase() *cli.Command {
	return &cli.Command{
		Name:        "add-database",
		Usage:       "Create an empty database under a data root directory.",
		Description: "Create an empty database under a data root directory. Idempotent by name.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-root", Required: true, Usage: "directory holding all databases"},
			&cli.StringFlag{Name: "name", Required: true, Usage: "database name"},
		},
		Action: func(c *cli.Context) error {
			dataRoot := c.String("data-root")
			name := c.String("name")
			dir := filepath.Join(dataRoot, name)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("schemejsd: create database dir %s: %w", dir, err)
			}
			e := engine.New()
			if _, err := e.AddDatabase(name, dir); err != nil {
				return err
			}
			klog.Infof("schemejsd: database %q ready under %s", name, dataRoot)
			return nil
		},
	}
}
