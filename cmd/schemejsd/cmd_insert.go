package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/charmful0x/schema-js/internal/schema"
)

func newCmd_Insert() *cli.Command {
	return &cli.Command{
		Name:  "insert",
		Usage: "Stage one document for a table (not visible to search until reconcile runs).",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-root", Required: true},
			&cli.StringFlag{Name: "database", Required: true},
			&cli.StringFlag{Name: "table", Required: true},
			&cli.StringFlag{Name: "doc", Required: true, Usage: "document as a JSON object"},
		},
		Action: func(c *cli.Context) error {
			var fields map[string]any
			if err := json.Unmarshal([]byte(c.String("doc")), &fields); err != nil {
				return fmt.Errorf("schemejsd: parse --doc: %w", err)
			}
			_, db, err := openDatabase(c.String("data-root"), c.String("database"))
			if err != nil {
				return err
			}
			if err := db.Insert(c.String("table"), schema.Document(fields)); err != nil {
				return err
			}
			klog.Infof("schemejsd: staged row into %s.%s", c.String("database"), c.String("table"))
			return nil
		},
	}
}
