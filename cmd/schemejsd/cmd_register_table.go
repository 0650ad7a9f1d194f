package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/charmful0x/schema-js/internal/schema"
)

func newCmd_RegisterTable() *cli.Command {
	return &cli.Command{
		Name:  "register-table",
		Usage: "Declare a table's columns and indexes and persist the definition.",
		Description: "Declare a table's columns and indexes, standing in for the out-of-scope " +
			"scripting host's table-definition evaluation step.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-root", Required: true},
			&cli.StringFlag{Name: "database", Required: true},
			&cli.StringFlag{Name: "table", Required: true},
			&cli.StringFlag{Name: "primary-key", Usage: "empty means use the synthetic _uid"},
			&cli.StringSliceFlag{
				Name:  "column",
				Usage: `column spec "name:string|boolean[:required][:pk]", repeatable`,
			},
			&cli.StringSliceFlag{
				Name:  "index",
				Usage: `index spec "index_name:col1,col2,...", repeatable`,
			},
		},
		Action: func(c *cli.Context) error {
			columns, err := parseColumns(c.StringSlice("column"))
			if err != nil {
				return err
			}
			indexes, err := parseIndexes(c.StringSlice("index"))
			if err != nil {
				return err
			}
			tbl, err := schema.NewTable(c.String("table"), columns, indexes, c.String("primary-key"))
			if err != nil {
				return err
			}
			if err := saveTableDef(c.String("data-root"), c.String("database"), tbl); err != nil {
				return err
			}
			klog.Infof("schemejsd: registered table %q in database %q", tbl.Name, c.String("database"))
			return nil
		},
	}
}

func parseColumns(specs []string) ([]schema.Column, error) {
	columns := make([]schema.Column, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 {
			return nil, fmt.Errorf("schemejsd: invalid column spec %q", spec)
		}
		col := schema.Column{Name: parts[0]}
		switch parts[1] {
		case "string":
			col.DataType = schema.TypeString
		case "boolean":
			col.DataType = schema.TypeBoolean
		default:
			return nil, fmt.Errorf("schemejsd: unknown column type %q in spec %q", parts[1], spec)
		}
		for _, flag := range parts[2:] {
			switch flag {
			case "required":
				col.Required = true
			case "pk":
				col.PrimaryKey = true
			}
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func parseIndexes(specs []string) ([]schema.Index, error) {
	indexes := make([]schema.Index, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("schemejsd: invalid index spec %q", spec)
		}
		indexes = append(indexes, schema.Index{
			Name:    parts[0],
			Members: strings.Split(parts[1], ","),
			Kind:    schema.IndexHash,
		})
	}
	return indexes, nil
}
