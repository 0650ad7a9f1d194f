package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/charmful0x/schema-js/internal/query"
)

// predicateJSON is the wire shape accepted by --predicate: a Condition leaf
// ({"key","op","value"}) or an And/Or node ({"and": [...]}/{"or": [...]}),
// mirroring spec.md §4.7's predicate tree one-to-one.
type predicateJSON struct {
	Key   string          `json:"key"`
	Op    string          `json:"op"`
	Value any             `json:"value"`
	And   []predicateJSON `json:"and"`
	Or    []predicateJSON `json:"or"`
}

func (p predicateJSON) toPredicate() (query.Predicate, error) {
	switch {
	case len(p.And) > 0:
		children := make(query.And, len(p.And))
		for i, c := range p.And {
			pred, err := c.toPredicate()
			if err != nil {
				return nil, err
			}
			children[i] = pred
		}
		return children, nil
	case len(p.Or) > 0:
		children := make(query.Or, len(p.Or))
		for i, c := range p.Or {
			pred, err := c.toPredicate()
			if err != nil {
				return nil, err
			}
			children[i] = pred
		}
		return children, nil
	case p.Key != "":
		op := query.Eq
		switch p.Op {
		case "", "=":
			op = query.Eq
		case "!=":
			op = query.Ne
		case "<":
			op = query.Lt
		case ">":
			op = query.Gt
		default:
			return nil, fmt.Errorf("schemejsd: unknown operator %q", p.Op)
		}
		return query.Condition{Key: p.Key, Op: op, Value: p.Value}, nil
	default:
		return nil, fmt.Errorf("schemejsd: empty predicate node")
	}
}

func newCmd_Search() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Evaluate a predicate against a table's reconciled rows.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-root", Required: true},
			&cli.StringFlag{Name: "database", Required: true},
			&cli.StringFlag{Name: "table", Required: true},
			&cli.StringFlag{Name: "predicate", Required: true, Usage: "predicate tree as JSON, see predicateJSON"},
		},
		Action: func(c *cli.Context) error {
			var raw predicateJSON
			if err := json.Unmarshal([]byte(c.String("predicate")), &raw); err != nil {
				return fmt.Errorf("schemejsd: parse --predicate: %w", err)
			}
			pred, err := raw.toPredicate()
			if err != nil {
				return err
			}
			_, db, err := openDatabase(c.String("data-root"), c.String("database"))
			if err != nil {
				return err
			}
			docs, err := db.Search(c.String("table"), pred)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(docs, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
