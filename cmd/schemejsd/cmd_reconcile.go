package main

import (
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

func newCmd_Reconcile() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Drain one table's staged rows into its primary storage and indexes.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-root", Required: true},
			&cli.StringFlag{Name: "database", Required: true},
			&cli.StringFlag{Name: "table", Required: true},
		},
		Action: func(c *cli.Context) error {
			_, db, err := openDatabase(c.String("data-root"), c.String("database"))
			if err != nil {
				return err
			}
			if err := db.Reconcile(c.String("table")); err != nil {
				return err
			}
			klog.Infof("schemejsd: reconciled table %q", c.String("table"))
			return nil
		},
	}
}

func newCmd_ReconcileAll() *cli.Command {
	return &cli.Command{
		Name:  "reconcile-all",
		Usage: "Drain every table of a database, one table at a time.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-root", Required: true},
			&cli.StringFlag{Name: "database", Required: true},
		},
		Action: func(c *cli.Context) error {
			_, db, err := openDatabase(c.String("data-root"), c.String("database"))
			if err != nil {
				return err
			}
			if err := db.ReconcileAll(); err != nil {
				return err
			}
			klog.Infof("schemejsd: reconciled all tables of database %q", c.String("database"))
			return nil
		},
	}
}
