package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/kidoparadise/kido/apps/di"
	"github.com/kidoparadise/kido/core"
)

func main() {
	conf := core.NewConfig()

	// pending migrations are left to the migrate command
	c, err := di.New(context.Background(), conf, "ADMIN : ", false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing dependencies: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	var db *sql.DB
	if c.DB != nil {
		db = c.DB.DB
	}
	cli := commandLine{
		db:         db,
		validate:   c.Validate,
		usrSvc:     c.UserSvc,
		catalogSvc: c.CatalogSvc,
		bookingSvc: c.BookingSvc,
		out:        os.Stdout,
	}
	if err = cli.run(os.Args); err != nil {
		if err != errHelp {
			c.Logger.Error(err.Error(), err)
		}
		c.Close()
		os.Exit(1)
	}
}
