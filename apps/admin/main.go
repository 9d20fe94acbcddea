package main

import (
	"database/sql"
	"io"
	"log"
	"os"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
	"github.com/trezcool/shule/core/subscription"
	logsvc "github.com/trezcool/shule/services/logger"
	claimstore "github.com/trezcool/shule/storage/claims"
	"github.com/trezcool/shule/storage/database"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	errAndDie(database.Ping(db))

	store, closeStore, err := claimstore.Open(conf)
	errAndDie(err)

	// start CLI
	cli := newCommandLine(conf, db, sqlxrepos.NewClient(db), store, os.Stdout)
	err = cli.run(os.Args)
	closeAll(db, closeStore)
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func newCommandLine(conf *core.Config, db *sql.DB, client backend.Client, store subscription.ClaimStore, out io.Writer) *commandLine {
	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(false)
	return &commandLine{
		conf:   conf,
		db:     db,
		client: client,
		subSvc: subscription.NewService(backend.Ready(client), store, nil, appLogger, subscription.Options{}),
		out:    out,
	}
}

func closeAll(db *sql.DB, closeStore func() error) {
	if err := closeStore(); err != nil {
		logger.Printf("closing claim store: %v", err)
	}
	if err := db.Close(); err != nil {
		logger.Printf("closing database: %v", err)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
