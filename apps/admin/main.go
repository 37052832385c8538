package main

import (
	"log"
	"os"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/services/content"
	"github.com/trezcool/masomo-scorm/storage/database"
	"github.com/trezcool/masomo-scorm/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	// start CLI
	pkgRepo := sqlxrepos.NewPackageRepository(db)
	cli := commandLine{
		db:       db.DB,
		writer:   pkgRepo,
		content:  contentsvc.NewLocalStore(conf.Content.Root),
		resolver: scorm.NewResolver(pkgRepo, conf.Content.Route),
		out:      os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
