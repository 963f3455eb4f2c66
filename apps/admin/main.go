package main

import (
	"log"
	"os"

	"github.com/trezcool/planner/core"
	"github.com/trezcool/planner/core/user"
	logsvc "github.com/trezcool/planner/services/logger"
	"github.com/trezcool/planner/storage/database"
	sqlxrepos "github.com/trezcool/planner/storage/database/sqlx"
)

func main() {
	os.Exit(start())
}

func start() int {
	std := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		std.Fatalf("loading config: %v", err)
	}
	logger := logsvc.NewRollbarLogger(std, conf)
	defer logger.Close()

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(err.Error(), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
	defer db.Close()

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:     db.DB,
		usrSvc: user.NewService(sqlxrepos.NewUserRepository(db), validate),
		out:    os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("\nerror: "+err.Error(), err)
		}
		return 1
	}
	return 0
}
