package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/fee"
	"github.com/trezcool/academia/core/promotion"
	"github.com/trezcool/academia/core/user"
	exportsvc "github.com/trezcool/academia/services/export"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/storage/database"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!(conf.Debug || conf.TestMode) && conf.RollbarToken != "")

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(err.Error(), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(err.Error(), err)
	}

	// set up services
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	tx := database.NewTxRunner(db)
	usrRepo := sqlxrepos.NewUserRepository(db)
	academicRepo := sqlxrepos.NewAcademicRepository(db)
	feeRepo := sqlxrepos.NewFeeRepository(db)

	// start CLI
	cli := commandLine{
		db:          db,
		validate:    validate,
		usrRepo:     usrRepo,
		usrSvc:      user.NewService(usrRepo),
		academicSvc: academic.NewService(academicRepo, tx, usrRepo),
		promotionSvc: promotion.NewService(
			logger,
			tx,
			sqlxrepos.NewPromotionRepository(db),
			academicRepo,
			academic.NewRegistrar(academicRepo),
			fee.NewGenerator(feeRepo, logger),
			nil, // the report is printed
			exportsvc.NewXLSXWriter(),
		),
		out: os.Stdout,
	}
	code := 0
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			stdLogger.Printf("\nerror: %s\n", err)
		}
		code = 1
	}
	if err := db.Close(); err != nil {
		stdLogger.Printf("closing db: %v", err)
	}
	os.Exit(code)
}
