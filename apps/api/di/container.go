// Package di wires the API dependencies in a dig container.
package di

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	ut "github.com/go-playground/universal-translator"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/fee"
	"github.com/trezcool/academia/core/promotion"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	exportsvc "github.com/trezcool/academia/services/export"
	logsvc "github.com/trezcool/academia/services/logger"
	schedsvc "github.com/trezcool/academia/services/scheduler"
	"github.com/trezcool/academia/storage/database"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	JobLoggerParam struct {
		dig.In
		Logger core.Logger `name:"jobLogger"`
	}

	depsParam struct {
		dig.In
		Validate     *validator.Validate
		Translator   ut.Translator
		UserSvc      *user.Service
		AcademicSvc  *academic.Service
		PromotionSvc *promotion.Service
		FeeSvc       *fee.Service
	}
)

func newRollbarLogger(conf *core.Config, prefix string, flags int) core.Logger {
	stdLogger := log.New(os.Stdout, prefix, flags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!(conf.Debug || conf.TestMode) && conf.RollbarToken != "")
	return logger
}

func newLogger(conf *core.Config) core.Logger {
	return newRollbarLogger(conf, "API : ", log.LstdFlags)
}

func newDBLogger(conf *core.Config) core.Logger {
	return newRollbarLogger(conf, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
}

func newJobLogger(conf *core.Config) core.Logger {
	return newRollbarLogger(conf, "JOB : ", log.LstdFlags)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sql.DB {
	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newClassLookup(repo academic.Repository) fee.ClassLookup {
	return repo
}

func newUserLookup(repo user.Repository) academic.UserLookup {
	return repo
}

func newScheduler(conf *core.Config, loggerParam JobLoggerParam, fees *fee.Service) (*schedsvc.Scheduler, error) {
	return schedsvc.NewScheduler(conf, loggerParam.Logger, fees)
}

func newDeps(p depsParam) *echoapi.Deps {
	return &echoapi.Deps{
		Validate:     p.Validate,
		Translator:   p.Translator,
		UserSvc:      p.UserSvc,
		AcademicSvc:  p.AcademicSvc,
		PromotionSvc: p.PromotionSvc,
		FeeSvc:       p.FeeSvc,
	}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	// ambient
	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newJobLogger, dig.Name("jobLogger")))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newEmailService))

	// storage
	must(c.Provide(newDB))
	must(c.Provide(database.NewTxRunner, dig.As(new(core.TxRunner))))
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewAcademicRepository, dig.As(new(academic.Repository), new(promotion.Directory))))
	must(c.Provide(sqlxrepos.NewFeeRepository, dig.As(new(fee.Repository))))
	must(c.Provide(sqlxrepos.NewPromotionRepository, dig.As(new(promotion.Repository))))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(newUserLookup))
	must(c.Provide(academic.NewService))
	must(c.Provide(academic.NewRegistrar, dig.As(new(promotion.Registrar))))
	must(c.Provide(newClassLookup))
	must(c.Provide(fee.NewService))
	must(c.Provide(fee.NewGenerator, dig.As(new(promotion.FeeGenerator))))
	must(c.Provide(exportsvc.NewXLSXWriter, dig.As(new(promotion.ReportWriter))))
	must(c.Provide(promotion.NewService))
	must(c.Provide(newScheduler))
	must(c.Provide(newDeps))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
