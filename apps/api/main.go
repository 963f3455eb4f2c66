package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/planner/apps/api/echo"
	"github.com/trezcool/planner/core"
	"github.com/trezcool/planner/core/notification"
	"github.com/trezcool/planner/core/planning"
	"github.com/trezcool/planner/core/user"
	cachesvc "github.com/trezcool/planner/services/cache"
	emailsvc "github.com/trezcool/planner/services/email"
	logsvc "github.com/trezcool/planner/services/logger"
	metricsvc "github.com/trezcool/planner/services/metrics"
	"github.com/trezcool/planner/storage/database"
	sqlxrepos "github.com/trezcool/planner/storage/database/sqlx"
	"github.com/trezcool/planner/storage/files"
)

// emailed notification kinds; the others stay in-app only
var mailedKinds = []notification.Kind{
	notification.KindApproved,
	notification.KindRejected,
	notification.KindComment,
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up file storage
	store, err := files.NewDiskStorage(conf.Storage.UploadDir)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}

	// set up cache
	var unreadCache notification.Cache
	if rdb := cachesvc.Connect(context.Background(), conf.Redis, logger); rdb != nil {
		defer rdb.Close()
		unreadCache = cachesvc.NewUnreadCounter(rdb, conf.Redis.TTL, logger)
	}

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	planning.InitValidators(validate, translator)

	// set up services
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), validate)

	var mirror notification.Mirror
	if conf.Notifications.Email {
		var mailSvc core.EmailService
		if conf.Debug {
			mailSvc = emailsvc.NewConsoleService(conf, log.New(os.Stdout, "", 0), logger)
		} else {
			mailSvc = emailsvc.NewSendgridService(conf, logger)
		}
		mirror = notification.NewMailMirror(usrSvc, mailSvc, logger, mailedKinds...)
	}
	notifSvc := notification.NewService(sqlxrepos.NewNotificationRepository(db), unreadCache, mirror)

	mtr := metricsvc.New()
	planningSvc := planning.NewService(planning.Deps{
		Repo:     sqlxrepos.NewPlanningRepository(db),
		Files:    store,
		Users:    usrSvc,
		Notifier: notifSvc,
		Logger:   logger,
		Metrics:  mtr,
		Validate: validate,
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	if err := core.ParseEmailTemplates(conf.Debug); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:            conf,
			Logger:          logger,
			UserSvc:         usrSvc,
			PlanningSvc:     planningSvc,
			NotificationSvc: notifSvc,
			Metrics:         mtr.Handler(),
			Validate:        validate,
			Translator:      translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}
