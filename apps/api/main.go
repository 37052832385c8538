package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/masomo-scorm/apps/api/echo"
	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/services/content"
	"github.com/trezcool/masomo-scorm/services/logger"
	"github.com/trezcool/masomo-scorm/storage/database"
	"github.com/trezcool/masomo-scorm/storage/database/inmem"
	"github.com/trezcool/masomo-scorm/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	contentStore := contentsvc.NewLocalStore(conf.Content.Root)

	// set up storage
	var (
		packages scorm.PackageRepository
		states   scorm.StateStore
	)
	if conf.Runtime.InMemory {
		mem := inmemdb.Open()
		pkgRepo := inmemdb.NewPackageRepository(mem)
		registerLocalPackages(contentStore, pkgRepo, logger)
		packages, states = pkgRepo, inmemdb.NewStateStore(mem)
	} else {
		db, err := setUpDB(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		packages, states = sqlxrepos.NewPackageRepository(db), sqlxrepos.NewStateStore(db)
	}

	// set up services
	committer := scorm.NewCommitter(states, dbLogger, scorm.CommitterOptions{
		QueueSize: conf.Runtime.CommitQueueSize,
		Timeout:   conf.Runtime.CommitTimeout,
	})
	committer.Start()

	players := scorm.NewService(scorm.NewResolver(packages, conf.Content.Route), states, committer, logger, scorm.PlayerOptions{
		ContentRoute:  conf.Content.Route,
		HostOrigin:    conf.Server.Host,
		ContentOrigin: conf.Content.Origin,
		Strict:        conf.Runtime.StrictDataModel,
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	scorm.InitValidators(validate, translator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	debugServer := &http.Server{Addr: conf.Server.DebugHost, Handler: http.DefaultServeMux}
	g.Go(func() error {
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
		return nil
	})

	// =========================================================================
	// Start Player Reaper

	g.Go(func() error {
		reapPlayers(gctx, players, conf.Runtime.PlayerIdleTimeout)
		return nil
	})

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		&echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Players:    players,
			Packages:   packages,
			Content:    contentStore,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer shutdownCancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}

		cancel()
		if err := debugServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop debug server: %v", err), err)
		}

		// no more calls can reach a bridge: drain what they enqueued
		players.Close()
		if err := committer.Stop(shutdownCtx); err != nil {
			dbLogger.Error(fmt.Sprintf("pending commits lost: %v", err), err)
		}
		_ = g.Wait()
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

// registerLocalPackages registers every package extracted under the content root, keyed by its directory.
func registerLocalPackages(store *contentsvc.LocalStore, w scorm.PackageWriter, logger core.Logger) {
	dirs, err := store.Discover()
	if err != nil {
		logger.Warn(fmt.Sprintf("no local packages: %v", err), err)
		return
	}
	for _, dir := range dirs {
		pkg, units, err := store.Register(context.Background(), w, dir, dir)
		if err != nil {
			logger.Warn(fmt.Sprintf("skipping package %s: %v", dir, err), err)
			continue
		}
		logger.Info(fmt.Sprintf("registered course %s (%d units)", pkg.CourseID, len(units)))
	}
}

// reapPlayers tears down abandoned players until ctx is done.
func reapPlayers(ctx context.Context, players *scorm.Service, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(maxIdle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			players.Expire(maxIdle)
		}
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
