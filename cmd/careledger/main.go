package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/careledger/careledger/internal/config"
	v1 "github.com/careledger/careledger/internal/handler/v1"
	"github.com/careledger/careledger/internal/repository"
	"github.com/careledger/careledger/internal/service"
	"github.com/careledger/careledger/pkg/auth"
	"github.com/careledger/careledger/pkg/blob"
	"github.com/careledger/careledger/pkg/database"
	"github.com/careledger/careledger/pkg/logger"
	"github.com/careledger/careledger/pkg/metrics"
	"github.com/careledger/careledger/pkg/tracer"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("loading config: " + err.Error())
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("initializing logger: " + err.Error())
	}
	defer log.Sync() //nolint:errcheck

	log.Info("starting careledger",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	if cfg.Tracing.Enabled {
		tp, err := tracer.Init(cfg.Tracing)
		if err != nil {
			log.Fatal("initializing tracer", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Warn("tracer shutdown", zap.Error(err))
			}
		}()
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal("connecting to database", zap.Error(err))
	}
	if err := database.Migrate(db, log); err != nil {
		log.Fatal("running migrations", zap.Error(err))
	}

	blobs, err := blob.NewS3Store(context.Background(), cfg.Storage, log)
	if err != nil {
		log.Fatal("initializing blob store", zap.Error(err))
	}

	recordRepo := repository.NewRecordRepository(db)
	accessRepo := repository.NewAccessRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	jwtManager := auth.NewJWTManager(cfg.JWT)
	collector := metrics.NewCollector(cfg.App.Name)

	auditSvc := service.NewAuditService(auditRepo, log)
	auditSvc.Written = collector.AuditEntriesTotal
	auditSvc.Dropped = collector.AuditBufferDropped
	notifySvc := service.NewNotifyService(&service.LogSender{Log: log}, log)
	statsSvc := service.NewStatsService(profileRepo, log)
	accessSvc := service.NewAccessService(accessRepo, profileRepo, statsSvc, auditSvc, notifySvc, log)
	recordSvc := service.NewRecordService(recordRepo, accessSvc, statsSvc, blobs, auditSvc, notifySvc, log)
	authSvc := service.NewAuthService(userRepo, jwtManager, auditSvc, log)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := service.NewSweeper(accessSvc, cfg.Sweep.Interval, log)
	sweeper.Expired = collector.GrantsExpiredTotal
	go sweeper.Run(sweepCtx)

	router := &v1.Router{
		Auth:      v1.NewAuthHandler(authSvc),
		Records:   v1.NewRecordHandler(recordSvc, cfg.Storage.HandleTTL, cfg.Storage.MaxUploadSize, collector),
		Access:    v1.NewAccessHandler(accessSvc, collector),
		Profiles:  v1.NewProfileHandler(statsSvc),
		JWT:       jwtManager,
		Collector: collector,
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router.Build(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}

	// Drain best-effort workers after the request path is quiet.
	notifySvc.Shutdown()
	auditSvc.Shutdown()

	log.Info("stopped")
}
