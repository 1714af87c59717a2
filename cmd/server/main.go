package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/config"
	"github.com/mamadbah2/farmledger/internal/repository"
	"github.com/mamadbah2/farmledger/internal/repository/memory"
	"github.com/mamadbah2/farmledger/internal/repository/mongodb"
	"github.com/mamadbah2/farmledger/internal/repository/sheets"
	"github.com/mamadbah2/farmledger/internal/scheduler"
	"github.com/mamadbah2/farmledger/internal/server/handlers"
	"github.com/mamadbah2/farmledger/internal/server/router"
	commandsvc "github.com/mamadbah2/farmledger/internal/service/commands"
	ledgersvc "github.com/mamadbah2/farmledger/internal/service/ledger"
	metricssvc "github.com/mamadbah2/farmledger/internal/service/metrics"
	"github.com/mamadbah2/farmledger/internal/service/notify"
	querysvc "github.com/mamadbah2/farmledger/internal/service/query"
	reportingsvc "github.com/mamadbah2/farmledger/internal/service/reporting"
	salessvc "github.com/mamadbah2/farmledger/internal/service/sales"
	whatsappsvc "github.com/mamadbah2/farmledger/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/farmledger/pkg/clients/whatsapp"
	"github.com/mamadbah2/farmledger/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Server.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	loc, err := time.LoadLocation(cfg.Reporting.Timezone)
	if err != nil {
		baseLogger.Fatal("invalid timezone", zap.String("timezone", cfg.Reporting.Timezone), zap.Error(err))
	}

	var store repository.Store
	switch cfg.Store.Driver {
	case config.DriverMemory:
		baseLogger.Warn("using in-memory store, data is lost on restart")
		store = memory.NewStore()
	default:
		mongoRepo, err := mongodb.NewMongoDBRepository(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName, baseLogger.Named("repo.mongodb"))
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		store = mongoRepo
	}

	changes := notify.NewFanout(baseLogger.Named("notify"))

	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		changes.Subscribe(sheets.NewMirror(sheetsRepo, baseLogger.Named("repo.sheets.mirror")))
		baseLogger.Info("spreadsheet mirror enabled")
	}

	ledgerSvc := ledgersvc.NewService(store, changes, baseLogger.Named("svc.ledger"))
	saleCoordinator := salessvc.NewCoordinator(store, changes, baseLogger.Named("svc.sales"))
	metricGenerator := metricssvc.NewGenerator(store, changes, baseLogger.Named("svc.metrics"))
	querySvc := querysvc.NewService(store, cfg.Server.DefaultPageSize)
	reportingSvc := reportingsvc.NewService(store, baseLogger.Named("svc.reporting"))

	ledgerHandler := handlers.NewLedgerHandler(ledgerSvc, saleCoordinator, metricGenerator, querySvc, reportingSvc, baseLogger.Named("handlers.ledger"))
	opts := router.Options{MetricsEnabled: cfg.Server.MetricsEnabled}

	var digestSender scheduler.Sender
	if cfg.WhatsApp.Enabled() {
		commandDispatcher := commandsvc.NewService(ledgerSvc, saleCoordinator, reportingSvc, loc, baseLogger.Named("svc.commands"))
		whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
		messagingSvc := whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsClient, commandDispatcher, baseLogger.Named("svc.whatsapp"))
		changes.Subscribe(messagingSvc)
		opts.Webhook = handlers.NewWebhookHandler(messagingSvc, baseLogger.Named("handlers.whatsapp"))
		digestSender = messagingSvc
		baseLogger.Info("whatsapp worker commands enabled")
	} else {
		baseLogger.Warn("whatsapp token missing, worker commands and digests delivery disabled")
	}

	engine := router.New(ledgerHandler, opts, baseLogger.Named("router"))

	sched, err := scheduler.NewScheduler(*cfg, reportingSvc, digestSender, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
