package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	billingapp "github.com/vetclinic/backend/internal/application/billing"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/domain/shared"
	"github.com/vetclinic/backend/internal/infrastructure/cache"
	"github.com/vetclinic/backend/internal/infrastructure/config"
	"github.com/vetclinic/backend/internal/infrastructure/event"
	"github.com/vetclinic/backend/internal/infrastructure/logger"
	"github.com/vetclinic/backend/internal/infrastructure/persistence"
	"github.com/vetclinic/backend/internal/infrastructure/scheduler"
	"github.com/vetclinic/backend/internal/infrastructure/telemetry"
	"github.com/vetclinic/backend/internal/interfaces/http/handler"
	"github.com/vetclinic/backend/internal/interfaces/http/middleware"
	"github.com/vetclinic/backend/internal/interfaces/http/router"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		panic(err.Error())
	}
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting billing service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	// Telemetry
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	if lp.IsEnabled() {
		log = lp.Bridge(log, logger.ParseLevel(cfg.Log.Level))
	}
	defer shutdownTelemetry(log, tp, mp, lp)

	// Database
	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Database.LogLevel), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.Open(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbTracing := telemetry.DefaultDBTracingConfig()
		dbTracing.Enabled = true
		dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
		dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
		if cfg.Database.Driver == config.DriverSQLite {
			dbTracing.DBSystem = "sqlite"
		}
		if err := telemetry.NewDBTracingPlugin(dbTracing, log).RegisterOtelGorm(db.DB); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}

	// SQLite deployments have no migration runner; postgres uses cmd/migrate
	if cfg.Database.Driver == config.DriverSQLite {
		if err := db.AutoMigrateBilling(); err != nil {
			log.Fatal("Failed to migrate sqlite schema", zap.Error(err))
		}
	}

	// Redis
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing redis", zap.Error(err))
			}
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	// Repositories and lookups
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB).WithLegacyReads(cfg.Billing.TolerateLegacyRefs)
	itemRepo := persistence.NewGormInvoiceItemRepository(db.DB).WithLegacyReads(cfg.Billing.TolerateLegacyRefs)
	directory := persistence.NewGormDirectoryLookup(db.DB)
	sequence := newInvoiceSequence(cfg, db, redisClient, log)

	// Snapshots and price repairs read the catalog directly; the cache only
	// serves the include option of item reads.
	catalog := persistence.NewGormCatalogLookup(db.DB)
	var displayCatalog billing.CatalogLookup = catalog
	if redisClient != nil && cfg.Billing.CatalogCacheTTL > 0 {
		displayCatalog = cache.NewCachedCatalogLookup(catalog, redisClient, cfg.Billing.CatalogCacheTTL, log)
	}

	// Events
	var meter metric.Meter = mp.Meter(telemetry.TracerName)
	billingMetrics, err := telemetry.NewBillingMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create billing metrics", zap.Error(err))
	}

	bus := event.NewBus(log)
	codec := event.NewCodec()
	event.RegisterBillingEvents(codec)

	var dedup shared.IdempotencyStore
	if redisClient != nil {
		dedup = cache.NewRedisIdempotencyStore(redisClient)
	} else {
		dedup = cache.NewMemoryIdempotencyStore(time.Minute)
	}
	defer func() {
		_ = dedup.Close()
	}()
	dedupCfg := shared.DefaultIdempotencyConfig()
	if cfg.Billing.EventDedupTTL > 0 {
		dedupCfg.TTL = cfg.Billing.EventDedupTTL
	}
	event.SubscribeBillingHandlers(bus, codec, billingMetrics, dedup, dedupCfg, log)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Services
	settings := billingapp.DefaultSettings()
	settings.AutoFixEnabled = cfg.Billing.AutoFixEnabled
	if cfg.Billing.AutoFixTolerance > 0 {
		settings.Tolerance = decimal.NewFromFloat(cfg.Billing.AutoFixTolerance)
	}

	invoiceService := billingapp.NewInvoiceService(invoiceRepo, itemRepo, catalog, sequence, directory, directory, settings)
	itemService := billingapp.NewInvoiceItemService(invoiceRepo, itemRepo, catalog)
	itemService.SetDisplayCatalog(displayCatalog)
	maintenanceService := billingapp.NewMaintenanceService(invoiceRepo, itemRepo, catalog, sequence, settings)

	invoiceService.SetEventPublisher(bus)
	invoiceService.SetMetrics(billingMetrics)
	invoiceService.SetLogger(log)
	itemService.SetEventPublisher(bus)
	itemService.SetMetrics(billingMetrics)
	itemService.SetLogger(log)
	maintenanceService.SetEventPublisher(bus)
	maintenanceService.SetMetrics(billingMetrics)
	maintenanceService.SetLogger(log)

	maintenance, trigger := startMaintenance(ctx, cfg, maintenanceService, log)

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(meter, cfg.Telemetry.Enabled),
		middleware.CORS(corsCfg),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.Timeout(cfg.HTTP.RequestTimeout),
	)

	systemHandler := handler.NewSystemHandler(version).
		AddCheck("database", db.Ping)
	if redisClient != nil {
		systemHandler.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	router.RegisterSystemRoutes(engine, systemHandler)

	api := router.NewRouter(engine).
		Register(router.BillingRoutes(router.BillingHandlers{
			Invoices:    handler.NewInvoiceHandler(invoiceService),
			Items:       handler.NewInvoiceItemHandler(itemService),
			Maintenance: handler.NewMaintenanceHandler(maintenanceService),
		})...).
		Setup()
	log.Debug("Billing routes mounted", zap.Strings("routes", api.Routes()))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if trigger != nil {
		_ = trigger.Stop(shutdownCtx)
	}
	if maintenance != nil {
		if err := maintenance.Stop(shutdownCtx); err != nil {
			log.Error("Maintenance scheduler stop failed", zap.Error(err))
		}
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus stop failed", zap.Error(err))
	}
	if failed := bus.FailedDeliveries(); failed > 0 {
		log.Warn("Event deliveries failed during run", zap.Int64("count", failed))
	}

	log.Info("Server exited gracefully")
}

// startMaintenance runs the nightly reference and numbering repairs when
// billing.maintenance_schedule is set
func startMaintenance(ctx context.Context, cfg *config.Config, svc *billingapp.MaintenanceService, log *zap.Logger) (*scheduler.Scheduler, *scheduler.CronTrigger) {
	if cfg.Billing.MaintenanceSchedule == "" {
		return nil, nil
	}
	triggerCfg, err := scheduler.CronTriggerConfigFromSchedule(cfg.Billing.MaintenanceSchedule)
	if err != nil {
		log.Fatal("Invalid maintenance schedule", zap.Error(err))
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.JobTimeout = cfg.Billing.MaintenanceTimeout
	sched := scheduler.NewScheduler(schedCfg, scheduler.NewMaintenanceExecutor(svc, log), log)
	if err := sched.Start(ctx); err != nil {
		log.Fatal("Failed to start maintenance scheduler", zap.Error(err))
	}
	trigger := scheduler.NewCronTrigger(triggerCfg, sched, log)
	if err := trigger.Start(ctx); err != nil {
		log.Fatal("Failed to start maintenance trigger", zap.Error(err))
	}
	return sched, trigger
}

// newInvoiceSequence picks the invoice number counter. The redis counter is
// seeded from the database so numbering continues where stored invoices end.
func newInvoiceSequence(cfg *config.Config, db *persistence.Database, client *redis.Client, log *zap.Logger) billing.InvoiceSequence {
	dbSequence := persistence.NewGormInvoiceSequence(db.DB)
	if cfg.Billing.SequenceBackend != config.SequenceBackendRedis {
		return dbSequence
	}
	if client == nil {
		log.Warn("Redis sequence backend requested without redis, using database counter")
		return dbSequence
	}
	return cache.NewRedisInvoiceSequence(client,
		cache.WithSequenceSeed(dbSequence.Seed),
		cache.WithSequenceLogger(log),
	)
}

func shutdownTelemetry(log *zap.Logger, tp *telemetry.TracerProvider, mp *telemetry.MeterProvider, lp *telemetry.LoggerProvider) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error("Tracer provider shutdown failed", zap.Error(err))
	}
	if err := mp.Shutdown(ctx); err != nil {
		log.Error("Meter provider shutdown failed", zap.Error(err))
	}
	if err := lp.Shutdown(ctx); err != nil {
		log.Error("Logger provider shutdown failed", zap.Error(err))
	}
}
