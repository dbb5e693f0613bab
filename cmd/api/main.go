package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docintake/internal/config"
	handlers "docintake/internal/http/handler"
	"docintake/internal/http/middleware"
	"docintake/internal/logging"
	"docintake/internal/metrics"
	"docintake/internal/otel"
	"docintake/internal/service"
)

const shutdownTimeout = 10 * time.Second

// @title Document Intake API
// @version 1.0
// @description Upload identity documents and extract their fields.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	loc := cfg.Location()
	logging.SetLocation(loc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx)
	if err != nil {
		fatal("tracing_init_failed", err)
	}

	db, docRepo, err := newRepository(ctx, cfg.Database)
	if err != nil {
		fatal("database_init_failed", err)
	}
	if db != nil {
		defer db.Close()
	}

	scratch, err := newScratch(ctx, cfg)
	if err != nil {
		fatal("scratch_init_failed", err)
	}

	extractor, closeExtractor, err := newExtractor(ctx, cfg.Extractor)
	if err != nil {
		fatal("extractor_init_failed", err)
	}
	defer closeExtractor()

	tmpl, err := cfg.Extractor.ResolveTemplate()
	if err != nil {
		fatal("extractor_init_failed", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics, err := metrics.NewPipeline(reg)
	if err != nil {
		fatal("metrics_init_failed", err)
	}
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		fatal("metrics_init_failed", err)
	}

	docSvc := service.NewDocumentService(scratch, docRepo, extractor, service.Options{
		Template:      templateOf(tmpl),
		VendorTimeout: cfg.Extractor.Timeout,
		Metrics:       pipelineMetrics,
	})

	app := fiber.New(fiber.Config{
		BodyLimit:    cfg.Upload.BodyLimit,
		ErrorHandler: handlers.ErrorHandler(),
	})

	app.Use(middleware.Recover())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware())
	app.Use(middleware.LoggerWithWriter(os.Stdout, loc))
	app.Use(promMiddleware.Handler())
	app.Use(cors.New())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	handlers.RegisterRoutes(app, db, docSvc)

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logging.Error("server_shutdown_failed", map[string]any{"error": err.Error()})
		}
	}()

	logging.Info("server_started", map[string]any{
		"port":      cfg.Port,
		"extractor": cfg.Extractor.Provider,
		"scratch":   cfg.Scratch.Backend,
		"database":  db != nil,
		"template":  templateOf(tmpl).String(),
	})
	if err := app.Listen(":" + cfg.Port); err != nil {
		fatal("server_failed", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logging.Error("tracing_shutdown_failed", map[string]any{"error": err.Error()})
	}
	logging.Info("server_stopped", nil)
}

func fatal(msg string, err error) {
	logging.Error(msg, map[string]any{"error": err.Error()})
	os.Exit(1)
}
