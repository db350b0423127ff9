package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"advocate_dashboard/internal/airtable"
	"advocate_dashboard/internal/config"
	"advocate_dashboard/internal/dashboard"
	"advocate_dashboard/internal/db"
	"advocate_dashboard/internal/logger"
	"advocate_dashboard/internal/metrics"
	"advocate_dashboard/internal/queue"
	"advocate_dashboard/internal/server"
	"advocate_dashboard/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	logger.Init()
	defer logger.Log.Info("Application stopped")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Загрузка конфигурации
	if err := config.LoadEnv(); err != nil {
		logger.Log.Fatalf(".env load error: %v", err)
	}
	cfg, err := config.LoadConfig(config.Path())
	if err != nil {
		logger.Log.Fatalf("Config load error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Log.Fatalf("Invalid config: %v", err)
	}
	if missing := cfg.Airtable.Missing(); len(missing) > 0 {
		logger.Log.Warnf("Airtable credentials missing: %v", missing)
	}

	// Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := dashboard.Options{
		PageSize:  cfg.Dashboard.PageSize,
		Debounce:  cfg.Dashboard.Debounce(),
		NoticeTTL: cfg.Dashboard.NoticeTTL(),
		Clock:     dashboard.RealClock(),
		Metrics:   m,
	}

	// Журнал модерации
	var history server.History
	if cfg.Database.DSN != "" {
		database, err := db.NewDB(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Log.Fatalf("DB connection error: %v", err)
		}
		defer database.Close()
		if err := database.EnsureSchema(ctx); err != nil {
			logger.Log.Fatalf("DB schema error: %v", err)
		}
		opts.Journal = database
		history = database
	} else {
		logger.Log.Info("Review journal disabled: no database DSN")
	}

	// Настройка RabbitMQ Producer
	var consumer *queue.Consumer
	if cfg.RabbitMQ.URL != "" {
		producer, err := queue.NewProducer(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Log.Fatalf("RabbitMQ producer error: %v", err)
		}
		defer producer.Close()
		opts.Publisher = queue.NewReviewPublisher(producer, cfg.RabbitMQ.ReviewQueue)

		consumer, err = queue.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.RunQueue, cfg.RabbitMQ.Workers)
		if err != nil {
			logger.Log.Fatalf("RabbitMQ consumer error: %v", err)
		}
		defer consumer.Close()
	} else {
		logger.Log.Info("RabbitMQ disabled: no URL")
	}

	client := airtable.NewClient(cfg.Airtable, m)
	dash := dashboard.New(client, opts)
	defer dash.Close()

	// Запуск воркеров
	if consumer != nil {
		wrk := worker.NewWorker(dash)
		if err := consumer.Consume(wrk.HandleTask); err != nil {
			logger.Log.Fatalf("RabbitMQ consume error: %v", err)
		}
	}

	// Первая загрузка
	go func() {
		if err := dash.Load(ctx); err != nil {
			logger.Log.Warnf("Initial load failed: %v", err)
		}
	}()

	// HTTP сервер
	srv := server.NewServer(dash, history, m, reg)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(cfg.HTTP.WebDir),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Log.Infof("Starting HTTP server on %s", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down...")
	ctxShutdown, cancelShutdown := context.WithTimeout(ctx, 5*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Log.Errorf("Forced shutdown: %v", err)
	}
}
