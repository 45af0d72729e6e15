package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/adapter/handler"
	"github.com/rl1809/stockroom/internal/adapter/notify"
	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/config"
	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
	"github.com/rl1809/stockroom/internal/port"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Notification sinks
	var sinks []port.StockNotifier

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, stock-change channel disabled", zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		sinks = append(sinks, notify.NewRedisPublisher(rdb, cfg.RedisChannel))
	}

	var kafkaPublisher *notify.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, kafkaPublisher)
		logger.Info("kafka sink enabled", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	dispatcher := notify.NewDispatcher(sinks, cfg.NotifyQueueSize, cfg.NotifyWorkers, logger)

	// Storage
	var (
		st  port.Store
		tx  port.TxManager
		db  *sql.DB
		mem *storage.MemoryStore
	)

	switch cfg.StorageDriver {
	case config.DriverMemory:
		mem = storage.NewMemoryStore(dispatcher, cfg.LowStockThreshold, logger)
		if err := storage.Seed(ctx, mem); err != nil {
			logger.Fatal("failed to seed memory store", zap.Error(err))
		}
		st, tx = mem, mem
		logger.Info("using in-memory storage")
	case config.DriverMySQL:
		db, err = sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			logger.Fatal("failed to open mysql", zap.Error(err))
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("failed to ping mysql", zap.Error(err))
		}
		logger.Info("connected to mysql")

		mysqlStore := storage.NewMySQLStore(db, dispatcher, cfg.LowStockThreshold, logger)
		if err := mysqlStore.Migrate(ctx); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		st, tx = mysqlStore, mysqlStore
	default:
		logger.Fatal("unknown storage driver", zap.String("driver", cfg.StorageDriver))
	}

	// Services
	pricing := domain.Pricing{TaxRate: cfg.TaxRate, ShippingFee: cfg.ShippingFee}
	orderService := service.NewOrderService(st, tx, pricing, logger)
	catalogService := service.NewCatalogService(st, tx, cfg.LowStockThreshold, logger)

	h := handler.NewHTTPHandler(orderService, catalogService)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("HTTP server stopped")

	dispatcher.Close()
	logger.Info("notification dispatcher stopped")

	if kafkaPublisher != nil {
		kafkaPublisher.Close()
	}
	rdb.Close()
	if db != nil {
		db.Close()
	}
	logger.Info("connections closed")
}
