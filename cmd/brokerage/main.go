package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/brokerage/api"
	"github.com/Aidin1998/brokerage/internal/config"
	"github.com/Aidin1998/brokerage/internal/customer"
	"github.com/Aidin1998/brokerage/internal/database"
	"github.com/Aidin1998/brokerage/internal/ledger"
	"github.com/Aidin1998/brokerage/internal/matching"
	"github.com/Aidin1998/brokerage/internal/order"
	"github.com/Aidin1998/brokerage/internal/trade"
	"github.com/Aidin1998/brokerage/internal/transaction"
	"github.com/Aidin1998/brokerage/pkg/keylock"
	"github.com/Aidin1998/brokerage/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Create logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Connect to the database
	var db *gorm.DB
	switch cfg.Database.Driver {
	case "postgres":
		db, err = database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	case "sqlite":
		db, err = database.NewSQLiteDB(cfg.Database.DSN)
	default:
		zapLogger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := database.Migrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate schema", zap.Error(err))
	}

	// Create services around one shared lock registry
	locks := keylock.New()
	customersSvc := customer.NewService(zapLogger, db)
	ledgerSvc := ledger.NewService(zapLogger, db, locks)
	ordersSvc := order.NewService(zapLogger, db, customersSvc, ledgerSvc, locks)
	tradesRec := trade.NewRecorder(zapLogger, db)
	transactionsSvc := transaction.NewService(zapLogger, db, customersSvc, ledgerSvc)
	engine := matching.NewEngine(zapLogger, db, ledgerSvc, tradesRec, locks)

	// Create API server
	apiServer := api.NewServer(
		zapLogger,
		customersSvc,
		ledgerSvc,
		ordersSvc,
		tradesRec,
		transactionsSvc,
		engine,
	)

	// Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		if err := apiServer.Start(addr); err != nil {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	zapLogger.Info("Server exited properly")
}
