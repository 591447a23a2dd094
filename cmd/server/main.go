package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/fedih/telemetry-store/internal/database"
	"github.com/fedih/telemetry-store/internal/retention"
	"github.com/fedih/telemetry-store/internal/server"
	"github.com/fedih/telemetry-store/pkg/broker"
	"github.com/fedih/telemetry-store/pkg/config"
	"github.com/fedih/telemetry-store/pkg/logger"
)

func main() {
	var (
		configFile     = flag.String("config", "", "Path to configuration file")
		validateConfig = flag.Bool("validate-config", false, "Validate configuration and exit")
		host           = flag.String("host", "0.0.0.0", "Server host")
		port           = flag.Int("port", 8668, "Server port")
		dbHost         = flag.String("db-host", "localhost", "Database host")
		dbPort         = flag.Int("db-port", 5432, "Database port")
		dbUsername     = flag.String("db-username", "postgres", "Database username")
		dbPassword     = flag.String("db-password", "", "Database password")
		dbName         = flag.String("db-name", "telemetry", "Database name")
		dbSSLMode      = flag.String("db-ssl-mode", "disable", "Database SSL mode")
		brokerURL      = flag.String("broker-url", "", "Context broker URL (enables subscription registration)")
		logLevel       = flag.String("log-level", "info", "Log level")
		version        = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("telemetry-store v1.0.0")
		os.Exit(0)
	}

	if *configFile != "" {
		if err := config.ValidateConfigPath(*configFile); err != nil {
			log.Fatalf("Invalid config file: %v", err)
		}
	}

	// Override with environment variables if available
	if envHost := os.Getenv("SERVER_HOST"); envHost != "" {
		*host = envHost
	}
	if envPort := os.Getenv("SERVER_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			*port = p
		}
	}
	if envDBHost := os.Getenv("DB_HOST"); envDBHost != "" {
		*dbHost = envDBHost
	}
	if envDBPort := os.Getenv("DB_PORT"); envDBPort != "" {
		if p, err := strconv.Atoi(envDBPort); err == nil {
			*dbPort = p
		}
	}
	if envDBUsername := os.Getenv("DB_USERNAME"); envDBUsername != "" {
		*dbUsername = envDBUsername
	}
	if envDBPassword := os.Getenv("DB_PASSWORD"); envDBPassword != "" {
		*dbPassword = envDBPassword
	}
	if envDBName := os.Getenv("DB_DATABASE"); envDBName != "" {
		*dbName = envDBName
	}
	if envBrokerURL := os.Getenv("BROKER_URL"); envBrokerURL != "" {
		*brokerURL = envBrokerURL
	}

	// Start from defaults, then file, then environment
	serverConfig := server.GetDefaultConfig()

	if *configFile != "" {
		if err := serverConfig.Load(*configFile); err != nil {
			log.Fatalf("Failed to load configuration from file: %v", err)
		}
	} else {
		if err := serverConfig.LoadFromEnv(); err != nil {
			log.Fatalf("Failed to load configuration from environment: %v", err)
		}
	}

	// Command line flags take highest priority
	if *host != "0.0.0.0" {
		serverConfig.Host = *host
	}
	if *port != 8668 {
		serverConfig.Port = *port
	}
	if *logLevel != "info" {
		serverConfig.LogLevel = *logLevel
	}
	if *dbHost != "localhost" {
		serverConfig.Database.Host = *dbHost
	}
	if *dbPort != 5432 {
		serverConfig.Database.Port = *dbPort
	}
	if *dbUsername != "postgres" {
		serverConfig.Database.Username = *dbUsername
	}
	if *dbPassword != "" {
		serverConfig.Database.Password = *dbPassword
	}
	if *dbName != "telemetry" {
		serverConfig.Database.Database = *dbName
	}
	if *dbSSLMode != "disable" {
		serverConfig.Database.SSLMode = *dbSSLMode
	}
	if *brokerURL != "" {
		serverConfig.Broker.Enabled = true
		serverConfig.Broker.URL = *brokerURL
	}

	if *validateConfig {
		if err := serverConfig.Validate(); err != nil {
			fmt.Printf("Configuration validation failed:\n%v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration validation passed successfully.")
		os.Exit(0)
	}

	// Initialize structured logging early
	logFormat := logger.JSONFormat
	if serverConfig.LogFormat == "text" {
		logFormat = logger.TextFormat
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLogLevel(serverConfig.LogLevel),
		Format:  logFormat,
		Output:  os.Stdout,
		Service: "telemetry-store",
	})
	logger.SetDefault(appLogger)

	// Initialize database
	appLogger.WithFields(map[string]interface{}{
		"host":     serverConfig.Database.Host,
		"port":     serverConfig.Database.Port,
		"database": serverConfig.Database.Database,
	}).Info("Connecting to database")

	db, err := database.New(serverConfig.Database)
	if err != nil {
		appLogger.Fatal("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Connect(ctx); err != nil {
		appLogger.Fatal("Failed to connect to database: %v", err)
	}

	// Check for pending migrations
	migrator := db.Migrator()
	pendingMigrations, err := migrator.GetPendingMigrations(ctx)
	if err != nil {
		appLogger.Fatal("Failed to check migrations: %v", err)
	}

	if len(pendingMigrations) > 0 {
		appLogger.WithField("pending_count", len(pendingMigrations)).Warn("Found pending migrations")

		if os.Getenv("DB_AUTO_MIGRATE") == "true" {
			appLogger.Info("Running migrations automatically")
			if err := migrator.Migrate(ctx); err != nil {
				appLogger.Fatal("Failed to run migrations: %v", err)
			}
			appLogger.Info("Migrations completed successfully")
		} else {
			appLogger.Info("Run migrations first: go run cmd/migrate/main.go -command migrate")
			os.Exit(1)
		}
	}

	// Register broker subscriptions. The broker may come up after this
	// service, so failure here is logged and not fatal.
	if serverConfig.Broker != nil && serverConfig.Broker.Enabled {
		registerSubscriptions(ctx, serverConfig.Broker, appLogger)
	}

	// Start retention sweeper
	sweeper := retention.NewSweeper(serverConfig.Retention, db.NewTelemetryService())
	if err := sweeper.Start(); err != nil {
		appLogger.Fatal("Failed to start retention sweeper: %v", err)
	}
	defer sweeper.Stop()

	srv, err := server.New(serverConfig, db)
	if err != nil {
		appLogger.Fatal("Failed to initialize server: %v", err)
	}

	appLogger.WithFields(map[string]interface{}{
		"server_url":   fmt.Sprintf("http://%s", serverConfig.GetAddress()),
		"health_check": serverConfig.HealthCheckPath,
		"metrics":      serverConfig.MetricsPath,
		"retention":    serverConfig.Retention.Enabled,
		"broker":       serverConfig.Broker.Enabled,
		"log_level":    serverConfig.LogLevel,
	}).Info("Starting telemetry-store server")

	if err := srv.Start(context.Background()); err != nil {
		appLogger.Fatal("Server failed: %v", err)
	}
}

func registerSubscriptions(ctx context.Context, cfg *broker.Config, log *logger.Logger) {
	client := broker.NewClient(cfg)

	version, err := client.Version(ctx)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Context broker unreachable, skipping subscription registration")
		return
	}
	log.WithField("broker_version", version).Info("Context broker reachable")

	created, err := client.EnsureSubscriptions(ctx, cfg.Subscriptions, cfg.NotifyURL)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Failed to register broker subscriptions")
		return
	}

	log.WithField("created", len(created)).Info("Broker subscriptions registered")
}
