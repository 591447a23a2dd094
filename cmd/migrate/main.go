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
)

func main() {
	var (
		host     = flag.String("host", "localhost", "Database host")
		port     = flag.Int("port", 5432, "Database port")
		username = flag.String("username", "postgres", "Database username")
		password = flag.String("password", "", "Database password")
		dbname   = flag.String("database", "telemetry", "Database name")
		sslmode  = flag.String("sslmode", "disable", "SSL mode")
		command  = flag.String("command", "migrate", "Command to run: migrate, status, up, validate")
		count    = flag.Int("count", 0, "Number of migrations to run (for 'up' command)")
	)
	flag.Parse()

	// Override with environment variables if available
	if envHost := os.Getenv("DB_HOST"); envHost != "" {
		*host = envHost
	}
	if envPort := os.Getenv("DB_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			*port = p
		}
	}
	if envUsername := os.Getenv("DB_USERNAME"); envUsername != "" {
		*username = envUsername
	}
	if envPassword := os.Getenv("DB_PASSWORD"); envPassword != "" {
		*password = envPassword
	}
	if envDatabase := os.Getenv("DB_DATABASE"); envDatabase != "" {
		*dbname = envDatabase
	}
	if envSSLMode := os.Getenv("DB_SSL_MODE"); envSSLMode != "" {
		*sslmode = envSSLMode
	}

	config := &database.Config{
		Host:     *host,
		Port:     *port,
		Username: *username,
		Password: *password,
		Database: *dbname,
		SSLMode:  *sslmode,
	}

	migrator, err := database.NewMigrator(config)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}
	defer migrator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch *command {
	case "migrate":
		if err := migrator.Migrate(ctx); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Println("Migrations completed successfully")

	case "status":
		status, err := migrator.GetMigrationStatus(ctx)
		if err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}

		fmt.Println("Migration Status:")
		fmt.Println("=================")
		for _, migration := range status {
			state := "pending"
			if migration.Applied {
				state = fmt.Sprintf("applied (%s)", migration.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("Version %s: %s\n", migration.Version, state)
		}

	case "up":
		if *count <= 0 {
			log.Fatal("Count must be greater than 0 for 'up' command")
		}
		if err := migrator.MigrateUp(ctx, *count); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		fmt.Printf("Successfully applied %d migrations\n", *count)

	case "validate":
		if err := migrator.ValidateDatabase(ctx); err != nil {
			log.Fatalf("Database validation failed: %v", err)
		}
		fmt.Println("Database schema is valid")

	default:
		fmt.Printf("Unknown command: %s\n", *command)
		fmt.Println("Available commands: migrate, status, up, validate")
		os.Exit(1)
	}
}
