package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version   string    `json:"version"`
	AppliedAt time.Time `json:"applied_at"`
	Applied   bool      `json:"applied"`
}

// Migrator handles database migrations
type Migrator struct {
	db     *sql.DB
	config *Config
}

// NewMigrator creates a new database migrator
func NewMigrator(config *Config) (*Migrator, error) {
	dsn := buildDSN(config)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	return &Migrator{
		db:     db,
		config: config,
	}, nil
}

// Close closes the migrator's database connection
func (m *Migrator) Close() error {
	return m.db.Close()
}

// GetMigrationFiles returns all available migration files sorted by version
func (m *Migrator) GetMigrationFiles() ([]string, error) {
	var files []string

	err := fs.WalkDir(migrationFiles, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() && strings.HasSuffix(path, ".sql") {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to read migration files: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		numI, _ := strconv.Atoi(extractVersionFromFilename(files[i]))
		numJ, _ := strconv.Atoi(extractVersionFromFilename(files[j]))
		return numI < numJ
	})

	return files, nil
}

// GetAppliedMigrations returns all applied migrations
func (m *Migrator) GetAppliedMigrations(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.createSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var migrations []MigrationStatus
	for rows.Next() {
		var migration MigrationStatus
		if err := rows.Scan(&migration.Version, &migration.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		migration.Applied = true
		migrations = append(migrations, migration)
	}

	return migrations, rows.Err()
}

// GetPendingMigrations returns migrations that haven't been applied yet
func (m *Migrator) GetPendingMigrations(ctx context.Context) ([]string, error) {
	availableFiles, err := m.GetMigrationFiles()
	if err != nil {
		return nil, err
	}

	appliedMigrations, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	appliedMap := make(map[string]bool)
	for _, migration := range appliedMigrations {
		appliedMap[migration.Version] = true
	}

	var pending []string
	for _, file := range availableFiles {
		if !appliedMap[extractVersionFromFilename(file)] {
			pending = append(pending, file)
		}
	}

	return pending, nil
}

// Migrate runs all pending migrations
func (m *Migrator) Migrate(ctx context.Context) error {
	pendingMigrations, err := m.GetPendingMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	for _, migrationFile := range pendingMigrations {
		if err := m.runMigration(ctx, migrationFile); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", migrationFile, err)
		}
	}

	return nil
}

// MigrateUp runs up to count pending migrations
func (m *Migrator) MigrateUp(ctx context.Context, count int) error {
	pendingMigrations, err := m.GetPendingMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	if count > len(pendingMigrations) {
		count = len(pendingMigrations)
	}

	for i := 0; i < count; i++ {
		migrationFile := pendingMigrations[i]
		if err := m.runMigration(ctx, migrationFile); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", migrationFile, err)
		}
	}

	return nil
}

// GetMigrationStatus returns the status of all migrations
func (m *Migrator) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	availableFiles, err := m.GetMigrationFiles()
	if err != nil {
		return nil, err
	}

	appliedMigrations, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	appliedMap := make(map[string]MigrationStatus)
	for _, migration := range appliedMigrations {
		appliedMap[migration.Version] = migration
	}

	var status []MigrationStatus
	for _, file := range availableFiles {
		version := extractVersionFromFilename(file)
		if applied, exists := appliedMap[version]; exists {
			status = append(status, applied)
		} else {
			status = append(status, MigrationStatus{
				Version: version,
				Applied: false,
			})
		}
	}

	return status, nil
}

// ValidateDatabase checks that the telemetry schema is in place
func (m *Migrator) ValidateDatabase(ctx context.Context) error {
	var exists bool
	err := m.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)",
		"telemetry_data",
	).Scan(&exists)

	if err != nil {
		return fmt.Errorf("failed to check table telemetry_data: %w", err)
	}

	if !exists {
		return fmt.Errorf("required table telemetry_data does not exist")
	}

	return nil
}

// runMigration executes a single migration file in a transaction
func (m *Migrator) runMigration(ctx context.Context, migrationFile string) error {
	content, err := migrationFiles.ReadFile(migrationFile)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	version := extractVersionFromFilename(migrationFile)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING",
		version, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// createSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func (m *Migrator) createSchemaMigrationsTable(ctx context.Context) error {
	createTableSQL := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`

	_, err := m.db.ExecContext(ctx, createTableSQL)
	return err
}

// extractVersionFromFilename extracts the version number from a migration filename
func extractVersionFromFilename(filename string) string {
	base := filepath.Base(filename)
	parts := strings.Split(base, "_")
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}
