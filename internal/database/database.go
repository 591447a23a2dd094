// Package database provides database connectivity, migrations, and the
// time-series persistence layer for the telemetry store. The backing table
// is a TimescaleDB hypertable; all access goes through a bounded connection
// pool shared by the ingest and query paths.
package database

import (
	"context"
	"fmt"
)

// Database represents the main database interface for the application
type Database struct {
	conn     *Connection
	migrator *Migrator
	config   *Config
}

// New creates a new database instance with all components
func New(config *Config) (*Database, error) {
	conn, err := NewConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	migrator, err := NewMigrator(config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Database{
		conn:     conn,
		migrator: migrator,
		config:   config,
	}, nil
}

// Connect verifies connectivity before the server starts serving.
func (db *Database) Connect(ctx context.Context) error {
	if err := db.conn.Ping(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	return nil
}

// Close closes all database connections
func (db *Database) Close() error {
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	if err := db.migrator.Close(); err != nil {
		return fmt.Errorf("failed to close migrator: %w", err)
	}

	return nil
}

// Connection returns the database connection
func (db *Database) Connection() *Connection {
	return db.conn
}

// Migrator returns the database migrator
func (db *Database) Migrator() *Migrator {
	return db.migrator
}

// HealthCheck performs a lightweight store round-trip
func (db *Database) HealthCheck(ctx context.Context) error {
	return db.conn.HealthCheck(ctx)
}

// GetStats returns database statistics
func (db *Database) GetStats() (map[string]interface{}, error) {
	return db.conn.GetStats()
}

// NewTelemetryService returns the time-series service bound to this database.
func (db *Database) NewTelemetryService() *TelemetryService {
	return &TelemetryService{db: db.conn.DB()}
}
