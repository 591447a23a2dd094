// Package retention implements the out-of-band retention policy for the
// telemetry history: a cron-scheduled sweep deleting records older than a
// configured window. The ingest path itself never deletes anything.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fedih/telemetry-store/pkg/logger"
)

// RecordDeleter is the store surface the sweeper needs.
type RecordDeleter interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config represents retention policy configuration
type Config struct {
	// Enabled turns the sweeper on. Off by default: history is unbounded
	// unless the operator opts in.
	Enabled bool `yaml:"enabled" env:"RETENTION_ENABLED" default:"false"`
	// Schedule is a cron expression for sweep runs.
	Schedule string `yaml:"schedule" env:"RETENTION_SCHEDULE" default:"@hourly"`
	// MaxAge is how far back records are kept.
	MaxAge time.Duration `yaml:"max_age" env:"RETENTION_MAX_AGE" default:"720h"`
	// SweepTimeout bounds a single sweep run.
	SweepTimeout time.Duration `yaml:"sweep_timeout" env:"RETENTION_SWEEP_TIMEOUT" default:"5m"`
}

// GetDefaultConfig returns a default retention configuration
func GetDefaultConfig() *Config {
	return &Config{
		Enabled:      false,
		Schedule:     "@hourly",
		MaxAge:       30 * 24 * time.Hour,
		SweepTimeout: 5 * time.Minute,
	}
}

// Validate validates the retention configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Schedule == "" {
		return fmt.Errorf("retention schedule is required when retention is enabled")
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("retention max age must be positive")
	}
	if c.SweepTimeout <= 0 {
		return fmt.Errorf("retention sweep timeout must be positive")
	}
	return nil
}

// Sweeper periodically deletes telemetry records past the retention window.
type Sweeper struct {
	config    *Config
	telemetry RecordDeleter
	scheduler *cron.Cron
	log       *logger.Logger
	now       func() time.Time
}

// NewSweeper creates a new retention sweeper
func NewSweeper(config *Config, telemetry RecordDeleter) *Sweeper {
	if config == nil {
		config = GetDefaultConfig()
	}

	return &Sweeper{
		config:    config,
		telemetry: telemetry,
		scheduler: cron.New(),
		log:       logger.Default().WithField("component", "retention"),
		now:       time.Now,
	}
}

// Start schedules the sweep. No-op when retention is disabled.
func (s *Sweeper) Start() error {
	if !s.config.Enabled {
		return nil
	}

	if _, err := s.scheduler.AddFunc(s.config.Schedule, s.runSweep); err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	s.scheduler.Start()
	s.log.WithFields(map[string]interface{}{
		"schedule": s.config.Schedule,
		"max_age":  s.config.MaxAge.String(),
	}).Info("Retention sweeper started")

	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.scheduler.Stop()
	<-ctx.Done()
}

// Sweep deletes records older than the retention window and returns how
// many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.config.MaxAge)
	return s.telemetry.DeleteOlderThan(ctx, cutoff)
}

func (s *Sweeper) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.SweepTimeout)
	defer cancel()

	deleted, err := s.Sweep(ctx)
	if err != nil {
		s.log.WithField("error", err.Error()).Error("Retention sweep failed")
		return
	}

	s.log.WithField("deleted", deleted).Info("Retention sweep completed")
}
