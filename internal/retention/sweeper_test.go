package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeleter struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (f *fakeDeleter) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.err
}

func TestConfig_Validate(t *testing.T) {
	t.Run("disabled config never fails", func(t *testing.T) {
		config := &Config{Enabled: false}
		assert.NoError(t, config.Validate())
	})

	t.Run("enabled defaults are valid", func(t *testing.T) {
		config := GetDefaultConfig()
		config.Enabled = true
		assert.NoError(t, config.Validate())
	})

	t.Run("enabled without schedule", func(t *testing.T) {
		config := GetDefaultConfig()
		config.Enabled = true
		config.Schedule = ""
		assert.Error(t, config.Validate())
	})

	t.Run("enabled with non-positive max age", func(t *testing.T) {
		config := GetDefaultConfig()
		config.Enabled = true
		config.MaxAge = 0
		assert.Error(t, config.Validate())
	})
}

func TestSweeper_SweepUsesRetentionCutoff(t *testing.T) {
	deleter := &fakeDeleter{deleted: 42}
	config := GetDefaultConfig()
	config.MaxAge = 24 * time.Hour

	sweeper := NewSweeper(config, deleter)
	now := time.Date(2024, 5, 12, 12, 0, 0, 0, time.UTC)
	sweeper.now = func() time.Time { return now }

	deleted, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(42), deleted)
	assert.True(t, deleter.cutoff.Equal(now.Add(-24*time.Hour)))
}

func TestSweeper_SweepPropagatesStoreError(t *testing.T) {
	deleter := &fakeDeleter{err: errors.New("connection refused")}

	sweeper := NewSweeper(GetDefaultConfig(), deleter)

	_, err := sweeper.Sweep(context.Background())
	assert.Error(t, err)
}

func TestSweeper_StartDisabledIsNoop(t *testing.T) {
	config := GetDefaultConfig()
	config.Enabled = false

	sweeper := NewSweeper(config, &fakeDeleter{})
	require.NoError(t, sweeper.Start())
	sweeper.Stop()
}

func TestSweeper_StartRejectsBadSchedule(t *testing.T) {
	config := GetDefaultConfig()
	config.Enabled = true
	config.Schedule = "not a cron spec"

	sweeper := NewSweeper(config, &fakeDeleter{})
	assert.Error(t, sweeper.Start())
}
