package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"gorm.io/gorm"

	"github.com/fedih/telemetry-store/internal/database/models"
)

// ErrStoreUnavailable reports that the underlying persistence could not be
// reached. Callers must be able to tell this apart from an entity simply
// having no records, which is an empty result and not an error.
var ErrStoreUnavailable = errors.New("telemetry store unavailable")

// DefaultLastN bounds latest-N queries that do not specify a limit.
const DefaultLastN = 100

// RejectedRecord identifies one record of a batch that could not be
// persisted, with the reason.
type RejectedRecord struct {
	EntityID      string `json:"entity_id"`
	AttributeName string `json:"attribute_name"`
	Reason        string `json:"reason"`
}

// AppendResult reports the outcome of an append: how many records were
// durably accepted and which ones were rejected. Batches are allowed to
// split; a partial failure never silently discards the records that
// succeeded.
type AppendResult struct {
	Accepted int              `json:"accepted"`
	Rejected []RejectedRecord `json:"rejected,omitempty"`
}

// TelemetryService provides append-only time-series access to the
// telemetry_data hypertable.
type TelemetryService struct {
	db *gorm.DB
}

// NewTelemetryService creates a telemetry service on the given gorm handle.
// Handler tests use this with their own handle; production code goes
// through Database.NewTelemetryService.
func NewTelemetryService(db *gorm.DB) *TelemetryService {
	return &TelemetryService{db: db}
}

// Append inserts all given records. The fast path is a single multi-row
// INSERT; if that fails for a reason other than store unavailability the
// batch is retried record by record so one bad record cannot take down the
// rest, and each failure is reported in the result.
func (s *TelemetryService) Append(ctx context.Context, records []models.TelemetryRecord) (*AppendResult, error) {
	if len(records) == 0 {
		return &AppendResult{}, nil
	}

	err := s.db.WithContext(ctx).Create(&records).Error
	if err == nil {
		return &AppendResult{Accepted: len(records)}, nil
	}
	if isUnavailable(err) {
		return nil, fmt.Errorf("append: %w: %v", ErrStoreUnavailable, err)
	}

	result := &AppendResult{}
	for i := range records {
		record := records[i]
		if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
			if isUnavailable(err) {
				return nil, fmt.Errorf("append: %w: %v", ErrStoreUnavailable, err)
			}
			result.Rejected = append(result.Rejected, RejectedRecord{
				EntityID:      record.EntityID,
				AttributeName: record.AttributeName,
				Reason:        err.Error(),
			})
			continue
		}
		result.Accepted++
	}

	return result, nil
}

// Latest returns up to n most recent records for the entity, newest first.
// Ties on time are broken by insert sequence so the result is deterministic
// regardless of delivery order. An entity with no records yields an empty
// slice, not an error.
func (s *TelemetryService) Latest(ctx context.Context, entityID string, n int) ([]models.TelemetryRecord, error) {
	if n <= 0 {
		n = DefaultLastN
	}

	var records []models.TelemetryRecord
	err := s.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("time DESC, id DESC").
		Limit(n).
		Find(&records).Error

	if err != nil {
		return nil, classify("latest", err)
	}

	return records, nil
}

// Range returns all records for the entity with time in [from, to], oldest
// first, optionally filtered to a single attribute. Relies on the
// hypertable's time partitioning for the scan.
func (s *TelemetryService) Range(ctx context.Context, entityID, attribute string, from, to time.Time) ([]models.TelemetryRecord, error) {
	query := s.db.WithContext(ctx).
		Where("entity_id = ? AND time >= ? AND time <= ?", entityID, from, to)

	if attribute != "" {
		query = query.Where("attribute_name = ?", attribute)
	}

	var records []models.TelemetryRecord
	if err := query.Order("time ASC, id ASC").Find(&records).Error; err != nil {
		return nil, classify("range", err)
	}

	return records, nil
}

// Count returns the total number of records stored for the entity.
func (s *TelemetryService) Count(ctx context.Context, entityID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.TelemetryRecord{}).
		Where("entity_id = ?", entityID).
		Count(&count).Error

	if err != nil {
		return 0, classify("count", err)
	}

	return count, nil
}

// DeleteOlderThan removes records observed before the cutoff and returns
// how many were deleted. Used only by the retention sweeper.
func (s *TelemetryService) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("time < ?", cutoff).
		Delete(&models.TelemetryRecord{})

	if result.Error != nil {
		return 0, classify("delete", result.Error)
	}

	return result.RowsAffected, nil
}

func classify(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUnavailable separates infrastructure failures (connection refused,
// pool acquisition timeout, broken connection) from per-record errors such
// as constraint violations.
func isUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
