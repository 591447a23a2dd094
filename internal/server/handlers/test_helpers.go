package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/fedih/telemetry-store/internal/database"
	"github.com/fedih/telemetry-store/internal/database/models"
)

// fakeStore is an in-memory TelemetryStore for handler tests. It mirrors the
// real store's ordering contract: Latest newest first, Range oldest first,
// record ID as the tie-breaker for identical timestamps.
type fakeStore struct {
	records []models.TelemetryRecord
	nextID  int64

	appendErr error
	queryErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1}
}

func (f *fakeStore) Append(ctx context.Context, records []models.TelemetryRecord) (*database.AppendResult, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}

	for _, record := range records {
		record.ID = f.nextID
		f.nextID++
		f.records = append(f.records, record)
	}

	return &database.AppendResult{Accepted: len(records)}, nil
}

func (f *fakeStore) Latest(ctx context.Context, entityID string, n int) ([]models.TelemetryRecord, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	matched := f.filter(entityID, "", time.Time{}, time.Time{})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Time.Equal(matched[j].Time) {
			return matched[i].Time.After(matched[j].Time)
		}
		return matched[i].ID > matched[j].ID
	})

	if len(matched) > n {
		matched = matched[:n]
	}
	return matched, nil
}

func (f *fakeStore) Range(ctx context.Context, entityID, attribute string, from, to time.Time) ([]models.TelemetryRecord, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	matched := f.filter(entityID, attribute, from, to)
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Time.Equal(matched[j].Time) {
			return matched[i].Time.Before(matched[j].Time)
		}
		return matched[i].ID < matched[j].ID
	})

	return matched, nil
}

func (f *fakeStore) filter(entityID, attribute string, from, to time.Time) []models.TelemetryRecord {
	var matched []models.TelemetryRecord
	for _, record := range f.records {
		if record.EntityID != entityID {
			continue
		}
		if attribute != "" && record.AttributeName != attribute {
			continue
		}
		if !from.IsZero() && record.Time.Before(from) {
			continue
		}
		if !to.IsZero() && record.Time.After(to) {
			continue
		}
		matched = append(matched, record)
	}
	return matched
}
