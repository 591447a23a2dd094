package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fedih/telemetry-store/internal/database"
	"github.com/fedih/telemetry-store/internal/database/models"
	"github.com/fedih/telemetry-store/internal/server/response"
	"github.com/fedih/telemetry-store/pkg/metrics"
)

// EntityHandler serves telemetry history queries
type EntityHandler struct {
	store        TelemetryStore
	defaultLastN int
	maxLastN     int

	queriesTotal *metrics.Counter
}

// NewEntityHandler creates a new entity query handler
func NewEntityHandler(store TelemetryStore, defaultLastN, maxLastN int) *EntityHandler {
	if defaultLastN <= 0 {
		defaultLastN = database.DefaultLastN
	}
	if maxLastN <= 0 {
		maxLastN = 10000
	}

	return &EntityHandler{
		store:        store,
		defaultLastN: defaultLastN,
		maxLastN:     maxLastN,
		queriesTotal: metrics.GetRegistry().NewCounter("entity_queries_total", "History queries served on /v2/entities"),
	}
}

// EntitySnapshot is one point in the returned history: all attribute values
// recorded with an identical timestamp.
type EntitySnapshot struct {
	Time       time.Time                  `json:"time"`
	EntityID   string                     `json:"entity_id"`
	EntityType string                     `json:"entity_type"`
	Attributes map[string]json.RawMessage `json:"attributes"`
}

// EntityHistoryResponse is the body for GET /v2/entities/{entity_id}
type EntityHistoryResponse struct {
	EntityID string           `json:"entity_id"`
	Count    int              `json:"count"`
	Data     []EntitySnapshot `json:"data"`
}

// HandleEntity handles GET /v2/entities/{entity_id}
func (h *EntityHandler) HandleEntity(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromResponse(w)

	if r.Method != http.MethodGet {
		response.WriteMethodNotAllowed(w, requestID)
		return
	}

	entityID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v2/entities/"), "/")
	if entityID == "" || strings.Contains(entityID, "/") {
		response.WriteBadRequest(w, requestID, "Entity ID is required", nil)
		return
	}

	h.queriesTotal.Inc()

	query := r.URL.Query()

	var records []models.TelemetryRecord
	var err error

	// lastN takes precedence over a date range when both are given.
	if lastNStr := query.Get("lastN"); lastNStr != "" || (query.Get("fromDate") == "" && query.Get("toDate") == "") {
		n := h.defaultLastN
		if lastNStr != "" {
			n, err = strconv.Atoi(lastNStr)
			if err != nil || n <= 0 {
				response.WriteBadRequest(w, requestID, "lastN must be a positive integer", nil)
				return
			}
			if n > h.maxLastN {
				n = h.maxLastN
			}
		}
		records, err = h.store.Latest(r.Context(), entityID, n)
	} else {
		from, to, parseErr := parseDateRange(query.Get("fromDate"), query.Get("toDate"))
		if parseErr != nil {
			response.WriteBadRequest(w, requestID, parseErr.Error(), nil)
			return
		}
		records, err = h.store.Range(r.Context(), entityID, query.Get("attribute"), from, to)
	}

	if err != nil {
		if errors.Is(err, database.ErrStoreUnavailable) {
			response.WriteStoreUnavailable(w, requestID, "Telemetry store unavailable")
			return
		}
		response.WriteInternalServerError(w, requestID, "Failed to query telemetry records", nil)
		return
	}

	response.WriteJSON(w, http.StatusOK, EntityHistoryResponse{
		EntityID: entityID,
		Count:    len(records),
		Data:     groupByTime(records),
	})
}

// parseDateRange parses fromDate/toDate. Absent bounds fall back to an
// effectively unbounded closed interval.
func parseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from := time.Unix(0, 0).UTC()
	to := time.Now().UTC()

	if fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("fromDate must be RFC3339")
		}
		from = parsed
	}

	if toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("toDate must be RFC3339")
		}
		to = parsed
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("toDate must not precede fromDate")
	}

	return from, to, nil
}

// groupByTime folds consecutive records sharing an identical timestamp into
// one snapshot, preserving the store's ordering.
func groupByTime(records []models.TelemetryRecord) []EntitySnapshot {
	snapshots := make([]EntitySnapshot, 0, len(records))

	for _, record := range records {
		n := len(snapshots)
		if n > 0 && snapshots[n-1].Time.Equal(record.Time) && snapshots[n-1].EntityID == record.EntityID {
			snapshots[n-1].Attributes[record.AttributeName] = json.RawMessage(record.AttributeValue)
			continue
		}

		snapshots = append(snapshots, EntitySnapshot{
			Time:       record.Time,
			EntityID:   record.EntityID,
			EntityType: record.EntityType,
			Attributes: map[string]json.RawMessage{
				record.AttributeName: json.RawMessage(record.AttributeValue),
			},
		})
	}

	return snapshots
}
