// Package handlers implements the HTTP handlers for the telemetry API.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fedih/telemetry-store/internal/database"
	"github.com/fedih/telemetry-store/internal/database/models"
	"github.com/fedih/telemetry-store/internal/notify"
	"github.com/fedih/telemetry-store/internal/server/response"
	"github.com/fedih/telemetry-store/pkg/metrics"
)

// TelemetryStore is the store surface the handlers depend on.
type TelemetryStore interface {
	Append(ctx context.Context, records []models.TelemetryRecord) (*database.AppendResult, error)
	Latest(ctx context.Context, entityID string, n int) ([]models.TelemetryRecord, error)
	Range(ctx context.Context, entityID, attribute string, from, to time.Time) ([]models.TelemetryRecord, error)
}

// NotifyHandler handles context broker change notifications
type NotifyHandler struct {
	store TelemetryStore
	now   func() time.Time

	notificationsTotal *metrics.Counter
	recordsStored      *metrics.Counter
	recordsRejected    *metrics.Counter
}

// NewNotifyHandler creates a new notification handler
func NewNotifyHandler(store TelemetryStore) *NotifyHandler {
	registry := metrics.GetRegistry()

	return &NotifyHandler{
		store:              store,
		now:                time.Now,
		notificationsTotal: registry.NewCounter("notifications_received_total", "Notifications received on /v2/notify"),
		recordsStored:      registry.NewCounter("telemetry_records_stored_total", "Telemetry records persisted"),
		recordsRejected:    registry.NewCounter("telemetry_records_rejected_total", "Telemetry records rejected or skipped"),
	}
}

// NotifyResponse is the body returned for every accepted notification. It
// accounts for every record: accepted count plus per-record rejections.
type NotifyResponse struct {
	Accepted int                       `json:"accepted"`
	Rejected []database.RejectedRecord `json:"rejected,omitempty"`
	Skipped  []notify.SkippedAttribute `json:"skipped,omitempty"`
}

// HandleNotify handles POST /v2/notify
func (h *NotifyHandler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromResponse(w)

	if r.Method != http.MethodPost {
		response.WriteMethodNotAllowed(w, requestID)
		return
	}

	h.notificationsTotal.Inc()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.WriteBadRequest(w, requestID, "Failed to read request body", nil)
		return
	}

	// One receipt timestamp per notification; every record without its own
	// attribute-level timestamp shares it.
	result, err := notify.Normalize(body, h.now().UTC())
	if err != nil {
		if errors.Is(err, notify.ErrMalformedPayload) {
			response.WriteError(w, requestID, http.StatusBadRequest, response.ErrorCodeMalformedPayload, err.Error(), nil)
			return
		}
		response.WriteInternalServerError(w, requestID, "Failed to process notification", nil)
		return
	}

	appendResult := &database.AppendResult{}
	if len(result.Records) > 0 {
		appendResult, err = h.store.Append(r.Context(), result.Records)
		if err != nil {
			if errors.Is(err, database.ErrStoreUnavailable) {
				response.WriteStoreUnavailable(w, requestID, "Telemetry store unavailable")
				return
			}
			response.WriteInternalServerError(w, requestID, "Failed to persist telemetry records", nil)
			return
		}
	}

	h.recordsStored.Add(int64(appendResult.Accepted))
	h.recordsRejected.Add(int64(len(appendResult.Rejected) + len(result.Skipped)))

	response.WriteJSON(w, http.StatusOK, NotifyResponse{
		Accepted: appendResult.Accepted,
		Rejected: appendResult.Rejected,
		Skipped:  result.Skipped,
	})
}

// requestIDFromResponse reads the request ID the middleware stamped on the
// response headers.
func requestIDFromResponse(w http.ResponseWriter) string {
	return w.Header().Get("X-Request-ID")
}
