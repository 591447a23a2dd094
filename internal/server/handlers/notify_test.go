package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedih/telemetry-store/internal/database"
)

const robotNotification = `{
	"subscriptionId": "sub-1",
	"data": [{
		"id": "Robot:amr-001",
		"type": "Robot",
		"battery": {"type": "Number", "value": 85},
		"speed": {"type": "Number", "value": 1.2},
		"position": {"type": "geo:json", "value": {"type": "Point", "coordinates": [3.2, 7.8]}}
	}]
}`

func postNotify(handler *NotifyHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v2/notify", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleNotify(rec, req)
	return rec
}

func TestHandleNotify_StoresAllAttributes(t *testing.T) {
	store := newFakeStore()
	handler := NewNotifyHandler(store)

	rec := postNotify(handler, robotNotification)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp NotifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Accepted)
	assert.Empty(t, resp.Rejected)
	assert.Empty(t, resp.Skipped)

	require.Len(t, store.records, 3)
	for _, record := range store.records {
		assert.Equal(t, "Robot:amr-001", record.EntityID)
		assert.Equal(t, "Robot", record.EntityType)
		assert.True(t, record.Time.Equal(store.records[0].Time), "records from one notification share a timestamp")
	}
}

func TestHandleNotify_DuplicateDeliveryAppendsAgain(t *testing.T) {
	store := newFakeStore()
	handler := NewNotifyHandler(store)

	rec := postNotify(handler, robotNotification)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.records, 3)

	rec = postNotify(handler, robotNotification)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, store.records, 6, "redelivery is stored again, not deduplicated")
}

func TestHandleNotify_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json at all"},
		{"data not array", `{"data": {"id": "x"}}`},
		{"entity not object", `{"data": ["just a string"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewNotifyHandler(newFakeStore())

			rec := postNotify(handler, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "MALFORMED_PAYLOAD")
		})
	}
}

func TestHandleNotify_SkippedAttributeDoesNotDiscardRest(t *testing.T) {
	store := newFakeStore()
	handler := NewNotifyHandler(store)

	body := `{"data": [{
		"id": "Robot:amr-002",
		"type": "Robot",
		"battery": {"type": "Number", "value": 90},
		"speed": "not an attribute object",
		"temperature": {"type": "Number", "value": 36.5}
	}]}`

	rec := postNotify(handler, body)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp NotifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Accepted)
	require.Len(t, resp.Skipped, 1)
	assert.Equal(t, "speed", resp.Skipped[0].AttributeName)

	assert.Len(t, store.records, 2)
}

func TestHandleNotify_StoreUnavailable(t *testing.T) {
	store := newFakeStore()
	store.appendErr = database.ErrStoreUnavailable
	handler := NewNotifyHandler(store)

	rec := postNotify(handler, robotNotification)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "STORE_UNAVAILABLE")
}

func TestHandleNotify_EmptyDataAccepted(t *testing.T) {
	handler := NewNotifyHandler(newFakeStore())

	rec := postNotify(handler, `{"data": []}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp NotifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Accepted)
}

func TestHandleNotify_MethodNotAllowed(t *testing.T) {
	handler := NewNotifyHandler(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/v2/notify", nil)
	rec := httptest.NewRecorder()
	handler.HandleNotify(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleNotify_AttributeTimestampOverridesReceipt(t *testing.T) {
	store := newFakeStore()
	handler := NewNotifyHandler(store)

	body := `{"data": [{
		"id": "Robot:amr-003",
		"type": "Robot",
		"battery": {"type": "Number", "value": 70, "metadata": {"TimeInstant": {"type": "DateTime", "value": "2024-05-12T09:00:00Z"}}}
	}]}`

	rec := postNotify(handler, body)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, store.records, 1)
	assert.True(t, store.records[0].Time.Equal(time.Date(2024, 5, 12, 9, 0, 0, 0, time.UTC)))
}
