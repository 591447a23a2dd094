package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testReceivedAt = time.Date(2024, 5, 12, 10, 30, 0, 0, time.UTC)

func TestNormalize_AttributeFanOut(t *testing.T) {
	payload := []byte(`{
		"data": [{
			"id": "Robot001",
			"type": "Robot",
			"battery": {"type": "Number", "value": 85},
			"status": {"type": "Text", "value": "moving"},
			"position": {"type": "GeoProperty", "value": {"type": "Point", "coordinates": [1.5, 2.3, 0.0]}}
		}]
	}`)

	result, err := Normalize(payload, testReceivedAt)
	require.NoError(t, err)
	require.Len(t, result.Records, 3)
	assert.Empty(t, result.Skipped)

	names := make(map[string]string)
	for _, record := range result.Records {
		assert.Equal(t, "Robot001", record.EntityID)
		assert.Equal(t, "Robot", record.EntityType)
		assert.Equal(t, testReceivedAt, record.Time, "fan-out records share the receipt time")
		names[record.AttributeName] = string(record.AttributeValue)
	}

	assert.Equal(t, "85", names["battery"])
	assert.Equal(t, `"moving"`, names["status"])
	assert.JSONEq(t, `{"type":"Point","coordinates":[1.5,2.3,0.0]}`, names["position"])
}

func TestNormalize_SkipsMalformedAttributesIndividually(t *testing.T) {
	payload := []byte(`{
		"data": [{
			"id": "Robot001",
			"type": "Robot",
			"battery": {"type": "Number", "value": 85},
			"velocity": {"type": "Object"},
			"status": {"type": "Text", "value": "idle"}
		}]
	}`)

	result, err := Normalize(payload, testReceivedAt)
	require.NoError(t, err)

	assert.Len(t, result.Records, 2, "one bad attribute must not discard the rest")
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "Robot001", result.Skipped[0].EntityID)
	assert.Equal(t, "velocity", result.Skipped[0].AttributeName)
	assert.Equal(t, "attribute has no value", result.Skipped[0].Reason)
}

func TestNormalize_MalformedPayload(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not JSON", `battery=85`},
		{"missing data array", `{"subscriptionId": "sub-1"}`},
		{"data not an array", `{"data": {"id": "Robot001"}}`},
		{"entity not an object", `{"data": ["Robot001"]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize([]byte(tc.payload), testReceivedAt)
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestNormalize_MultipleEntities(t *testing.T) {
	payload := []byte(`{
		"data": [
			{"id": "Robot001", "type": "Robot", "battery": {"type": "Number", "value": 85}},
			{"id": "Env001", "type": "Environment", "temperature": {"type": "Number", "value": 21.5}}
		]
	}`)

	result, err := Normalize(payload, testReceivedAt)
	require.NoError(t, err)
	require.Len(t, result.Records, 2)

	byEntity := make(map[string]string)
	for _, record := range result.Records {
		byEntity[record.EntityID] = record.EntityType
	}
	assert.Equal(t, "Robot", byEntity["Robot001"])
	assert.Equal(t, "Environment", byEntity["Env001"])
}

func TestNormalize_EntityWithoutIDIsReported(t *testing.T) {
	payload := []byte(`{
		"data": [
			{"type": "Robot", "battery": {"type": "Number", "value": 85}},
			{"id": "Robot002", "type": "Robot", "battery": {"type": "Number", "value": 40}}
		]
	}`)

	result, err := Normalize(payload, testReceivedAt)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "Robot002", result.Records[0].EntityID)
	require.Len(t, result.Skipped, 1)
	assert.Contains(t, result.Skipped[0].Reason, "missing entity id")
}

func TestNormalize_AttributeTimestamps(t *testing.T) {
	observed := time.Date(2024, 5, 12, 9, 0, 0, 0, time.UTC)

	t.Run("observedAt wins", func(t *testing.T) {
		payload := []byte(`{
			"data": [{
				"id": "Robot001", "type": "Robot",
				"battery": {"type": "Number", "value": 85, "observedAt": "2024-05-12T09:00:00Z"}
			}]
		}`)

		result, err := Normalize(payload, testReceivedAt)
		require.NoError(t, err)
		require.Len(t, result.Records, 1)
		assert.Equal(t, observed, result.Records[0].Time)
	})

	t.Run("TimeInstant metadata", func(t *testing.T) {
		payload := []byte(`{
			"data": [{
				"id": "Robot001", "type": "Robot",
				"battery": {
					"type": "Number", "value": 85,
					"metadata": {"TimeInstant": {"type": "DateTime", "value": "2024-05-12T09:00:00Z"}}
				}
			}]
		}`)

		result, err := Normalize(payload, testReceivedAt)
		require.NoError(t, err)
		require.Len(t, result.Records, 1)
		assert.Equal(t, observed, result.Records[0].Time)
	})

	t.Run("unparseable timestamp falls back to receipt time", func(t *testing.T) {
		payload := []byte(`{
			"data": [{
				"id": "Robot001", "type": "Robot",
				"battery": {"type": "Number", "value": 85, "observedAt": "yesterday"}
			}]
		}`)

		result, err := Normalize(payload, testReceivedAt)
		require.NoError(t, err)
		require.Len(t, result.Records, 1)
		assert.Equal(t, testReceivedAt, result.Records[0].Time)
	})
}

func TestNormalize_MetadataPreservedVerbatim(t *testing.T) {
	payload := []byte(`{
		"data": [{
			"id": "Episode042", "type": "Episode",
			"reward": {
				"type": "Number", "value": 12.75,
				"metadata": {"dateModified": {"type": "DateTime", "value": "2024-05-12T09:00:00Z"}}
			}
		}]
	}`)

	result, err := Normalize(payload, testReceivedAt)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.JSONEq(t,
		`{"dateModified": {"type": "DateTime", "value": "2024-05-12T09:00:00Z"}}`,
		string(result.Records[0].Metadata))
}

func TestNormalize_EmptyData(t *testing.T) {
	result, err := Normalize([]byte(`{"data": []}`), testReceivedAt)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Empty(t, result.Skipped)
}
