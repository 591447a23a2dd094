package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fedih/telemetry-store/internal/database/models"
)

// reserved protocol keys on an entity; everything else is an attribute.
var reservedKeys = map[string]bool{
	"id":   true,
	"type": true,
}

// SkippedAttribute identifies an attribute entry that could not be
// normalized. Skips are reported to the caller so nothing is dropped
// silently.
type SkippedAttribute struct {
	EntityID      string `json:"entity_id"`
	AttributeName string `json:"attribute_name,omitempty"`
	Reason        string `json:"reason"`
}

// Result is the outcome of normalizing one notification.
type Result struct {
	Records []models.TelemetryRecord
	Skipped []SkippedAttribute
}

// Normalize converts a raw notification body into telemetry records: one
// record per non-reserved attribute per entity. All records default to the
// receipt time, so an N-attribute change lands as N rows sharing one
// timestamp unless an attribute carries its own observation time.
//
// A malformed attribute entry is skipped individually; only an unparseable
// top-level payload fails with ErrMalformedPayload.
func Normalize(payload []byte, receivedAt time.Time) (*Result, error) {
	var notification Notification
	if err := json.Unmarshal(payload, &notification); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if notification.Data == nil {
		return nil, fmt.Errorf("%w: missing data array", ErrMalformedPayload)
	}

	result := &Result{}
	receivedAt = receivedAt.UTC()

	for i, raw := range notification.Data {
		var entity map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entity); err != nil {
			return nil, fmt.Errorf("%w: data[%d] is not an entity object: %v", ErrMalformedPayload, i, err)
		}

		entityID := stringField(entity, "id")
		if entityID == "" {
			result.Skipped = append(result.Skipped, SkippedAttribute{
				Reason: fmt.Sprintf("data[%d]: missing entity id", i),
			})
			continue
		}
		entityType := stringField(entity, "type")

		for name, rawAttr := range entity {
			if reservedKeys[name] {
				continue
			}

			var attr Attribute
			if err := json.Unmarshal(rawAttr, &attr); err != nil {
				result.Skipped = append(result.Skipped, SkippedAttribute{
					EntityID:      entityID,
					AttributeName: name,
					Reason:        "attribute is not an object",
				})
				continue
			}
			if attr.Value == nil {
				result.Skipped = append(result.Skipped, SkippedAttribute{
					EntityID:      entityID,
					AttributeName: name,
					Reason:        "attribute has no value",
				})
				continue
			}

			result.Records = append(result.Records, models.TelemetryRecord{
				Time:           attributeTime(&attr, receivedAt),
				EntityID:       entityID,
				EntityType:     entityType,
				AttributeName:  name,
				AttributeValue: models.JSONValue(attr.Value),
				Metadata:       models.JSONValue(attr.Metadata),
			})
		}
	}

	return result, nil
}

func stringField(entity map[string]json.RawMessage, key string) string {
	raw, ok := entity[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// attributeTime resolves the observation time for one attribute:
// observedAt, then metadata TimeInstant/dateModified, then the receipt
// time.
func attributeTime(attr *Attribute, fallback time.Time) time.Time {
	if t, ok := parseTime(attr.ObservedAt); ok {
		return t
	}

	if len(attr.Metadata) > 0 {
		var meta map[string]json.RawMessage
		if err := json.Unmarshal(attr.Metadata, &meta); err == nil {
			for _, key := range []string{"TimeInstant", "dateModified"} {
				raw, ok := meta[key]
				if !ok {
					continue
				}
				var entry struct {
					Value string `json:"value"`
				}
				if err := json.Unmarshal(raw, &entry); err != nil {
					continue
				}
				if t, ok := parseTime(entry.Value); ok {
					return t
				}
			}
		}
	}

	return fallback
}

func parseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
