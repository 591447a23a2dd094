// Package notify normalizes context-broker change notifications into flat
// telemetry records. The broker delivers best-effort (possibly duplicated,
// possibly out of order); normalization is purely additive and performs no
// semantic validation of attribute values.
package notify

import (
	"encoding/json"
	"errors"
)

// ErrMalformedPayload reports that the top-level payload could not be
// parsed as a notification at all. Individual bad attributes never raise
// it; they are skipped and reported instead.
var ErrMalformedPayload = errors.New("malformed notification payload")

// Notification is the broker's push message: one or more entities whose
// attributes changed.
type Notification struct {
	SubscriptionID string            `json:"subscriptionId,omitempty"`
	Data           []json.RawMessage `json:"data"`
}

// Attribute is the value-bearing structure the broker sends per changed
// attribute. Value and Metadata are kept as raw JSON; the store treats
// them as opaque.
type Attribute struct {
	Type       string          `json:"type,omitempty"`
	Value      json.RawMessage `json:"value"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	ObservedAt string          `json:"observedAt,omitempty"`
}
