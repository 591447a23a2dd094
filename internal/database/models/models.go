// Package models contains the database models for the telemetry store.
// The schema is owned by the SQL migrations; the gorm tags here only cover
// what the query paths need.
package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// JSONValue stores an arbitrary JSON document in a jsonb column. Attribute
// values carry no unified schema (scalars, vectors, nested sensor blobs),
// so the value is kept verbatim and never reinterpreted by the store.
type JSONValue []byte

// Scan implements the sql.Scanner interface for JSONValue
func (j *JSONValue) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = JSONValue(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONValue", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for JSONValue
func (j JSONValue) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// MarshalJSON writes the stored document unchanged.
func (j JSONValue) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON keeps the raw document without decoding it.
func (j *JSONValue) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("models.JSONValue: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[0:0], data...)
	return nil
}
