package datastore

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Metadata is a jsonb column holding free-form key/value pairs.
type Metadata map[string]interface{}

// Value implements driver.Valuer, serializing the metadata to json.
func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner, deserializing a jsonb column.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan Metadata, not byte slice")
	}
	return json.Unmarshal(b, &m)
}

// Copy returns a shallow copy of the metadata, nil in nil out.
func (m Metadata) Copy() Metadata {
	if m == nil {
		return nil
	}
	cp := make(Metadata, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// NullString is a nullable text column which round-trips through json as
// either a string or null.
type NullString struct {
	sql.NullString
}

// MarshalJSON renders invalid values as json null.
func (ns *NullString) MarshalJSON() ([]byte, error) {
	if !ns.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(ns.String)
}

// UnmarshalJSON maps json null (and absent values) to an invalid NullString.
func (ns *NullString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		ns.String, ns.Valid = "", false
		return nil
	}
	if err := json.Unmarshal(data, &ns.String); err != nil {
		return err
	}
	ns.Valid = true
	return nil
}
