package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is an open-ended key-value payload stored in a JSONB column.
// Generation parameters and request metadata are opaque to the engine except
// for provider-side parameter cleaning, so they keep their dynamic shape.
type JSONMap map[string]interface{}

// Value implements driver.Valuer, serializing the map to JSON for storage.
// A nil map is stored as SQL NULL.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner, deserializing a JSONB column into the map.
func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
	return json.Unmarshal(data, m)
}

// GetString returns the string value stored under key, or "" when the key is
// absent or holds a non-string value.
func (m JSONMap) GetString(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
