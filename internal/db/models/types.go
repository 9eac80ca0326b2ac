// Package models defines the database model types for ServerSoft.
// Each type corresponds to a table; struct tags drive both JSON
// serialization and sqlx row scanning. Query logic belongs in the
// repositories package.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList is a JSONB array of strings.
type StringList []string

// Value implements driver.Valuer. A nil list is stored as [].
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if b == nil {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("scan string list: %w", err)
	}
	*l = out
	return nil
}

// Contains reports whether s is in the list.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// StringMap is a JSONB object with string values.
type StringMap map[string]string

// Value implements driver.Valuer. A nil map is stored as {}.
func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(m))
}

// Scan implements sql.Scanner.
func (m *StringMap) Scan(src interface{}) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	out := map[string]string{}
	if b != nil {
		if err := json.Unmarshal(b, &out); err != nil {
			return fmt.Errorf("scan string map: %w", err)
		}
	}
	*m = out
	return nil
}

// JSONObject is a free-form JSONB object, used for audit metadata.
type JSONObject map[string]interface{}

// Value implements driver.Valuer.
func (o JSONObject) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal(map[string]interface{}(o))
}

// Scan implements sql.Scanner.
func (o *JSONObject) Scan(src interface{}) error {
	b, err := jsonBytes(src)
	if err != nil {
		return err
	}
	if b == nil {
		*o = nil
		return nil
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("scan json object: %w", err)
	}
	*o = out
	return nil
}

func jsonBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", src)
	}
}
