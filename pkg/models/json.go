package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSONStringArray is a string list stored as a JSON document (jsonb on
// PostgreSQL, text elsewhere).
type JSONStringArray []string

// Scan implements sql.Scanner for JSONStringArray.
func (j *JSONStringArray) Scan(src interface{}) error {
	if src == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("JSONStringArray: unsupported type %T", src)
	}

	if len(data) == 0 || string(data) == "null" {
		*j = nil
		return nil
	}

	return json.Unmarshal(data, (*[]string)(j))
}

// Value implements driver.Valuer for JSONStringArray. A nil array is stored
// as an empty JSON array so the column can stay NOT NULL.
func (j JSONStringArray) Value() (driver.Value, error) {
	if j == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(j))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// GormDBDataType picks the column type per dialect.
func (JSONStringArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}
