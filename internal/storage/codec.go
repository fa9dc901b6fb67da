package storage

import (
	"encoding/json"
	"fmt"
)

// PutJSON marshals value as JSON and writes it under key.
func PutJSON(s Storage, table string, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: marshal %s/%x: %w", table, key, err)
	}
	return s.Put(table, key, data)
}

// GetJSON reads key and unmarshals it into out (a pointer).
func GetJSON(s Storage, table string, key []byte, out any) error {
	data, err := s.Get(table, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("storage: unmarshal %s/%x: %w", table, key, err)
	}
	return nil
}
