package sqlite

import (
	"encoding/json"
	"time"
)

// encodeStrings stores a string list as a JSON array.
func encodeStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

func decodeStrings(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}

// nullableStrings keeps the difference between "not set" and an empty list.
func nullableStrings(values []string) any {
	if values == nil {
		return nil
	}
	return encodeStrings(values)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
